// internal/errors/errors.go
package appErrors

import (
    "errors"
    "fmt"
)

// ErrMalformedMessage marks a bus payload that cannot be decoded or is
// missing required fields. Consumers log and drop it.
var ErrMalformedMessage = errors.New("malformed message")

// Malformed wraps cause so that errors.Is(err, ErrMalformedMessage) holds.
func Malformed(topic string, cause error) error {
    return fmt.Errorf("%w on %s: %v", ErrMalformedMessage, topic, cause)
}

type ErrCampaignNotFound struct {
    CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
    return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
    return &ErrCampaignNotFound{CampaignID: id}
}

// IsNotFound reports whether err is, or wraps, ErrCampaignNotFound.
func IsNotFound(err error) bool {
    var c *ErrCampaignNotFound
    return errors.As(err, &c)
}
