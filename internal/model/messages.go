package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Bus topics.
const (
	TopicCustomerIngestion = "ingestion:customer"
	TopicCampaignStart     = "campaign:start"
	TopicDeliveryReceipt   = "delivery:receipt"
)

// CustomerPayload is published on ingestion:customer.
type CustomerPayload struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	TotalSpends float64  `json:"totalSpends"`
	Visits      int      `json:"visits"`
	LastVisit   *DayTime `json:"lastVisit,omitempty"`
}

// Customer converts the payload into the full record it replaces.
func (p CustomerPayload) Customer() *Customer {
	c := &Customer{
		Name:        p.Name,
		Email:       p.Email,
		TotalSpends: p.TotalSpends,
		Visits:      p.Visits,
	}
	if p.LastVisit != nil {
		t := p.LastVisit.Time
		c.LastVisit = &t
	}
	return c
}

// CampaignJob is published on campaign:start.
type CampaignJob struct {
	Rules           json.RawMessage `json:"rules"`
	MessageTemplate string          `json:"messageTemplate"`
	UserID          string          `json:"userId,omitempty"`
}

// Receipt is published on delivery:receipt.
type Receipt struct {
	LogID  string         `json:"logId"`
	Status DeliveryStatus `json:"status"`
}

// DayTime accepts either a YYYY-MM-DD date or an RFC3339 timestamp.
type DayTime struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDay parses the formats accepted for lastVisit.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

func (d *DayTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDay(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d DayTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.Format(time.RFC3339))
}
