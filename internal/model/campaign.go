// internal/model/campaign.go
package model

import (
    "encoding/json"
    "time"
)

type CampaignStatus string

const (
    CampaignPending   CampaignStatus = "PENDING"
    CampaignCompleted CampaignStatus = "COMPLETED"
    CampaignFailed    CampaignStatus = "FAILED"
)

type Campaign struct {
    ID              string          `db:"id" json:"id"`
    AudienceSize    int             `db:"audience_size" json:"audienceSize"`
    Rules           json.RawMessage `db:"rules" json:"rules"`
    MessageTemplate string          `db:"message_template" json:"messageTemplate"`
    Status          CampaignStatus  `db:"status" json:"status"`
    SentCount       int             `db:"sent_count" json:"sentCount"`
    FailedCount     int             `db:"failed_count" json:"failedCount"`
    CreatedBy       string          `db:"created_by" json:"createdBy,omitempty"`
    CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
    UpdatedAt       *time.Time      `db:"updated_at" json:"updatedAt,omitempty"`
}

// Delivered is the number of receipts reconciled so far.
func (c *Campaign) Delivered() int {
    return c.SentCount + c.FailedCount
}
