// internal/model/communication_log.go
package model

import "time"

type DeliveryStatus string

const (
    DeliveryPending DeliveryStatus = "PENDING"
    DeliverySent    DeliveryStatus = "SENT"
    DeliveryFailed  DeliveryStatus = "FAILED"
)

// Terminal reports whether s is an outcome a receipt can carry.
func (s DeliveryStatus) Terminal() bool {
    return s == DeliverySent || s == DeliveryFailed
}

type CommunicationLog struct {
    ID         string         `db:"id" json:"id"`
    CampaignID string         `db:"campaign_id" json:"campaignId"`
    CustomerID string         `db:"customer_id" json:"customerId"`
    Status     DeliveryStatus `db:"status" json:"status"` // PENDING, SENT, FAILED
    CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
    UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}
