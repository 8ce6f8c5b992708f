package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent is the ingestion ledger. One row exists per provider event id,
// enforced by a unique constraint; the insert is the commit point that makes
// redelivery and concurrent delivery safe. ProcessedAt stays NULL until the
// event's side effects have been applied.
type WebhookEvent struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	StripeEventID string         `gorm:"not null;uniqueIndex" json:"stripe_event_id"`
	EventType     string         `gorm:"not null;index" json:"event_type"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt    time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
