package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert claims the event id. It returns false when another delivery
	// already holds the row.
	Insert(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)

	FindByStripeEventID(ctx context.Context, db *gorm.DB, stripeEventID string) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
