package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/pkg/db/option"
	"gorm.io/gorm"
)

type ListOrdersFilter struct {
	AccountID     *snowflake.ID
	Status        string
	PaymentStatus string
}

type Repository interface {
	// Upsert inserts the order or, when a row for the same payment intent
	// exists, refreshes its capture fields. It returns the stored row.
	Upsert(ctx context.Context, db *gorm.DB, order *Order) (*Order, error)

	AttachCheckoutSession(ctx context.Context, db *gorm.DB, paymentIntentID, sessionID string, now time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, db *gorm.DB, paymentIntentID string, now time.Time) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByPaymentIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Order, error)
	FindByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrdersFilter, opts ...option.QueryOption) ([]*Order, error)

	// InsertRefund records a refund object once; redelivered refunds are
	// absorbed by the unique provider refund id.
	InsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) (bool, error)
	SetRefundTotals(ctx context.Context, db *gorm.DB, orderID snowflake.ID, amountRefunded int64, paymentStatus, status string, now time.Time) error
	ListRefunds(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*Refund, error)
}
