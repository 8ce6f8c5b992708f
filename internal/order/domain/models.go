package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	OrderStatusCreated  = "created"
	OrderStatusPaid     = "paid"
	OrderStatusRefunded = "refunded"
)

const (
	PaymentStatusProcessing      = "processing"
	PaymentStatusSucceeded       = "succeeded"
	PaymentStatusFailed          = "failed"
	PaymentStatusRefundedPartial = "refunded_partial"
	PaymentStatusRefundedFull    = "refunded_full"
)

// Order is the local projection of a captured payment. PaymentIntentID is the
// natural key; every mutation driven by provider notifications is keyed on it
// so redeliveries converge on the same row.
type Order struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	BuyerID           *snowflake.ID  `json:"buyer_id,omitempty"`
	AccountID         snowflake.ID   `gorm:"not null;index" json:"account_id"`
	PaymentIntentID   string         `gorm:"not null;uniqueIndex" json:"payment_intent_id"`
	CheckoutSessionID *string        `gorm:"uniqueIndex" json:"checkout_session_id,omitempty"`
	ChargeID          *string        `gorm:"uniqueIndex" json:"charge_id,omitempty"`
	TransferID        *string        `gorm:"uniqueIndex" json:"transfer_id,omitempty"`
	Amount            int64          `gorm:"not null" json:"amount"`
	ApplicationFee    int64          `gorm:"not null;default:0" json:"application_fee"`
	AmountRefunded    int64          `gorm:"not null;default:0" json:"amount_refunded"`
	Currency          string         `gorm:"not null" json:"currency"`
	Status            string         `gorm:"not null" json:"status"`
	PaymentStatus     string         `gorm:"not null" json:"payment_status"`
	Metadata          datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Refund records one provider refund object. StripeRefundID is unique, which
// makes refund ingestion replay safe.
type Refund struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID              snowflake.ID   `gorm:"not null;index" json:"order_id"`
	StripeRefundID       string         `gorm:"not null;uniqueIndex" json:"stripe_refund_id"`
	Amount               int64          `gorm:"not null" json:"amount"`
	BalanceTransactionID *string        `json:"balance_transaction_id,omitempty"`
	Reason               *string        `json:"reason,omitempty"`
	Metadata             datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
}

func (Refund) TableName() string { return "refunds" }
