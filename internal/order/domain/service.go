package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/pkg/db/pagination"
	"gorm.io/datatypes"
)

// PaymentCapture carries the fields projected from a succeeded payment.
// SellerAccountID is the local connected account id, already resolved from
// the provider-side destination account.
type PaymentCapture struct {
	PaymentIntentID string
	SellerAccountID snowflake.ID
	BuyerID         *snowflake.ID
	Amount          int64
	Currency        string
	ApplicationFee  int64
	ChargeID        *string
	TransferID      *string
	Metadata        datatypes.JSON
}

// RefundEntry is one refund object from a charge payload.
type RefundEntry struct {
	StripeRefundID       string
	Amount               int64
	BalanceTransactionID *string
	Reason               *string
	CreatedAt            time.Time
}

// RefundCapture carries the refund state of a charge. AmountRefunded is the
// cumulative total reported by the provider, not a delta.
type RefundCapture struct {
	PaymentIntentID string
	ChargeID        string
	AmountRefunded  int64
	Refunds         []RefundEntry
}

type GetOrderRequest struct {
	ID string
}

type ListOrdersRequest struct {
	AccountID     *snowflake.ID
	Status        string
	PaymentStatus string
	Pagination    pagination.Pagination
}

type ListOrdersResponse struct {
	Orders   []Order              `json:"orders"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// UpsertByPaymentIntentID creates the order for a captured payment or,
	// on redelivery, refreshes the existing row in place.
	UpsertByPaymentIntentID(context.Context, PaymentCapture) (Order, error)

	// AttachCheckoutSession links a completed checkout session to the order
	// sharing its payment intent. A missing order is a benign no-op.
	AttachCheckoutSession(ctx context.Context, paymentIntentID, sessionID string) error

	// MarkPaymentFailed records a failed payment attempt. Orders that
	// already captured funds are left untouched.
	MarkPaymentFailed(ctx context.Context, paymentIntentID string) error

	// ApplyRefunds reconciles the order with the charge's refund state.
	ApplyRefunds(context.Context, RefundCapture) error

	GetByID(context.Context, GetOrderRequest) (Order, error)
	List(context.Context, ListOrdersRequest) (ListOrdersResponse, error)
	ListRefunds(context.Context, GetOrderRequest) ([]Refund, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidCapture   = errors.New("invalid_capture")
	ErrNotFound         = errors.New("not_found")
	ErrUnknownOrder     = errors.New("unknown_order")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
