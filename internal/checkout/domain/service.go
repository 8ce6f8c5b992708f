package domain

import (
	"context"
	"errors"
)

type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int64  `json:"quantity"`
}

// CreateSessionRequest starts a destination-charge checkout against one
// seller. BuyerID is optional; guests simply omit it.
type CreateSessionRequest struct {
	SellerAccountID string            `json:"seller_account_id"`
	BuyerID         string            `json:"buyer_id,omitempty"`
	Currency        string            `json:"currency"`
	LineItems       []LineItem        `json:"line_items"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type Session struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ExpiresAt       int64  `json:"expires_at"`
}

type Service interface {
	CreateSession(context.Context, CreateSessionRequest) (Session, error)
}

var (
	ErrInvalidSeller       = errors.New("invalid_seller")
	ErrSellerNotChargeable = errors.New("seller_not_chargeable")
	ErrInvalidBuyer        = errors.New("invalid_buyer")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidLineItems    = errors.New("invalid_line_items")
)
