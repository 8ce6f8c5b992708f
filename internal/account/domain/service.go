package domain

import (
	"context"
	"errors"
)

type CreateAccountRequest struct {
	UserID  string
	Country string
	Email   string
}

type GetAccountRequest struct {
	ID string
}

type ListAccountsRequest struct {
	ChargesEnabled *bool
}

type OnboardingLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type Service interface {
	Create(context.Context, CreateAccountRequest) (ConnectedAccount, error)
	OnboardingLink(context.Context, GetAccountRequest) (OnboardingLink, error)
	GetByID(context.Context, GetAccountRequest) (ConnectedAccount, error)
	GetByStripeAccountID(ctx context.Context, stripeAccountID string) (ConnectedAccount, error)
	List(context.Context, ListAccountsRequest) ([]ConnectedAccount, error)

	// SyncFromProvider applies a provider capability snapshot to the local
	// row keyed by external account id. An unknown account is a benign miss.
	SyncFromProvider(context.Context, AccountSnapshot) error
}

var (
	ErrInvalidID      = errors.New("invalid_id")
	ErrInvalidCountry = errors.New("invalid_country")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrDuplicateUser  = errors.New("user_already_has_account")
	ErrNotFound       = errors.New("not_found")
)
