package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/mercato/internal/config"
	stripeapi "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/account"
	"github.com/stripe/stripe-go/v83/accountlink"
	"github.com/stripe/stripe-go/v83/charge"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"
)

var (
	ErrMissingSignature = errors.New("missing_signature_header")
	ErrMissingSecret    = errors.New("missing_webhook_secret")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

// Verifier authenticates raw webhook payloads against the shared secret.
// Verification is computed over the exact request bytes; callers must not
// re-serialize the body before handing it over.
type Verifier interface {
	VerifyEvent(payload []byte, sigHeader string) (stripeapi.Event, error)
}

// Gateway is the read/write surface of the payment provider used by the
// onboarding, checkout and reconciliation flows.
type Gateway interface {
	GetCharge(ctx context.Context, id string) (*stripeapi.Charge, error)
	GetAccount(ctx context.Context, id string) (*stripeapi.Account, error)
	CreateAccount(ctx context.Context, country, email string) (*stripeapi.Account, error)
	CreateAccountLink(ctx context.Context, accountID string) (*stripeapi.AccountLink, error)
	CreateCheckoutSession(ctx context.Context, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

type gateway struct {
	cfg config.StripeConfig
}

func NewGateway(cfg config.Config) (Gateway, Verifier) {
	stripeapi.Key = cfg.Stripe.SecretKey
	g := &gateway{cfg: cfg.Stripe}
	return g, g
}

func (g *gateway) VerifyEvent(payload []byte, sigHeader string) (stripeapi.Event, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return stripeapi.Event{}, ErrMissingSignature
	}
	secret := strings.TrimSpace(g.cfg.WebhookSecret)
	if secret == "" {
		return stripeapi.Event{}, ErrMissingSecret
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return stripeapi.Event{}, ErrInvalidSignature
		}
		return stripeapi.Event{}, ErrInvalidPayload
	}
	return event, nil
}

func (g *gateway) GetCharge(ctx context.Context, id string) (*stripeapi.Charge, error) {
	params := &stripeapi.ChargeParams{}
	params.Context = ctx
	return charge.Get(id, params)
}

func (g *gateway) GetAccount(ctx context.Context, id string) (*stripeapi.Account, error) {
	params := &stripeapi.AccountParams{}
	params.Context = ctx
	return account.GetByID(id, params)
}

func (g *gateway) CreateAccount(ctx context.Context, country, email string) (*stripeapi.Account, error) {
	params := &stripeapi.AccountParams{
		Type:    stripeapi.String(string(stripeapi.AccountTypeExpress)),
		Country: stripeapi.String(country),
		Email:   stripeapi.String(email),
		Capabilities: &stripeapi.AccountCapabilitiesParams{
			CardPayments: &stripeapi.AccountCapabilitiesCardPaymentsParams{
				Requested: stripeapi.Bool(true),
			},
			Transfers: &stripeapi.AccountCapabilitiesTransfersParams{
				Requested: stripeapi.Bool(true),
			},
		},
	}
	params.Context = ctx
	return account.New(params)
}

func (g *gateway) CreateAccountLink(ctx context.Context, accountID string) (*stripeapi.AccountLink, error) {
	params := &stripeapi.AccountLinkParams{
		Account:    stripeapi.String(accountID),
		ReturnURL:  stripeapi.String(g.cfg.OnboardingReturnURL),
		RefreshURL: stripeapi.String(g.cfg.OnboardingRefreshURL),
		Type:       stripeapi.String("account_onboarding"),
	}
	params.Context = ctx
	return accountlink.New(params)
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	params.Context = ctx
	return session.New(params)
}
