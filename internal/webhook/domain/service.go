package domain

import (
	"context"
	"errors"

	stripeapi "github.com/stripe/stripe-go/v83"
)

type Service interface {
	// ProcessEvent records the event in the ledger and applies its side
	// effects exactly once. A replay of an already processed event returns
	// ErrEventAlreadyProcessed; callers acknowledge those as successes so
	// the provider stops redelivering.
	ProcessEvent(ctx context.Context, event stripeapi.Event, payload []byte) error
}

var (
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
