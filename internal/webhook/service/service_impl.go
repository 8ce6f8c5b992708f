package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/mercato/internal/account/domain"
	accountservice "github.com/smallbiznis/mercato/internal/account/service"
	"github.com/smallbiznis/mercato/internal/clock"
	obsmetrics "github.com/smallbiznis/mercato/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/mercato/internal/order/domain"
	stripegw "github.com/smallbiznis/mercato/internal/providers/stripe"
	"github.com/smallbiznis/mercato/internal/webhook/domain"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

const (
	metadataSellerAccountID = "seller_account_id"
	metadataBuyerID         = "buyer_id"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Orders     orderdomain.Service
	Accounts   accountdomain.Service
	Gateway    stripegw.Gateway
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orders     orderdomain.Service
	accounts   accountdomain.Service
	gateway    stripegw.Gateway
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orders:     p.Orders,
		accounts:   p.Accounts,
		gateway:    p.Gateway,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent runs in three steps. The ledger insert claims the event id,
// the dispatch applies the projection for the event type, and MarkProcessed
// closes the ledger row. Every projection is idempotent on its own, so a
// crash between dispatch and MarkProcessed is repaired by redelivery.
func (s *Service) ProcessEvent(ctx context.Context, event stripeapi.Event, payload []byte) error {
	if strings.TrimSpace(event.ID) == "" || !json.Valid(payload) {
		return domain.ErrInvalidEvent
	}

	eventType := string(event.Type)
	now := s.clock.Now().UTC()
	row := domain.WebhookEvent{
		ID:            s.genID.Generate(),
		StripeEventID: event.ID,
		EventType:     eventType,
		Payload:       datatypes.JSON(payload),
		ReceivedAt:    now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &row)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindByStripeEventID(ctx, s.db, event.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.obsMetrics.RecordWebhookEvent(ctx, eventType, outcomeDuplicate)
			return domain.ErrEventAlreadyProcessed
		}
		// A previous delivery claimed the row but died before finishing.
		// Its side effects are idempotent, so run them again.
		row = *stored
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, eventType, outcomeFailed)
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, row.ID, s.clock.Now().UTC()); err != nil {
		return err
	}

	s.obsMetrics.RecordWebhookEvent(ctx, eventType, outcome)
	s.log.Info("webhook event processed",
		zap.String("stripe_event_id", event.ID),
		zap.String("event_type", eventType),
		zap.String("outcome", outcome),
	)
	return nil
}

func (s *Service) dispatch(ctx context.Context, event stripeapi.Event) (string, error) {
	switch event.Type {
	case "payment_intent.succeeded":
		return s.handlePaymentIntentSucceeded(ctx, event)
	case "checkout.session.completed":
		return s.handleCheckoutSessionCompleted(ctx, event)
	case "payment_intent.payment_failed":
		return s.handlePaymentIntentFailed(ctx, event)
	case "charge.refunded":
		return s.handleChargeRefunded(ctx, event)
	case "account.updated":
		return s.handleAccountUpdated(ctx, event)
	default:
		// Unhandled types are acknowledged so the provider does not retry.
		return outcomeIgnored, nil
	}
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, event stripeapi.Event) (string, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", domain.ErrInvalidEvent
	}
	if intent.ID == "" {
		return "", domain.ErrInvalidEvent
	}

	sellerStripeID := resolveSellerAccountID(&intent)
	if sellerStripeID == "" {
		s.log.Warn("payment without destination account dropped",
			zap.String("payment_intent_id", intent.ID),
		)
		return outcomeDropped, nil
	}

	seller, err := s.accounts.GetByStripeAccountID(ctx, sellerStripeID)
	if err != nil {
		if errors.Is(err, accountdomain.ErrNotFound) {
			s.log.Warn("payment for unknown seller dropped",
				zap.String("payment_intent_id", intent.ID),
				zap.String("stripe_account_id", sellerStripeID),
			)
			return outcomeDropped, nil
		}
		return "", err
	}

	amount := intent.Amount
	if intent.AmountReceived > 0 {
		amount = intent.AmountReceived
	}

	capture := orderdomain.PaymentCapture{
		PaymentIntentID: intent.ID,
		SellerAccountID: seller.ID,
		BuyerID:         s.resolveBuyerID(intent.Metadata, intent.ID),
		Amount:          amount,
		Currency:        strings.ToUpper(string(intent.Currency)),
		ApplicationFee:  intent.ApplicationFeeAmount,
		Metadata:        marshalMetadata(intent.Metadata),
	}

	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		chargeID := intent.LatestCharge.ID
		capture.ChargeID = &chargeID
		capture.TransferID = s.lookupTransferID(ctx, chargeID)
	}

	if _, err := s.orders.UpsertByPaymentIntentID(ctx, capture); err != nil {
		return "", err
	}
	return outcomeProcessed, nil
}

func (s *Service) handleCheckoutSessionCompleted(ctx context.Context, event stripeapi.Event) (string, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", domain.ErrInvalidEvent
	}
	if session.ID == "" {
		return "", domain.ErrInvalidEvent
	}
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		// Sessions without a payment, setup mode for example, carry
		// nothing to reconcile.
		return outcomeDropped, nil
	}

	if err := s.orders.AttachCheckoutSession(ctx, session.PaymentIntent.ID, session.ID); err != nil {
		return "", err
	}
	return outcomeProcessed, nil
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, event stripeapi.Event) (string, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", domain.ErrInvalidEvent
	}
	if intent.ID == "" {
		return "", domain.ErrInvalidEvent
	}

	if err := s.orders.MarkPaymentFailed(ctx, intent.ID); err != nil {
		return "", err
	}
	return outcomeProcessed, nil
}

func (s *Service) handleChargeRefunded(ctx context.Context, event stripeapi.Event) (string, error) {
	var ch stripeapi.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return "", domain.ErrInvalidEvent
	}
	if ch.ID == "" {
		return "", domain.ErrInvalidEvent
	}

	capture := orderdomain.RefundCapture{
		ChargeID:       ch.ID,
		AmountRefunded: ch.AmountRefunded,
	}
	if ch.PaymentIntent != nil {
		capture.PaymentIntentID = ch.PaymentIntent.ID
	}
	if ch.Refunds != nil {
		for _, refund := range ch.Refunds.Data {
			if refund == nil || refund.ID == "" {
				continue
			}
			entry := orderdomain.RefundEntry{
				StripeRefundID: refund.ID,
				Amount:         refund.Amount,
				CreatedAt:      time.Unix(refund.Created, 0).UTC(),
			}
			if refund.BalanceTransaction != nil && refund.BalanceTransaction.ID != "" {
				id := refund.BalanceTransaction.ID
				entry.BalanceTransactionID = &id
			}
			if refund.Reason != "" {
				reason := string(refund.Reason)
				entry.Reason = &reason
			}
			capture.Refunds = append(capture.Refunds, entry)
		}
	}

	if err := s.orders.ApplyRefunds(ctx, capture); err != nil {
		if errors.Is(err, orderdomain.ErrUnknownOrder) {
			s.log.Warn("refund for unknown order dropped", zap.String("charge_id", ch.ID))
			return outcomeDropped, nil
		}
		return "", err
	}
	return outcomeProcessed, nil
}

func (s *Service) handleAccountUpdated(ctx context.Context, event stripeapi.Event) (string, error) {
	var acct stripeapi.Account
	if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
		return "", domain.ErrInvalidEvent
	}
	if acct.ID == "" {
		return "", domain.ErrInvalidEvent
	}

	if err := s.accounts.SyncFromProvider(ctx, accountservice.SnapshotFromStripeAccount(&acct)); err != nil {
		return "", err
	}
	return outcomeProcessed, nil
}

// lookupTransferID fetches the charge to learn the transfer created by the
// destination charge. The transfer id is enrichment only; a provider read
// failure never fails the event.
func (s *Service) lookupTransferID(ctx context.Context, chargeID string) *string {
	ch, err := s.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		s.log.Warn("charge lookup failed, transfer id left unset",
			zap.String("charge_id", chargeID),
			zap.Error(err),
		)
		return nil
	}
	if ch == nil || ch.Transfer == nil || ch.Transfer.ID == "" {
		return nil
	}
	id := ch.Transfer.ID
	return &id
}

func (s *Service) resolveBuyerID(metadata map[string]string, paymentIntentID string) *snowflake.ID {
	raw, ok := metadata[metadataBuyerID]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || parsed == 0 {
		s.log.Warn("unparseable buyer id in payment metadata, treating as guest",
			zap.String("payment_intent_id", paymentIntentID),
		)
		return nil
	}
	return &parsed
}

// resolveSellerAccountID prefers the transfer destination set on the intent
// and falls back to the metadata stamped at checkout.
func resolveSellerAccountID(intent *stripeapi.PaymentIntent) string {
	if intent.TransferData != nil && intent.TransferData.Destination != nil {
		if id := strings.TrimSpace(intent.TransferData.Destination.ID); id != "" {
			return id
		}
	}
	return strings.TrimSpace(intent.Metadata[metadataSellerAccountID])
}

func marshalMetadata(metadata map[string]string) datatypes.JSON {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
