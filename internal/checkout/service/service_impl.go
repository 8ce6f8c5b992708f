package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/mercato/internal/account/domain"
	"github.com/smallbiznis/mercato/internal/checkout/domain"
	"github.com/smallbiznis/mercato/internal/config"
	obsmetrics "github.com/smallbiznis/mercato/internal/observability/metrics"
	stripegw "github.com/smallbiznis/mercato/internal/providers/stripe"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Gateway    stripegw.Gateway
	Accounts   accountdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.StripeConfig
	log        *zap.Logger
	gateway    stripegw.Gateway
	accounts   accountdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:        p.Cfg.Stripe,
		log:        p.Log.Named("checkout.service"),
		gateway:    p.Gateway,
		accounts:   p.Accounts,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateSession builds a destination charge so funds settle on the seller's
// account minus the platform fee. The payment metadata carries the seller
// account id, and the buyer id only when the buyer is signed in. The webhook
// projection keys off both.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Session{}, domain.ErrInvalidCurrency
	}
	if len(req.LineItems) == 0 {
		return domain.Session{}, domain.ErrInvalidLineItems
	}

	var total int64
	for _, item := range req.LineItems {
		if strings.TrimSpace(item.Name) == "" || item.UnitAmount <= 0 || item.Quantity <= 0 {
			return domain.Session{}, domain.ErrInvalidLineItems
		}
		total += item.UnitAmount * item.Quantity
	}

	var buyerID string
	if strings.TrimSpace(req.BuyerID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(req.BuyerID))
		if err != nil || parsed == 0 {
			return domain.Session{}, domain.ErrInvalidBuyer
		}
		buyerID = parsed.String()
	}

	seller, err := s.accounts.GetByID(ctx, accountdomain.GetAccountRequest{ID: req.SellerAccountID})
	if err != nil {
		if errors.Is(err, accountdomain.ErrInvalidID) || errors.Is(err, accountdomain.ErrNotFound) {
			return domain.Session{}, domain.ErrInvalidSeller
		}
		return domain.Session{}, err
	}
	if !seller.ChargesEnabled {
		return domain.Session{}, domain.ErrSellerNotChargeable
	}

	metadata := map[string]string{
		"seller_account_id": seller.StripeAccountID,
	}
	if buyerID != "" {
		metadata["buyer_id"] = buyerID
	}
	for key, value := range req.Metadata {
		if _, reserved := metadata[key]; !reserved {
			metadata[key] = value
		}
	}

	lineItems := make([]*stripeapi.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		lineItems = append(lineItems, &stripeapi.CheckoutSessionLineItemParams{
			Quantity: stripeapi.Int64(item.Quantity),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(currency),
				UnitAmount: stripeapi.Int64(item.UnitAmount),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(item.Name),
				},
			},
		})
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL: stripeapi.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripeapi.String(s.cfg.CheckoutCancelURL),
		LineItems:  lineItems,
		Metadata:   metadata,
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripeapi.Int64(platformFee(total, s.cfg.PlatformFeeBPS)),
			TransferData: &stripeapi.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripeapi.String(seller.StripeAccountID),
			},
			Metadata: metadata,
		},
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return domain.Session{}, err
	}

	s.obsMetrics.RecordCheckoutSession(ctx)
	s.log.Info("checkout session created",
		zap.String("checkout_session_id", session.ID),
		zap.String("seller_account_id", seller.StripeAccountID),
		zap.Int64("amount", total),
		zap.String("currency", strings.ToUpper(currency)),
	)

	result := domain.Session{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: session.ExpiresAt,
	}
	if session.PaymentIntent != nil {
		result.PaymentIntentID = session.PaymentIntent.ID
	}
	return result, nil
}

func platformFee(total, bps int64) int64 {
	if bps <= 0 {
		return 0
	}
	return total * bps / 10000
}
