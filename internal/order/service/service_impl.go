package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/internal/clock"
	obsmetrics "github.com/smallbiznis/mercato/internal/observability/metrics"
	"github.com/smallbiznis/mercato/internal/order/domain"
	"github.com/smallbiznis/mercato/pkg/db/option"
	"github.com/smallbiznis/mercato/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) UpsertByPaymentIntentID(ctx context.Context, capture domain.PaymentCapture) (domain.Order, error) {
	if strings.TrimSpace(capture.PaymentIntentID) == "" || capture.SellerAccountID == 0 {
		return domain.Order{}, domain.ErrInvalidCapture
	}
	if capture.Amount < 0 || capture.Currency == "" {
		return domain.Order{}, domain.ErrInvalidCapture
	}

	now := s.clock.Now().UTC()
	order := domain.Order{
		ID:              s.genID.Generate(),
		BuyerID:         capture.BuyerID,
		AccountID:       capture.SellerAccountID,
		PaymentIntentID: capture.PaymentIntentID,
		ChargeID:        capture.ChargeID,
		TransferID:      capture.TransferID,
		Amount:          capture.Amount,
		ApplicationFee:  capture.ApplicationFee,
		Currency:        strings.ToUpper(capture.Currency),
		Status:          domain.OrderStatusPaid,
		PaymentStatus:   domain.PaymentStatusSucceeded,
		Metadata:        capture.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, err := s.repo.Upsert(ctx, s.db, &order)
	if err != nil {
		return domain.Order{}, err
	}
	if stored == nil {
		return domain.Order{}, gorm.ErrRecordNotFound
	}

	s.obsMetrics.RecordOrderReconciled(ctx, stored.Status)
	s.log.Info("order reconciled from payment",
		zap.String("order_id", stored.ID.String()),
		zap.String("payment_intent_id", stored.PaymentIntentID),
		zap.Int64("amount", stored.Amount),
		zap.String("currency", stored.Currency),
	)
	return *stored, nil
}

func (s *Service) AttachCheckoutSession(ctx context.Context, paymentIntentID, sessionID string) error {
	if strings.TrimSpace(paymentIntentID) == "" || strings.TrimSpace(sessionID) == "" {
		return domain.ErrInvalidCapture
	}

	attached, err := s.repo.AttachCheckoutSession(ctx, s.db, paymentIntentID, sessionID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !attached {
		// Session completion can arrive before the payment projection
		// created the order. The redelivered event links it later.
		s.log.Debug("checkout session arrived before order",
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("checkout_session_id", sessionID),
		)
	}
	return nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, paymentIntentID string) error {
	if strings.TrimSpace(paymentIntentID) == "" {
		return domain.ErrInvalidCapture
	}

	marked, err := s.repo.MarkPaymentFailed(ctx, s.db, paymentIntentID, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if marked {
		s.log.Info("payment marked failed", zap.String("payment_intent_id", paymentIntentID))
	}
	return nil
}

func (s *Service) ApplyRefunds(ctx context.Context, capture domain.RefundCapture) error {
	order, err := s.resolveRefundedOrder(ctx, capture)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrUnknownOrder
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range capture.Refunds {
			if entry.StripeRefundID == "" {
				continue
			}
			inserted, err := s.repo.InsertRefund(ctx, tx, &domain.Refund{
				ID:                   s.genID.Generate(),
				OrderID:              order.ID,
				StripeRefundID:       entry.StripeRefundID,
				Amount:               entry.Amount,
				BalanceTransactionID: entry.BalanceTransactionID,
				Reason:               entry.Reason,
				CreatedAt:            entry.CreatedAt.UTC(),
			})
			if err != nil {
				return err
			}
			if inserted {
				s.obsMetrics.RecordRefundRecorded(ctx)
			}
		}

		amountRefunded := capture.AmountRefunded
		if amountRefunded > order.Amount {
			amountRefunded = order.Amount
		}
		if amountRefunded < 0 {
			amountRefunded = 0
		}

		paymentStatus := domain.PaymentStatusRefundedPartial
		status := order.Status
		switch {
		case amountRefunded == 0:
			paymentStatus = order.PaymentStatus
		case amountRefunded >= order.Amount:
			paymentStatus = domain.PaymentStatusRefundedFull
			status = domain.OrderStatusRefunded
		}

		return s.repo.SetRefundTotals(ctx, tx, order.ID, amountRefunded, paymentStatus, status, s.clock.Now().UTC())
	})
}

func (s *Service) resolveRefundedOrder(ctx context.Context, capture domain.RefundCapture) (*domain.Order, error) {
	if capture.PaymentIntentID != "" {
		order, err := s.repo.FindByPaymentIntentID(ctx, s.db, capture.PaymentIntentID)
		if err != nil || order != nil {
			return order, err
		}
	}
	if capture.ChargeID != "" {
		return s.repo.FindByChargeID(ctx, s.db, capture.ChargeID)
	}
	return nil, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetOrderRequest) (domain.Order, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	var filter domain.ListOrdersFilter
	filter.AccountID = req.AccountID
	filter.Status = req.Status
	filter.PaymentStatus = req.PaymentStatus

	size := req.Pagination.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}

	items, err := s.repo.List(ctx, s.db, filter, option.ApplyPagination(req.Pagination))
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(size), func(order *domain.Order) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339),
		})
		return token
	})
	if len(items) > size {
		items = items[:size]
	}

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		orders = append(orders, *item)
	}
	return domain.ListOrdersResponse{Orders: orders, PageInfo: pageInfo}, nil
}

func (s *Service) ListRefunds(ctx context.Context, req domain.GetOrderRequest) ([]domain.Refund, error) {
	order, err := s.GetByID(ctx, req)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListRefunds(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	refunds := make([]domain.Refund, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		refunds = append(refunds, *item)
	}
	return refunds, nil
}
