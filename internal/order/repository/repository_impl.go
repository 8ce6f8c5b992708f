package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/internal/order/domain"
	"github.com/smallbiznis/mercato/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, buyer_id, account_id, payment_intent_id, checkout_session_id,
	charge_id, transfer_id, amount, application_fee, amount_refunded,
	currency, status, payment_status, metadata, created_at, updated_at`

// Upsert is a single statement so concurrent deliveries of the same payment
// intent cannot interleave between a read and a write. Refund totals and the
// session link survive redelivery; statuses are only refreshed while no
// refund has been applied.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, order *domain.Order) (*domain.Order, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, buyer_id, account_id, payment_intent_id, checkout_session_id,
			charge_id, transfer_id, amount, application_fee, amount_refunded,
			currency, status, payment_status, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_intent_id) DO UPDATE SET
			buyer_id = COALESCE(excluded.buyer_id, orders.buyer_id),
			account_id = excluded.account_id,
			charge_id = COALESCE(excluded.charge_id, orders.charge_id),
			transfer_id = COALESCE(excluded.transfer_id, orders.transfer_id),
			amount = excluded.amount,
			application_fee = excluded.application_fee,
			currency = excluded.currency,
			status = CASE WHEN orders.amount_refunded > 0 THEN orders.status ELSE excluded.status END,
			payment_status = CASE WHEN orders.amount_refunded > 0 THEN orders.payment_status ELSE excluded.payment_status END,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		order.ID,
		order.BuyerID,
		order.AccountID,
		order.PaymentIntentID,
		order.ChargeID,
		order.TransferID,
		order.Amount,
		order.ApplicationFee,
		order.Currency,
		order.Status,
		order.PaymentStatus,
		order.Metadata,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByPaymentIntentID(ctx, db, order.PaymentIntentID)
}

func (r *repo) AttachCheckoutSession(ctx context.Context, db *gorm.DB, paymentIntentID, sessionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET checkout_session_id = ?, updated_at = ?
		 WHERE payment_intent_id = ?
		   AND (checkout_session_id IS NULL OR checkout_session_id = ?)`,
		sessionID, now, paymentIntentID, sessionID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaymentFailed(ctx context.Context, db *gorm.DB, paymentIntentID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, updated_at = ?
		 WHERE payment_intent_id = ?
		   AND payment_status NOT IN (?, ?, ?)`,
		domain.PaymentStatusFailed, now, paymentIntentID,
		domain.PaymentStatusSucceeded,
		domain.PaymentStatusRefundedPartial,
		domain.PaymentStatusRefundedFull,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByPaymentIntentID(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Order, error) {
	return r.findOne(ctx, db, "payment_intent_id = ?", paymentIntentID)
}

func (r *repo) FindByChargeID(ctx context.Context, db *gorm.DB, chargeID string) (*domain.Order, error) {
	return r.findOne(ctx, db, "charge_id = ?", chargeID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+cond,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrdersFilter, opts ...option.QueryOption) ([]*domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.AccountID != nil {
		stmt = stmt.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var orders []*domain.Order
	if err := stmt.Order("created_at desc, id desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.Refund) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO refunds (
			id, order_id, stripe_refund_id, amount,
			balance_transaction_id, reason, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_refund_id) DO NOTHING`,
		refund.ID,
		refund.OrderID,
		refund.StripeRefundID,
		refund.Amount,
		refund.BalanceTransactionID,
		refund.Reason,
		refund.Metadata,
		refund.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetRefundTotals(ctx context.Context, db *gorm.DB, orderID snowflake.ID, amountRefunded int64, paymentStatus, status string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET amount_refunded = ?, payment_status = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		amountRefunded, paymentStatus, status, now, orderID,
	).Error
}

func (r *repo) ListRefunds(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*domain.Refund, error) {
	var refunds []*domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, stripe_refund_id, amount,
			balance_transaction_id, reason, metadata, created_at
		 FROM refunds WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}
