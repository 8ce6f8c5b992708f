package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.ConnectedAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO connected_accounts (
			id, user_id, stripe_account_id, charges_enabled, payouts_enabled,
			details_submitted, onboarded_at, country, default_currency,
			requirements, capabilities, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.UserID,
		account.StripeAccountID,
		account.ChargesEnabled,
		account.PayoutsEnabled,
		account.DetailsSubmitted,
		account.OnboardedAt,
		account.Country,
		account.DefaultCurrency,
		account.Requirements,
		account.Capabilities,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ConnectedAccount, error) {
	var account domain.ConnectedAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, stripe_account_id, charges_enabled, payouts_enabled,
			details_submitted, onboarded_at, country, default_currency,
			requirements, capabilities, created_at, updated_at
		 FROM connected_accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByStripeAccountID(ctx context.Context, db *gorm.DB, stripeAccountID string) (*domain.ConnectedAccount, error) {
	var account domain.ConnectedAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, stripe_account_id, charges_enabled, payouts_enabled,
			details_submitted, onboarded_at, country, default_currency,
			requirements, capabilities, created_at, updated_at
		 FROM connected_accounts WHERE stripe_account_id = ?`,
		stripeAccountID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, chargesEnabled *bool) ([]*domain.ConnectedAccount, error) {
	var accounts []*domain.ConnectedAccount
	stmt := db.WithContext(ctx).Model(&domain.ConnectedAccount{})
	if chargesEnabled != nil {
		stmt = stmt.Where("charges_enabled = ?", *chargesEnabled)
	}
	err := stmt.Order("created_at desc, id desc").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ApplySnapshot mutates the local row keyed by the external account id.
// onboarded_at is set exactly once, when details_submitted first turns true.
func (r *repo) ApplySnapshot(ctx context.Context, db *gorm.DB, snapshot domain.AccountSnapshot) (bool, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Exec(
		`UPDATE connected_accounts
		 SET charges_enabled = ?,
			payouts_enabled = ?,
			details_submitted = ?,
			onboarded_at = CASE WHEN ? AND onboarded_at IS NULL THEN ? ELSE onboarded_at END,
			country = ?,
			default_currency = ?,
			requirements = ?,
			capabilities = ?,
			updated_at = ?
		 WHERE stripe_account_id = ?`,
		snapshot.ChargesEnabled,
		snapshot.PayoutsEnabled,
		snapshot.DetailsSubmitted,
		snapshot.DetailsSubmitted,
		now,
		snapshot.Country,
		snapshot.DefaultCurrency,
		snapshot.Requirements,
		snapshot.Capabilities,
		now,
		snapshot.StripeAccountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
