package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/mercato/internal/account/domain"
	accountrepo "github.com/smallbiznis/mercato/internal/account/repository"
	accountservice "github.com/smallbiznis/mercato/internal/account/service"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGateway struct {
	created int
}

func (g *stubGateway) GetCharge(ctx context.Context, id string) (*stripeapi.Charge, error) {
	return nil, nil
}

func (g *stubGateway) GetAccount(ctx context.Context, id string) (*stripeapi.Account, error) {
	return &stripeapi.Account{ID: id}, nil
}

func (g *stubGateway) CreateAccount(ctx context.Context, country, email string) (*stripeapi.Account, error) {
	g.created++
	return &stripeapi.Account{
		ID:      fmt.Sprintf("acct_%d", g.created),
		Country: country,
		Email:   email,
	}, nil
}

func (g *stubGateway) CreateAccountLink(ctx context.Context, accountID string) (*stripeapi.AccountLink, error) {
	return &stripeapi.AccountLink{
		URL:       "https://connect.example/onboard/" + accountID,
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	}, nil
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return nil, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE connected_accounts (
			id BIGINT PRIMARY KEY,
			user_id BIGINT,
			stripe_account_id TEXT NOT NULL,
			charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			onboarded_at TIMESTAMP,
			country TEXT NOT NULL DEFAULT '',
			default_currency TEXT NOT NULL DEFAULT '',
			requirements JSONB,
			capabilities JSONB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_connected_accounts_stripe_account_id ON connected_accounts (stripe_account_id)`,
		`CREATE UNIQUE INDEX ux_connected_accounts_user_id ON connected_accounts (user_id) WHERE user_id IS NOT NULL`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T) (accountdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(40)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := accountservice.New(accountservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    accountrepo.Provide(),
		Gateway: &stubGateway{},
	})
	return svc, db, node
}

func TestCreateAccountValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Create(ctx, accountdomain.CreateAccountRequest{Email: "a@b.co"})
	require.ErrorIs(t, err, accountdomain.ErrInvalidCountry)

	_, err = svc.Create(ctx, accountdomain.CreateAccountRequest{Country: "US", Email: "nope"})
	require.ErrorIs(t, err, accountdomain.ErrInvalidEmail)

	_, err = svc.Create(ctx, accountdomain.CreateAccountRequest{Country: "US", Email: "a@b.co", UserID: "bogus"})
	require.ErrorIs(t, err, accountdomain.ErrInvalidUser)
}

func TestCreateAccountEnforcesOneAccountPerUser(t *testing.T) {
	ctx := context.Background()
	svc, _, node := newService(t)

	userID := node.Generate().String()
	first, err := svc.Create(ctx, accountdomain.CreateAccountRequest{
		UserID:  userID,
		Country: "us",
		Email:   "seller@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "US", first.Country)
	require.NotEmpty(t, first.StripeAccountID)

	_, err = svc.Create(ctx, accountdomain.CreateAccountRequest{
		UserID:  userID,
		Country: "US",
		Email:   "seller@example.com",
	})
	require.ErrorIs(t, err, accountdomain.ErrDuplicateUser)
}

func TestOnboardingLink(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	account, err := svc.Create(ctx, accountdomain.CreateAccountRequest{
		Country: "US",
		Email:   "seller@example.com",
	})
	require.NoError(t, err)

	link, err := svc.OnboardingLink(ctx, accountdomain.GetAccountRequest{ID: account.ID.String()})
	require.NoError(t, err)
	require.Contains(t, link.URL, account.StripeAccountID)

	_, err = svc.OnboardingLink(ctx, accountdomain.GetAccountRequest{ID: "12345"})
	require.ErrorIs(t, err, accountdomain.ErrNotFound)
}

func TestSnapshotFromStripeAccountOmitsMissingBlocks(t *testing.T) {
	snap := accountservice.SnapshotFromStripeAccount(&stripeapi.Account{
		ID:             "acct_1",
		ChargesEnabled: true,
	})
	require.Nil(t, snap.Requirements)
	require.Nil(t, snap.Capabilities)

	withReqs := accountservice.SnapshotFromStripeAccount(&stripeapi.Account{
		ID: "acct_1",
		Requirements: &stripeapi.AccountRequirements{
			CurrentlyDue: []string{"external_account"},
		},
	})
	require.NotNil(t, withReqs.Requirements)
}

func TestSyncFromProviderSetsOnboardedAtOnce(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t)

	account, err := svc.Create(ctx, accountdomain.CreateAccountRequest{
		Country: "US",
		Email:   "seller@example.com",
	})
	require.NoError(t, err)

	snapshot := accountdomain.AccountSnapshot{
		StripeAccountID:  account.StripeAccountID,
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
		Country:          "US",
		DefaultCurrency:  "usd",
	}
	require.NoError(t, svc.SyncFromProvider(ctx, snapshot))

	var first struct{ OnboardedAt *time.Time }
	require.NoError(t, db.Raw(
		`SELECT onboarded_at FROM connected_accounts WHERE stripe_account_id = ?`,
		account.StripeAccountID,
	).Scan(&first).Error)
	require.NotNil(t, first.OnboardedAt)

	require.NoError(t, svc.SyncFromProvider(ctx, snapshot))

	var second struct{ OnboardedAt *time.Time }
	require.NoError(t, db.Raw(
		`SELECT onboarded_at FROM connected_accounts WHERE stripe_account_id = ?`,
		account.StripeAccountID,
	).Scan(&second).Error)
	require.NotNil(t, second.OnboardedAt)
	require.True(t, first.OnboardedAt.Equal(*second.OnboardedAt))

	updated, err := svc.GetByStripeAccountID(ctx, account.StripeAccountID)
	require.NoError(t, err)
	require.True(t, updated.ChargesEnabled)
	require.Equal(t, "USD", updated.DefaultCurrency)
}

func TestSyncFromProviderUnknownAccountIsBenign(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t)

	err := svc.SyncFromProvider(ctx, accountdomain.AccountSnapshot{
		StripeAccountID: "acct_missing",
		ChargesEnabled:  true,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM connected_accounts`).Scan(&count).Error)
	require.Equal(t, int64(0), count)
}
