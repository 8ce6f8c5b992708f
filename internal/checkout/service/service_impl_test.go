package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountrepo "github.com/smallbiznis/mercato/internal/account/repository"
	accountservice "github.com/smallbiznis/mercato/internal/account/service"
	checkoutdomain "github.com/smallbiznis/mercato/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/mercato/internal/checkout/service"
	"github.com/smallbiznis/mercato/internal/config"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type captureGateway struct {
	sessionParams *stripeapi.CheckoutSessionParams
}

func (g *captureGateway) GetCharge(ctx context.Context, id string) (*stripeapi.Charge, error) {
	return nil, nil
}

func (g *captureGateway) GetAccount(ctx context.Context, id string) (*stripeapi.Account, error) {
	return &stripeapi.Account{ID: id}, nil
}

func (g *captureGateway) CreateAccount(ctx context.Context, country, email string) (*stripeapi.Account, error) {
	return &stripeapi.Account{ID: "acct_stub"}, nil
}

func (g *captureGateway) CreateAccountLink(ctx context.Context, accountID string) (*stripeapi.AccountLink, error) {
	return &stripeapi.AccountLink{}, nil
}

func (g *captureGateway) CreateCheckoutSession(ctx context.Context, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	g.sessionParams = params
	return &stripeapi.CheckoutSession{
		ID:        "cs_1",
		URL:       "https://checkout.example/cs_1",
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
	}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.Exec(`CREATE TABLE connected_accounts (
		id BIGINT PRIMARY KEY,
		user_id BIGINT,
		stripe_account_id TEXT NOT NULL UNIQUE,
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
	)`).Error
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newService(t *testing.T) (checkoutdomain.Service, *captureGateway, snowflake.ID, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(60)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	gateway := &captureGateway{}
	accountSvc := accountservice.New(accountservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    accountrepo.Provide(),
		Gateway: gateway,
	})

	sellerID := node.Generate()
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO connected_accounts (
			id, stripe_account_id, charges_enabled, created_at, updated_at
		) VALUES (?, 'acct_seller', TRUE, ?, ?)`,
		sellerID, now, now,
	).Error)

	svc := checkoutservice.New(checkoutservice.Params{
		Cfg: config.Config{
			Stripe: config.StripeConfig{
				PlatformFeeBPS:     1000,
				CheckoutSuccessURL: "https://shop.example/success",
				CheckoutCancelURL:  "https://shop.example/cancel",
			},
		},
		Log:      zap.NewNop(),
		Gateway:  gateway,
		Accounts: accountSvc,
	})
	return svc, gateway, sellerID, db
}

func TestCreateSessionBuildsDestinationCharge(t *testing.T) {
	ctx := context.Background()
	svc, gateway, sellerID, _ := newService(t)

	buyerID := snowflake.ID(987654321)
	session, err := svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		BuyerID:         buyerID.String(),
		Currency:        "USD",
		LineItems: []checkoutdomain.LineItem{
			{Name: "Walnut desk", UnitAmount: 40000, Quantity: 1},
			{Name: "Desk mat", UnitAmount: 5000, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", session.ID)
	require.NotEmpty(t, session.URL)

	params := gateway.sessionParams
	require.NotNil(t, params)
	require.Equal(t, "payment", stripeapi.StringValue(params.Mode))
	require.Len(t, params.LineItems, 2)

	intentData := params.PaymentIntentData
	require.NotNil(t, intentData)
	// 10% platform fee on 50000
	require.Equal(t, int64(5000), stripeapi.Int64Value(intentData.ApplicationFeeAmount))
	require.Equal(t, "acct_seller", stripeapi.StringValue(intentData.TransferData.Destination))
	require.Equal(t, "acct_seller", intentData.Metadata["seller_account_id"])
	require.Equal(t, buyerID.String(), intentData.Metadata["buyer_id"])
}

func TestCreateSessionOmitsBuyerForGuests(t *testing.T) {
	ctx := context.Background()
	svc, gateway, sellerID, _ := newService(t)

	_, err := svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		Currency:        "eur",
		LineItems: []checkoutdomain.LineItem{
			{Name: "Print", UnitAmount: 1500, Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, present := gateway.sessionParams.PaymentIntentData.Metadata["buyer_id"]
	require.False(t, present)
}

func TestCreateSessionRejectsDisabledSeller(t *testing.T) {
	ctx := context.Background()
	svc, _, sellerID, db := newService(t)

	require.NoError(t, db.Exec(
		`UPDATE connected_accounts SET charges_enabled = FALSE WHERE id = ?`, sellerID,
	).Error)

	_, err := svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		Currency:        "usd",
		LineItems: []checkoutdomain.LineItem{
			{Name: "Print", UnitAmount: 1500, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, checkoutdomain.ErrSellerNotChargeable)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, sellerID, _ := newService(t)

	_, err := svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		Currency:        "dollars",
		LineItems:       []checkoutdomain.LineItem{{Name: "Print", UnitAmount: 1500, Quantity: 1}},
	})
	require.ErrorIs(t, err, checkoutdomain.ErrInvalidCurrency)

	_, err = svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		Currency:        "usd",
	})
	require.ErrorIs(t, err, checkoutdomain.ErrInvalidLineItems)

	_, err = svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: "0",
		Currency:        "usd",
		LineItems:       []checkoutdomain.LineItem{{Name: "Print", UnitAmount: 1500, Quantity: 1}},
	})
	require.ErrorIs(t, err, checkoutdomain.ErrInvalidSeller)

	_, err = svc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		SellerAccountID: sellerID.String(),
		BuyerID:         "guest",
		Currency:        "usd",
		LineItems:       []checkoutdomain.LineItem{{Name: "Print", UnitAmount: 1500, Quantity: 1}},
	})
	require.ErrorIs(t, err, checkoutdomain.ErrInvalidBuyer)
}
