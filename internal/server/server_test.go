package server_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	accountrepo "github.com/smallbiznis/mercato/internal/account/repository"
	accountservice "github.com/smallbiznis/mercato/internal/account/service"
	checkoutservice "github.com/smallbiznis/mercato/internal/checkout/service"
	"github.com/smallbiznis/mercato/internal/clock"
	"github.com/smallbiznis/mercato/internal/config"
	"github.com/smallbiznis/mercato/internal/observability"
	orderrepo "github.com/smallbiznis/mercato/internal/order/repository"
	orderservice "github.com/smallbiznis/mercato/internal/order/service"
	stripeprovider "github.com/smallbiznis/mercato/internal/providers/stripe"
	"github.com/smallbiznis/mercato/internal/server"
	webhookrepo "github.com/smallbiznis/mercato/internal/webhook/repository"
	webhookservice "github.com/smallbiznis/mercato/internal/webhook/service"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct{}

func (stubGateway) GetCharge(ctx context.Context, id string) (*stripeapi.Charge, error) {
	return &stripeapi.Charge{ID: id}, nil
}

func (stubGateway) GetAccount(ctx context.Context, id string) (*stripeapi.Account, error) {
	return &stripeapi.Account{ID: id}, nil
}

func (stubGateway) CreateAccount(ctx context.Context, country, email string) (*stripeapi.Account, error) {
	return &stripeapi.Account{ID: "acct_stub", Country: country}, nil
}

func (stubGateway) CreateAccountLink(ctx context.Context, accountID string) (*stripeapi.AccountLink, error) {
	return &stripeapi.AccountLink{URL: "https://connect.example/" + accountID}, nil
}

func (stubGateway) CreateCheckoutSession(ctx context.Context, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return &stripeapi.CheckoutSession{ID: "cs_stub", URL: "https://checkout.example/cs_stub"}, nil
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
		)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			buyer_id BIGINT,
			account_id BIGINT NOT NULL,
			payment_intent_id TEXT NOT NULL UNIQUE,
			checkout_session_id TEXT,
			charge_id TEXT,
			transfer_id TEXT,
			amount BIGINT NOT NULL,
			application_fee BIGINT NOT NULL DEFAULT 0,
			amount_refunded BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE refunds (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			stripe_refund_id TEXT NOT NULL UNIQUE,
			amount BIGINT NOT NULL,
			balance_transaction_id TEXT,
			reason TEXT,
			metadata JSONB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			stripe_event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	return newTestServerWithSecret(t, webhookSecret)
}

func newTestServerWithSecret(t *testing.T, secret string) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(50)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	cfg := config.Config{
		HTTPAddr: ":0",
		Stripe: config.StripeConfig{
			WebhookSecret:      secret,
			PlatformFeeBPS:     1000,
			CheckoutSuccessURL: "https://shop.example/success",
			CheckoutCancelURL:  "https://shop.example/cancel",
		},
	}

	gateway := stubGateway{}
	_, verifier := stripeprovider.NewGateway(cfg)
	clk := clock.NewSystemClock()

	accountSvc := accountservice.New(accountservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    accountrepo.Provide(),
		Gateway: gateway,
	})
	orderSvc := orderservice.New(orderservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  orderrepo.Provide(),
	})
	checkoutSvc := checkoutservice.New(checkoutservice.Params{
		Cfg:      cfg,
		Log:      zap.NewNop(),
		Gateway:  gateway,
		Accounts: accountSvc,
	})
	webhookSvc := webhookservice.New(webhookservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     webhookrepo.Provide(),
		Orders:   orderSvc,
		Accounts: accountSvc,
		Gateway:  gateway,
	})

	engine := server.NewEngine(observability.Config{}, nil)
	server.NewServer(server.ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		DB:          db,
		GenID:       node,
		AccountSvc:  accountSvc,
		OrderSvc:    orderSvc,
		CheckoutSvc: checkoutSvc,
		WebhookSvc:  webhookSvc,
		Verifier:    verifier,
	})
	return engine, db
}

func signPayload(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(engine *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func countRows(t *testing.T, db *gorm.DB, query string) int64 {
	t.Helper()

	var got int64
	if err := db.Raw(query).Scan(&got).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return got
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	engine, db := newTestServer(t)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	rec := postWebhook(engine, payload, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(0), countRows(t, db, `SELECT COUNT(1) FROM webhook_events`))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	engine, db := newTestServer(t)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = '0'

	rec := postWebhook(engine, tampered, signPayload(payload, time.Now().Unix()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(0), countRows(t, db, `SELECT COUNT(1) FROM webhook_events`))
}

func TestWebhookRejectsWithoutConfiguredSecret(t *testing.T) {
	engine, db := newTestServerWithSecret(t, "")

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	rec := postWebhook(engine, payload, signPayload(payload, time.Now().Unix()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, int64(0), countRows(t, db, `SELECT COUNT(1) FROM webhook_events`))
}

func TestWebhookAcknowledgesEventAndReplay(t *testing.T) {
	engine, db := newTestServer(t)

	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO connected_accounts (
			id, stripe_account_id, charges_enabled, created_at, updated_at
		) VALUES (1, 'acct_seller', TRUE, ?, ?)`,
		now, now,
	).Error)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":2000,"amount_received":2000,"currency":"usd","transfer_data":{"destination":"acct_seller"}}}}`)
	signature := signPayload(payload, time.Now().Unix())

	rec := postWebhook(engine, payload, signature)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), countRows(t, db, `SELECT COUNT(1) FROM orders`))

	// provider retries with the identical event
	rec = postWebhook(engine, payload, signature)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), countRows(t, db, `SELECT COUNT(1) FROM orders`))
	require.Equal(t, int64(1), countRows(t, db, `SELECT COUNT(1) FROM webhook_events`))
}

func TestWebhookRouteRejectsGet(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListOrdersRejectsMalformedAccountID(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?account_id=not-an-id", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/123456789", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	engine, _ := newTestServer(t)

	body := []byte(`{"seller_account_id":"1","currency":"usd","line_items":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
