package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mercato/internal/account/domain"
	obsmetrics "github.com/smallbiznis/mercato/internal/observability/metrics"
	stripegw "github.com/smallbiznis/mercato/internal/providers/stripe"
	"github.com/smallbiznis/mercato/pkg/db"
	stripeapi "github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Gateway    stripegw.Gateway
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	gateway    stripegw.Gateway
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("account.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		gateway:    p.Gateway,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.ConnectedAccount, error) {
	country := strings.ToUpper(strings.TrimSpace(req.Country))
	if country == "" {
		return domain.ConnectedAccount{}, domain.ErrInvalidCountry
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.ConnectedAccount{}, domain.ErrInvalidEmail
	}

	var userID *snowflake.ID
	if strings.TrimSpace(req.UserID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
		if err != nil || parsed == 0 {
			return domain.ConnectedAccount{}, domain.ErrInvalidUser
		}
		userID = &parsed
	}

	remote, err := s.gateway.CreateAccount(ctx, country, email)
	if err != nil {
		return domain.ConnectedAccount{}, err
	}

	now := time.Now().UTC()
	account := domain.ConnectedAccount{
		ID:               s.genID.Generate(),
		UserID:           userID,
		StripeAccountID:  remote.ID,
		ChargesEnabled:   remote.ChargesEnabled,
		PayoutsEnabled:   remote.PayoutsEnabled,
		DetailsSubmitted: remote.DetailsSubmitted,
		Country:          strings.ToUpper(string(remote.Country)),
		DefaultCurrency:  strings.ToUpper(string(remote.DefaultCurrency)),
		Requirements:     marshalSnapshot(remote.Requirements),
		Capabilities:     marshalSnapshot(remote.Capabilities),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ConnectedAccount{}, domain.ErrDuplicateUser
		}
		return domain.ConnectedAccount{}, err
	}

	s.log.Info("connected account created",
		zap.String("account_id", account.ID.String()),
		zap.String("stripe_account_id", account.StripeAccountID),
		zap.String("country", account.Country),
	)
	return account, nil
}

func (s *Service) OnboardingLink(ctx context.Context, req domain.GetAccountRequest) (domain.OnboardingLink, error) {
	account, err := s.GetByID(ctx, req)
	if err != nil {
		return domain.OnboardingLink{}, err
	}

	link, err := s.gateway.CreateAccountLink(ctx, account.StripeAccountID)
	if err != nil {
		return domain.OnboardingLink{}, err
	}

	return domain.OnboardingLink{
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetAccountRequest) (domain.ConnectedAccount, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.ConnectedAccount{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.ConnectedAccount{}, err
	}
	if item == nil {
		return domain.ConnectedAccount{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByStripeAccountID(ctx context.Context, stripeAccountID string) (domain.ConnectedAccount, error) {
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if stripeAccountID == "" {
		return domain.ConnectedAccount{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByStripeAccountID(ctx, s.db, stripeAccountID)
	if err != nil {
		return domain.ConnectedAccount{}, err
	}
	if item == nil {
		return domain.ConnectedAccount{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountsRequest) ([]domain.ConnectedAccount, error) {
	items, err := s.repo.List(ctx, s.db, req.ChargesEnabled)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.ConnectedAccount, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) SyncFromProvider(ctx context.Context, snapshot domain.AccountSnapshot) error {
	snapshot.StripeAccountID = strings.TrimSpace(snapshot.StripeAccountID)
	if snapshot.StripeAccountID == "" {
		return domain.ErrInvalidID
	}
	snapshot.Country = strings.ToUpper(strings.TrimSpace(snapshot.Country))
	snapshot.DefaultCurrency = strings.ToUpper(strings.TrimSpace(snapshot.DefaultCurrency))

	updated, err := s.repo.ApplySnapshot(ctx, s.db, snapshot)
	if err != nil {
		return err
	}
	if !updated {
		// The provider can notify before local provisioning finished; the
		// next notification carries the full state again.
		s.log.Debug("account snapshot for unknown account dropped",
			zap.String("stripe_account_id", snapshot.StripeAccountID),
		)
		return nil
	}

	if snapshot.DetailsSubmitted {
		s.obsMetrics.RecordAccountOnboarded(ctx, snapshot.Country)
	}
	return nil
}

// SnapshotFromStripeAccount converts a provider account payload into the
// fields tracked locally.
func SnapshotFromStripeAccount(remote *stripeapi.Account) domain.AccountSnapshot {
	if remote == nil {
		return domain.AccountSnapshot{}
	}
	return domain.AccountSnapshot{
		StripeAccountID:  remote.ID,
		ChargesEnabled:   remote.ChargesEnabled,
		PayoutsEnabled:   remote.PayoutsEnabled,
		DetailsSubmitted: remote.DetailsSubmitted,
		Country:          strings.ToUpper(string(remote.Country)),
		DefaultCurrency:  strings.ToUpper(string(remote.DefaultCurrency)),
		Requirements:     marshalSnapshot(remote.Requirements),
		Capabilities:     marshalSnapshot(remote.Capabilities),
	}
}

// marshalSnapshot keeps the column NULL when the provider omits the block,
// rather than storing a JSON null.
func marshalSnapshot[T any](value *T) datatypes.JSON {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
