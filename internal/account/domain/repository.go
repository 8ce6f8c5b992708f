package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *ConnectedAccount) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ConnectedAccount, error)
	FindByStripeAccountID(ctx context.Context, db *gorm.DB, stripeAccountID string) (*ConnectedAccount, error)
	List(ctx context.Context, db *gorm.DB, chargesEnabled *bool) ([]*ConnectedAccount, error)
	ApplySnapshot(ctx context.Context, db *gorm.DB, snapshot AccountSnapshot) (bool, error)
}
