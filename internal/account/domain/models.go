package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ConnectedAccount mirrors a seller account hosted by the payment provider.
// StripeAccountID is globally unique; a user owns at most one active account.
type ConnectedAccount struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID           *snowflake.ID  `gorm:"uniqueIndex" json:"user_id,omitempty"`
	StripeAccountID  string         `gorm:"not null;uniqueIndex" json:"stripe_account_id"`
	ChargesEnabled   bool           `gorm:"not null;default:false" json:"charges_enabled"`
	PayoutsEnabled   bool           `gorm:"not null;default:false" json:"payouts_enabled"`
	DetailsSubmitted bool           `gorm:"not null;default:false" json:"details_submitted"`
	OnboardedAt      *time.Time     `json:"onboarded_at,omitempty"`
	Country          string         `gorm:"not null;default:''" json:"country"`
	DefaultCurrency  string         `gorm:"not null;default:''" json:"default_currency"`
	Requirements     datatypes.JSON `gorm:"type:jsonb" json:"requirements,omitempty"`
	Capabilities     datatypes.JSON `gorm:"type:jsonb" json:"capabilities,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (ConnectedAccount) TableName() string { return "connected_accounts" }

// AccountSnapshot carries the provider-side fields applied by account.updated
// notifications and by explicit refreshes.
type AccountSnapshot struct {
	StripeAccountID  string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Country          string
	DefaultCurrency  string
	Requirements     datatypes.JSON
	Capabilities     datatypes.JSON
}
