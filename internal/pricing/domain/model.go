package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrTLDNotFound = errors.New("tld price not found")

// TLDPrice is one row of the domain price table. Source prices are what the
// registrar charges us; local prices are what the portal charges customers,
// in minor units of the local currency.
//
// A row flagged IsOverride was pinned by an admin and is never touched by the
// price sync.
type TLDPrice struct {
	ID  snowflake.ID `json:"id" gorm:"primaryKey"`
	TLD string       `json:"tld" gorm:"uniqueIndex;not null"`

	SourceCurrency   string `json:"source_currency" gorm:"not null"`
	SourceRegister   int64  `json:"source_register" gorm:"not null"`
	SourceRenew      int64  `json:"source_renew" gorm:"not null"`
	SourceTransfer   int64  `json:"source_transfer"`
	LocalCurrency    string `json:"local_currency" gorm:"not null"`
	RegisterPrice    int64  `json:"register_price" gorm:"not null"`
	RenewPrice       int64  `json:"renew_price" gorm:"not null"`
	TransferPrice    int64  `json:"transfer_price"`
	IDProtectPrice   int64  `json:"id_protect_price"`
	IsOverride       bool   `json:"is_override" gorm:"not null;default:false"`
	LastSyncRate     float64    `json:"last_sync_rate"`
	SyncedAt         *time.Time `json:"synced_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (TLDPrice) TableName() string { return "tld_prices" }

// RefreshSummary reports the outcome of one price sync sweep.
type RefreshSummary struct {
	Updated int               `json:"updated"`
	Skipped map[string]string `json:"skipped,omitempty"` // tld -> reason
	Failed  int               `json:"failed"`
	Rate    float64           `json:"rate"`
}

type Service interface {
	// RefreshPrices pulls the registrar price sheet, converts with the
	// cached FX rate and upserts every non-overridden TLD. One TLD's
	// failure never aborts the rest of the sweep.
	RefreshPrices(ctx context.Context) (RefreshSummary, error)

	Get(ctx context.Context, tld string) (*TLDPrice, error)
	List(ctx context.Context) ([]TLDPrice, error)
	SetOverride(ctx context.Context, tld string, registerPrice, renewPrice int64) (*TLDPrice, error)
	ClearOverride(ctx context.Context, tld string) error
}
