package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

var (
	ErrDomainNotFound = errors.New("domain not found")
	ErrInvalidName    = errors.New("invalid domain name")
	ErrInvalidYears   = errors.New("registration term must be between 1 and 10 years")
	ErrMissingContact = errors.New("registrant contact is required")
)

type DomainStatus string

const (
	StatusPending   DomainStatus = "pending"
	StatusActive    DomainStatus = "active"
	StatusExpired   DomainStatus = "expired"
	StatusSuspended DomainStatus = "suspended"
)

// Domain is a registered (or registering) domain name owned by a customer.
// Rows are never hard-deleted; lifecycle is expressed through status.
type Domain struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"uniqueIndex;not null"`
	TLD        string       `json:"tld" gorm:"not null;index"`
	Status     DomainStatus `json:"status" gorm:"not null;default:'pending';index"`

	// Price is the total charged at registration, minor units.
	Price    int64  `json:"price" gorm:"not null"`
	Currency string `json:"currency" gorm:"not null"`
	Years    int    `json:"years" gorm:"not null"`

	RegistrationDate *time.Time `json:"registration_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	AutoRenew        bool       `json:"auto_renew" gorm:"not null;default:false"`
	IDProtect        bool       `json:"id_protect" gorm:"not null;default:false"`

	RegistrarOrderID string        `json:"registrar_order_id"`
	InvoiceID        *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Domain) TableName() string { return "domains" }

// SplitName separates "shop.example.co.uk" into its registrable label and
// TLD ("shop.example" is not our business; the first dot splits label from
// suffix, so multi-part suffixes like co.uk stay intact).
func SplitName(name string) (label, tld string, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	i := strings.Index(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", ErrInvalidName
	}
	return name[:i], name[i+1:], nil
}

type QuoteRequest struct {
	Domain    string `json:"domain"`
	Years     int    `json:"years"`
	IDProtect bool   `json:"id_protect"`
}

// QuoteResponse is a deterministic price breakdown: per-year prices are
// additive across years, never compounded.
type QuoteResponse struct {
	Domain         string `json:"domain"`
	Available      bool   `json:"available"`
	Years          int    `json:"years"`
	PricePerYear   int64  `json:"price_per_year"`
	IDProtect      bool   `json:"id_protect"`
	IDProtectPerYr int64  `json:"id_protect_per_year,omitempty"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
}

type RegisterDomainRequest struct {
	CustomerID snowflake.ID
	Domain     string
	Years      int
	IDProtect  bool
	AutoRenew  bool
	Contact    registrar.Contact
}

type RegisterDomainResponse struct {
	Domain    Domain `json:"domain"`
	InvoiceID string `json:"invoice_id"`
	// MockRegistration is set when the sandbox registrar handled the
	// order, so the response can say so instead of pretending.
	MockRegistration bool `json:"mock_registration,omitempty"`
}

type ListDomainRequest struct {
	CustomerID snowflake.ID
	Status     DomainStatus
	Page       pagination.Pagination
}

type Service interface {
	// Quote computes a price breakdown and availability. No side effects.
	Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error)

	// Register calls the upstream registrar and, only on success,
	// atomically creates the Domain and its Invoice.
	Register(ctx context.Context, sess auth.Session, req RegisterDomainRequest) (RegisterDomainResponse, error)

	Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*Domain, error)
	List(ctx context.Context, sess auth.Session, req ListDomainRequest) ([]Domain, error)

	// Activate is the registrar-callback path: pending→active with
	// registration and expiry dates set.
	Activate(ctx context.Context, sess auth.Session, id snowflake.ID) (*Domain, error)
}
