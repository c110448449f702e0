package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

var (
	ErrSubscriptionNotFound = errors.New("hosting subscription not found")
	ErrPackageNotFound      = errors.New("hosting package not found")
	ErrInvalidCycle         = errors.New("invalid billing cycle")
	// ErrInvalidTransition is returned before any upstream call when the
	// requested transition is not reachable from the current status.
	ErrInvalidTransition = errors.New("invalid subscription transition")
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

type SubscriptionStatus string

const (
	StatusPending    SubscriptionStatus = "pending"
	StatusActive     SubscriptionStatus = "active"
	StatusSuspended  SubscriptionStatus = "suspended"
	StatusTerminated SubscriptionStatus = "terminated"
)

// HostingPackage is a sellable plan. Prices are minor units of Currency.
// Plan names the upstream control panel package the account is created on.
type HostingPackage struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Name         string       `json:"name" gorm:"not null"`
	Description  string       `json:"description"`
	MonthlyPrice int64        `json:"monthly_price" gorm:"not null"`
	AnnualPrice  int64        `json:"annual_price" gorm:"not null"`
	Currency     string       `json:"currency" gorm:"not null;default:'GBP'"`
	Plan         string       `json:"plan" gorm:"not null"`
	DiskQuotaMB  int          `json:"disk_quota_mb"`
	IsActive     bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (HostingPackage) TableName() string { return "hosting_packages" }

// CyclePrice returns the charge for one billing period of the given cycle.
func (p HostingPackage) CyclePrice(cycle BillingCycle) (int64, error) {
	switch cycle {
	case CycleMonthly:
		return p.MonthlyPrice, nil
	case CycleAnnual:
		return p.AnnualPrice, nil
	default:
		return 0, ErrInvalidCycle
	}
}

// HostingSubscription moves through pending, active, suspended and
// terminated. Terminated is terminal. Status only changes after the
// corresponding upstream call succeeded, and the write itself is conditional
// on the status the transition started from.
//
// EncryptedCredentials holds the vault-sealed account password. The
// plaintext exists only inside the provisioning call and is never logged.
type HostingSubscription struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null;index"`
	PackageID  snowflake.ID `json:"package_id" gorm:"not null;index"`

	Domain   string `json:"domain" gorm:"not null"`
	Username string `json:"username" gorm:"index"`

	BillingCycle    BillingCycle       `json:"billing_cycle" gorm:"not null"`
	Status          SubscriptionStatus `json:"status" gorm:"not null;default:'pending';index"`
	NextBillingDate *time.Time         `json:"next_billing_date,omitempty" gorm:"index"`

	EncryptedCredentials []byte        `json:"-"`
	InvoiceID            *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`
	ServerRef            string        `json:"server_ref,omitempty"`
	// Mock marks accounts provisioned by the sandbox provider.
	Mock bool `json:"mock,omitempty"`

	SuspendedAt  *time.Time `json:"suspended_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (HostingSubscription) TableName() string { return "hosting_subscriptions" }

// AdvanceNextBilling moves the renewal date forward by exactly one cycle
// unit from its current value.
func (s *HostingSubscription) AdvanceNextBilling() {
	if s.NextBillingDate == nil {
		return
	}
	var next time.Time
	if s.BillingCycle == CycleAnnual {
		next = s.NextBillingDate.AddDate(1, 0, 0)
	} else {
		next = s.NextBillingDate.AddDate(0, 1, 0)
	}
	s.NextBillingDate = &next
}

// Credentials is the decrypted account login returned to authorized callers.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ListSubscriptionRequest struct {
	CustomerID snowflake.ID
	Status     SubscriptionStatus
	Page       pagination.Pagination
}

type Service interface {
	// Provision creates the upstream account for a pending subscription
	// and activates it. The generated password is vault-encrypted before
	// it is persisted.
	Provision(ctx context.Context, sess auth.Session, id snowflake.ID) (*HostingSubscription, error)

	Suspend(ctx context.Context, sess auth.Session, id snowflake.ID, reason string) (*HostingSubscription, error)
	Unsuspend(ctx context.Context, sess auth.Session, id snowflake.ID) (*HostingSubscription, error)
	Terminate(ctx context.Context, sess auth.Session, id snowflake.ID) (*HostingSubscription, error)

	Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*HostingSubscription, error)
	List(ctx context.Context, sess auth.Session, req ListSubscriptionRequest) ([]HostingSubscription, error)
	// Credentials decrypts the stored account password for the owning
	// customer or an admin.
	Credentials(ctx context.Context, sess auth.Session, id snowflake.ID) (*Credentials, error)

	GetPackage(ctx context.Context, id snowflake.ID) (*HostingPackage, error)
	ListPackages(ctx context.Context) ([]HostingPackage, error)
}
