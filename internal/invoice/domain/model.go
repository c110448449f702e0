package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
	"gorm.io/datatypes"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrAlreadyPaid     = errors.New("invoice already paid")
	ErrNotPending      = errors.New("invoice is not pending")
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Reminder stages form the overdue escalation ladder. The billing sweep only
// ever moves the marker forward, which is what makes re-runs idempotent.
const (
	ReminderStageNone      = 0
	ReminderStageOverdue   = 1
	ReminderStageWarning   = 2
	ReminderStageSuspended = 3
)

// Invoice is owned by a customer and optionally linked to the domain,
// subscription or project it bills for. Overdue is not a stored status: an
// invoice is overdue when it is pending past its due date. Paid invoices are
// immutable except for metadata.
type Invoice struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	CustomerID    snowflake.ID  `json:"customer_id" gorm:"not null;index"`
	InvoiceNumber string        `json:"invoice_number" gorm:"uniqueIndex;not null"`
	Amount        int64         `json:"amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"not null"`
	Status        InvoiceStatus `json:"status" gorm:"not null;default:'pending';index"`
	DueDate       time.Time     `json:"due_date" gorm:"not null;index"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	DomainID       *snowflake.ID `json:"domain_id,omitempty" gorm:"index"`
	SubscriptionID *snowflake.ID `json:"subscription_id,omitempty" gorm:"index"`
	ProjectID      *snowflake.ID `json:"project_id,omitempty"`

	ReminderStage int               `json:"-" gorm:"not null;default:0"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

func (i Invoice) DaysOverdue(now time.Time) int {
	if i.Status != InvoiceStatusPending || !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

type CreateInvoiceParams struct {
	CustomerID     snowflake.ID
	Amount         int64
	Currency       string
	DueDate        time.Time
	DomainID       *snowflake.ID
	SubscriptionID *snowflake.ID
	Metadata       map[string]any
}

type ListInvoiceRequest struct {
	CustomerID snowflake.ID
	Status     InvoiceStatus
	Page       pagination.Pagination
}

type Service interface {
	// New builds an unsaved invoice with a generated number; callers
	// persist it inside their own transaction so creation stays atomic
	// with the business record it bills for.
	New(params CreateInvoiceParams) *Invoice

	Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, sess auth.Session, req ListInvoiceRequest) ([]Invoice, error)
	MarkPaid(ctx context.Context, sess auth.Session, id snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, sess auth.Session, id snowflake.ID) (*Invoice, error)
}
