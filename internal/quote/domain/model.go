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
	ErrQuoteNotFound = errors.New("quote not found")
	ErrQuoteExpired  = errors.New("quote has expired")
	ErrNotPending    = errors.New("quote is not pending")
)

type QuoteStatus string

const (
	StatusPending   QuoteStatus = "pending"
	StatusAccepted  QuoteStatus = "accepted"
	StatusRejected  QuoteStatus = "rejected"
	StatusExpired   QuoteStatus = "expired"
	StatusConverted QuoteStatus = "converted"
)

// Quote is a sales offer with a validity window. Expiry is not written back
// eagerly: a pending quote past valid_until reads as expired, and acceptance
// is refused once the window has passed.
type Quote struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	CustomerID  snowflake.ID  `json:"customer_id" gorm:"not null;index"`
	QuoteNumber string        `json:"quote_number" gorm:"uniqueIndex;not null"`
	Title       string        `json:"title" gorm:"not null"`
	Description string        `json:"description"`
	Amount      int64         `json:"amount" gorm:"not null"`
	Currency    string        `json:"currency" gorm:"not null;default:'GBP'"`
	Status      QuoteStatus   `json:"status" gorm:"not null;default:'pending';index"`
	ValidUntil  time.Time     `json:"valid_until" gorm:"not null"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty"`
	InvoiceID   *snowflake.ID `json:"invoice_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }

// EffectiveStatus folds implicit expiry into the stored status.
func (q Quote) EffectiveStatus(now time.Time) QuoteStatus {
	if q.Status == StatusPending && now.After(q.ValidUntil) {
		return StatusExpired
	}
	return q.Status
}

type CreateQuoteParams struct {
	CustomerID  snowflake.ID
	Title       string
	Description string
	Amount      int64
	Currency    string
	ValidDays   int
}

type ListQuoteRequest struct {
	CustomerID snowflake.ID
	Status     QuoteStatus
	Page       pagination.Pagination
}

type Service interface {
	Create(ctx context.Context, sess auth.Session, params CreateQuoteParams) (*Quote, error)
	Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*Quote, error)
	List(ctx context.Context, sess auth.Session, req ListQuoteRequest) ([]Quote, error)

	// Accept converts a pending quote inside its validity window into an
	// accepted quote with an invoice attached. Past valid_until it fails
	// with ErrQuoteExpired regardless of stored status.
	Accept(ctx context.Context, sess auth.Session, id snowflake.ID) (*Quote, error)
	Reject(ctx context.Context, sess auth.Session, id snowflake.ID) (*Quote, error)
	// MarkConverted records that the accepted quote's work was purchased
	// through checkout.
	MarkConverted(ctx context.Context, sess auth.Session, id snowflake.ID) (*Quote, error)
}
