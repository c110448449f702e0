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
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidPriority = errors.New("invalid ticket priority")
	ErrInvalidStatus   = errors.New("invalid ticket status")
	ErrEmptyMessage    = errors.New("message body is empty")
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Ticket carries a status and priority pair with no transition graph: any
// valid value may follow any other. Contact-form tickets have no customer.
type Ticket struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	Reference  string        `json:"reference" gorm:"uniqueIndex;not null"`
	CustomerID *snowflake.ID `json:"customer_id,omitempty" gorm:"index"`
	ProjectID  *snowflake.ID `json:"project_id,omitempty" gorm:"index"`
	AssignedTo *snowflake.ID `json:"assigned_to,omitempty" gorm:"index"`

	Title       string       `json:"title" gorm:"not null"`
	Description string       `json:"description"`
	Priority    Priority     `json:"priority" gorm:"not null;default:'medium'"`
	Status      TicketStatus `json:"status" gorm:"not null;default:'open';index"`

	// ContactEmail is set for anonymous contact-form tickets so replies
	// have somewhere to go.
	ContactEmail string `json:"contact_email,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Ticket) TableName() string { return "tickets" }

// Message belongs to a thread scoped by (related_type, related_id) and is
// strictly ordered by creation time. Posting one never touches the parent's
// status.
type Message struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	RelatedType string        `json:"related_type" gorm:"not null;index:idx_messages_thread"`
	RelatedID   snowflake.ID  `json:"related_id" gorm:"not null;index:idx_messages_thread"`
	AuthorID    *snowflake.ID `json:"author_id,omitempty"`
	AuthorName  string        `json:"author_name"`
	Body        string        `json:"body" gorm:"not null"`
	IsInternal  bool          `json:"is_internal"`
	CreatedAt   time.Time     `json:"created_at" gorm:"index"`
}

func (Message) TableName() string { return "ticket_messages" }

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadClosed    LeadStatus = "closed"
)

// Lead mirrors a contact-form submission into the sales pipeline. The email
// always matches the anonymous ticket it was created alongside.
type Lead struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	Reference string        `json:"reference" gorm:"uniqueIndex;not null"`
	Name      string        `json:"name" gorm:"not null"`
	Email     string        `json:"email" gorm:"not null;index"`
	Company   string        `json:"company"`
	Phone     string        `json:"phone"`
	Source    string        `json:"source" gorm:"not null;default:'contact_form'"`
	Status    LeadStatus    `json:"status" gorm:"not null;default:'new'"`
	TicketID  *snowflake.ID `json:"ticket_id,omitempty" gorm:"index"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

type CreateTicketParams struct {
	CustomerID  *snowflake.ID
	ProjectID   *snowflake.ID
	Title       string
	Description string
	Priority    Priority
}

type ContactFormParams struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Subject string
	Message string
}

type ContactFormResult struct {
	Ticket Ticket `json:"ticket"`
	Lead   Lead   `json:"lead"`
}

type UpdateTicketParams struct {
	Status     TicketStatus
	Priority   Priority
	AssignedTo *snowflake.ID
}

type ListTicketRequest struct {
	CustomerID snowflake.ID
	Status     TicketStatus
	Page       pagination.Pagination
}

type PostMessageParams struct {
	RelatedType string
	RelatedID   snowflake.ID
	Body        string
	IsInternal  bool
}

type Service interface {
	Create(ctx context.Context, sess auth.Session, params CreateTicketParams) (*Ticket, error)
	// SubmitContactForm is the anonymous intake path: one ticket with no
	// customer plus a mirrored lead with the same email, atomically.
	SubmitContactForm(ctx context.Context, params ContactFormParams) (*ContactFormResult, error)

	Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*Ticket, error)
	List(ctx context.Context, sess auth.Session, req ListTicketRequest) ([]Ticket, error)
	Update(ctx context.Context, sess auth.Session, id snowflake.ID, params UpdateTicketParams) (*Ticket, error)

	PostMessage(ctx context.Context, sess auth.Session, params PostMessageParams) (*Message, error)
	ListMessages(ctx context.Context, sess auth.Session, relatedType string, relatedID snowflake.ID) ([]Message, error)
}
