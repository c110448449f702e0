package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
)

// Notification is one row of the append-only user-visible ledger. Rows are
// never deleted; the read receipt is the only mutation.
type Notification struct {
	ID        snowflake.ID     `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID     `json:"user_id" gorm:"not null;index"`
	Title     string           `json:"title" gorm:"not null"`
	Message   string           `json:"message" gorm:"not null"`
	Type      NotificationType `json:"type" gorm:"not null;default:'info'"`
	Category  string           `json:"category" gorm:"index"`
	IsRead    bool             `json:"is_read" gorm:"not null;default:false"`
	RelatedID *snowflake.ID    `json:"related_id,omitempty"`
	ActionURL string           `json:"action_url,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

type SendParams struct {
	UserID    snowflake.ID
	Title     string
	Message   string
	Type      NotificationType
	Category  string
	RelatedID *snowflake.ID
	ActionURL string
}

type ListRequest struct {
	UnreadOnly bool
	Page       pagination.Pagination
}

type Service interface {
	// Send appends to the ledger and fans the row out to live dashboard
	// sessions. Callers treat a returned error as a non-fatal side
	// effect: log and continue, never abort the primary operation.
	Send(ctx context.Context, params SendParams) error

	List(ctx context.Context, sess auth.Session, req ListRequest) ([]Notification, error)
	MarkRead(ctx context.Context, sess auth.Session, id snowflake.ID) error
	MarkAllRead(ctx context.Context, sess auth.Session) error
}
