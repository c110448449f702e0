package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionDeleted       Action = "deleted"
	ActionStatusChanged Action = "status_changed"
)

// Entry is a write-once audit record. Entries are never updated or deleted.
type Entry struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	ActorID    *snowflake.ID  `json:"actor_id,omitempty" gorm:"index"`
	Action     Action         `json:"action" gorm:"not null"`
	EntityType string         `json:"entity_type" gorm:"not null;index:idx_activity_entity"`
	EntityID   snowflake.ID   `json:"entity_id" gorm:"not null;index:idx_activity_entity"`
	OldValue   datatypes.JSON `json:"old_value,omitempty"`
	NewValue   datatypes.JSON `json:"new_value,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Entry) TableName() string { return "activity_log" }

type RecordParams struct {
	ActorID    *snowflake.ID
	Action     Action
	EntityType string
	EntityID   snowflake.ID
	OldValue   any
	NewValue   any
}

type Service interface {
	// Record appends an audit entry. Like notifications, failures are
	// non-fatal to the caller.
	Record(ctx context.Context, params RecordParams) error

	ListForEntity(ctx context.Context, entityType string, entityID snowflake.ID) ([]Entry, error)
}
