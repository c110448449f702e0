package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/activity/domain"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, params domain.RecordParams) error {
	entry := domain.Entry{
		ID:         s.genID.Generate(),
		ActorID:    params.ActorID,
		Action:     params.Action,
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		CreatedAt:  s.clock.Now(),
	}

	if params.OldValue != nil {
		if raw, err := json.Marshal(params.OldValue); err == nil {
			entry.OldValue = raw
		}
	}
	if params.NewValue != nil {
		if raw, err := json.Marshal(params.NewValue); err == nil {
			entry.NewValue = raw
		}
	}

	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s *Service) ListForEntity(ctx context.Context, entityType string, entityID snowflake.ID) ([]domain.Entry, error) {
	var rows []domain.Entry
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}
