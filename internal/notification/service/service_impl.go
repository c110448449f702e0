package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Channel returns the pub/sub channel a dashboard session subscribes to for
// live pushes. Delivery is at-most-once and best-effort; a disconnected
// session re-fetches on reconnect.
func Channel(userID snowflake.ID) string {
	return "notifications:" + userID.String()
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	rdb   *redis.Client
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Redis *redis.Client
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		rdb:   p.Redis,
	}
}

func (s *Service) Send(ctx context.Context, params domain.SendParams) error {
	if params.UserID == 0 {
		return errors.New("notification: missing recipient")
	}

	typ := params.Type
	if typ == "" {
		typ = domain.TypeInfo
	}

	row := domain.Notification{
		ID:        s.genID.Generate(),
		UserID:    params.UserID,
		Title:     params.Title,
		Message:   params.Message,
		Type:      typ,
		Category:  params.Category,
		RelatedID: params.RelatedID,
		ActionURL: params.ActionURL,
		CreatedAt: s.clock.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	// Live fan-out is best effort; the row is already durable.
	if payload, err := json.Marshal(row); err == nil {
		if err := s.rdb.Publish(ctx, Channel(row.UserID), payload).Err(); err != nil {
			s.log.Debug("notification publish failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req domain.ListRequest) ([]domain.Notification, error) {
	if sess.UserID == 0 {
		return nil, auth.ErrUnauthenticated
	}

	q := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", sess.UserID).
		Order("created_at desc")
	if req.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var rows []domain.Notification
	err := req.Page.Scope(q).Find(&rows).Error
	return rows, err
}

func (s *Service) MarkRead(ctx context.Context, sess auth.Session, id snowflake.ID) error {
	if sess.UserID == 0 {
		return auth.ErrUnauthenticated
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, sess.UserID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, sess auth.Session) error {
	if sess.UserID == 0 {
		return auth.ErrUnauthenticated
	}

	return s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", sess.UserID, false).
		Update("is_read", true).Error
}
