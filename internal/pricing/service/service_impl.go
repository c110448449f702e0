package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	"github.com/tomxwilliam/studioportal/internal/fxrate"
	"github.com/tomxwilliam/studioportal/internal/pricing/domain"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.PricingConfig

	registrar registrar.Provider
	fx        fxrate.Service
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Registrar registrar.Provider
	FX        fxrate.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("pricing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg.Pricing,
		registrar: p.Registrar,
		fx:        p.FX,
	}
}

// toMinor converts an upstream decimal price to minor units, rounding half
// away from zero. This is the rounding rule the stored local prices follow.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func convert(sourceMinor int64, rate float64) int64 {
	return int64(math.Round(float64(sourceMinor) * rate))
}

func (s *Service) RefreshPrices(ctx context.Context) (domain.RefreshSummary, error) {
	summary := domain.RefreshSummary{Skipped: map[string]string{}}

	sheet, err := s.registrar.TLDPrices(ctx)
	if err != nil {
		return summary, err
	}

	rate, err := s.fx.Rate(ctx, s.cfg.SourceCurrency, s.cfg.LocalCurrency)
	if err != nil {
		return summary, err
	}
	summary.Rate = rate

	now := s.clock.Now()
	for _, entry := range sheet {
		tld := strings.ToLower(strings.TrimSpace(entry.TLD))
		if tld == "" {
			continue
		}

		existing, err := s.find(ctx, tld)
		if err != nil {
			s.log.Error("price sync: lookup failed, leaving price stale",
				zap.String("tld", tld), zap.Error(err))
			summary.Failed++
			continue
		}

		if existing != nil && existing.IsOverride {
			summary.Skipped[tld] = "manual override"
			continue
		}

		row := domain.TLDPrice{
			TLD:            tld,
			SourceCurrency: entry.Currency,
			SourceRegister: toMinor(entry.Register),
			SourceRenew:    toMinor(entry.Renew),
			SourceTransfer: toMinor(entry.Transfer),
			LocalCurrency:  s.cfg.LocalCurrency,
			RegisterPrice:  convert(toMinor(entry.Register), rate),
			RenewPrice:     convert(toMinor(entry.Renew), rate),
			TransferPrice:  convert(toMinor(entry.Transfer), rate),
			LastSyncRate:   rate,
			SyncedAt:       &now,
		}

		if existing != nil {
			row.ID = existing.ID
			row.IDProtectPrice = existing.IDProtectPrice
			row.CreatedAt = existing.CreatedAt
			err = s.db.WithContext(ctx).Save(&row).Error
		} else {
			row.ID = s.genID.Generate()
			err = s.db.WithContext(ctx).Create(&row).Error
		}
		if err != nil {
			s.log.Error("price sync: upsert failed, leaving price stale",
				zap.String("tld", tld), zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Updated++
	}

	s.log.Info("price sync completed",
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", summary.Failed),
		zap.Float64("rate", rate))
	return summary, nil
}

func (s *Service) find(ctx context.Context, tld string) (*domain.TLDPrice, error) {
	var row domain.TLDPrice
	err := s.db.WithContext(ctx).First(&row, "tld = ?", tld).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *Service) Get(ctx context.Context, tld string) (*domain.TLDPrice, error) {
	row, err := s.find(ctx, strings.ToLower(strings.TrimSpace(tld)))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrTLDNotFound
	}
	return row, nil
}

func (s *Service) List(ctx context.Context) ([]domain.TLDPrice, error) {
	var rows []domain.TLDPrice
	err := s.db.WithContext(ctx).Order("tld asc").Find(&rows).Error
	return rows, err
}

func (s *Service) SetOverride(ctx context.Context, tld string, registerPrice, renewPrice int64) (*domain.TLDPrice, error) {
	row, err := s.Get(ctx, tld)
	if err != nil {
		return nil, err
	}

	row.RegisterPrice = registerPrice
	row.RenewPrice = renewPrice
	row.IsOverride = true
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Service) ClearOverride(ctx context.Context, tld string) error {
	res := s.db.WithContext(ctx).
		Model(&domain.TLDPrice{}).
		Where("tld = ?", strings.ToLower(strings.TrimSpace(tld))).
		Update("is_override", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTLDNotFound
	}
	return nil
}
