package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	"github.com/tomxwilliam/studioportal/internal/pricing/domain"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRegistrar struct {
	sheet []registrar.TLDPrice
	err   error
}

func (s *stubRegistrar) CheckAvailability(ctx context.Context, domain string) (registrar.Availability, error) {
	return registrar.Availability{Domain: domain, Available: true}, nil
}

func (s *stubRegistrar) TLDPrices(ctx context.Context) ([]registrar.TLDPrice, error) {
	return s.sheet, s.err
}

func (s *stubRegistrar) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.Registration, error) {
	return registrar.Registration{OrderID: "stub", Domain: req.Domain}, nil
}

type fixedFX struct{ rate float64 }

func (f fixedFX) Rate(ctx context.Context, base, target string) (float64, error) {
	return f.rate, nil
}

func newTestService(t *testing.T, reg registrar.Provider, rate float64) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.TLDPrice{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Cfg: config.Config{Pricing: config.PricingConfig{
			SourceCurrency: "USD",
			LocalCurrency:  "GBP",
		}},
		Registrar: reg,
		FX:        fixedFX{rate: rate},
	}).(*Service)
	return svc, db
}

func TestRefreshPricesConvertsWithRounding(t *testing.T) {
	reg := &stubRegistrar{sheet: []registrar.TLDPrice{
		{TLD: "com", Register: 12.99, Renew: 14.99, Transfer: 9.99, Currency: "USD"},
	}}
	svc, _ := newTestService(t, reg, 0.79)

	summary, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, 0, summary.Failed)

	row, err := svc.Get(context.Background(), "com")
	require.NoError(t, err)
	require.Equal(t, int64(1299), row.SourceRegister)
	// 1299 * 0.79 = 1026.21, rounds to 1026.
	require.Equal(t, int64(1026), row.RegisterPrice)
	// 1499 * 0.79 = 1184.21 -> 1184.
	require.Equal(t, int64(1184), row.RenewPrice)
	require.Equal(t, "GBP", row.LocalCurrency)
	require.NotNil(t, row.SyncedAt)
}

func TestRefreshPricesSkipsOverrides(t *testing.T) {
	reg := &stubRegistrar{sheet: []registrar.TLDPrice{
		{TLD: "com", Register: 12.99, Renew: 14.99, Currency: "USD"},
		{TLD: "io", Register: 39.99, Renew: 44.99, Currency: "USD"},
	}}
	svc, _ := newTestService(t, reg, 0.79)

	_, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)

	_, err = svc.SetOverride(context.Background(), "io", 2500, 2900)
	require.NoError(t, err)

	// New upstream sheet; io must keep its pinned price and be reported.
	reg.sheet = []registrar.TLDPrice{
		{TLD: "com", Register: 13.99, Renew: 15.99, Currency: "USD"},
		{TLD: "io", Register: 49.99, Renew: 54.99, Currency: "USD"},
	}
	summary, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, "manual override", summary.Skipped["io"])

	row, err := svc.Get(context.Background(), "io")
	require.NoError(t, err)
	require.True(t, row.IsOverride)
	require.Equal(t, int64(2500), row.RegisterPrice)

	com, err := svc.Get(context.Background(), "com")
	require.NoError(t, err)
	require.Equal(t, int64(1399), com.SourceRegister)
}

func TestRefreshPricesClearOverrideResumesSync(t *testing.T) {
	reg := &stubRegistrar{sheet: []registrar.TLDPrice{
		{TLD: "net", Register: 13.99, Renew: 15.99, Currency: "USD"},
	}}
	svc, _ := newTestService(t, reg, 1.0)

	_, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)

	_, err = svc.SetOverride(context.Background(), "net", 999, 999)
	require.NoError(t, err)
	require.NoError(t, svc.ClearOverride(context.Background(), "net"))

	summary, err := svc.RefreshPrices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)

	row, err := svc.Get(context.Background(), "net")
	require.NoError(t, err)
	require.Equal(t, int64(1399), row.RegisterPrice)
}
