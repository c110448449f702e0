package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	invoiceservice "github.com/tomxwilliam/studioportal/internal/invoice/service"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	notificationservice "github.com/tomxwilliam/studioportal/internal/notification/service"
	quotedomain "github.com/tomxwilliam/studioportal/internal/quote/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc        *Service
	db         *gorm.DB
	node       *snowflake.Node
	customerID snowflake.ID
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&quotedomain.Quote{},
		&invoicedomain.Invoice{},
		&notificationdomain.Notification{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{T: now}
	log := zap.NewNop()

	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})
	notifySvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Redis: rdb,
	})

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fixed,
		Cfg: config.Config{
			Billing: config.BillingConfig{InvoiceDueDays: 30},
		},
		InvoiceSvc: invoiceSvc,
		NotifySvc:  notifySvc,
	}).(*Service)

	return &harness{svc: svc, db: db, node: node, customerID: node.Generate(), now: now}
}

func (h *harness) adminSession() auth.Session {
	return auth.Session{UserID: h.node.Generate(), Role: auth.RoleAdmin}
}

func (h *harness) customerSession() auth.Session {
	return auth.Session{UserID: h.node.Generate(), CustomerID: h.customerID, Role: auth.RoleCustomer}
}

func (h *harness) createQuote(t *testing.T, validDays int) *quotedomain.Quote {
	t.Helper()
	row, err := h.svc.Create(context.Background(), h.adminSession(), quotedomain.CreateQuoteParams{
		CustomerID: h.customerID,
		Title:      "Site rebuild",
		Amount:     250000,
		ValidDays:  validDays,
	})
	require.NoError(t, err)
	return row
}

func TestAcceptRaisesInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	row := h.createQuote(t, 30)

	accepted, err := h.svc.Accept(ctx, h.customerSession(), row.ID)
	require.NoError(t, err)
	require.Equal(t, quotedomain.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.InvoiceID)

	var inv invoicedomain.Invoice
	require.NoError(t, h.db.First(&inv, "id = ?", *accepted.InvoiceID).Error)
	require.Equal(t, row.Amount, inv.Amount)
	require.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
}

func TestAcceptRefusedPastValidUntil(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	row := h.createQuote(t, 30)

	// Push valid_until into the past.
	require.NoError(t, h.db.Model(&quotedomain.Quote{}).
		Where("id = ?", row.ID).
		Update("valid_until", h.now.AddDate(0, 0, -1)).Error)

	_, err := h.svc.Accept(ctx, h.customerSession(), row.ID)
	require.ErrorIs(t, err, quotedomain.ErrQuoteExpired)

	var invoices int64
	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).Count(&invoices).Error)
	require.Zero(t, invoices)
}

func TestPendingReadsAsExpiredPastValidUntil(t *testing.T) {
	h := newHarness(t)
	row := h.createQuote(t, 30)

	require.NoError(t, h.db.Model(&quotedomain.Quote{}).
		Where("id = ?", row.ID).
		Update("valid_until", h.now.AddDate(0, 0, -1)).Error)

	got, err := h.svc.Get(context.Background(), h.customerSession(), row.ID)
	require.NoError(t, err)
	require.Equal(t, quotedomain.StatusExpired, got.Status)

	// The stored status is untouched.
	var stored quotedomain.Quote
	require.NoError(t, h.db.First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, quotedomain.StatusPending, stored.Status)
}

func TestRejectThenAcceptFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	row := h.createQuote(t, 30)

	_, err := h.svc.Reject(ctx, h.customerSession(), row.ID)
	require.NoError(t, err)

	_, err = h.svc.Accept(ctx, h.customerSession(), row.ID)
	require.ErrorIs(t, err, quotedomain.ErrNotPending)
}

func TestConvertRequiresAcceptedQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	row := h.createQuote(t, 30)

	_, err := h.svc.MarkConverted(ctx, h.adminSession(), row.ID)
	require.Error(t, err)

	_, err = h.svc.Accept(ctx, h.customerSession(), row.ID)
	require.NoError(t, err)

	converted, err := h.svc.MarkConverted(ctx, h.adminSession(), row.ID)
	require.NoError(t, err)
	require.Equal(t, quotedomain.StatusConverted, converted.Status)
}
