package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	activitydomain "github.com/tomxwilliam/studioportal/internal/activity/domain"
	activityservice "github.com/tomxwilliam/studioportal/internal/activity/service"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	customerrepo "github.com/tomxwilliam/studioportal/internal/customer/repository"
	domainsdomain "github.com/tomxwilliam/studioportal/internal/domains/domain"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	invoiceservice "github.com/tomxwilliam/studioportal/internal/invoice/service"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	notificationservice "github.com/tomxwilliam/studioportal/internal/notification/service"
	pricingdomain "github.com/tomxwilliam/studioportal/internal/pricing/domain"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRegistrar struct {
	failRegister error
	lastOrder    string
}

func (s *stubRegistrar) CheckAvailability(ctx context.Context, domain string) (registrar.Availability, error) {
	return registrar.Availability{Domain: domain, Available: true, Definitive: true}, nil
}

func (s *stubRegistrar) TLDPrices(ctx context.Context) ([]registrar.TLDPrice, error) {
	return nil, nil
}

func (s *stubRegistrar) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.Registration, error) {
	if s.failRegister != nil {
		return registrar.Registration{}, s.failRegister
	}
	s.lastOrder = "ORDER-" + req.Domain
	return registrar.Registration{OrderID: s.lastOrder, Domain: req.Domain}, nil
}

type stubPricing struct {
	price pricingdomain.TLDPrice
}

func (s *stubPricing) RefreshPrices(ctx context.Context) (pricingdomain.RefreshSummary, error) {
	return pricingdomain.RefreshSummary{}, nil
}
func (s *stubPricing) Get(ctx context.Context, tld string) (*pricingdomain.TLDPrice, error) {
	p := s.price
	return &p, nil
}
func (s *stubPricing) List(ctx context.Context) ([]pricingdomain.TLDPrice, error) { return nil, nil }
func (s *stubPricing) SetOverride(ctx context.Context, tld string, r, n int64) (*pricingdomain.TLDPrice, error) {
	return nil, nil
}
func (s *stubPricing) ClearOverride(ctx context.Context, tld string) error { return nil }

type harness struct {
	svc        *Service
	db         *gorm.DB
	reg        *stubRegistrar
	node       *snowflake.Node
	customer   customerdomain.Customer
	custUserID snowflake.ID
	adminID    snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domainsdomain.Domain{},
		&invoicedomain.Invoice{},
		&notificationdomain.Notification{},
		&activitydomain.Entry{},
		&customerdomain.Customer{},
		&customerdomain.User{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fixed := clock.Fixed{T: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	log := zap.NewNop()

	notifySvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Redis: rdb,
	})
	activitySvc := activityservice.NewService(activityservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})

	reg := &stubRegistrar{}
	cfg := config.Config{Billing: config.BillingConfig{InvoiceDueDays: 30}}

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fixed,
		Cfg:       cfg,
		Registrar: reg,
		PricingSvc: &stubPricing{price: pricingdomain.TLDPrice{
			TLD: "com", RegisterPrice: 1026, RenewPrice: 1184, IDProtectPrice: 395, LocalCurrency: "GBP",
		}},
		InvoiceSvc:   invoiceSvc,
		NotifySvc:    notifySvc,
		ActivitySvc:  activitySvc,
		CustomerRepo: customerrepo.Provide(),
	}).(*Service)

	h := &harness{svc: svc, db: db, reg: reg, node: node}

	h.customer = customerdomain.Customer{ID: node.Generate(), Name: "Acme Ltd", Email: "billing@acme.test"}
	require.NoError(t, db.Create(&h.customer).Error)

	custID := h.customer.ID
	custUser := customerdomain.User{ID: node.Generate(), CustomerID: &custID, Email: "owner@acme.test", PasswordHash: "x", Role: auth.RoleCustomer}
	require.NoError(t, db.Create(&custUser).Error)
	h.custUserID = custUser.ID

	admin := customerdomain.User{ID: node.Generate(), Email: "admin@studio.test", PasswordHash: "x", Role: auth.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)
	h.adminID = admin.ID

	return h
}

func (h *harness) customerSession() auth.Session {
	return auth.Session{UserID: h.custUserID, CustomerID: h.customer.ID, Role: auth.RoleCustomer}
}

func (h *harness) adminSession() auth.Session {
	return auth.Session{UserID: h.adminID, Role: auth.RoleAdmin}
}

func TestQuoteIsAdditiveAcrossYears(t *testing.T) {
	h := newHarness(t)

	resp, err := h.svc.Quote(context.Background(), domainsdomain.QuoteRequest{
		Domain: "acme.com", Years: 2, IDProtect: true,
	})
	require.NoError(t, err)
	require.True(t, resp.Available)
	require.Equal(t, int64(1026), resp.PricePerYear)
	require.Equal(t, int64(395), resp.IDProtectPerYr)
	require.Equal(t, int64(1026*2+395*2), resp.Total)
	require.Equal(t, "GBP", resp.Currency)
}

func TestQuoteRejectsInvalidTerm(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Quote(context.Background(), domainsdomain.QuoteRequest{Domain: "acme.com", Years: 0})
	require.ErrorIs(t, err, domainsdomain.ErrInvalidYears)

	_, err = h.svc.Quote(context.Background(), domainsdomain.QuoteRequest{Domain: "nodotshere", Years: 1})
	require.ErrorIs(t, err, domainsdomain.ErrInvalidName)
}

func TestRegisterCreatesLinkedDomainAndInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.svc.Register(ctx, h.customerSession(), domainsdomain.RegisterDomainRequest{
		Domain:    "acme.com",
		Years:     2,
		IDProtect: true,
		Contact:   registrar.Contact{FirstName: "Ada", LastName: "Acme", Email: "owner@acme.test"},
	})
	require.NoError(t, err)
	require.Equal(t, domainsdomain.StatusPending, resp.Domain.Status)
	require.Equal(t, int64(2842), resp.Domain.Price)

	var dom domainsdomain.Domain
	require.NoError(t, h.db.First(&dom, "name = ?", "acme.com").Error)
	require.NotNil(t, dom.InvoiceID)

	var inv invoicedomain.Invoice
	require.NoError(t, h.db.First(&inv, "id = ?", *dom.InvoiceID).Error)
	require.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
	require.Equal(t, dom.Price, inv.Amount)
	require.NotNil(t, inv.DomainID)
	require.Equal(t, dom.ID, *inv.DomainID)
	// Due 30 days out.
	require.WithinDuration(t, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), inv.DueDate, time.Second)

	// Customer and admin were both notified.
	var count int64
	require.NoError(t, h.db.Model(&notificationdomain.Notification{}).Where("user_id = ?", h.custUserID).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.NoError(t, h.db.Model(&notificationdomain.Notification{}).Where("user_id = ?", h.adminID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var entries int64
	require.NoError(t, h.db.Model(&activitydomain.Entry{}).Where("entity_type = ?", "domain").Count(&entries).Error)
	require.EqualValues(t, 1, entries)
}

func TestRegisterByAdminNotifiesCustomerUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.svc.Register(ctx, h.adminSession(), domainsdomain.RegisterDomainRequest{
		CustomerID: h.customer.ID,
		Domain:     "acme.com",
		Years:      1,
		Contact:    registrar.Contact{FirstName: "Ada", LastName: "Acme", Email: "owner@acme.test"},
	})
	require.NoError(t, err)
	require.Equal(t, h.customer.ID, resp.Domain.CustomerID)

	// The owning customer's users are notified even though the session
	// belongs to an admin acting on their behalf.
	var count int64
	require.NoError(t, h.db.Model(&notificationdomain.Notification{}).Where("user_id = ?", h.custUserID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRegisterIsAtomicOnRegistrarFailure(t *testing.T) {
	h := newHarness(t)
	h.reg.failRegister = errors.New("upstream rejected")

	_, err := h.svc.Register(context.Background(), h.customerSession(), domainsdomain.RegisterDomainRequest{
		Domain:  "acme.com",
		Years:   1,
		Contact: registrar.Contact{FirstName: "Ada", Email: "owner@acme.test"},
	})
	require.Error(t, err)

	var domains, invoices int64
	require.NoError(t, h.db.Model(&domainsdomain.Domain{}).Count(&domains).Error)
	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).Count(&invoices).Error)
	require.Zero(t, domains)
	require.Zero(t, invoices)
}

func TestRegisterValidatesBeforeUpstreamCall(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), h.customerSession(), domainsdomain.RegisterDomainRequest{
		Domain: "acme.com",
		Years:  1,
		// missing contact
	})
	require.ErrorIs(t, err, domainsdomain.ErrMissingContact)
	require.Empty(t, h.reg.lastOrder)
}

func TestActivateRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.svc.Register(ctx, h.customerSession(), domainsdomain.RegisterDomainRequest{
		Domain:  "acme.com",
		Years:   1,
		Contact: registrar.Contact{FirstName: "Ada", Email: "owner@acme.test"},
	})
	require.NoError(t, err)

	_, err = h.svc.Activate(ctx, h.customerSession(), resp.Domain.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	admin := auth.Session{UserID: h.adminID, Role: auth.RoleAdmin}
	activated, err := h.svc.Activate(ctx, admin, resp.Domain.ID)
	require.NoError(t, err)
	require.Equal(t, domainsdomain.StatusActive, activated.Status)
	require.NotNil(t, activated.ExpiryDate)
}
