package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	activitydomain "github.com/tomxwilliam/studioportal/internal/activity/domain"
	activityservice "github.com/tomxwilliam/studioportal/internal/activity/service"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	customerrepo "github.com/tomxwilliam/studioportal/internal/customer/repository"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	hostingservice "github.com/tomxwilliam/studioportal/internal/hosting/service"
	"github.com/tomxwilliam/studioportal/internal/hostingapi"
	hostingmock "github.com/tomxwilliam/studioportal/internal/hostingapi/mock"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	invoiceservice "github.com/tomxwilliam/studioportal/internal/invoice/service"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	notificationservice "github.com/tomxwilliam/studioportal/internal/notification/service"
	"github.com/tomxwilliam/studioportal/internal/security/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	sweeper  *Sweeper
	db       *gorm.DB
	node     *snowflake.Node
	now      time.Time
	customer customerdomain.Customer
	userID   snowflake.ID
	pkg      hostingdomain.HostingPackage
	provider *hostingmock.Provider
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&hostingdomain.HostingPackage{},
		&hostingdomain.HostingSubscription{},
		&notificationdomain.Notification{},
		&activitydomain.Entry{},
		&customerdomain.Customer{},
		&customerdomain.User{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	now := time.Date(2026, 7, 15, 6, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{T: now}
	log := zap.NewNop()

	sealer, err := vault.New("sweep-test-key")
	require.NoError(t, err)

	notifySvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Redis: rdb,
	})
	activitySvc := activityservice.NewService(activityservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})

	provider := hostingmock.New()
	hostingSvc := hostingservice.NewService(hostingservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
		Provider:     provider,
		Vault:        sealer,
		NotifySvc:    notifySvc,
		ActivitySvc:  activitySvc,
		CustomerRepo: customerrepo.Provide(),
	})

	cfg := config.Config{Billing: config.BillingConfig{
		WarningGraceDays:    7,
		SuspensionGraceDays: 14,
		RenewalWindowDays:   7,
		InvoiceDueDays:      30,
	}}

	sweeper := NewSweeper(SweeperParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
		Cfg:          cfg,
		Registry:     prometheus.NewRegistry(),
		HostingSvc:   hostingSvc,
		InvoiceSvc:   invoiceSvc,
		NotifySvc:    notifySvc,
		CustomerRepo: customerrepo.Provide(),
	})

	h := &harness{sweeper: sweeper, db: db, node: node, now: now, provider: provider}

	h.customer = customerdomain.Customer{ID: node.Generate(), Name: "Acme Ltd", Email: "billing@acme.test"}
	require.NoError(t, db.Create(&h.customer).Error)

	custID := h.customer.ID
	user := customerdomain.User{ID: node.Generate(), CustomerID: &custID, Email: "owner@acme.test", PasswordHash: "x", Role: auth.RoleCustomer}
	require.NoError(t, db.Create(&user).Error)
	h.userID = user.ID

	h.pkg = hostingdomain.HostingPackage{
		ID: node.Generate(), Name: "Starter", MonthlyPrice: 1499, AnnualPrice: 14999,
		Currency: "GBP", Plan: "starter_plan", IsActive: true,
	}
	require.NoError(t, db.Create(&h.pkg).Error)

	return h
}

func (h *harness) seedInvoice(t *testing.T, daysOverdue int, subID *snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	inv := invoicedomain.Invoice{
		ID:             h.node.Generate(),
		CustomerID:     h.customer.ID,
		InvoiceNumber:  "INV-TEST-" + h.node.Generate().String(),
		Amount:         2999,
		Currency:       "GBP",
		Status:         invoicedomain.InvoiceStatusPending,
		DueDate:        h.now.AddDate(0, 0, -daysOverdue),
		SubscriptionID: subID,
	}
	require.NoError(t, h.db.Create(&inv).Error)
	return inv
}

func (h *harness) seedActiveSubscription(t *testing.T, nextBilling time.Time, cycle hostingdomain.BillingCycle) hostingdomain.HostingSubscription {
	t.Helper()

	// The sandbox panel needs the account to exist before it can suspend it.
	_, err := h.provider.CreateAccount(context.Background(), hostingapi.CreateAccountRequest{
		Domain: "acme.com", Username: "acme", Plan: h.pkg.Plan,
	})
	require.NoError(t, err)

	sub := hostingdomain.HostingSubscription{
		ID:              h.node.Generate(),
		CustomerID:      h.customer.ID,
		PackageID:       h.pkg.ID,
		Domain:          "acme.com",
		Username:        "acme",
		BillingCycle:    cycle,
		Status:          hostingdomain.StatusActive,
		NextBillingDate: &nextBilling,
	}
	require.NoError(t, h.db.Create(&sub).Error)
	return sub
}

func (h *harness) noticeTitles(t *testing.T) map[string]int {
	t.Helper()
	var rows []notificationdomain.Notification
	require.NoError(t, h.db.Where("user_id = ?", h.userID).Find(&rows).Error)
	titles := map[string]int{}
	for _, n := range rows {
		titles[n.Title]++
	}
	return titles
}

func TestSweepEscalatesTwentyDayOverdueInvoiceInOneRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub := h.seedActiveSubscription(t, h.now.AddDate(0, 2, 0), hostingdomain.CycleMonthly)
	inv := h.seedInvoice(t, 20, &sub.ID)

	summary, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.OverdueProcessed)
	require.Zero(t, summary.Failures)

	titles := h.noticeTitles(t)
	require.Equal(t, 1, titles["Invoice overdue"])
	require.Equal(t, 1, titles["Suspension warning"])
	require.Equal(t, 1, titles["Services suspended"])

	var updatedSub hostingdomain.HostingSubscription
	require.NoError(t, h.db.First(&updatedSub, "id = ?", sub.ID).Error)
	require.Equal(t, hostingdomain.StatusSuspended, updatedSub.Status)

	var updatedInv invoicedomain.Invoice
	require.NoError(t, h.db.First(&updatedInv, "id = ?", inv.ID).Error)
	require.Equal(t, invoicedomain.ReminderStageSuspended, updatedInv.ReminderStage)
}

func TestSweepRerunSendsNothingNew(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub := h.seedActiveSubscription(t, h.now.AddDate(0, 2, 0), hostingdomain.CycleMonthly)
	h.seedInvoice(t, 20, &sub.ID)

	_, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	before := h.noticeTitles(t)

	summary, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Failures)
	require.Equal(t, before, h.noticeTitles(t))
}

func TestSweepEscalatesBandByBandAcrossRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.seedInvoice(t, 3, nil)

	_, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	titles := h.noticeTitles(t)
	require.Equal(t, 1, titles["Invoice overdue"])
	require.Zero(t, titles["Suspension warning"])

	// Ten days later the invoice crosses the warning band only.
	h.sweeper.clock = clock.Fixed{T: h.now.AddDate(0, 0, 10)}
	_, err = h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	titles = h.noticeTitles(t)
	require.Equal(t, 1, titles["Invoice overdue"])
	require.Equal(t, 1, titles["Suspension warning"])
	require.Zero(t, titles["Services suspended"])

	var updated invoicedomain.Invoice
	require.NoError(t, h.db.First(&updated, "id = ?", inv.ID).Error)
	require.Equal(t, invoicedomain.ReminderStageWarning, updated.ReminderStage)
}

func TestSweepCreatesOneRenewalInvoiceAndAdvancesOneMonth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	nextBilling := h.now.AddDate(0, 0, 3)
	sub := h.seedActiveSubscription(t, nextBilling, hostingdomain.CycleMonthly)

	summary, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.RenewalsProcessed)

	var invoices []invoicedomain.Invoice
	require.NoError(t, h.db.Where("subscription_id = ?", sub.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
	require.Equal(t, h.pkg.MonthlyPrice, invoices[0].Amount)

	var updated hostingdomain.HostingSubscription
	require.NoError(t, h.db.First(&updated, "id = ?", sub.ID).Error)
	require.WithinDuration(t, nextBilling.AddDate(0, 1, 0), *updated.NextBillingDate, time.Second)

	titles := h.noticeTitles(t)
	require.Equal(t, 1, titles["Hosting renewal due"])

	// The advanced date is outside the window, so a re-run is a no-op.
	summary, err = h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.RenewalsProcessed)
	require.NoError(t, h.db.Where("subscription_id = ?", sub.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
}

func TestSweepAnnualRenewalUsesAnnualPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	nextBilling := h.now.AddDate(0, 0, 5)
	sub := h.seedActiveSubscription(t, nextBilling, hostingdomain.CycleAnnual)

	_, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)

	var invoices []invoicedomain.Invoice
	require.NoError(t, h.db.Where("subscription_id = ?", sub.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
	require.Equal(t, h.pkg.AnnualPrice, invoices[0].Amount)

	var updated hostingdomain.HostingSubscription
	require.NoError(t, h.db.First(&updated, "id = ?", sub.ID).Error)
	require.WithinDuration(t, nextBilling.AddDate(1, 0, 0), *updated.NextBillingDate, time.Second)
}

func TestSweepContinuesPastFailingItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// An invoice pointing at a customer with no users still processes; one
	// with a missing package on its renewal fails without stopping the rest.
	badPkgID := h.node.Generate()
	badSub := hostingdomain.HostingSubscription{
		ID:              h.node.Generate(),
		CustomerID:      h.customer.ID,
		PackageID:       badPkgID,
		Domain:          "broken.com",
		BillingCycle:    hostingdomain.CycleMonthly,
		Status:          hostingdomain.StatusActive,
		NextBillingDate: ptrTime(h.now.AddDate(0, 0, 2)),
	}
	require.NoError(t, h.db.Create(&badSub).Error)

	goodSub := h.seedActiveSubscription(t, h.now.AddDate(0, 0, 3), hostingdomain.CycleMonthly)

	summary, err := h.sweeper.RunBillingSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.RenewalsProcessed)
	require.Equal(t, 1, summary.Failures)

	var invoices []invoicedomain.Invoice
	require.NoError(t, h.db.Where("subscription_id = ?", goodSub.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		h.sweeper.RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep loop did not stop after cancellation")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
