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
	activitydomain "github.com/tomxwilliam/studioportal/internal/activity/domain"
	activityservice "github.com/tomxwilliam/studioportal/internal/activity/service"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	customerrepo "github.com/tomxwilliam/studioportal/internal/customer/repository"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	"github.com/tomxwilliam/studioportal/internal/hostingapi"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	notificationservice "github.com/tomxwilliam/studioportal/internal/notification/service"
	"github.com/tomxwilliam/studioportal/internal/security/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// countingProvider records upstream calls so tests can assert that rejected
// transitions never reach the control panel.
type countingProvider struct {
	creates, suspends, unsuspends, terminates int
	lastPassword                              string
}

func (p *countingProvider) CreateAccount(ctx context.Context, req hostingapi.CreateAccountRequest) (hostingapi.Account, error) {
	p.creates++
	p.lastPassword = req.Password
	return hostingapi.Account{Username: req.Username, Domain: req.Domain, ServerRef: "web01"}, nil
}

func (p *countingProvider) SuspendAccount(ctx context.Context, username, reason string) error {
	p.suspends++
	return nil
}

func (p *countingProvider) UnsuspendAccount(ctx context.Context, username string) error {
	p.unsuspends++
	return nil
}

func (p *countingProvider) TerminateAccount(ctx context.Context, username string) error {
	p.terminates++
	return nil
}

func (p *countingProvider) calls() int {
	return p.creates + p.suspends + p.unsuspends + p.terminates
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	provider *countingProvider
	node     *snowflake.Node
	customer customerdomain.Customer
	userID   snowflake.ID
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
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

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{T: now}
	log := zap.NewNop()

	sealer, err := vault.New("test-encryption-key")
	require.NoError(t, err)

	notifySvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Redis: rdb,
	})
	activitySvc := activityservice.NewService(activityservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
	})

	provider := &countingProvider{}
	svc := NewService(ServiceParam{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fixed,
		Provider:     provider,
		Vault:        sealer,
		NotifySvc:    notifySvc,
		ActivitySvc:  activitySvc,
		CustomerRepo: customerrepo.Provide(),
	}).(*Service)

	h := &harness{svc: svc, db: db, provider: provider, node: node, now: now}

	h.customer = customerdomain.Customer{ID: node.Generate(), Name: "Acme Ltd", Email: "billing@acme.test"}
	require.NoError(t, db.Create(&h.customer).Error)

	custID := h.customer.ID
	user := customerdomain.User{ID: node.Generate(), CustomerID: &custID, Email: "owner@acme.test", PasswordHash: "x", Role: auth.RoleCustomer}
	require.NoError(t, db.Create(&user).Error)
	h.userID = user.ID

	return h
}

func (h *harness) seedSubscription(t *testing.T, status hostingdomain.SubscriptionStatus) hostingdomain.HostingSubscription {
	t.Helper()

	pkg := hostingdomain.HostingPackage{
		ID: h.node.Generate(), Name: "Starter", MonthlyPrice: 999, AnnualPrice: 9999,
		Currency: "GBP", Plan: "starter_plan", IsActive: true,
	}
	require.NoError(t, h.db.Create(&pkg).Error)

	sub := hostingdomain.HostingSubscription{
		ID:           h.node.Generate(),
		CustomerID:   h.customer.ID,
		PackageID:    pkg.ID,
		Domain:       "acme.com",
		Username:     "acme",
		BillingCycle: hostingdomain.CycleMonthly,
		Status:       status,
	}
	require.NoError(t, h.db.Create(&sub).Error)
	return sub
}

func adminSession(h *harness) auth.Session {
	return auth.Session{UserID: h.node.Generate(), Role: auth.RoleAdmin}
}

func TestProvisionActivatesAndSealsCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seedSubscription(t, hostingdomain.StatusPending)

	updated, err := h.svc.Provision(ctx, adminSession(h), sub.ID)
	require.NoError(t, err)
	require.Equal(t, hostingdomain.StatusActive, updated.Status)
	require.Equal(t, 1, h.provider.creates)
	require.NotEmpty(t, updated.Username)
	require.NotEmpty(t, updated.EncryptedCredentials)
	require.NotNil(t, updated.NextBillingDate)
	require.WithinDuration(t, h.now.AddDate(0, 1, 0), *updated.NextBillingDate, time.Second)

	// The plaintext never lands in the row, only the sealed envelope.
	require.NotContains(t, string(updated.EncryptedCredentials), h.provider.lastPassword)

	creds, err := h.svc.Credentials(ctx, adminSession(h), sub.ID)
	require.NoError(t, err)
	require.Equal(t, h.provider.lastPassword, creds.Password)
	require.Equal(t, updated.Username, creds.Username)

	var count int64
	require.NoError(t, h.db.Model(&notificationdomain.Notification{}).Where("user_id = ?", h.userID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestTransitionTable(t *testing.T) {
	type step func(h *harness, ctx context.Context, sess auth.Session, id snowflake.ID) error

	provision := func(h *harness, ctx context.Context, sess auth.Session, id snowflake.ID) error {
		_, err := h.svc.Provision(ctx, sess, id)
		return err
	}
	suspend := func(h *harness, ctx context.Context, sess auth.Session, id snowflake.ID) error {
		_, err := h.svc.Suspend(ctx, sess, id, "test")
		return err
	}
	unsuspend := func(h *harness, ctx context.Context, sess auth.Session, id snowflake.ID) error {
		_, err := h.svc.Unsuspend(ctx, sess, id)
		return err
	}
	terminate := func(h *harness, ctx context.Context, sess auth.Session, id snowflake.ID) error {
		_, err := h.svc.Terminate(ctx, sess, id)
		return err
	}

	tests := []struct {
		name string
		from hostingdomain.SubscriptionStatus
		op   step
		ok   bool
	}{
		{"provision pending", hostingdomain.StatusPending, provision, true},
		{"provision active rejected", hostingdomain.StatusActive, provision, false},
		{"provision terminated rejected", hostingdomain.StatusTerminated, provision, false},
		{"suspend active", hostingdomain.StatusActive, suspend, true},
		{"suspend pending rejected", hostingdomain.StatusPending, suspend, false},
		{"suspend terminated rejected", hostingdomain.StatusTerminated, suspend, false},
		{"unsuspend suspended", hostingdomain.StatusSuspended, unsuspend, true},
		{"unsuspend active rejected", hostingdomain.StatusActive, unsuspend, false},
		{"terminate active", hostingdomain.StatusActive, terminate, true},
		{"terminate suspended", hostingdomain.StatusSuspended, terminate, true},
		{"terminate terminated rejected", hostingdomain.StatusTerminated, terminate, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			sub := h.seedSubscription(t, tc.from)

			before := h.provider.calls()
			err := tc.op(h, ctx, adminSession(h), sub.ID)
			if tc.ok {
				require.NoError(t, err)
				require.Equal(t, before+1, h.provider.calls())
			} else {
				require.ErrorIs(t, err, hostingdomain.ErrInvalidTransition)
				// Rejected before any upstream call.
				require.Equal(t, before, h.provider.calls())
			}
		})
	}
}

func TestTransitionsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seedSubscription(t, hostingdomain.StatusActive)

	customerSess := auth.Session{UserID: h.userID, CustomerID: h.customer.ID, Role: auth.RoleCustomer}
	_, err := h.svc.Suspend(ctx, customerSess, sub.ID, "unpaid")
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = h.svc.Terminate(ctx, auth.Session{}, sub.ID)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	require.Zero(t, h.provider.calls())
}

func TestSystemSessionMayTransition(t *testing.T) {
	h := newHarness(t)
	sub := h.seedSubscription(t, hostingdomain.StatusActive)

	updated, err := h.svc.Suspend(context.Background(), auth.SystemSession(), sub.ID, "invoice overdue")
	require.NoError(t, err)
	require.Equal(t, hostingdomain.StatusSuspended, updated.Status)
}

func TestCredentialsScopedToOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.seedSubscription(t, hostingdomain.StatusPending)

	_, err := h.svc.Provision(ctx, adminSession(h), sub.ID)
	require.NoError(t, err)

	other := customerdomain.Customer{ID: h.node.Generate(), Name: "Other", Email: "other@test"}
	require.NoError(t, h.db.Create(&other).Error)

	stranger := auth.Session{UserID: h.node.Generate(), CustomerID: other.ID, Role: auth.RoleCustomer}
	_, err = h.svc.Credentials(ctx, stranger, sub.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	owner := auth.Session{UserID: h.userID, CustomerID: h.customer.ID, Role: auth.RoleCustomer}
	creds, err := h.svc.Credentials(ctx, owner, sub.ID)
	require.NoError(t, err)
	require.NotEmpty(t, creds.Password)
}
