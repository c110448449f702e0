package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/activity/domain"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	"github.com/tomxwilliam/studioportal/internal/hostingapi"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	"github.com/tomxwilliam/studioportal/internal/security/vault"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	provider     hostingapi.Provider
	vault        vault.Provider
	notifySvc    notificationdomain.Service
	activitySvc  domain.Service
	customerRepo customerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Provider     hostingapi.Provider
	Vault        vault.Provider
	NotifySvc    notificationdomain.Service
	ActivitySvc  domain.Service
	CustomerRepo customerdomain.Repository
}

func NewService(p ServiceParam) hostingdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("hosting.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		provider:     p.Provider,
		vault:        p.Vault,
		notifySvc:    p.NotifySvc,
		activitySvc:  p.ActivitySvc,
		customerRepo: p.CustomerRepo,
	}
}

func (s *Service) Provision(ctx context.Context, sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
	sub, err := s.requireTransition(ctx, sess, id, hostingdomain.StatusPending)
	if err != nil {
		return nil, err
	}

	pkg, err := s.GetPackage(ctx, sub.PackageID)
	if err != nil {
		return nil, err
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrCustomerNotFound
	}

	username := accountUsername(sub.Domain)
	password, err := generatePassword()
	if err != nil {
		return nil, err
	}

	// The password is sealed before anything else happens with it. It is
	// deliberately absent from every log line below.
	sealed, err := s.sealCredentials(username, password)
	if err != nil {
		return nil, err
	}

	account, err := s.provider.CreateAccount(ctx, hostingapi.CreateAccountRequest{
		Domain:        sub.Domain,
		Username:      username,
		Password:      password,
		Plan:          pkg.Plan,
		CustomerEmail: customer.Email,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":                hostingdomain.StatusActive,
		"username":              account.Username,
		"encrypted_credentials": sealed,
		"server_ref":            account.ServerRef,
		"mock":                  account.Mock,
		"updated_at":            now,
	}
	if sub.NextBillingDate == nil {
		updates["next_billing_date"] = nextBillingFrom(now, sub.BillingCycle)
	}

	updated, err := s.casUpdate(ctx, id, hostingdomain.StatusPending, updates)
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, sess, updated, sub.Status,
		"Hosting account activated",
		fmt.Sprintf("Hosting for %s is live on the %s plan.", sub.Domain, pkg.Name))
	return updated, nil
}

func (s *Service) Suspend(ctx context.Context, sess auth.Session, id snowflake.ID, reason string) (*hostingdomain.HostingSubscription, error) {
	sub, err := s.requireTransition(ctx, sess, id, hostingdomain.StatusActive)
	if err != nil {
		return nil, err
	}

	if err := s.provider.SuspendAccount(ctx, sub.Username, reason); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.casUpdate(ctx, id, hostingdomain.StatusActive, map[string]any{
		"status":       hostingdomain.StatusSuspended,
		"suspended_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, sess, updated, sub.Status,
		"Hosting account suspended",
		fmt.Sprintf("Hosting for %s has been suspended. Contact support if you believe this is an error.", sub.Domain))
	return updated, nil
}

func (s *Service) Unsuspend(ctx context.Context, sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
	sub, err := s.requireTransition(ctx, sess, id, hostingdomain.StatusSuspended)
	if err != nil {
		return nil, err
	}

	if err := s.provider.UnsuspendAccount(ctx, sub.Username); err != nil {
		return nil, err
	}

	updated, err := s.casUpdate(ctx, id, hostingdomain.StatusSuspended, map[string]any{
		"status":       hostingdomain.StatusActive,
		"suspended_at": nil,
		"updated_at":   s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, sess, updated, sub.Status,
		"Hosting account restored",
		fmt.Sprintf("Hosting for %s is active again.", sub.Domain))
	return updated, nil
}

func (s *Service) Terminate(ctx context.Context, sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
	sub, err := s.requireTransition(ctx, sess, id,
		hostingdomain.StatusActive, hostingdomain.StatusSuspended)
	if err != nil {
		return nil, err
	}

	if err := s.provider.TerminateAccount(ctx, sub.Username); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.casUpdate(ctx, id, sub.Status, map[string]any{
		"status":        hostingdomain.StatusTerminated,
		"terminated_at": now,
		"updated_at":    now,
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, sess, updated, sub.Status,
		"Hosting account terminated",
		fmt.Sprintf("Hosting for %s has been terminated.", sub.Domain))
	return updated, nil
}

// requireTransition runs the authorization and state checks that gate every
// transition. It rejects before any upstream call is made.
func (s *Service) requireTransition(ctx context.Context, sess auth.Session, id snowflake.ID, from ...hostingdomain.SubscriptionStatus) (*hostingdomain.HostingSubscription, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}

	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, status := range from {
		if sub.Status == status {
			return sub, nil
		}
	}
	return nil, fmt.Errorf("%w: %s subscription", hostingdomain.ErrInvalidTransition, sub.Status)
}

// casUpdate applies updates only if the row still holds the status the
// transition started from, so concurrent triggers cannot double-apply.
func (s *Service) casUpdate(ctx context.Context, id snowflake.ID, from hostingdomain.SubscriptionStatus, updates map[string]any) (*hostingdomain.HostingSubscription, error) {
	res := s.db.WithContext(ctx).
		Model(&hostingdomain.HostingSubscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: concurrent status change", hostingdomain.ErrInvalidTransition)
	}
	return s.find(ctx, id)
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
	var sub hostingdomain.HostingSubscription
	err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, hostingdomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// notifyTransition sends the single customer notice a transition produces,
// plus the audit entry. Best effort on both.
func (s *Service) notifyTransition(ctx context.Context, sess auth.Session, sub *hostingdomain.HostingSubscription, oldStatus hostingdomain.SubscriptionStatus, title, message string) {
	userIDs, err := s.customerRepo.ListUserIDsForCustomer(ctx, s.db, sub.CustomerID)
	if err != nil {
		s.log.Warn("transition notice: user lookup failed",
			zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}

	kind := notificationdomain.TypeInfo
	switch sub.Status {
	case hostingdomain.StatusActive:
		kind = notificationdomain.TypeSuccess
	case hostingdomain.StatusSuspended:
		kind = notificationdomain.TypeWarning
	case hostingdomain.StatusTerminated:
		kind = notificationdomain.TypeError
	}

	for _, userID := range userIDs {
		if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
			UserID:    userID,
			Title:     title,
			Message:   message,
			Type:      kind,
			Category:  "hosting",
			RelatedID: &sub.ID,
			ActionURL: "/dashboard/hosting",
		}); err != nil {
			s.log.Warn("transition notice failed",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		}
	}

	var actorPtr *snowflake.ID
	if sess.UserID != 0 {
		actor := sess.UserID
		actorPtr = &actor
	}
	if err := s.activitySvc.Record(ctx, domain.RecordParams{
		ActorID:    actorPtr,
		Action:     domain.ActionStatusChanged,
		EntityType: "hosting_subscription",
		EntityID:   sub.ID,
		OldValue:   map[string]any{"status": oldStatus},
		NewValue:   map[string]any{"status": sub.Status},
	}); err != nil {
		s.log.Warn("transition activity entry failed",
			zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
	sub, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.CanAccessCustomer(sub.CustomerID) {
		return nil, auth.ErrForbidden
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req hostingdomain.ListSubscriptionRequest) ([]hostingdomain.HostingSubscription, error) {
	customerID := req.CustomerID
	if !sess.IsAdmin() {
		customerID = sess.CustomerID
	}

	q := s.db.WithContext(ctx).Model(&hostingdomain.HostingSubscription{}).Order("created_at desc")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var subs []hostingdomain.HostingSubscription
	err := req.Page.Scope(q).Find(&subs).Error
	return subs, err
}

func (s *Service) Credentials(ctx context.Context, sess auth.Session, id snowflake.ID) (*hostingdomain.Credentials, error) {
	sub, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if len(sub.EncryptedCredentials) == 0 {
		return nil, hostingdomain.ErrSubscriptionNotFound
	}

	plain, err := s.vault.Decrypt(sub.EncryptedCredentials)
	if err != nil {
		return nil, err
	}

	var creds hostingdomain.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (s *Service) GetPackage(ctx context.Context, id snowflake.ID) (*hostingdomain.HostingPackage, error) {
	var pkg hostingdomain.HostingPackage
	err := s.db.WithContext(ctx).First(&pkg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, hostingdomain.ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (s *Service) ListPackages(ctx context.Context) ([]hostingdomain.HostingPackage, error) {
	var pkgs []hostingdomain.HostingPackage
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("monthly_price asc").
		Find(&pkgs).Error
	return pkgs, err
}

func (s *Service) sealCredentials(username, password string) ([]byte, error) {
	plain, err := json.Marshal(hostingdomain.Credentials{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	return s.vault.Encrypt(plain)
}

func nextBillingFrom(now time.Time, cycle hostingdomain.BillingCycle) time.Time {
	if cycle == hostingdomain.CycleAnnual {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// accountUsername derives a control panel login from the domain label.
// Panel usernames must start with a letter and stay short.
func accountUsername(domain string) string {
	label := domain
	if i := strings.IndexByte(label, '.'); i > 0 {
		label = label[:i]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	username := b.String()
	if username == "" || username[0] >= '0' && username[0] <= '9' {
		username = "h" + username
		if len(username) > 8 {
			username = username[:8]
		}
	}
	return username
}

func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
