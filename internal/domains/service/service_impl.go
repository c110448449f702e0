package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	activitydomain "github.com/tomxwilliam/studioportal/internal/activity/domain"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	domainsdomain "github.com/tomxwilliam/studioportal/internal/domains/domain"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	pricingdomain "github.com/tomxwilliam/studioportal/internal/pricing/domain"
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
	cfg   config.BillingConfig

	registrar    registrar.Provider
	pricingSvc   pricingdomain.Service
	invoiceSvc   invoicedomain.Service
	notifySvc    notificationdomain.Service
	activitySvc  activitydomain.Service
	customerRepo customerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config

	Registrar    registrar.Provider
	PricingSvc   pricingdomain.Service
	InvoiceSvc   invoicedomain.Service
	NotifySvc    notificationdomain.Service
	ActivitySvc  activitydomain.Service
	CustomerRepo customerdomain.Repository
}

func NewService(p ServiceParam) domainsdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("domains.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg.Billing,
		registrar:    p.Registrar,
		pricingSvc:   p.PricingSvc,
		invoiceSvc:   p.InvoiceSvc,
		notifySvc:    p.NotifySvc,
		activitySvc:  p.ActivitySvc,
		customerRepo: p.CustomerRepo,
	}
}

func validateYears(years int) error {
	if years < 1 || years > 10 {
		return domainsdomain.ErrInvalidYears
	}
	return nil
}

func (s *Service) Quote(ctx context.Context, req domainsdomain.QuoteRequest) (domainsdomain.QuoteResponse, error) {
	if err := validateYears(req.Years); err != nil {
		return domainsdomain.QuoteResponse{}, err
	}

	_, tld, err := domainsdomain.SplitName(req.Domain)
	if err != nil {
		return domainsdomain.QuoteResponse{}, err
	}

	price, err := s.pricingSvc.Get(ctx, tld)
	if err != nil {
		return domainsdomain.QuoteResponse{}, err
	}

	avail, err := s.registrar.CheckAvailability(ctx, req.Domain)
	if err != nil {
		return domainsdomain.QuoteResponse{}, err
	}

	resp := domainsdomain.QuoteResponse{
		Domain:       avail.Domain,
		Available:    avail.Available,
		Years:        req.Years,
		PricePerYear: price.RegisterPrice,
		IDProtect:    req.IDProtect,
		Currency:     price.LocalCurrency,
	}

	// Additive across years, never compounded.
	resp.Total = price.RegisterPrice * int64(req.Years)
	if req.IDProtect {
		resp.IDProtectPerYr = price.IDProtectPrice
		resp.Total += price.IDProtectPrice * int64(req.Years)
	}
	return resp, nil
}

func (s *Service) Register(ctx context.Context, sess auth.Session, req domainsdomain.RegisterDomainRequest) (domainsdomain.RegisterDomainResponse, error) {
	// Validation happens before any network call.
	if err := validateYears(req.Years); err != nil {
		return domainsdomain.RegisterDomainResponse{}, err
	}
	label, tld, err := domainsdomain.SplitName(req.Domain)
	if err != nil {
		return domainsdomain.RegisterDomainResponse{}, err
	}
	if req.Contact.Email == "" || req.Contact.FirstName == "" {
		return domainsdomain.RegisterDomainResponse{}, domainsdomain.ErrMissingContact
	}

	customerID := req.CustomerID
	if !sess.IsAdmin() {
		customerID = sess.CustomerID
	}
	if customerID == 0 {
		return domainsdomain.RegisterDomainResponse{}, auth.ErrUnauthenticated
	}

	price, err := s.pricingSvc.Get(ctx, tld)
	if err != nil {
		return domainsdomain.RegisterDomainResponse{}, err
	}

	total := price.RegisterPrice * int64(req.Years)
	if req.IDProtect {
		total += price.IDProtectPrice * int64(req.Years)
	}

	// The registrar call happens first: if it fails nothing is written,
	// so a failed registration leaves no Domain or Invoice behind.
	registration, err := s.registrar.Register(ctx, registrar.RegisterRequest{
		Domain:         label + "." + tld,
		Years:          req.Years,
		IDProtect:      req.IDProtect,
		Contact:        req.Contact,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return domainsdomain.RegisterDomainResponse{}, err
	}

	now := s.clock.Now()
	row := domainsdomain.Domain{
		ID:               s.genID.Generate(),
		CustomerID:       customerID,
		Name:             registration.Domain,
		TLD:              tld,
		Status:           domainsdomain.StatusPending,
		Price:            total,
		Currency:         price.LocalCurrency,
		Years:            req.Years,
		AutoRenew:        req.AutoRenew,
		IDProtect:        req.IDProtect,
		RegistrarOrderID: registration.OrderID,
	}

	inv := s.invoiceSvc.New(invoicedomain.CreateInvoiceParams{
		CustomerID: customerID,
		Amount:     total,
		Currency:   price.LocalCurrency,
		DueDate:    now.AddDate(0, 0, s.cfg.InvoiceDueDays),
		DomainID:   &row.ID,
		Metadata:   map[string]any{"domain": registration.Domain, "years": req.Years},
	})
	row.InvoiceID = &inv.ID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		return domainsdomain.RegisterDomainResponse{}, err
	}

	s.notifyRegistration(ctx, sess, row, inv)

	return domainsdomain.RegisterDomainResponse{
		Domain:           row,
		InvoiceID:        inv.ID.String(),
		MockRegistration: registration.Mock,
	}, nil
}

// notifyRegistration emits the customer and admin notifications and the audit
// entry. All best effort: a failure here never unwinds the registration.
func (s *Service) notifyRegistration(ctx context.Context, sess auth.Session, row domainsdomain.Domain, inv *invoicedomain.Invoice) {
	customer, err := s.customerRepo.FindByID(ctx, s.db, row.CustomerID)
	if err != nil || customer == nil {
		s.log.Warn("registration notice: customer lookup failed", zap.Error(err))
	}

	customerUserIDs, err := s.customerRepo.ListUserIDsForCustomer(ctx, s.db, row.CustomerID)
	if err != nil {
		s.log.Warn("registration notice: customer user lookup failed", zap.Error(err))
	}
	for _, userID := range customerUserIDs {
		if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
			UserID:    userID,
			Title:     "Domain registration started",
			Message:   fmt.Sprintf("Registration of %s is underway. Invoice %s is due.", row.Name, inv.InvoiceNumber),
			Type:      notificationdomain.TypeSuccess,
			Category:  "domains",
			RelatedID: &row.ID,
			ActionURL: "/dashboard/domains",
		}); err != nil {
			s.log.Warn("registration notice failed", zap.Error(err))
		}
	}

	adminIDs, err := s.customerRepo.ListAdminUserIDs(ctx, s.db)
	if err != nil {
		s.log.Warn("registration notice: admin lookup failed", zap.Error(err))
	}
	name := row.Name
	if customer != nil {
		name = fmt.Sprintf("%s for %s", row.Name, customer.Name)
	}
	for _, adminID := range adminIDs {
		if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
			UserID:    adminID,
			Title:     "New domain registration",
			Message:   fmt.Sprintf("Domain %s registered, order %s.", name, row.RegistrarOrderID),
			Type:      notificationdomain.TypeInfo,
			Category:  "domains",
			RelatedID: &row.ID,
			ActionURL: "/admin/domains",
		}); err != nil {
			s.log.Warn("registration admin notice failed", zap.Error(err))
		}
	}

	actor := sess.UserID
	var actorPtr *snowflake.ID
	if actor != 0 {
		actorPtr = &actor
	}
	if err := s.activitySvc.Record(ctx, activitydomain.RecordParams{
		ActorID:    actorPtr,
		Action:     activitydomain.ActionCreated,
		EntityType: "domain",
		EntityID:   row.ID,
		NewValue:   row,
	}); err != nil {
		s.log.Warn("registration activity entry failed", zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*domainsdomain.Domain, error) {
	var row domainsdomain.Domain
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainsdomain.ErrDomainNotFound
		}
		return nil, err
	}
	if !sess.CanAccessCustomer(row.CustomerID) {
		return nil, auth.ErrForbidden
	}
	return &row, nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req domainsdomain.ListDomainRequest) ([]domainsdomain.Domain, error) {
	customerID := req.CustomerID
	if !sess.IsAdmin() {
		customerID = sess.CustomerID
	}

	q := s.db.WithContext(ctx).Model(&domainsdomain.Domain{}).Order("created_at desc")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var rows []domainsdomain.Domain
	err := req.Page.Scope(q).Find(&rows).Error
	return rows, err
}

func (s *Service) Activate(ctx context.Context, sess auth.Session, id snowflake.ID) (*domainsdomain.Domain, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}

	row, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiry := now.AddDate(row.Years, 0, 0)
	res := s.db.WithContext(ctx).
		Model(&domainsdomain.Domain{}).
		Where("id = ? AND status = ?", id, domainsdomain.StatusPending).
		Updates(map[string]any{
			"status":            domainsdomain.StatusActive,
			"registration_date": now,
			"expiry_date":       expiry,
			"updated_at":        now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("domain %s is not pending", id)
	}

	return s.Get(ctx, sess, id)
}
