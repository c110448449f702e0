package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	checkoutdomain "github.com/tomxwilliam/studioportal/internal/checkout/domain"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	"github.com/tomxwilliam/studioportal/internal/payment"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.Config

	payments     payment.Provider
	hostingSvc   hostingdomain.Service
	invoiceSvc   invoicedomain.Service
	customerRepo customerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config

	Payments     payment.Provider
	HostingSvc   hostingdomain.Service
	InvoiceSvc   invoicedomain.Service
	CustomerRepo customerdomain.Repository
}

func NewService(p ServiceParam) checkoutdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("checkout.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg,
		payments:     p.Payments,
		hostingSvc:   p.HostingSvc,
		invoiceSvc:   p.InvoiceSvc,
		customerRepo: p.CustomerRepo,
	}
}

func (s *Service) CheckoutHosting(ctx context.Context, sess auth.Session, req checkoutdomain.HostingCheckoutRequest) (*checkoutdomain.HostingCheckoutResponse, error) {
	if sess.CustomerID == 0 {
		return nil, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(req.Domain) == "" {
		return nil, checkoutdomain.ErrDomainRequired
	}
	if !req.BillingCycle.Valid() {
		return nil, hostingdomain.ErrInvalidCycle
	}

	pkg, err := s.hostingSvc.GetPackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	amount, err := pkg.CyclePrice(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, sess.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrCustomerNotFound
	}

	now := s.clock.Now()
	sub := hostingdomain.HostingSubscription{
		ID:           s.genID.Generate(),
		CustomerID:   sess.CustomerID,
		PackageID:    pkg.ID,
		Domain:       strings.ToLower(req.Domain),
		BillingCycle: req.BillingCycle,
		Status:       hostingdomain.StatusPending,
	}
	inv := s.invoiceSvc.New(invoicedomain.CreateInvoiceParams{
		CustomerID:     sess.CustomerID,
		Amount:         amount,
		Currency:       pkg.Currency,
		DueDate:        now.AddDate(0, 0, s.cfg.Billing.InvoiceDueDays),
		SubscriptionID: &sub.ID,
		Metadata:       map[string]any{"package": pkg.Name, "cycle": string(req.BillingCycle)},
	})
	sub.InvoiceID = &inv.ID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		return nil, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payment.CreateSessionRequest{
		Reference:     inv.InvoiceNumber,
		CustomerEmail: customer.Email,
		LineItems: []payment.LineItem{{
			Description: fmt.Sprintf("%s hosting (%s) for %s", pkg.Name, req.BillingCycle, sub.Domain),
			Amount:      amount,
			Currency:    pkg.Currency,
			Quantity:    1,
		}},
		SuccessURL: s.cfg.Payment.SuccessURL,
		CancelURL:  s.cfg.Payment.CancelURL,
	})
	if err != nil {
		// The pending subscription and invoice stand; the customer can
		// retry payment without repurchasing.
		s.log.Warn("checkout session failed",
			zap.String("invoice", inv.InvoiceNumber), zap.Error(err))
		return nil, err
	}

	return &checkoutdomain.HostingCheckoutResponse{
		SubscriptionID: sub.ID,
		InvoiceID:      inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		Amount:         amount,
		Currency:       pkg.Currency,
		RedirectURL:    session.URL,
		MockSession:    session.Mock,
	}, nil
}
