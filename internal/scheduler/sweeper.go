package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepSummary reports what one sweep run touched.
type SweepSummary struct {
	OverdueProcessed  int `json:"overdue_processed"`
	RenewalsProcessed int `json:"renewals_processed"`
	Failures          int `json:"failures"`
}

type sweepMetrics struct {
	overdue  prometheus.Counter
	renewals prometheus.Counter
	failures prometheus.Counter
	runs     prometheus.Counter
}

func newSweepMetrics(reg *prometheus.Registry) sweepMetrics {
	factory := promauto.With(reg)
	return sweepMetrics{
		overdue: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_overdue_processed_total",
			Help: "Overdue invoices processed by the billing sweep.",
		}),
		renewals: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_renewals_processed_total",
			Help: "Renewal invoices created by the billing sweep.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_failures_total",
			Help: "Items the billing sweep failed to process.",
		}),
		runs: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_sweep_runs_total",
			Help: "Billing sweep runs completed.",
		}),
	}
}

// Sweeper walks overdue invoices and upcoming renewals. Every run is safe to
// repeat: overdue escalation is tracked by the invoice reminder stage, and
// renewal creation is conditional on the next_billing_date it read.
type Sweeper struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.BillingConfig

	hostingSvc   hostingdomain.Service
	invoiceSvc   invoicedomain.Service
	notifySvc    notificationdomain.Service
	customerRepo customerdomain.Repository

	metrics sweepMetrics
}

type SweeperParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Registry *prometheus.Registry

	HostingSvc   hostingdomain.Service
	InvoiceSvc   invoicedomain.Service
	NotifySvc    notificationdomain.Service
	CustomerRepo customerdomain.Repository
}

func NewSweeper(p SweeperParam) *Sweeper {
	return &Sweeper{
		db:           p.DB,
		log:          p.Log.Named("scheduler.sweeper"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg.Billing,
		hostingSvc:   p.HostingSvc,
		invoiceSvc:   p.InvoiceSvc,
		notifySvc:    p.NotifySvc,
		customerRepo: p.CustomerRepo,
		metrics:      newSweepMetrics(p.Registry),
	}
}

// RunBillingSweep executes one full pass. Per-item failures are logged and
// counted; they never abort the remaining items.
func (s *Sweeper) RunBillingSweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	now := s.clock.Now()
	sess := auth.SystemSession()

	overdue, err := s.findOverdueInvoices(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("sweep: query overdue invoices: %w", err)
	}
	for i := range overdue {
		if err := s.processOverdue(ctx, sess, &overdue[i], now); err != nil {
			summary.Failures++
			s.metrics.failures.Inc()
			s.log.Error("sweep: overdue invoice failed",
				zap.String("invoice", overdue[i].InvoiceNumber), zap.Error(err))
			continue
		}
		summary.OverdueProcessed++
		s.metrics.overdue.Inc()
	}

	renewals, err := s.findUpcomingRenewals(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("sweep: query renewals: %w", err)
	}
	for i := range renewals {
		if err := s.processRenewal(ctx, &renewals[i], now); err != nil {
			summary.Failures++
			s.metrics.failures.Inc()
			s.log.Error("sweep: renewal failed",
				zap.String("subscription", renewals[i].ID.String()), zap.Error(err))
			continue
		}
		summary.RenewalsProcessed++
		s.metrics.renewals.Inc()
	}

	s.metrics.runs.Inc()
	s.log.Info("billing sweep finished",
		zap.Int("overdue_processed", summary.OverdueProcessed),
		zap.Int("renewals_processed", summary.RenewalsProcessed),
		zap.Int("failures", summary.Failures))
	return summary, nil
}

func (s *Sweeper) findOverdueInvoices(ctx context.Context, now time.Time) ([]invoicedomain.Invoice, error) {
	var rows []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", invoicedomain.InvoiceStatusPending, now).
		Order("due_date asc").
		Find(&rows).Error
	return rows, err
}

// stageFor maps days past due onto the escalation ladder.
func (s *Sweeper) stageFor(days int) int {
	switch {
	case days >= s.cfg.SuspensionGraceDays:
		return invoicedomain.ReminderStageSuspended
	case days >= s.cfg.WarningGraceDays:
		return invoicedomain.ReminderStageWarning
	default:
		return invoicedomain.ReminderStageOverdue
	}
}

// processOverdue walks the invoice up the escalation ladder. Each band's
// side effects fire exactly once because the reminder stage only moves
// forward, and the final stage write is conditional on the stage the run
// started from.
func (s *Sweeper) processOverdue(ctx context.Context, sess auth.Session, inv *invoicedomain.Invoice, now time.Time) error {
	days := inv.DaysOverdue(now)
	target := s.stageFor(days)
	if target <= inv.ReminderStage {
		// Already notified for this band on a previous run.
		return nil
	}

	userIDs, err := s.customerRepo.ListUserIDsForCustomer(ctx, s.db, inv.CustomerID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}

	if inv.ReminderStage < invoicedomain.ReminderStageOverdue {
		s.sendToAll(ctx, userIDs, inv, notificationdomain.TypeWarning,
			"Invoice overdue",
			fmt.Sprintf("Invoice %s for %s is overdue. Please arrange payment.",
				inv.InvoiceNumber, formatAmount(inv.Amount, inv.Currency)))
	}
	if inv.ReminderStage < invoicedomain.ReminderStageWarning && target >= invoicedomain.ReminderStageWarning {
		s.sendToAll(ctx, userIDs, inv, notificationdomain.TypeWarning,
			"Suspension warning",
			fmt.Sprintf("Invoice %s is %d days overdue. Services will be suspended if it remains unpaid.",
				inv.InvoiceNumber, days))
	}
	if inv.ReminderStage < invoicedomain.ReminderStageSuspended && target >= invoicedomain.ReminderStageSuspended {
		if err := s.suspendLinkedSubscriptions(ctx, sess, inv); err != nil {
			return err
		}
		s.sendToAll(ctx, userIDs, inv, notificationdomain.TypeError,
			"Services suspended",
			fmt.Sprintf("Services linked to invoice %s have been suspended for non-payment.",
				inv.InvoiceNumber))
	}

	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND reminder_stage = ?", inv.ID, inv.ReminderStage).
		Updates(map[string]any{"reminder_stage": target, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent run advanced the stage first; its side effects won.
		s.log.Warn("sweep: reminder stage advanced concurrently",
			zap.String("invoice", inv.InvoiceNumber))
	}
	return nil
}

// suspendLinkedSubscriptions suspends every subscription tied to the
// invoice, either via the invoice's subscription link or the subscription's
// own invoice link. Already suspended or terminated subscriptions are left
// alone.
func (s *Sweeper) suspendLinkedSubscriptions(ctx context.Context, sess auth.Session, inv *invoicedomain.Invoice) error {
	var subs []hostingdomain.HostingSubscription
	q := s.db.WithContext(ctx).Where("invoice_id = ?", inv.ID)
	if inv.SubscriptionID != nil {
		q = q.Or("id = ?", *inv.SubscriptionID)
	}
	if err := q.Find(&subs).Error; err != nil {
		return err
	}

	reason := fmt.Sprintf("invoice %s unpaid", inv.InvoiceNumber)
	for i := range subs {
		if subs[i].Status != hostingdomain.StatusActive {
			continue
		}
		if _, err := s.hostingSvc.Suspend(ctx, sess, subs[i].ID, reason); err != nil {
			return fmt.Errorf("suspend subscription %s: %w", subs[i].ID, err)
		}
	}
	return nil
}

func (s *Sweeper) findUpcomingRenewals(ctx context.Context, now time.Time) ([]hostingdomain.HostingSubscription, error) {
	horizon := now.AddDate(0, 0, s.cfg.RenewalWindowDays)
	var subs []hostingdomain.HostingSubscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?",
			hostingdomain.StatusActive, horizon).
		Order("next_billing_date asc").
		Find(&subs).Error
	return subs, err
}

// processRenewal raises one renewal invoice for the cycle price and advances
// next_billing_date by exactly one cycle unit. The advance is conditional on
// the date this run read, so two overlapping sweeps produce one invoice.
func (s *Sweeper) processRenewal(ctx context.Context, sub *hostingdomain.HostingSubscription, now time.Time) error {
	pkg, err := s.hostingSvc.GetPackage(ctx, sub.PackageID)
	if err != nil {
		return err
	}
	amount, err := pkg.CyclePrice(sub.BillingCycle)
	if err != nil {
		return err
	}

	oldDate := *sub.NextBillingDate
	renewed := *sub
	renewed.AdvanceNextBilling()

	inv := s.invoiceSvc.New(invoicedomain.CreateInvoiceParams{
		CustomerID:     sub.CustomerID,
		Amount:         amount,
		Currency:       pkg.Currency,
		DueDate:        oldDate,
		SubscriptionID: &sub.ID,
		Metadata: map[string]any{
			"renewal": true,
			"package": pkg.Name,
			"cycle":   string(sub.BillingCycle),
		},
	})

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&hostingdomain.HostingSubscription{}).
			Where("id = ? AND next_billing_date = ?", sub.ID, oldDate).
			Updates(map[string]any{
				"next_billing_date": *renewed.NextBillingDate,
				"updated_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another run already renewed this subscription.
			return nil
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		return err
	}

	userIDs, err := s.customerRepo.ListUserIDsForCustomer(ctx, s.db, sub.CustomerID)
	if err != nil {
		s.log.Warn("sweep: renewal notice user lookup failed",
			zap.String("subscription", sub.ID.String()), zap.Error(err))
		return nil
	}
	s.sendToAll(ctx, userIDs, inv, notificationdomain.TypeInfo,
		"Hosting renewal due",
		fmt.Sprintf("Hosting for %s renews on %s. Invoice %s has been raised for %s.",
			sub.Domain, oldDate.Format("2 January 2006"), inv.InvoiceNumber,
			formatAmount(amount, pkg.Currency)))
	return nil
}

func (s *Sweeper) sendToAll(ctx context.Context, userIDs []snowflake.ID, inv *invoicedomain.Invoice, kind notificationdomain.NotificationType, title, message string) {
	for _, userID := range userIDs {
		if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
			UserID:    userID,
			Title:     title,
			Message:   message,
			Type:      kind,
			Category:  "billing",
			RelatedID: &inv.ID,
			ActionURL: "/dashboard/invoices",
		}); err != nil {
			s.log.Warn("sweep notice failed",
				zap.String("invoice", inv.InvoiceNumber), zap.Error(err))
		}
	}
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, float64(minor)/100)
}

// RunForever drives the sweep on a fixed interval until the context ends.
// Deployments that trigger sweeps from an external timer use the HTTP
// endpoint instead and never start this loop.
func (s *Sweeper) RunForever(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("billing sweep loop started", zap.Duration("interval", interval))
	for {
		if _, err := s.RunBillingSweep(ctx); err != nil {
			s.log.Error("billing sweep run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
