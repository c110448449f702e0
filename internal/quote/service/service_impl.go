package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	quotedomain "github.com/tomxwilliam/studioportal/internal/quote/domain"
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

	invoiceSvc invoicedomain.Service
	notifySvc  notificationdomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config

	InvoiceSvc invoicedomain.Service
	NotifySvc  notificationdomain.Service
}

func NewService(p ServiceParam) quotedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quote.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg.Billing,
		invoiceSvc: p.InvoiceSvc,
		notifySvc:  p.NotifySvc,
	}
}

func (s *Service) number() string {
	now := s.clock.Now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return fmt.Sprintf("QUO-%d-%s", now.Year(), id.String()[16:])
}

func (s *Service) Create(ctx context.Context, sess auth.Session, params quotedomain.CreateQuoteParams) (*quotedomain.Quote, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}
	if params.CustomerID == 0 || params.Title == "" || params.Amount <= 0 {
		return nil, fmt.Errorf("quote: customer, title and a positive amount are required")
	}

	validDays := params.ValidDays
	if validDays <= 0 {
		validDays = 30
	}
	currency := params.Currency
	if currency == "" {
		currency = "GBP"
	}

	now := s.clock.Now()
	row := quotedomain.Quote{
		ID:          s.genID.Generate(),
		CustomerID:  params.CustomerID,
		QuoteNumber: s.number(),
		Title:       params.Title,
		Description: params.Description,
		Amount:      params.Amount,
		Currency:    currency,
		Status:      quotedomain.StatusPending,
		ValidUntil:  now.AddDate(0, 0, validDays),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*quotedomain.Quote, error) {
	var row quotedomain.Quote
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, quotedomain.ErrQuoteNotFound
		}
		return nil, err
	}
	if !sess.CanAccessCustomer(row.CustomerID) {
		return nil, auth.ErrForbidden
	}
	row.Status = row.EffectiveStatus(s.clock.Now())
	return &row, nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req quotedomain.ListQuoteRequest) ([]quotedomain.Quote, error) {
	customerID := req.CustomerID
	if !sess.IsAdmin() {
		customerID = sess.CustomerID
	}

	q := s.db.WithContext(ctx).Model(&quotedomain.Quote{}).Order("created_at desc")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var rows []quotedomain.Quote
	if err := req.Page.Scope(q).Find(&rows).Error; err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range rows {
		rows[i].Status = rows[i].EffectiveStatus(now)
	}
	return rows, nil
}

// Accept moves a pending quote to accepted and raises the invoice for it in
// one transaction. The validity window is checked first and again inside the
// conditional update, so a quote can never be accepted past valid_until.
func (s *Service) Accept(ctx context.Context, sess auth.Session, id snowflake.ID) (*quotedomain.Quote, error) {
	row, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now.After(row.ValidUntil) {
		return nil, quotedomain.ErrQuoteExpired
	}
	if row.Status != quotedomain.StatusPending {
		return nil, quotedomain.ErrNotPending
	}

	inv := s.invoiceSvc.New(invoicedomain.CreateInvoiceParams{
		CustomerID: row.CustomerID,
		Amount:     row.Amount,
		Currency:   row.Currency,
		DueDate:    now.AddDate(0, 0, s.cfg.InvoiceDueDays),
		Metadata:   map[string]any{"quote_number": row.QuoteNumber},
	})

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&quotedomain.Quote{}).
			Where("id = ? AND status = ? AND valid_until >= ?", id, quotedomain.StatusPending, now).
			Updates(map[string]any{
				"status":      quotedomain.StatusAccepted,
				"accepted_at": now,
				"invoice_id":  inv.ID,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return quotedomain.ErrNotPending
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifyDecision(ctx, sess, row, "Quote accepted",
		fmt.Sprintf("Quote %s was accepted. Invoice %s raised.", row.QuoteNumber, inv.InvoiceNumber))
	return s.Get(ctx, sess, id)
}

func (s *Service) Reject(ctx context.Context, sess auth.Session, id snowflake.ID) (*quotedomain.Quote, error) {
	row, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if row.Status != quotedomain.StatusPending {
		return nil, quotedomain.ErrNotPending
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).
		Model(&quotedomain.Quote{}).
		Where("id = ? AND status = ?", id, quotedomain.StatusPending).
		Updates(map[string]any{"status": quotedomain.StatusRejected, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, quotedomain.ErrNotPending
	}

	s.notifyDecision(ctx, sess, row, "Quote rejected",
		fmt.Sprintf("Quote %s was rejected.", row.QuoteNumber))
	return s.Get(ctx, sess, id)
}

func (s *Service) MarkConverted(ctx context.Context, sess auth.Session, id snowflake.ID) (*quotedomain.Quote, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Model(&quotedomain.Quote{}).
		Where("id = ? AND status = ?", id, quotedomain.StatusAccepted).
		Updates(map[string]any{"status": quotedomain.StatusConverted, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("quote %s is not accepted", id)
	}
	return s.Get(ctx, sess, id)
}

func (s *Service) notifyDecision(ctx context.Context, sess auth.Session, row *quotedomain.Quote, title, message string) {
	if sess.UserID == 0 {
		return
	}
	if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
		UserID:    sess.UserID,
		Title:     title,
		Message:   message,
		Type:      notificationdomain.TypeInfo,
		Category:  "quotes",
		RelatedID: &row.ID,
		ActionURL: "/dashboard/quotes",
	}); err != nil {
		s.log.Warn("quote decision notice failed",
			zap.String("quote_id", row.ID.String()), zap.Error(err))
	}
}
