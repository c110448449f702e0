package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) number() string {
	now := s.clock.Now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	// A short ULID suffix keeps numbers sortable and collision-free
	// without a database sequence.
	return fmt.Sprintf("INV-%d-%s", now.Year(), id.String()[16:])
}

func (s *Service) New(params invoicedomain.CreateInvoiceParams) *invoicedomain.Invoice {
	inv := &invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		CustomerID:     params.CustomerID,
		InvoiceNumber:  s.number(),
		Amount:         params.Amount,
		Currency:       strings.ToUpper(params.Currency),
		Status:         invoicedomain.InvoiceStatusPending,
		DueDate:        params.DueDate,
		DomainID:       params.DomainID,
		SubscriptionID: params.SubscriptionID,
	}
	if len(params.Metadata) > 0 {
		inv.Metadata = params.Metadata
	}
	return inv
}

func (s *Service) Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	if !sess.CanAccessCustomer(inv.CustomerID) {
		return nil, auth.ErrForbidden
	}
	return &inv, nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req invoicedomain.ListInvoiceRequest) ([]invoicedomain.Invoice, error) {
	customerID := req.CustomerID
	if !sess.IsAdmin() {
		customerID = sess.CustomerID
	}

	q := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Order("created_at desc")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var rows []invoicedomain.Invoice
	err := req.Page.Scope(q).Find(&rows).Error
	return rows, err
}

// MarkPaid is the payment confirmation path: a conditional pending→paid
// update so concurrent confirmations settle on exactly one effective write.
func (s *Service) MarkPaid(ctx context.Context, sess auth.Session, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", id, invoicedomain.InvoiceStatusPending).
		Updates(map[string]any{"status": invoicedomain.InvoiceStatusPaid, "paid_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.explainStatusConflict(ctx, id)
	}
	return s.Get(ctx, sess, id)
}

func (s *Service) Cancel(ctx context.Context, sess auth.Session, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", id, invoicedomain.InvoiceStatusPending).
		Updates(map[string]any{"status": invoicedomain.InvoiceStatusCancelled, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, s.explainStatusConflict(ctx, id)
	}
	return s.Get(ctx, sess, id)
}

func (s *Service) explainStatusConflict(ctx context.Context, id snowflake.ID) error {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invoicedomain.ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}
	if inv.Status == invoicedomain.InvoiceStatusPaid {
		return invoicedomain.ErrAlreadyPaid
	}
	return invoicedomain.ErrNotPending
}
