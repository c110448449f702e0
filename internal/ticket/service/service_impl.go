package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	ticketdomain "github.com/tomxwilliam/studioportal/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	notifySvc    notificationdomain.Service
	customerRepo customerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	NotifySvc    notificationdomain.Service
	CustomerRepo customerdomain.Repository
}

func NewService(p ServiceParam) ticketdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("ticket.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		notifySvc:    p.NotifySvc,
		customerRepo: p.CustomerRepo,
	}
}

// reference builds a human-readable code like TKT-site-down-4F2A9C from the
// title plus a ULID suffix for uniqueness.
func (s *Service) reference(prefix, title string) string {
	base := slug.Make(title)
	if len(base) > 24 {
		base = base[:24]
	}
	if base == "" {
		base = "untitled"
	}
	id := ulid.MustNew(ulid.Timestamp(s.clock.Now()), ulid.DefaultEntropy())
	return fmt.Sprintf("%s-%s-%s", prefix, base, id.String()[20:])
}

func (s *Service) Create(ctx context.Context, sess auth.Session, params ticketdomain.CreateTicketParams) (*ticketdomain.Ticket, error) {
	if sess.UserID == 0 {
		return nil, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, fmt.Errorf("ticket: title is required")
	}

	priority := params.Priority
	if priority == "" {
		priority = ticketdomain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, ticketdomain.ErrInvalidPriority
	}

	customerID := params.CustomerID
	if !sess.IsAdmin() {
		// Customers only file tickets against their own account.
		id := sess.CustomerID
		customerID = &id
	}

	row := ticketdomain.Ticket{
		ID:          s.genID.Generate(),
		Reference:   s.reference("TKT", params.Title),
		CustomerID:  customerID,
		ProjectID:   params.ProjectID,
		Title:       params.Title,
		Description: params.Description,
		Priority:    priority,
		Status:      ticketdomain.StatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, &row, "New support ticket",
		fmt.Sprintf("Ticket %s opened: %s", row.Reference, row.Title))
	return &row, nil
}

func (s *Service) SubmitContactForm(ctx context.Context, params ticketdomain.ContactFormParams) (*ticketdomain.ContactFormResult, error) {
	if strings.TrimSpace(params.Email) == "" || strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("contact form: name and email are required")
	}
	if strings.TrimSpace(params.Message) == "" {
		return nil, ticketdomain.ErrEmptyMessage
	}

	subject := params.Subject
	if subject == "" {
		subject = "Website enquiry"
	}

	ticket := ticketdomain.Ticket{
		ID:           s.genID.Generate(),
		Reference:    s.reference("TKT", subject),
		Title:        subject,
		Description:  params.Message,
		Priority:     ticketdomain.PriorityMedium,
		Status:       ticketdomain.StatusOpen,
		ContactEmail: params.Email,
		ContactName:  params.Name,
	}
	lead := ticketdomain.Lead{
		ID:        s.genID.Generate(),
		Reference: s.reference("LEAD", params.Name),
		Name:      params.Name,
		Email:     params.Email,
		Company:   params.Company,
		Phone:     params.Phone,
		Source:    "contact_form",
		Status:    ticketdomain.LeadNew,
		TicketID:  &ticket.ID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}
		return tx.Create(&lead).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, &ticket, "New contact form enquiry",
		fmt.Sprintf("%s <%s>: %s", params.Name, params.Email, subject))
	return &ticketdomain.ContactFormResult{Ticket: ticket, Lead: lead}, nil
}

func (s *Service) Get(ctx context.Context, sess auth.Session, id snowflake.ID) (*ticketdomain.Ticket, error) {
	var row ticketdomain.Ticket
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ticketdomain.ErrTicketNotFound
		}
		return nil, err
	}
	if err := s.authorize(sess, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// authorize gates ticket reads and writes. Anonymous contact-form tickets
// are admin-only.
func (s *Service) authorize(sess auth.Session, row *ticketdomain.Ticket) error {
	if sess.IsAdmin() {
		return nil
	}
	if row.CustomerID == nil {
		return auth.ErrForbidden
	}
	if !sess.CanAccessCustomer(*row.CustomerID) {
		return auth.ErrForbidden
	}
	return nil
}

func (s *Service) List(ctx context.Context, sess auth.Session, req ticketdomain.ListTicketRequest) ([]ticketdomain.Ticket, error) {
	q := s.db.WithContext(ctx).Model(&ticketdomain.Ticket{}).Order("created_at desc")
	if sess.IsAdmin() {
		if req.CustomerID != 0 {
			q = q.Where("customer_id = ?", req.CustomerID)
		}
	} else {
		q = q.Where("customer_id = ?", sess.CustomerID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var rows []ticketdomain.Ticket
	err := req.Page.Scope(q).Find(&rows).Error
	return rows, err
}

// Update sets status, priority or assignee. There is no transition graph:
// any valid status may follow any other.
func (s *Service) Update(ctx context.Context, sess auth.Session, id snowflake.ID, params ticketdomain.UpdateTicketParams) (*ticketdomain.Ticket, error) {
	row, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if params.Status != "" {
		if !params.Status.Valid() {
			return nil, ticketdomain.ErrInvalidStatus
		}
		updates["status"] = params.Status
	}
	if params.Priority != "" {
		if !params.Priority.Valid() {
			return nil, ticketdomain.ErrInvalidPriority
		}
		updates["priority"] = params.Priority
	}
	if params.AssignedTo != nil {
		if err := sess.RequireAdmin(); err != nil {
			return nil, err
		}
		updates["assigned_to"] = *params.AssignedTo
	}

	err = s.db.WithContext(ctx).
		Model(&ticketdomain.Ticket{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	updated, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if params.Status != "" && params.Status != row.Status {
		s.notifyAdmins(ctx, updated, "Ticket status changed",
			fmt.Sprintf("Ticket %s moved to %s.", updated.Reference, updated.Status))
	}
	return updated, nil
}

func (s *Service) PostMessage(ctx context.Context, sess auth.Session, params ticketdomain.PostMessageParams) (*ticketdomain.Message, error) {
	if strings.TrimSpace(params.Body) == "" {
		return nil, ticketdomain.ErrEmptyMessage
	}
	if params.RelatedType == "ticket" {
		// Posting never alters the ticket's status, only the thread.
		if _, err := s.Get(ctx, sess, params.RelatedID); err != nil {
			return nil, err
		}
	}
	if params.IsInternal && !sess.IsAdmin() {
		return nil, auth.ErrForbidden
	}

	var authorPtr *snowflake.ID
	if sess.UserID != 0 {
		author := sess.UserID
		authorPtr = &author
	}
	msg := ticketdomain.Message{
		ID:          s.genID.Generate(),
		RelatedType: params.RelatedType,
		RelatedID:   params.RelatedID,
		AuthorID:    authorPtr,
		Body:        params.Body,
		IsInternal:  params.IsInternal,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Service) ListMessages(ctx context.Context, sess auth.Session, relatedType string, relatedID snowflake.ID) ([]ticketdomain.Message, error) {
	if relatedType == "ticket" {
		if _, err := s.Get(ctx, sess, relatedID); err != nil {
			return nil, err
		}
	}

	q := s.db.WithContext(ctx).
		Where("related_type = ? AND related_id = ?", relatedType, relatedID).
		// Snowflake ids break ties between messages created in the same
		// instant while preserving insertion order.
		Order("created_at asc, id asc")
	if !sess.IsAdmin() {
		q = q.Where("is_internal = ?", false)
	}

	var msgs []ticketdomain.Message
	err := q.Find(&msgs).Error
	return msgs, err
}

func (s *Service) notifyAdmins(ctx context.Context, row *ticketdomain.Ticket, title, message string) {
	adminIDs, err := s.customerRepo.ListAdminUserIDs(ctx, s.db)
	if err != nil {
		s.log.Warn("ticket notice: admin lookup failed", zap.Error(err))
		return
	}
	for _, adminID := range adminIDs {
		if err := s.notifySvc.Send(ctx, notificationdomain.SendParams{
			UserID:    adminID,
			Title:     title,
			Message:   message,
			Type:      notificationdomain.TypeInfo,
			Category:  "tickets",
			RelatedID: &row.ID,
			ActionURL: "/admin/tickets",
		}); err != nil {
			s.log.Warn("ticket notice failed",
				zap.String("ticket_id", row.ID.String()), zap.Error(err))
		}
	}
}
