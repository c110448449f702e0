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
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/clock"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	customerrepo "github.com/tomxwilliam/studioportal/internal/customer/repository"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	notificationservice "github.com/tomxwilliam/studioportal/internal/notification/service"
	ticketdomain "github.com/tomxwilliam/studioportal/internal/ticket/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc        *Service
	db         *gorm.DB
	node       *snowflake.Node
	customerID snowflake.ID
	userID     snowflake.ID
	adminID    snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ticketdomain.Ticket{},
		&ticketdomain.Message{},
		&ticketdomain.Lead{},
		&notificationdomain.Notification{},
		&customerdomain.Customer{},
		&customerdomain.User{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	fixed := clock.Fixed{T: time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC)}
	log := zap.NewNop()

	notifySvc := notificationservice.NewService(notificationservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Redis: rdb,
	})

	svc := NewService(ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
		NotifySvc:    notifySvc,
		CustomerRepo: customerrepo.Provide(),
	}).(*Service)

	h := &harness{svc: svc, db: db, node: node}

	customer := customerdomain.Customer{ID: node.Generate(), Name: "Acme Ltd", Email: "billing@acme.test"}
	require.NoError(t, db.Create(&customer).Error)
	h.customerID = customer.ID

	custID := customer.ID
	user := customerdomain.User{ID: node.Generate(), CustomerID: &custID, Email: "owner@acme.test", PasswordHash: "x", Role: auth.RoleCustomer}
	require.NoError(t, db.Create(&user).Error)
	h.userID = user.ID

	admin := customerdomain.User{ID: node.Generate(), Email: "admin@studio.test", PasswordHash: "x", Role: auth.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)
	h.adminID = admin.ID

	return h
}

func (h *harness) customerSession() auth.Session {
	return auth.Session{UserID: h.userID, CustomerID: h.customerID, Role: auth.RoleCustomer}
}

func (h *harness) adminSession() auth.Session {
	return auth.Session{UserID: h.adminID, Role: auth.RoleAdmin}
}

func TestContactFormCreatesTicketAndLeadPair(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.SubmitContactForm(context.Background(), ticketdomain.ContactFormParams{
		Name:    "Jo Bloggs",
		Email:   "jo@example.test",
		Company: "Bloggs Bakery",
		Subject: "New website",
		Message: "We need a site for the bakery.",
	})
	require.NoError(t, err)

	require.Nil(t, res.Ticket.CustomerID)
	require.Equal(t, "jo@example.test", res.Ticket.ContactEmail)
	require.Equal(t, ticketdomain.StatusOpen, res.Ticket.Status)

	require.Equal(t, res.Ticket.ContactEmail, res.Lead.Email)
	require.NotNil(t, res.Lead.TicketID)
	require.Equal(t, res.Ticket.ID, *res.Lead.TicketID)
	require.Equal(t, ticketdomain.LeadNew, res.Lead.Status)

	// Admins get the intake notice.
	var count int64
	require.NoError(t, h.db.Model(&notificationdomain.Notification{}).Where("user_id = ?", h.adminID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestContactFormRequiresNameEmailAndMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SubmitContactForm(ctx, ticketdomain.ContactFormParams{Email: "jo@example.test", Message: "hi"})
	require.Error(t, err)

	_, err = h.svc.SubmitContactForm(ctx, ticketdomain.ContactFormParams{Name: "Jo", Email: "jo@example.test"})
	require.ErrorIs(t, err, ticketdomain.ErrEmptyMessage)

	var tickets, leads int64
	require.NoError(t, h.db.Model(&ticketdomain.Ticket{}).Count(&tickets).Error)
	require.NoError(t, h.db.Model(&ticketdomain.Lead{}).Count(&leads).Error)
	require.Zero(t, tickets)
	require.Zero(t, leads)
}

func TestStatusTransitionsAreFreeForm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	row, err := h.svc.Create(ctx, h.customerSession(), ticketdomain.CreateTicketParams{
		Title:    "Site down",
		Priority: ticketdomain.PriorityUrgent,
	})
	require.NoError(t, err)
	require.NotNil(t, row.CustomerID)
	require.Equal(t, h.customerID, *row.CustomerID)

	// closed straight from open, then back again: no transition graph.
	for _, status := range []ticketdomain.TicketStatus{
		ticketdomain.StatusClosed,
		ticketdomain.StatusOpen,
		ticketdomain.StatusResolved,
		ticketdomain.StatusInProgress,
	} {
		updated, err := h.svc.Update(ctx, h.adminSession(), row.ID, ticketdomain.UpdateTicketParams{Status: status})
		require.NoError(t, err)
		require.Equal(t, status, updated.Status)
	}

	_, err = h.svc.Update(ctx, h.adminSession(), row.ID, ticketdomain.UpdateTicketParams{Status: "archived"})
	require.ErrorIs(t, err, ticketdomain.ErrInvalidStatus)
}

func TestMessagesOrderedAndStatusUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	row, err := h.svc.Create(ctx, h.customerSession(), ticketdomain.CreateTicketParams{Title: "Billing question"})
	require.NoError(t, err)

	for _, body := range []string{"first", "second", "third"} {
		_, err := h.svc.PostMessage(ctx, h.customerSession(), ticketdomain.PostMessageParams{
			RelatedType: "ticket", RelatedID: row.ID, Body: body,
		})
		require.NoError(t, err)
	}
	_, err = h.svc.PostMessage(ctx, h.adminSession(), ticketdomain.PostMessageParams{
		RelatedType: "ticket", RelatedID: row.ID, Body: "internal note", IsInternal: true,
	})
	require.NoError(t, err)

	msgs, err := h.svc.ListMessages(ctx, h.customerSession(), "ticket", row.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Body)
	require.Equal(t, "third", msgs[2].Body)

	adminMsgs, err := h.svc.ListMessages(ctx, h.adminSession(), "ticket", row.ID)
	require.NoError(t, err)
	require.Len(t, adminMsgs, 4)

	got, err := h.svc.Get(ctx, h.customerSession(), row.ID)
	require.NoError(t, err)
	require.Equal(t, ticketdomain.StatusOpen, got.Status)
}

func TestAnonymousTicketsAreAdminOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.SubmitContactForm(ctx, ticketdomain.ContactFormParams{
		Name: "Jo", Email: "jo@example.test", Message: "hello",
	})
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, h.customerSession(), res.Ticket.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = h.svc.Get(ctx, h.adminSession(), res.Ticket.ID)
	require.NoError(t, err)
}
