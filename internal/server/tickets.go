package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ticketdomain "github.com/tomxwilliam/studioportal/internal/ticket/domain"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

type createTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	CustomerID  string `json:"customer_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
}

func (s *Server) CreateTicket(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	params := ticketdomain.CreateTicketParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    ticketdomain.Priority(req.Priority),
	}
	if req.CustomerID != "" {
		id, err := snowflake.ParseString(req.CustomerID)
		if err != nil {
			AbortWithError(c, newValidationError("customer_id is not a valid id"))
			return
		}
		params.CustomerID = &id
	}
	if req.ProjectID != "" {
		id, err := snowflake.ParseString(req.ProjectID)
		if err != nil {
			AbortWithError(c, newValidationError("project_id is not a valid id"))
			return
		}
		params.ProjectID = &id
	}

	row, err := s.ticketSvc.Create(c.Request.Context(), sess, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

type contactFormRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SubmitContactForm is deliberately unauthenticated: it is the public
// intake from the marketing site.
func (s *Server) SubmitContactForm(c *gin.Context) {
	var req contactFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.ticketSvc.SubmitContactForm(c.Request.Context(), ticketdomain.ContactFormParams{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"reference": res.Ticket.Reference})
}

func (s *Server) ListTickets(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.ticketSvc.List(c.Request.Context(), sess, ticketdomain.ListTicketRequest{
		Status: ticketdomain.TicketStatus(query.Status),
		Page:   query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

func (s *Server) GetTicket(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	row, err := s.ticketSvc.Get(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

type updateTicketRequest struct {
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

func (s *Server) UpdateTicket(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	params := ticketdomain.UpdateTicketParams{
		Status:   ticketdomain.TicketStatus(req.Status),
		Priority: ticketdomain.Priority(req.Priority),
	}
	if req.AssignedTo != "" {
		assignee, err := snowflake.ParseString(req.AssignedTo)
		if err != nil {
			AbortWithError(c, newValidationError("assigned_to is not a valid id"))
			return
		}
		params.AssignedTo = &assignee
	}

	row, err := s.ticketSvc.Update(c.Request.Context(), sess, id, params)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

type postMessageRequest struct {
	Body       string `json:"body"`
	IsInternal bool   `json:"is_internal,omitempty"`
}

func (s *Server) PostTicketMessage(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	msg, err := s.ticketSvc.PostMessage(c.Request.Context(), sess, ticketdomain.PostMessageParams{
		RelatedType: "ticket",
		RelatedID:   id,
		Body:        req.Body,
		IsInternal:  req.IsInternal,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, msg)
}

func (s *Server) ListTicketMessages(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	msgs, err := s.ticketSvc.ListMessages(c.Request.Context(), sess, "ticket", id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, msgs, nil)
}
