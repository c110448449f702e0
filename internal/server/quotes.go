package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	quotedomain "github.com/tomxwilliam/studioportal/internal/quote/domain"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

type createQuoteRequest struct {
	CustomerID  string `json:"customer_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ValidDays   int    `json:"valid_days"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id is not a valid id"))
		return
	}

	row, err := s.quoteSvc.Create(c.Request.Context(), sess, quotedomain.CreateQuoteParams{
		CustomerID:  customerID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ValidDays:   req.ValidDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

func (s *Server) ListQuotes(c *gin.Context) {
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

	rows, err := s.quoteSvc.List(c.Request.Context(), sess, quotedomain.ListQuoteRequest{
		Status: quotedomain.QuoteStatus(query.Status),
		Page:   query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

func (s *Server) quoteAction(c *gin.Context, op func(sess authSession, id snowflake.ID) (*quotedomain.Quote, error)) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	row, err := op(sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

func (s *Server) AcceptQuote(c *gin.Context) {
	s.quoteAction(c, func(sess authSession, id snowflake.ID) (*quotedomain.Quote, error) {
		return s.quoteSvc.Accept(c.Request.Context(), sess, id)
	})
}

func (s *Server) RejectQuote(c *gin.Context) {
	s.quoteAction(c, func(sess authSession, id snowflake.ID) (*quotedomain.Quote, error) {
		return s.quoteSvc.Reject(c.Request.Context(), sess, id)
	})
}

func (s *Server) GetQuote(c *gin.Context) {
	s.quoteAction(c, func(sess authSession, id snowflake.ID) (*quotedomain.Quote, error) {
		return s.quoteSvc.Get(c.Request.Context(), sess, id)
	})
}

// ConvertQuote marks an accepted quote converted once its work has been
// invoiced through checkout.
func (s *Server) ConvertQuote(c *gin.Context) {
	s.quoteAction(c, func(sess authSession, id snowflake.ID) (*quotedomain.Quote, error) {
		return s.quoteSvc.MarkConverted(c.Request.Context(), sess, id)
	})
}
