package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

func (s *Server) ListInvoices(c *gin.Context) {
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

	rows, err := s.invoiceSvc.List(c.Request.Context(), sess, invoicedomain.ListInvoiceRequest{
		Status: invoicedomain.InvoiceStatus(query.Status),
		Page:   query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

func (s *Server) GetInvoice(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, inv)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	inv, err := s.invoiceSvc.MarkPaid(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, inv)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	inv, err := s.invoiceSvc.Cancel(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, inv)
}

// RunBillingSweep lets an external timer trigger the sweep over HTTP.
// Admin-only; the response carries the aggregate counts.
func (s *Server) RunBillingSweep(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := sess.RequireAdmin(); err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.sweeper.RunBillingSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, summary)
}
