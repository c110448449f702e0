package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	domainsdomain "github.com/tomxwilliam/studioportal/internal/domains/domain"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

type domainQuoteRequest struct {
	Domain    string `json:"domain"`
	Years     int    `json:"years"`
	IDProtect bool   `json:"id_protect"`
}

func (s *Server) QuoteDomain(c *gin.Context) {
	var req domainQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.domainsSvc.Quote(c.Request.Context(), domainsdomain.QuoteRequest{
		Domain:    req.Domain,
		Years:     req.Years,
		IDProtect: req.IDProtect,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

type registerDomainRequest struct {
	Domain     string            `json:"domain"`
	Years      int               `json:"years"`
	IDProtect  bool              `json:"id_protect"`
	AutoRenew  bool              `json:"auto_renew"`
	CustomerID string            `json:"customer_id,omitempty"`
	Contact    registrar.Contact `json:"contact"`
}

func (s *Server) RegisterDomain(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req registerDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var customerID snowflake.ID
	if req.CustomerID != "" {
		id, err := snowflake.ParseString(req.CustomerID)
		if err != nil {
			AbortWithError(c, newValidationError("customer_id is not a valid id"))
			return
		}
		customerID = id
	}

	resp, err := s.domainsSvc.Register(c.Request.Context(), sess, domainsdomain.RegisterDomainRequest{
		CustomerID: customerID,
		Domain:     req.Domain,
		Years:      req.Years,
		IDProtect:  req.IDProtect,
		AutoRenew:  req.AutoRenew,
		Contact:    req.Contact,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

func (s *Server) ListDomains(c *gin.Context) {
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

	rows, err := s.domainsSvc.List(c.Request.Context(), sess, domainsdomain.ListDomainRequest{
		Status: domainsdomain.DomainStatus(query.Status),
		Page:   query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

func (s *Server) GetDomain(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	row, err := s.domainsSvc.Get(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

func (s *Server) ActivateDomain(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	row, err := s.domainsSvc.Activate(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}
