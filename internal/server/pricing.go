package server

import (
	"github.com/gin-gonic/gin"
)

// RefreshPrices runs the TLD price sync against the registrar sheet.
// Admin-only: it mutates every non-overridden row.
func (s *Server) RefreshPrices(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := sess.RequireAdmin(); err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.pricingSvc.RefreshPrices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, summary)
}

func (s *Server) ListTLDPrices(c *gin.Context) {
	rows, err := s.pricingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

type priceOverrideRequest struct {
	RegisterPrice int64 `json:"register_price"`
	RenewPrice    int64 `json:"renew_price"`
}

func (s *Server) SetPriceOverride(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := sess.RequireAdmin(); err != nil {
		AbortWithError(c, err)
		return
	}

	var req priceOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.RegisterPrice <= 0 || req.RenewPrice <= 0 {
		AbortWithError(c, newValidationError("override prices must be positive"))
		return
	}

	row, err := s.pricingSvc.SetOverride(c.Request.Context(), c.Param("tld"), req.RegisterPrice, req.RenewPrice)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

func (s *Server) ClearPriceOverride(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := sess.RequireAdmin(); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.pricingSvc.ClearOverride(c.Request.Context(), c.Param("tld")); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"cleared": true})
}
