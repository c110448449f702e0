package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/tomxwilliam/studioportal/internal/checkout/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
)

type hostingCheckoutRequest struct {
	PackageID    string `json:"package_id"`
	BillingCycle string `json:"billing_cycle"`
	Domain       string `json:"domain"`
}

func (s *Server) CheckoutHosting(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req hostingCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	packageID, err := snowflake.ParseString(req.PackageID)
	if err != nil {
		AbortWithError(c, newValidationError("package_id is not a valid id"))
		return
	}

	resp, err := s.checkoutSvc.CheckoutHosting(c.Request.Context(), sess, checkoutdomain.HostingCheckoutRequest{
		PackageID:    packageID,
		BillingCycle: hostingdomain.BillingCycle(req.BillingCycle),
		Domain:       req.Domain,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}
