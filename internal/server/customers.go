package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/tomxwilliam/studioportal/internal/auth"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
)

type createCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	row, err := s.customerSvc.CreateCustomer(c.Request.Context(), sess, customerdomain.CreateCustomerParams{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, row)
}

type createUserRequest struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

// CreateUser issues the portal login and its API token. The token appears in
// this response and nowhere else.
func (s *Server) CreateUser(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var customerID *snowflake.ID
	if req.CustomerID != "" {
		id, err := snowflake.ParseString(req.CustomerID)
		if err != nil {
			AbortWithError(c, newValidationError("customer_id is not a valid id"))
			return
		}
		customerID = &id
	}

	created, err := s.customerSvc.CreateUser(c.Request.Context(), sess, customerdomain.CreateUserParams{
		CustomerID: customerID,
		Email:      req.Email,
		Password:   req.Password,
		Role:       auth.Role(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, created)
}
