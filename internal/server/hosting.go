package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/tomxwilliam/studioportal/internal/auth"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

func (s *Server) ListHostingPackages(c *gin.Context) {
	pkgs, err := s.hostingSvc.ListPackages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, pkgs, nil)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
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

	subs, err := s.hostingSvc.List(c.Request.Context(), sess, hostingdomain.ListSubscriptionRequest{
		Status: hostingdomain.SubscriptionStatus(query.Status),
		Page:   query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, subs, nil)
}

func (s *Server) GetSubscription(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	sub, err := s.hostingSvc.Get(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, sub)
}

func (s *Server) GetSubscriptionCredentials(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	creds, err := s.hostingSvc.Credentials(c.Request.Context(), sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, creds)
}

// Transition handlers. Authorization lives in the service so the HTTP layer
// cannot accidentally open a bypass.

func (s *Server) ProvisionSubscription(c *gin.Context) {
	s.transition(c, func(sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
		return s.hostingSvc.Provision(c.Request.Context(), sess, id)
	})
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) SuspendSubscription(c *gin.Context) {
	var req suspendRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "administrative action"
	}
	s.transition(c, func(sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
		return s.hostingSvc.Suspend(c.Request.Context(), sess, id, req.Reason)
	})
}

func (s *Server) UnsuspendSubscription(c *gin.Context) {
	s.transition(c, func(sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
		return s.hostingSvc.Unsuspend(c.Request.Context(), sess, id)
	})
}

func (s *Server) TerminateSubscription(c *gin.Context) {
	s.transition(c, func(sess auth.Session, id snowflake.ID) (*hostingdomain.HostingSubscription, error) {
		return s.hostingSvc.Terminate(c.Request.Context(), sess, id)
	})
}

func (s *Server) transition(c *gin.Context, op func(auth.Session, snowflake.ID) (*hostingdomain.HostingSubscription, error)) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	sub, err := op(sess, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, sub)
}
