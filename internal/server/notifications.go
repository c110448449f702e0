package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	"github.com/tomxwilliam/studioportal/pkg/db/pagination"
)

func (s *Server) ListNotifications(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		UnreadOnly bool `form:"unread_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rows, err := s.notifySvc.List(c.Request.Context(), sess, notificationdomain.ListRequest{
		UnreadOnly: query.UnreadOnly,
		Page:       query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, rows, nil)
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	if err := s.notifySvc.MarkRead(c.Request.Context(), sess, id); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"read": true})
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	sess, ok := sessionOrAbort(c)
	if !ok {
		return
	}

	if err := s.notifySvc.MarkAllRead(c.Request.Context(), sess); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"read": true})
}
