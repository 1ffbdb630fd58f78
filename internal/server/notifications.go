package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/catering/internal/notification/domain"
)

type markReadRequest struct {
	EventIDs []string `json:"event_ids"`
}

func (s *Server) ListNotifications(c *gin.Context) {
	unreadOnly, err := parseOptionalBool(c.Query("unread_only"))
	if err != nil {
		AbortWithError(c, newValidationError("unread_only", "invalid_unread_only", "invalid unread_only"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, domain.ErrInvalidLimit)
		return
	}
	offset, err := parseOptionalInt(c.Query("offset"))
	if err != nil {
		AbortWithError(c, domain.ErrInvalidOffset)
		return
	}

	req := domain.ListRequest{
		Caller: domain.Caller{
			UserID:  callerUserID(c),
			RoleIDs: callerRoleIDs(c),
		},
		Status: strings.TrimSpace(c.Query("status")),
		Type:   strings.TrimSpace(c.Query("type")),
	}
	if unreadOnly != nil {
		req.UnreadOnly = *unreadOnly
	}
	if limit != nil {
		req.Limit = *limit
	}
	if offset != nil {
		req.Offset = *offset
	}

	resp, err := s.notificationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) MarkNotificationsRead(c *gin.Context) {
	var body markReadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.notificationSvc.MarkRead(c.Request.Context(), domain.MarkReadRequest{
		UserID:   callerUserID(c),
		EventIDs: body.EventIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
