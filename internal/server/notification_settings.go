package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/catering/internal/notification/domain"
)

type upsertSettingRequest struct {
	RoleID       int64  `json:"role_id"`
	EventType    string `json:"event_type"`
	InappEnabled *bool  `json:"inapp_enabled"`
	EmailEnabled *bool  `json:"email_enabled"`
}

func (s *Server) ListNotificationSettings(c *gin.Context) {
	settings, err := s.notificationSvc.ListSettings(c.Request.Context(), domain.ListSettingsRequest{
		EventType: c.Query("event_type"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpsertNotificationSetting requires both flags so a partial body cannot
// silently disable a channel.
func (s *Server) UpsertNotificationSetting(c *gin.Context) {
	var body upsertSettingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if body.InappEnabled == nil {
		AbortWithError(c, newValidationError("inapp_enabled", "required", "inapp_enabled is required"))
		return
	}
	if body.EmailEnabled == nil {
		AbortWithError(c, newValidationError("email_enabled", "required", "email_enabled is required"))
		return
	}

	setting, err := s.notificationSvc.UpsertSetting(c.Request.Context(), domain.UpsertSettingRequest{
		ActorID:      callerUserID(c),
		RoleID:       body.RoleID,
		EventType:    body.EventType,
		InappEnabled: *body.InappEnabled,
		EmailEnabled: *body.EmailEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, setting)
}
