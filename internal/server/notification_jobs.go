package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunNotificationJob runs one aggregation synchronously for an operator.
func (s *Server) RunNotificationJob(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))

	result, err := s.notificationSvc.RunAggregation(c.Request.Context(), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("notification.job.triggered",
		zap.String("job", result.Job),
		zap.String("actor_id", callerUserID(c)),
		zap.Int("inserted", result.Inserted),
	)
	c.JSON(http.StatusOK, result)
}
