package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/catering/internal/authorization"
)

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := callerUserID(c)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		subject := authorization.Subject{
			UserID:  userID,
			RoleIDs: callerRoleIDs(c),
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), subject, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
