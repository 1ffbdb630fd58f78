package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/catering/internal/observability/context"
	"go.uber.org/zap"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

const rateLimitedHeader = "X-Rate-Limited-Reason"

// GinMiddleware logs one notification.http.request entry per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := c.Request.Context()
		ctx = obscontext.WithRequestID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := requestFields(c, route, status, time.Since(start))

		var errorType, errorCode string
		if lastErr := c.Errors.Last(); lastErr != nil {
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}
		if reason := strings.TrimSpace(c.Writer.Header().Get(rateLimitedHeader)); reason != "" {
			fields = append(fields, zap.String("rate_limited_reason", reason))
			if errorType == "" {
				errorType = "rate_limited"
			}
		}

		// user_id is attached by FromContext once auth has stored it on the request.
		log := FromContext(c.Request.Context())
		logRequest(log, route, status, errorType, fields)
	}
}

func requestFields(c *gin.Context, route string, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int64("bytes_in", normalizeBytes(c.Request.ContentLength)),
		zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
	}
	if jobName := strings.TrimSpace(c.Param("name")); jobName != "" {
		fields = append(fields, zap.String("job", jobName))
	}
	if eventType := strings.TrimSpace(c.Query("type")); eventType != "" {
		fields = append(fields, zap.String("event_type", eventType))
	}
	if status == http.StatusUnauthorized {
		fields = append(fields, zap.String("authorization", MaskAuthorization(c.GetHeader("Authorization"))))
	}
	return fields
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetHeader("X-Request-ID"))
	}
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString("request_id"))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}

func logRequest(log *zap.Logger, route string, status int, errorType string, fields []zap.Field) {
	if log == nil {
		return
	}

	level := zap.InfoLevel
	if status >= http.StatusInternalServerError {
		level = zap.ErrorLevel
	}
	if status == http.StatusTooManyRequests && errorType == "rate_limited" {
		level = zap.DebugLevel
	}

	if isOpsRoute(route) {
		level = zap.DebugLevel
	}

	log.Log(level, "notification.http.request", fields...)
}

func isOpsRoute(route string) bool {
	switch strings.ToLower(strings.TrimSpace(route)) {
	case "/metrics", "/health":
		return true
	}
	return false
}

func normalizeBytes(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
