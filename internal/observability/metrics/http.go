package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	SurfaceDelivery = "api"
	SurfaceAdmin    = "admin"
	SurfaceOps      = "ops"

	rateLimitedHeader = "X-Rate-Limited-Reason"
)

// HTTPMetrics records notification API traffic split by surface.
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	inFlight        metric.Int64UpDownCounter
	rejected        metric.Int64Counter
}

// NewHTTPMetrics creates HTTP metrics instruments.
func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "catering"
	}
	meter := provider.Meter(name + "/http")

	requestDuration, err := meter.Float64Histogram("notification.http.duration_ms",
		metric.WithDescription("Notification API latency by route and status class."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("notification.http.in_flight",
		metric.WithDescription("Notification API requests being served, by surface."),
	)
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("notification.http.rejected_total",
		metric.WithDescription("Notification API requests refused before reaching a handler."),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestDuration: requestDuration,
		inFlight:        inFlight,
		rejected:        rejected,
	}, nil
}

// GinMiddleware records latency, concurrency and rejections per request.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		endpoint := normalizeEndpoint(c.FullPath())
		surface := Surface(endpoint)
		ctx := c.Request.Context()
		surfaceAttr := metric.WithAttributes(FilterAttributes(attribute.String("surface", surface))...)

		m.inFlight.Add(ctx, 1, surfaceAttr)
		start := time.Now()
		c.Next()
		m.inFlight.Add(ctx, -1, surfaceAttr)

		status := c.Writer.Status()
		m.requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(FilterAttributes(
				attribute.String("endpoint", endpoint),
				attribute.String("surface", surface),
				attribute.String("status_class", StatusClass(status)),
			)...))

		if reason := RejectionReason(status, c.Writer.Header().Get(rateLimitedHeader)); reason != "" {
			m.rejected.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
				attribute.String("surface", surface),
				attribute.String("reason", reason),
			)...))
		}
	}
}

// Surface maps a route template onto the delivery, admin or ops surface.
func Surface(endpoint string) string {
	switch {
	case endpoint == "/api" || strings.HasPrefix(endpoint, "/api/"):
		return SurfaceDelivery
	case endpoint == "/admin" || strings.HasPrefix(endpoint, "/admin/"):
		return SurfaceAdmin
	default:
		return SurfaceOps
	}
}

// StatusClass buckets a status code as 2xx, 3xx, 4xx or 5xx.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RejectionReason names why a request was refused, or returns "" when it was not.
func RejectionReason(status int, rateLimited string) string {
	switch status {
	case http.StatusTooManyRequests:
		if rateLimited = strings.TrimSpace(rateLimited); rateLimited != "" {
			return rateLimited
		}
		return "rate_limited"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return "invalid_request"
	default:
		return ""
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "unknown"
	}
	return endpoint
}
