package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSurfaceAndStatusClass(t *testing.T) {
	assert.Equal(t, SurfaceDelivery, Surface("/api/notifications"))
	assert.Equal(t, SurfaceAdmin, Surface("/admin/notification-jobs/:name/run"))
	assert.Equal(t, SurfaceOps, Surface("/health"))
	assert.Equal(t, SurfaceOps, Surface("/apiary"))

	assert.Equal(t, "2xx", StatusClass(http.StatusOK))
	assert.Equal(t, "4xx", StatusClass(http.StatusTooManyRequests))
	assert.Equal(t, "unknown", StatusClass(0))

	assert.Equal(t, "user-rate", RejectionReason(http.StatusTooManyRequests, " user-rate "))
	assert.Equal(t, "rate_limited", RejectionReason(http.StatusTooManyRequests, ""))
	assert.Equal(t, "forbidden", RejectionReason(http.StatusForbidden, ""))
	assert.Empty(t, RejectionReason(http.StatusOK, "user-rate"))
}

func TestGinMiddlewareCountsRejectionsBySurface(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewHTTPMetrics(Config{ServiceName: "catering"}, provider)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/notifications", func(c *gin.Context) {
		c.Header(rateLimitedHeader, "user-rate")
		c.AbortWithStatus(http.StatusTooManyRequests)
	})
	r.PUT("/admin/notification-settings", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusForbidden)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/notifications", nil),
		httptest.NewRequest(http.MethodGet, "/api/notifications", nil),
		httptest.NewRequest(http.MethodPut, "/admin/notification-settings", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	rejected := map[string]int64{}
	durations := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				if md.Name != "notification.http.rejected_total" {
					continue
				}
				for _, dp := range data.DataPoints {
					rejected[attrValue(dp.Attributes, "surface")+"/"+attrValue(dp.Attributes, "reason")] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					durations[attrValue(dp.Attributes, "surface")+"/"+attrValue(dp.Attributes, "status_class")] += dp.Count
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{"api/user-rate": 2, "admin/forbidden": 1}, rejected)
	assert.Equal(t, map[string]uint64{"api/4xx": 2, "admin/4xx": 1, "ops/2xx": 1}, durations)
}

func attrValue(set attribute.Set, key attribute.Key) string {
	v, _ := set.Value(key)
	return v.AsString()
}
