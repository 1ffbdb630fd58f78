package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/catering/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProviderDisabledIsNoop(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, provider)

	ctx, span := StartJobSpan(context.Background(), "meal_entry_pending_approval", "meal_entry.pending_approval")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
}

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/notifications"),
		attribute.String("auth.token", "secret"),
		attribute.String("user.email", "a@b.c"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.1, clampRatio(0))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.5, clampRatio(0.5))
}

func TestGinMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	SetPropagator()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsNotificationRequests(t *testing.T) {
	recorder := useRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/admin/notification-jobs/:name/run", func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), "admin-1"))
		c.Header("X-Rate-Limited-Reason", "user-rate")
		c.Status(http.StatusTooManyRequests)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/notification-jobs/meal_entry_pending_approval/run?type=meal_entry.pending_approval", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /admin/notification-jobs/:name/run", spans[0].Name())
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "admin-1", attrs["enduser.id"].AsString())
	assert.Equal(t, "meal_entry_pending_approval", attrs["notification.job"].AsString())
	assert.Equal(t, "meal_entry.pending_approval", attrs["notification.event_type"].AsString())
	assert.Equal(t, "user-rate", attrs["ratelimit.reason"].AsString())
	assert.Equal(t, int64(http.StatusTooManyRequests), attrs["http.status_code"].AsInt64())
}

func TestMessageHeadersCarryTraceAndJobRun(t *testing.T) {
	useRecorder(t)
	ctx := obscontext.WithJobRun(context.Background(), "notification_outbox", "99")
	ctx, span := StartOutboxSpan(ctx, 50)
	defer span.End()

	headers := MessageHeaders{}
	InjectMessage(ctx, headers)
	assert.NotEmpty(t, headers.Get("traceparent"))
	assert.Equal(t, "notification_outbox", headers[HeaderJob])
	assert.Equal(t, "99", headers[HeaderRunID])

	restored := ExtractMessage(context.Background(), MessageHeaders{
		"traceparent": []byte(headers.Get("traceparent")),
		HeaderJob:     "notification_outbox",
		HeaderRunID:   "99",
	})
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(restored).TraceID())
	job, run := obscontext.JobRunFromContext(restored)
	assert.Equal(t, "notification_outbox", job)
	assert.Equal(t, "99", run)

	InjectMessage(ctx, nil)
}

func TestJobSamplerKeepsNotificationRuns(t *testing.T) {
	sampler := newSampler(Config{SamplingRatio: 0.000001, AlwaysSampleJobs: true})
	traceID, err := trace.TraceIDFromHex("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	sample := func(name string) sdktrace.SamplingDecision {
		return sampler.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       traceID,
			Name:          name,
		}).Decision
	}
	assert.Equal(t, sdktrace.RecordAndSample, sample("notification.job meal_entry_pending_approval"))
	assert.Equal(t, sdktrace.RecordAndSample, sample("notification.outbox dispatch"))
	assert.Equal(t, sdktrace.Drop, sample("HTTP GET /api/notifications"))

	plain := newSampler(Config{SamplingRatio: 0.000001})
	assert.Equal(t, sdktrace.Drop, plain.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       traceID,
		Name:          "notification.job meal_entry_pending_approval",
	}).Decision)
}
