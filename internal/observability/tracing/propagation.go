package tracing

import (
	"context"
	"fmt"

	obscontext "github.com/smallbiznis/catering/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderJob   = "x-notification-job"
	HeaderRunID = "x-notification-run-id"
)

// SetPropagator installs W3C tracecontext and baggage propagation.
func SetPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// MessageHeaders adapts broker message headers (amqp.Table converts
// directly) to a propagation carrier.
type MessageHeaders map[string]any

func (h MessageHeaders) Get(key string) string {
	switch v := h[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (h MessageHeaders) Set(key, value string) {
	h[key] = value
}

func (h MessageHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// InjectMessage stamps headers with the trace context and the job run that
// produced the message, so consumers can join email sends to the run.
func InjectMessage(ctx context.Context, headers MessageHeaders) {
	if headers == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, headers)
	if jobName, runID := obscontext.JobRunFromContext(ctx); jobName != "" {
		headers[HeaderJob] = jobName
		if runID != "" {
			headers[HeaderRunID] = runID
		}
	}
}

// ExtractMessage restores the trace context and job run carried by headers.
func ExtractMessage(ctx context.Context, headers MessageHeaders) context.Context {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headers)
	if jobName := headers.Get(HeaderJob); jobName != "" {
		ctx = obscontext.WithJobRun(ctx, jobName, headers.Get(HeaderRunID))
	}
	return ctx
}

var _ propagation.TextMapCarrier = MessageHeaders(nil)
