package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationHTTP = "catering/http"
	instrumentationJob  = "catering/notification"

	spanPrefixJob    = "notification.job "
	spanPrefixOutbox = "notification.outbox"
)

// StartJobSpan opens an internal span for one aggregation run.
func StartJobSpan(ctx context.Context, jobName, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationJob).Start(ctx, spanPrefixJob+jobName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("notification.job", jobName),
			attribute.String("notification.event_type", eventType),
		),
	)
}

// StartOutboxSpan opens a producer span for one outbox dispatch batch.
func StartOutboxSpan(ctx context.Context, batch int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationJob).Start(ctx, spanPrefixOutbox+" dispatch",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.Int("notification.outbox.batch", batch)),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "job failed")
	}
	span.End()
}
