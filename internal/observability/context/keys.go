package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	userIDKey    contextKey = "observability_user_id"
	jobNameKey   contextKey = "observability_job_name"
	runIDKey     contextKey = "observability_run_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey).(string)
	return value
}

// WithJobRun tags ctx with the aggregation job being executed.
func WithJobRun(ctx context.Context, jobName, runID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if jobName != "" {
		ctx = context.WithValue(ctx, jobNameKey, jobName)
	}
	if runID != "" {
		ctx = context.WithValue(ctx, runIDKey, runID)
	}
	return ctx
}

func JobRunFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	jobName, _ := ctx.Value(jobNameKey).(string)
	runID, _ := ctx.Value(runIDKey).(string)
	return jobName, runID
}
