package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "42")
	ctx = WithJobRun(ctx, "meal_entry_pending_approval", "run-7")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "42", UserIDFromContext(ctx))
	job, run := JobRunFromContext(ctx)
	assert.Equal(t, "meal_entry_pending_approval", job)
	assert.Equal(t, "run-7", run)
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, UserIDFromContext(nil))
}
