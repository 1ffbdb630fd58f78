package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: JobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestClassifyJobErrorType(t *testing.T) {
	assert.Equal(t, JobErrorTypeDB, ClassifyJobErrorType(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, JobErrorTypeBusinessRule, ClassifyJobErrorType(errors.New("boom")))
	assert.True(t, IsJobErrorRetryable(context.DeadlineExceeded))
	assert.False(t, IsJobErrorRetryable(errors.New("boom")))
}

func TestObserveRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewJobMetrics(registry, Config{ServiceName: "catering", Environment: "test"})

	m.ObserveRun("meal_entry_pending_approval", 5, 2, 2, 90*time.Second)
	m.ObserveRun("meal_entry_pending_approval", 0, 0, 0, 30*time.Second)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.changesSeen.WithLabelValues("meal_entry_pending_approval")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsInserted.WithLabelValues("meal_entry_pending_approval")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.windowWidth.WithLabelValues("meal_entry_pending_approval")))
}

func TestIncJobSkipped(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewJobMetrics(registry, Config{})

	m.IncJobSkipped("meal_entry_pending_approval", JobSkipReasonLockHeld)
	m.IncJobSkipped("meal_entry_pending_approval", JobSkipReasonLockHeld)

	got := testutil.ToFloat64(m.jobSkipped.WithLabelValues("meal_entry_pending_approval", JobSkipReasonLockHeld))
	assert.Equal(t, 2.0, got)
}
