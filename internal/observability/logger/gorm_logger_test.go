package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/catering/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(cfg GormLoggerConfig) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(cfg, zap.New(core)), logs
}

func TestGormLoggerUsesJobThresholdInsideRuns(t *testing.T) {
	l, logs := newObservedGormLogger(GormLoggerConfig{
		Level:            gormlogger.Warn,
		SlowThreshold:    10 * time.Millisecond,
		JobSlowThreshold: time.Hour,
	})
	query := func() (string, int64) {
		return `SELECT id, client_id FROM meal_entries WHERE updated_at > $1`, 4
	}
	begin := time.Now().Add(-50 * time.Millisecond)

	l.Trace(context.Background(), begin, query, nil)
	jobCtx := obscontext.WithJobRun(context.Background(), "meal_entry_pending_approval", "42")
	l.Trace(jobCtx, begin, query, nil)

	slow := logs.FilterMessage("db.query.slow").All()
	require.Len(t, slow, 1, "the same query inside a run stays under the job threshold")
	fields := slow[0].ContextMap()
	assert.Equal(t, "SELECT", fields["operation"])
	assert.Equal(t, "meal_entries", fields["table"])
	assert.Equal(t, int64(10), fields["threshold_ms"])
	assert.Equal(t, int64(4), fields["rows_affected"])
}

func TestGormLoggerErrorsCarryJobFields(t *testing.T) {
	l, logs := newObservedGormLogger(DefaultGormLoggerConfig())
	ctx := obscontext.WithJobRun(context.Background(), "notification_outbox", "7")

	l.Trace(ctx, time.Now(), func() (string, int64) {
		return `UPDATE "job_cursors" SET last_checked_at = $1`, 0
	}, errors.New("deadlock detected"))
	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gormlogger.ErrRecordNotFound)

	failed := logs.FilterMessage("db.query.failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	fields := failed[0].ContextMap()
	assert.Equal(t, "UPDATE", fields["operation"])
	assert.Equal(t, "job_cursors", fields["table"])
	assert.Equal(t, "notification_outbox", fields["job"])
	assert.Equal(t, "7", fields["run_id"])
}

func TestGormLoggerSilentAndParamsFilter(t *testing.T) {
	l, logs := newObservedGormLogger(DefaultGormLoggerConfig())
	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now().Add(-time.Hour), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	assert.Zero(t, logs.Len())

	sql, params := l.ParamsFilter(context.Background(), "SELECT * FROM notification_reads WHERE user_id = ?", "user-1")
	assert.Equal(t, "SELECT * FROM notification_reads WHERE user_id = ?", sql)
	assert.Nil(t, params)
}

func TestDescribeSQL(t *testing.T) {
	cases := map[string][2]string{
		`INSERT INTO "notification_events" (id) VALUES ($1)`:    {"INSERT", "notification_events"},
		`SELECT COUNT(1) FROM notification_events WHERE id = ?`: {"SELECT", "notification_events"},
		`UPDATE notification_outbox SET status = ?`:             {"UPDATE", "notification_outbox"},
		`DELETE FROM notification_reads`:                        {"DELETE", "notification_reads"},
		`PRAGMA busy_timeout(5000)`:                             {"UNKNOWN", "unknown"},
	}
	for sql, want := range cases {
		op, table := describeSQL(sql)
		assert.Equal(t, want[0], op, sql)
		assert.Equal(t, want[1], table, sql)
	}
}
