package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/notification/notificationtest"
	"github.com/smallbiznis/catering/internal/notification/repository"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTracker(t *testing.T, clk clock.Clock) *Tracker {
	t.Helper()
	metrics := obsmetrics.NewJobMetrics(prometheus.NewRegistry(), obsmetrics.Config{ServiceName: "catering", Environment: "test"})
	return New(repository.Provide(), clk, metrics)
}

func TestBeginCreatesCursorWithLookback(t *testing.T) {
	ctx := context.Background()
	db := notificationtest.Open(t)
	now := time.Date(2025, 1, 1, 10, 0, 0, 123456789, time.UTC)
	tracker := newTracker(t, clock.NewFakeClock(now))

	err := db.Transaction(func(tx *gorm.DB) error {
		window, err := tracker.Begin(ctx, tx, "job", 15*time.Minute)
		require.NoError(t, err)

		truncated := now.Truncate(time.Microsecond)
		assert.True(t, window.Upper.Equal(truncated))
		assert.True(t, window.Lower.Equal(truncated.Add(-15*time.Minute)))
		assert.Equal(t, 15*time.Minute, window.Width())
		return tracker.Commit(ctx, tx, "job", window.Upper)
	})
	require.NoError(t, err)
}

func TestBeginAfterCommitStartsAtPreviousUpper(t *testing.T) {
	ctx := context.Background()
	db := notificationtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	tracker := newTracker(t, clk)

	var first time.Time
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		window, err := tracker.Begin(ctx, tx, "job", 0)
		if err != nil {
			return err
		}
		first = window.Upper
		return tracker.Commit(ctx, tx, "job", window.Upper)
	}))

	clk.Advance(5 * time.Minute)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		window, err := tracker.Begin(ctx, tx, "job", 0)
		require.NoError(t, err)
		assert.True(t, window.Lower.Equal(first))
		assert.Equal(t, 5*time.Minute, window.Width())
		return nil
	}))
}

func TestWindowEmptyWhenClockDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	db := notificationtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	tracker := newTracker(t, clk)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		window, err := tracker.Begin(ctx, tx, "job", time.Minute)
		if err != nil {
			return err
		}
		return tracker.Commit(ctx, tx, "job", window.Upper)
	}))

	clk.Advance(-time.Minute)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		window, err := tracker.Begin(ctx, tx, "job", time.Minute)
		require.NoError(t, err)
		assert.True(t, window.Empty())
		assert.Error(t, tracker.Commit(ctx, tx, "job", window.Upper))
		return nil
	}))
}
