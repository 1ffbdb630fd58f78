// Package watermark keeps the per-job "last checked" cursor that bounds each
// aggregation window.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"gorm.io/gorm"
)

var ErrCursorMissing = errors.New("job cursor missing after ensure")

type Tracker struct {
	repo    domain.Repository
	clock   clock.Clock
	metrics *obsmetrics.JobMetrics
}

func New(repo domain.Repository, clk clock.Clock, metrics *obsmetrics.JobMetrics) *Tracker {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Tracker{repo: repo, clock: clk, metrics: metrics}
}

// Now is the tracker clock truncated to the precision the cursor column stores.
func (t *Tracker) Now() time.Time {
	return t.clock.Now().UTC().Truncate(time.Microsecond)
}

// Begin creates the cursor on first use, locks it for the rest of tx and
// returns the window (last_checked_at, now]. now is read after the lock is
// held, so a runner that waited behind another starts at its upper bound.
// tx must be a transaction.
func (t *Tracker) Begin(ctx context.Context, tx *gorm.DB, jobName string, lookback time.Duration) (domain.Window, error) {
	now := t.Now()
	if lookback <= 0 {
		lookback = 15 * time.Minute
	}

	if err := t.repo.EnsureCursor(ctx, tx, jobName, now.Add(-lookback), now); err != nil {
		return domain.Window{}, fmt.Errorf("ensure cursor: %w", err)
	}

	waitStart := time.Now()
	cursor, err := t.repo.LockCursor(ctx, tx, jobName)
	t.metrics.ObserveDBLockWait(obsmetrics.LockResourceJobCursor, time.Since(waitStart))
	if err != nil {
		return domain.Window{}, fmt.Errorf("lock cursor: %w", err)
	}
	if cursor == nil {
		return domain.Window{}, ErrCursorMissing
	}

	return domain.Window{
		Lower: cursor.LastCheckedAt.UTC(),
		Upper: t.Now(),
	}, nil
}

// Commit moves the cursor to upper. It fails if upper is not ahead of the
// stored value.
func (t *Tracker) Commit(ctx context.Context, tx *gorm.DB, jobName string, upper time.Time) error {
	if err := t.repo.AdvanceCursor(ctx, tx, jobName, upper.UTC(), t.Now()); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
