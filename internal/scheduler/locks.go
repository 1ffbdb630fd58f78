package scheduler

import (
	"context"
	"fmt"
	"time"

	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"go.uber.org/zap"
)

const jobLockKey = "notification:job:lock:%s"

// withJobLock runs fn while holding the cross-replica lock for job. Without a
// locker fn runs directly and the cursor row lock serializes replicas.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if !s.locker.Enabled() {
		return fn(ctx)
	}

	waitStart := time.Now()
	lease, ok, err := s.locker.TryLock(ctx, lockKey(job), s.cfg.JobLockTTL)
	s.jobMetrics.ObserveDBLockWait(obsmetrics.LockResourceDistributed, time.Since(waitStart))
	if err != nil {
		// redis outages must not stop aggregation
		s.logger(ctx).Warn("notification.job.lock_unavailable", zap.Error(err))
		return fn(ctx)
	}
	if !ok {
		s.jobMetrics.IncJobSkipped(job, obsmetrics.JobSkipReasonLockHeld)
		jobRunFromContext(ctx).Skip(obsmetrics.JobSkipReasonLockHeld)
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, lease); err != nil {
			s.logger(ctx).Warn("notification.job.lock_release_failed", zap.Error(err))
		}
	}()
	return fn(ctx)
}

func lockKey(job string) string {
	return fmt.Sprintf(jobLockKey, job)
}
