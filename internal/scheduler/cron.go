package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NewCron registers one entry per enabled job at the job's own schedule,
// plus the outbox dispatch at the scheduler run interval.
func (s *Scheduler) NewCron(ctx context.Context) (*cron.Cron, error) {
	engine := cron.New(cron.WithLocation(time.UTC))

	for _, job := range s.jobs.Get().EnabledJobs() {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		name := job.Name
		if _, err := engine.AddFunc(job.Schedule, func() {
			if err := s.RunAggregationJob(ctx, name); err != nil {
				s.log.Warn("scheduler cron job failed", zap.String("job", name), zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, job.Schedule, err)
		}
	}

	if s.outboxEnabled() {
		spec := fmt.Sprintf("@every %s", s.cfg.RunInterval)
		if _, err := engine.AddFunc(spec, func() {
			if err := s.RunOutboxJob(ctx); err != nil {
				s.log.Warn("scheduler cron job failed", zap.String("job", OutboxJobName), zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", OutboxJobName, err)
		}
	}

	return engine, nil
}
