package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/notification/outbox"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"github.com/smallbiznis/catering/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	NotificationSvc domain.Service
	Jobs            *config.NotificationConfigHolder
	GenID           *snowflake.Node
	Clock           clock.Clock
	Config          Config                 `optional:"true"`
	Dispatcher      *outbox.Dispatcher     `optional:"true"`
	Locker          *ratelimit.Locker      `optional:"true"`
	AuthzSvc        authorization.Service  `optional:"true"`
	JobMetrics      *obsmetrics.JobMetrics `optional:"true"`
}

type outboxDispatcher interface {
	DispatchOutbox(ctx context.Context, batch int) (outbox.DispatchResult, error)
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	notificationSvc domain.Service
	jobs            *config.NotificationConfigHolder
	dispatcher      outboxDispatcher
	locker          *ratelimit.Locker
	authzSvc        authorization.Service
	jobMetrics      *obsmetrics.JobMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.NotificationSvc == nil || p.Jobs == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		notificationSvc: p.NotificationSvc,
		jobs:            p.Jobs,
		locker:          p.Locker,
		authzSvc:        p.AuthzSvc,
		jobMetrics:      p.JobMetrics,
	}
	if p.Dispatcher != nil {
		s.dispatcher = p.Dispatcher
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx)
	s.jobMetrics.IncJobRun(name)

	err := fn(ctx)
	s.jobMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if err != nil && !isTimeout {
		s.logSchedulerError(ctx, run, "notification.job.failed", err)
	}
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the watermark was not advanced so the next run retries
	if isTimeout {
		s.jobMetrics.IncJobTimeout(name)
	}
	s.jobMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		if !s.cfg.FailOnTimeout {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled aggregation job followed by the outbox dispatch.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, job := range s.jobs.Get().EnabledJobs() {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.RunAggregationJob(parent, job.Name))
	}
	if s.outboxEnabled() {
		err = errors.Join(err, s.RunOutboxJob(parent))
	}
	return err
}

// RunAggregationJob runs a single aggregation job under the system subject.
func (s *Scheduler) RunAggregationJob(parent context.Context, name string) error {
	return s.runJob(parent, name, s.cfg.JobTimeout, func(ctx context.Context) error {
		if err := s.authorizeSystem(ctx); err != nil {
			return err
		}
		return s.withJobLock(ctx, name, func(ctx context.Context) error {
			result, err := s.notificationSvc.RunAggregation(ctx, name)
			if err != nil {
				if errors.Is(err, domain.ErrJobDisabled) {
					jobRunFromContext(ctx).Skip(obsmetrics.JobSkipReasonDisabled)
					s.jobMetrics.IncJobSkipped(name, obsmetrics.JobSkipReasonDisabled)
					return nil
				}
				return err
			}
			jobRunFromContext(ctx).AddProcessed(result.Inserted)
			return nil
		})
	})
}

// RunOutboxJob publishes one batch of pending email fan-out messages.
func (s *Scheduler) RunOutboxJob(parent context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.runJob(parent, OutboxJobName, s.cfg.JobTimeout, func(ctx context.Context) error {
		return s.withJobLock(ctx, OutboxJobName, func(ctx context.Context) error {
			result, err := s.dispatcher.DispatchOutbox(ctx, s.cfg.OutboxBatch)
			jobRunFromContext(ctx).AddProcessed(result.Sent + result.Dead)
			return err
		})
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			s.jobMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list enables every job (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) outboxEnabled() bool {
	return s.cfg.OutboxEnabled && s.dispatcher != nil && s.isJobEnabled(OutboxJobName)
}

func (s *Scheduler) authorizeSystem(ctx context.Context) error {
	if s.authzSvc == nil {
		return nil
	}
	return s.authzSvc.Authorize(ctx, authorization.Subject{System: true}, authorization.ObjectNotificationJob, authorization.ActionNotificationJobRun)
}
