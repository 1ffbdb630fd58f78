package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/catering/internal/authorization"
	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/metricspush"
	"github.com/smallbiznis/catering/internal/migration"
	"github.com/smallbiznis/catering/internal/notification"
	"github.com/smallbiznis/catering/internal/observability"
	"github.com/smallbiznis/catering/internal/ratelimit"
	"github.com/smallbiznis/catering/internal/scheduler"
	"github.com/smallbiznis/catering/pkg/db"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type options struct {
	jobs           []string
	dispatchOutbox bool
	outboxBatch    int
	timeout        time.Duration
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("notification-run", pflag.ContinueOnError)
	flags.StringSliceVar(&opts.jobs, "job", nil, "job name to run (repeatable, default all enabled jobs)")
	flags.BoolVar(&opts.dispatchOutbox, "dispatch-outbox", false, "publish pending email fan-out messages after aggregation")
	flags.IntVar(&opts.outboxBatch, "outbox-batch", 0, "outbox rows to claim per dispatch")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "per-job timeout")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(run(opts))
}

func run(opts options) int {
	var (
		sched  *scheduler.Scheduler
		jobs   *config.NotificationConfigHolder
		pusher metricspush.Pusher
		log    *zap.Logger
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		authorization.Module,
		ratelimit.Module,
		notification.Module,
		metricspush.Module,

		fx.Provide(func(cfg config.Config) scheduler.Config {
			schedCfg := scheduler.ProvideConfig(cfg)
			schedCfg.JobTimeout = opts.timeout
			schedCfg.FailOnTimeout = true
			schedCfg.OutboxEnabled = opts.dispatchOutbox
			if opts.outboxBatch > 0 {
				schedCfg.OutboxBatch = opts.outboxBatch
			}
			return schedCfg
		}),
		fx.Provide(scheduler.New),
		fx.Populate(&sched, &jobs, &pusher, &log),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "notification-run: start:", err)
		return 1
	}

	ctx := context.Background()
	runErr := runJobs(ctx, sched, jobNames(opts.jobs, jobs), opts.dispatchOutbox)

	if pusher != nil {
		if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
			log.Warn("notification-run: metrics push failed", zap.Error(err))
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("notification-run: stop failed", zap.Error(err))
	}

	if runErr != nil {
		log.Error("notification-run: failed", zap.Error(runErr))
		return 1
	}
	log.Info("notification-run: done")
	return 0
}

func jobNames(requested []string, holder *config.NotificationConfigHolder) []string {
	if len(requested) > 0 {
		return requested
	}
	enabled := holder.Get().EnabledJobs()
	names := make([]string, 0, len(enabled))
	for _, job := range enabled {
		names = append(names, job.Name)
	}
	return names
}

func runJobs(ctx context.Context, sched *scheduler.Scheduler, names []string, dispatchOutbox bool) error {
	var err error
	for _, name := range names {
		err = errors.Join(err, sched.RunAggregationJob(ctx, name))
	}
	if dispatchOutbox {
		err = errors.Join(err, sched.RunOutboxJob(ctx))
	}
	return err
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
