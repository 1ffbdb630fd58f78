package scheduler

import (
	"errors"
	"time"

	"github.com/smallbiznis/catering/internal/config"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const OutboxJobName = "notification_outbox"

// Config controls trigger timing; job definitions come from the notification config.
type Config struct {
	RunInterval   time.Duration
	EnabledJobs   []string
	UseCron       bool
	JobTimeout    time.Duration
	JobLockTTL    time.Duration
	OutboxBatch   int
	OutboxEnabled bool
	// FailOnTimeout reports job timeouts as errors instead of soft skips.
	FailOnTimeout bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		JobTimeout:    30 * time.Second,
		JobLockTTL:    2 * time.Minute,
		OutboxBatch:   100,
		OutboxEnabled: true,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:   cfg.Scheduler.RunInterval,
		EnabledJobs:   cfg.Scheduler.EnabledJobs,
		UseCron:       cfg.Scheduler.UseCron,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		JobLockTTL:    cfg.Scheduler.JobLockTTL,
		OutboxBatch:   cfg.Scheduler.OutboxBatch,
		OutboxEnabled: cfg.Scheduler.OutboxEnable,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.JobLockTTL <= 0 {
		c.JobLockTTL = defaults.JobLockTTL
	}
	if c.JobLockTTL < c.JobTimeout {
		c.JobLockTTL = c.JobTimeout
	}
	if c.OutboxBatch <= 0 {
		c.OutboxBatch = defaults.OutboxBatch
	}
	return c
}
