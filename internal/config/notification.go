package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultJobName         = "meal_entry_pending_approval"
	DefaultEventType       = "meal_entry.pending_approval"
	DefaultLookback        = 15 * time.Minute
	DefaultJobSchedule     = "@every 5m"
	DefaultDeliveryPage    = 20
	DefaultDeliveryMaxPage = 100
)

// NotificationConfig describes the aggregation jobs and delivery limits.
type NotificationConfig struct {
	Jobs     []JobDefinition `mapstructure:"jobs"`
	Delivery DeliveryConfig  `mapstructure:"delivery"`
}

type JobDefinition struct {
	Name        string        `mapstructure:"name"`
	EventType   string        `mapstructure:"event_type"`
	Lookback    time.Duration `mapstructure:"lookback"`
	Schedule    string        `mapstructure:"schedule"`
	Disabled    bool          `mapstructure:"disabled"`
	EmailFanout bool          `mapstructure:"email_fanout"`
}

type DeliveryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		Jobs: []JobDefinition{
			{
				Name:      DefaultJobName,
				EventType: DefaultEventType,
				Lookback:  DefaultLookback,
				Schedule:  DefaultJobSchedule,
			},
		},
		Delivery: DeliveryConfig{
			DefaultPageSize: DefaultDeliveryPage,
			MaxPageSize:     DefaultDeliveryMaxPage,
		},
	}
}

// Job returns the definition registered under name.
func (c NotificationConfig) Job(name string) (JobDefinition, bool) {
	name = strings.TrimSpace(name)
	for _, job := range c.Jobs {
		if strings.EqualFold(job.Name, name) {
			return job, true
		}
	}
	return JobDefinition{}, false
}

// EnabledJobs lists jobs that are not disabled, in declaration order.
func (c NotificationConfig) EnabledJobs() []JobDefinition {
	out := make([]JobDefinition, 0, len(c.Jobs))
	for _, job := range c.Jobs {
		if !job.Disabled {
			out = append(out, job)
		}
	}
	return out
}

// KnownEventType reports whether any job emits eventType.
func (c NotificationConfig) KnownEventType(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return false
	}
	for _, job := range c.Jobs {
		if job.EventType == eventType {
			return true
		}
	}
	return false
}

func (c NotificationConfig) withDefaults() NotificationConfig {
	defaults := DefaultNotificationConfig()
	if len(c.Jobs) == 0 {
		c.Jobs = defaults.Jobs
	}
	jobs := make([]JobDefinition, 0, len(c.Jobs))
	for _, job := range c.Jobs {
		job.Name = strings.TrimSpace(job.Name)
		job.EventType = strings.TrimSpace(job.EventType)
		job.Schedule = strings.TrimSpace(job.Schedule)
		if job.Lookback <= 0 {
			job.Lookback = DefaultLookback
		}
		if job.Schedule == "" {
			job.Schedule = DefaultJobSchedule
		}
		jobs = append(jobs, job)
	}
	c.Jobs = jobs
	if c.Delivery.DefaultPageSize <= 0 {
		c.Delivery.DefaultPageSize = defaults.Delivery.DefaultPageSize
	}
	if c.Delivery.MaxPageSize <= 0 {
		c.Delivery.MaxPageSize = defaults.Delivery.MaxPageSize
	}
	if c.Delivery.DefaultPageSize > c.Delivery.MaxPageSize {
		c.Delivery.DefaultPageSize = c.Delivery.MaxPageSize
	}
	return c
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

// NewNotificationConfigHolder reads notification.yml and watches it for changes.
func NewNotificationConfigHolder() (*NotificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notification")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/catering/config")
	v.AddConfigPath("/etc/catering")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CATERING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		defaults := DefaultNotificationConfig()
		v.SetDefault("notification.jobs", defaults.Jobs)
		v.SetDefault("notification.delivery", defaults.Delivery)
	}

	cfg, err := decodeNotificationConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticNotificationConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeNotificationConfig(v)
		if err != nil {
			log.Printf("[notification-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[notification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticNotificationConfigHolder wraps a fixed config without file watching.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	if h == nil {
		return DefaultNotificationConfig()
	}
	return h.current.Load().(NotificationConfig)
}

func decodeNotificationConfig(v *viper.Viper) (NotificationConfig, error) {
	var cfg NotificationConfig
	if err := v.UnmarshalKey("notification", &cfg); err != nil {
		return NotificationConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := validateNotificationConfig(cfg); err != nil {
		return NotificationConfig{}, err
	}
	return cfg, nil
}

func validateNotificationConfig(cfg NotificationConfig) error {
	if len(cfg.Jobs) == 0 {
		return errors.New("notification.jobs cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Jobs))
	for i, job := range cfg.Jobs {
		if job.Name == "" {
			return fmt.Errorf("notification.jobs[%d].name is required", i)
		}
		if job.EventType == "" {
			return fmt.Errorf("notification.jobs[%d].event_type is required", i)
		}
		key := strings.ToLower(job.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("notification.jobs[%d].name %q is duplicated", i, job.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
