package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/catering/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	AlwaysSampleJobs     bool

	// SlowQueryThreshold applies to request-path queries; aggregation and
	// outbox runs scan windows and use JobSlowQueryThreshold.
	SlowQueryThreshold    time.Duration
	JobSlowQueryThreshold time.Duration
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "catering"
	}
	environment := strings.TrimSpace(obs.DeploymentEnv)
	if environment == "" {
		environment = strings.TrimSpace(cfg.Environment)
	}
	logLevel := obs.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	protocol := obs.OtelProtocol
	if protocol == "" {
		protocol = "grpc"
	}
	slow := obs.SlowQuery
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	jobSlow := obs.JobSlowQuery
	if jobSlow < slow {
		jobSlow = slow
	}

	return Config{
		ServiceName:           serviceName,
		Environment:           environment,
		Version:               strings.TrimSpace(cfg.AppVersion),
		LogLevel:              logLevel,
		LogFormat:             obs.LogFormat,
		OtelEnabled:           obs.OtelEnabled,
		OtelExporterEndpoint:  strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol:  protocol,
		OtelSamplingRatio:     obs.SamplingRatio,
		AlwaysSampleJobs:      obs.AlwaysSampleJobs,
		SlowQueryThreshold:    slow,
		JobSlowQueryThreshold: jobSlow,
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
