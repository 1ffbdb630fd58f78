package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/catering/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		AppVersion:  "1.2.3",
		Observability: config.ObservabilityConfig{
			OtelProtocol: "http",
			SlowQuery:    500 * time.Millisecond,
			JobSlowQuery: 100 * time.Millisecond,
		},
	})

	assert.Equal(t, "catering", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
	assert.Equal(t, 500*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.JobSlowQueryThreshold, "job threshold is never below the request threshold")
}

func TestLoadConfigPrefersDeploymentEnv(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:   "production",
		Observability: config.ObservabilityConfig{DeploymentEnv: "staging"},
	})
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("DATABASE_JOB_SLOW_QUERY", "5s")

	cfg := LoadConfig(config.Load())
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 5*time.Second, cfg.JobSlowQueryThreshold)
}

func TestDebugInDevelopment(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
}
