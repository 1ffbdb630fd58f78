package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	AuthJWTSecret string
	AuthJWTIssuer string
	AdminRoleIDs  []int64

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	MigrateOnStart    bool

	Redis       RedisConfig
	RateLimit   RateLimitConfig
	AMQP        AMQPConfig
	MetricsPush MetricsPushConfig
	Scheduler   SchedulerConfig
}

type ObservabilityConfig struct {
	DeploymentEnv    string
	LogLevel         string
	LogFormat        string
	OtelEnabled      bool
	OtelProtocol     string
	SamplingRatio    float64
	AlwaysSampleJobs bool
	SlowQuery        time.Duration
	JobSlowQuery     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

type SchedulerConfig struct {
	RunInterval  time.Duration
	EnabledJobs  []string
	UseCron      bool
	JobTimeout   time.Duration
	JobLockTTL   time.Duration
	OutboxBatch  int
	OutboxEnable bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "catering"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		NodeID:        getenvInt64("SNOWFLAKE_NODE_ID", 1),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		AdminRoleIDs:  getenvInt64List("ADMIN_ROLE_IDS", []int64{1}),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Observability: ObservabilityConfig{
			DeploymentEnv:    strings.TrimSpace(getenv("DEPLOYMENT_ENV", "")),
			LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:      getenvBool("OTEL_ENABLED", true),
			OtelProtocol:     strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			AlwaysSampleJobs: getenvBool("OTEL_ALWAYS_SAMPLE_JOBS", true),
			SlowQuery:        getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
			JobSlowQuery:     getenvDuration("DATABASE_JOB_SLOW_QUERY", 2*time.Second),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "catering"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		MigrateOnStart:    getenvBool("DATABASE_MIGRATE_ON_START", true),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_NOTIFICATIONS_RATE", 5),
			Burst:   int(getenvInt64("RATE_LIMIT_NOTIFICATIONS_BURST", 20)),
		},
		AMQP: AMQPConfig{
			URL:      strings.TrimSpace(getenv("AMQP_URL", "")),
			Exchange: getenv("AMQP_EXCHANGE", "notifications"),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
		Scheduler: SchedulerConfig{
			RunInterval:  getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			EnabledJobs:  getenvList("SCHEDULER_ENABLED_JOBS"),
			UseCron:      getenvBool("SCHEDULER_USE_CRON", false),
			JobTimeout:   getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
			JobLockTTL:   getenvDuration("SCHEDULER_JOB_LOCK_TTL", 2*time.Minute),
			OutboxBatch:  int(getenvInt64("SCHEDULER_OUTBOX_BATCH", 100)),
			OutboxEnable: getenvBool("SCHEDULER_OUTBOX_ENABLED", true),
		},
	}

	if cfg.AuthJWTSecret == "" && cfg.Environment == "production" {
		log.Printf("[config] AUTH_JWT_SECRET is empty; bearer tokens will be rejected")
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvInt64List(key string, def []int64) []int64 {
	items := getenvList(key)
	if len(items) == 0 {
		return def
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		parsed, err := strconv.ParseInt(item, 10, 64)
		if err != nil || parsed <= 0 {
			continue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
