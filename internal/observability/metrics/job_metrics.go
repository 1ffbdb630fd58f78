package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/catering/internal/authorization"
	"gorm.io/gorm"
)

const (
	JobErrorTypeDeadlineExceeded = "deadline_exceeded"
	JobErrorTypeAuthorization    = "authorization"
	JobErrorTypeBusinessRule     = "business_rule"
	JobErrorTypeDB               = "db"
	JobErrorTypeUnknown          = "unknown"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonForbidden            = "forbidden"
	JobReasonUnknown              = "unknown"

	JobSkipReasonLockHeld        = "lock_held"
	JobSkipReasonClockNotAdvance = "clock_not_advanced"
	JobSkipReasonDisabled        = "disabled"
)

const (
	LockResourceJobCursor    = "job_cursor"
	LockResourceOutboxBatch  = "notification_outbox_batch"
	LockResourceDistributed  = "redis_job_lock"
	OutboxResultSent         = "sent"
	OutboxResultFailed       = "failed"
	OutboxResultDeadLettered = "dead"
)

// JobMetrics captures aggregation job and outbox health signals.
type JobMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobSkipped       *prometheus.CounterVec
	changesSeen      *prometheus.CounterVec
	bucketsBuilt     *prometheus.CounterVec
	eventsInserted   *prometheus.CounterVec
	windowWidth      *prometheus.GaugeVec
	runLoopLag       prometheus.Observer
	dbLockWait       *prometheus.HistogramVec
	outboxDispatched *prometheus.CounterVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

// NewJobMetrics registers a fresh set of job metrics on registerer.
func NewJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	return newJobMetrics(registerer, cfg)
}

// ResetJobMetricsForTest resets the job metrics singleton for tests.
func ResetJobMetricsForTest() {
	jobMetricsOnce = sync.Once{}
	jobMetrics = nil
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "catering"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_runs_total",
		Help:        "Notification aggregation runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "notification_job_duration_seconds",
		Help:        "Notification aggregation run latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_timeouts_total",
		Help:        "Notification aggregation runs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_errors_total",
		Help:        "Notification aggregation failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_skipped_total",
		Help:        "Notification aggregation triggers that did no work.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	changesSeen := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_changes_total",
		Help:        "Changed source rows read inside run windows.",
		ConstLabels: constLabels,
	}, []string{"job"})
	bucketsBuilt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_buckets_total",
		Help:        "Aggregation buckets produced by runs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	eventsInserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_job_events_inserted_total",
		Help:        "Notification events inserted by runs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	windowWidth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "notification_job_window_seconds",
		Help:        "Width of the last committed run window.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "notification_job_runloop_lag_seconds",
		Help:        "Trigger loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "notification_job_db_lock_wait_seconds",
		Help:        "Lock wait time for SELECT FOR UPDATE on job state.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})
	outboxDispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "notification_outbox_dispatched_total",
		Help:        "Email fan-out outbox rows processed by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobSkipped,
		changesSeen,
		bucketsBuilt,
		eventsInserted,
		windowWidth,
		runLoopLag,
		dbLockWait,
		outboxDispatched,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceJobCursor:   dbLockWait.WithLabelValues(LockResourceJobCursor),
		LockResourceOutboxBatch: dbLockWait.WithLabelValues(LockResourceOutboxBatch),
		LockResourceDistributed: dbLockWait.WithLabelValues(LockResourceDistributed),
	}

	return &JobMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		jobSkipped:       jobSkipped,
		changesSeen:      changesSeen,
		bucketsBuilt:     bucketsBuilt,
		eventsInserted:   eventsInserted,
		windowWidth:      windowWidth,
		runLoopLag:       runLoopLag,
		dbLockWait:       dbLockWait,
		outboxDispatched: outboxDispatched,
		lockWaitObserver: lockWaitObserver,
	}
}

// IncJobRun increments the run counter for a job.
func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *JobMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *JobMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

// ObserveRun records the outcome counters of one committed run.
func (m *JobMetrics) ObserveRun(job string, changes, buckets, inserted int, window time.Duration) {
	if m == nil {
		return
	}
	if changes > 0 {
		m.changesSeen.WithLabelValues(job).Add(float64(changes))
	}
	if buckets > 0 {
		m.bucketsBuilt.WithLabelValues(job).Add(float64(buckets))
	}
	if inserted > 0 {
		m.eventsInserted.WithLabelValues(job).Add(float64(inserted))
	}
	m.windowWidth.WithLabelValues(job).Set(window.Seconds())
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *JobMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *JobMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

func (m *JobMetrics) AddOutboxDispatched(result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.outboxDispatched.WithLabelValues(result).Add(float64(count))
}

// ClassifyJobErrorType returns a low-cardinality error type for logging.
func ClassifyJobErrorType(err error) string {
	if err == nil {
		return JobErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobErrorTypeDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return JobErrorTypeAuthorization
	}
	if isDBError(err) {
		return JobErrorTypeDB
	}
	return JobErrorTypeBusinessRule
}

// IsJobErrorRetryable reports whether the next trigger may succeed unchanged.
func IsJobErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return JobReasonForbidden
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
