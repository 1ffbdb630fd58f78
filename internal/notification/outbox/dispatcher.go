package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/notification/domain"
	obslogger "github.com/smallbiznis/catering/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"github.com/smallbiznis/catering/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultBatchSize   = 100
	DefaultMaxAttempts = 8
	baseBackoff        = 30 * time.Second
	maxBackoff         = time.Hour
)

// Message is the body published for one outbox row.
type Message struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Event     json.RawMessage `json:"event"`
	RoleIDs   []int64         `json:"role_ids"`
}

type DispatchResult struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Dead    int `json:"dead"`
}

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Publisher  Publisher
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics    `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	publisher   Publisher
	clock       clock.Clock
	metrics     *obsmetrics.Metrics
	jobMetrics  *obsmetrics.JobMetrics
	maxAttempts int
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Dispatcher{
		db:          p.DB,
		log:         p.Log.Named("notification.outbox"),
		repo:        p.Repo,
		publisher:   p.Publisher,
		clock:       clk,
		metrics:     p.Metrics,
		jobMetrics:  p.JobMetrics,
		maxAttempts: DefaultMaxAttempts,
	}
}

// DispatchOutbox claims up to batch due rows and publishes them. Rows stay
// pending when no broker is configured. A configured broker that cannot be
// reached fails the run without claiming rows.
func (d *Dispatcher) DispatchOutbox(ctx context.Context, batch int) (DispatchResult, error) {
	if d.publisher == nil || !d.publisher.Enabled() {
		return DispatchResult{}, nil
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	ctx, span := tracing.StartOutboxSpan(ctx, batch)
	result, err := d.dispatch(ctx, batch)
	span.SetAttributes(
		attribute.Int("notification.outbox.claimed", result.Claimed),
		attribute.Int("notification.outbox.sent", result.Sent),
	)
	tracing.EndSpan(span, err)
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, batch int) (DispatchResult, error) {
	log := obslogger.WithContext(ctx, d.log)
	if err := d.publisher.Ready(); err != nil {
		log.Warn("notification.outbox.broker_unavailable", zap.Error(err))
		return DispatchResult{}, fmt.Errorf("outbox publisher: %w", err)
	}
	var result DispatchResult

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := d.clock.Now().UTC().Truncate(time.Microsecond)

		waitStart := time.Now()
		msgs, err := d.repo.ClaimOutbox(ctx, tx, now, batch)
		d.jobMetrics.ObserveDBLockWait(obsmetrics.LockResourceOutboxBatch, time.Since(waitStart))
		if err != nil {
			return fmt.Errorf("claim outbox: %w", err)
		}
		result.Claimed = len(msgs)

		recipients := make(map[string][]int64)
		for _, msg := range msgs {
			roleIDs, ok := recipients[msg.EventType]
			if !ok {
				roleIDs, err = d.repo.ListEmailRoleIDs(ctx, tx, msg.EventType)
				if err != nil {
					return fmt.Errorf("list email roles: %w", err)
				}
				recipients[msg.EventType] = roleIDs
			}

			status, err := d.deliver(ctx, tx, msg, roleIDs, now)
			if err != nil {
				return err
			}
			switch status {
			case domain.OutboxStatusSent:
				result.Sent++
			case domain.OutboxStatusDead:
				result.Dead++
			default:
				result.Failed++
			}
			d.metrics.RecordOutboxDispatch(ctx, msg.EventType, status)
		}
		return nil
	})
	if err != nil {
		return DispatchResult{}, err
	}

	d.jobMetrics.AddOutboxDispatched(obsmetrics.OutboxResultSent, result.Sent)
	d.jobMetrics.AddOutboxDispatched(obsmetrics.OutboxResultFailed, result.Failed)
	d.jobMetrics.AddOutboxDispatched(obsmetrics.OutboxResultDeadLettered, result.Dead)
	if result.Claimed > 0 {
		log.Info("notification.outbox.published",
			zap.Int("claimed", result.Claimed),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("dead", result.Dead),
		)
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tx *gorm.DB, msg domain.OutboxMessage, roleIDs []int64, now time.Time) (string, error) {
	if len(roleIDs) > 0 {
		pubErr := d.publisher.Publish(ctx, RoutingKey(msg.EventType), Message{
			EventID:   msg.EventID.String(),
			EventType: msg.EventType,
			Event:     json.RawMessage(msg.Payload),
			RoleIDs:   roleIDs,
		})
		if pubErr != nil {
			status := domain.OutboxStatusFailed
			if msg.Attempts+1 >= d.maxAttempts {
				status = domain.OutboxStatusDead
			}
			d.log.Warn("notification.outbox.publish_failed",
				zap.String("outbox_id", msg.ID.String()),
				zap.Int("attempt", msg.Attempts+1),
				zap.String("status", status),
				zap.Error(pubErr),
			)
			next := now.Add(Backoff(msg.Attempts + 1))
			if err := d.repo.MarkOutboxFailed(ctx, tx, msg.ID, status, pubErr.Error(), next, now); err != nil {
				return "", fmt.Errorf("mark outbox failed: %w", err)
			}
			return status, nil
		}
	}

	if err := d.repo.MarkOutboxSent(ctx, tx, msg.ID, now); err != nil {
		return "", fmt.Errorf("mark outbox sent: %w", err)
	}
	return domain.OutboxStatusSent, nil
}

// Backoff doubles from 30s per attempt and caps at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
