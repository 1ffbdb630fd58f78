package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catering/internal/clock"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/smallbiznis/catering/internal/notification/aggregate"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/internal/notification/eventstore"
	"github.com/smallbiznis/catering/internal/notification/resolver"
	"github.com/smallbiznis/catering/internal/notification/watermark"
	obslogger "github.com/smallbiznis/catering/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/catering/internal/observability/metrics"
	"github.com/smallbiznis/catering/internal/observability/tracing"
	"github.com/smallbiznis/catering/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Config     *config.NotificationConfigHolder
	Metrics    *obsmetrics.Metrics    `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	clock      clock.Clock
	cfg        *config.NotificationConfigHolder
	metrics    *obsmetrics.Metrics
	jobMetrics *obsmetrics.JobMetrics

	watermark  *watermark.Tracker
	aggregator *aggregate.Aggregator
	events     *eventstore.Store
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	jobMetrics := p.JobMetrics
	if jobMetrics == nil {
		jobMetrics = obsmetrics.Jobs()
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		repo:       p.Repo,
		clock:      clk,
		cfg:        p.Config,
		metrics:    p.Metrics,
		jobMetrics: jobMetrics,
		watermark:  watermark.New(p.Repo, clk, jobMetrics),
		aggregator: aggregate.New(p.Repo, resolver.New(p.Repo)),
		events:     eventstore.New(p.Repo, p.GenID),
	}
}

func (s *Service) RunAggregation(ctx context.Context, jobName string) (result domain.RunResult, err error) {
	job, ok := s.cfg.Get().Job(jobName)
	if !ok {
		return domain.RunResult{}, domain.ErrInvalidJob
	}
	if job.Disabled {
		return domain.RunResult{}, domain.ErrJobDisabled
	}

	ctx, span := tracing.StartJobSpan(ctx, job.Name, job.EventType)
	defer func() { tracing.EndSpan(span, err) }()

	log := obslogger.WithJob(obslogger.WithContext(ctx, s.log), job.Name, job.EventType)
	result = domain.RunResult{Job: job.Name, EventType: job.EventType}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		window, err := s.watermark.Begin(ctx, tx, job.Name, job.Lookback)
		if err != nil {
			return err
		}
		result.Lower = window.Lower
		result.Upper = window.Upper
		if window.Empty() {
			return nil
		}

		agg, err := s.aggregator.Aggregate(ctx, tx, window)
		if err != nil {
			return err
		}
		result.Changes = agg.Changes
		result.Buckets = len(agg.Buckets)

		events, err := s.events.Emit(ctx, tx, eventstore.EmitRequest{
			EventType:   job.EventType,
			Buckets:     agg.Buckets,
			Upper:       window.Upper,
			EmailFanout: job.EmailFanout,
		})
		if err != nil {
			return err
		}
		result.Inserted = len(events)

		return s.watermark.Commit(ctx, tx, job.Name, window.Upper)
	})
	if err != nil {
		log.Error("notification.run.failed", zap.Error(err))
		return domain.RunResult{}, fmt.Errorf("run aggregation %s: %w", job.Name, err)
	}

	window := domain.Window{Lower: result.Lower, Upper: result.Upper}
	if window.Empty() {
		s.jobMetrics.IncJobSkipped(job.Name, obsmetrics.JobSkipReasonClockNotAdvance)
		log.Warn("notification.job.skipped",
			zap.String("reason", obsmetrics.JobSkipReasonClockNotAdvance),
			zap.Time("watermark", result.Lower),
			zap.Time("now", result.Upper),
		)
		return result, nil
	}

	s.jobMetrics.ObserveRun(job.Name, result.Changes, result.Buckets, result.Inserted, window.Width())
	s.metrics.RecordEventsEmitted(ctx, job.EventType, result.Inserted)
	log.Info("notification.run.committed",
		zap.Time("lower", result.Lower),
		zap.Time("upper", result.Upper),
		zap.Int("changes", result.Changes),
		zap.Int("buckets", result.Buckets),
		zap.Int("inserted", result.Inserted),
	)
	return result, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID := strings.TrimSpace(req.Caller.UserID)
	if userID == "" {
		return domain.ListResponse{}, domain.ErrInvalidUser
	}

	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case "":
		status = domain.EventStatusOpen
	case domain.EventStatusOpen, domain.EventStatusClosed:
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	cfg := s.cfg.Get()
	eventType := strings.TrimSpace(req.Type)
	if eventType != "" && !cfg.KnownEventType(eventType) {
		return domain.ListResponse{}, domain.ErrInvalidEventType
	}
	if req.Limit < 0 {
		return domain.ListResponse{}, domain.ErrInvalidLimit
	}
	if req.Offset < 0 {
		return domain.ListResponse{}, domain.ErrInvalidOffset
	}

	page := pagination.Clamp(req.Limit, req.Offset, cfg.Delivery.DefaultPageSize, cfg.Delivery.MaxPageSize)
	if len(req.Caller.RoleIDs) == 0 {
		return domain.ListResponse{
			PageInfo: pagination.PageInfo{Limit: page.Limit, Offset: page.Offset},
			Events:   []domain.EventView{},
		}, nil
	}

	rows, err := s.repo.ListEvents(ctx, s.db, domain.EventFilter{
		UserID:     userID,
		RoleIDs:    req.Caller.RoleIDs,
		Status:     status,
		Type:       eventType,
		UnreadOnly: req.UnreadOnly,
		Limit:      page.FetchLimit(),
		Offset:     page.Offset,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("notification.list.failed", zap.Error(err))
		return domain.ListResponse{}, fmt.Errorf("list notifications: %w", err)
	}

	rows, info := pagination.Trim(rows, page)
	views := make([]domain.EventView, 0, len(rows))
	for _, row := range rows {
		views = append(views, domain.EventView{
			NotificationEvent: row.NotificationEvent,
			ReadAt:            row.ReadAt,
			Unread:            domain.IsUnread(row.ReadAt, row.LastAt),
		})
	}

	return domain.ListResponse{PageInfo: info, Events: views}, nil
}

func (s *Service) MarkRead(ctx context.Context, req domain.MarkReadRequest) (domain.MarkReadResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.MarkReadResult{}, domain.ErrInvalidUser
	}
	if len(req.EventIDs) == 0 {
		return domain.MarkReadResult{}, domain.ErrEmptyEventIDs
	}
	if len(req.EventIDs) > domain.MaxMarkReadBatch {
		return domain.MarkReadResult{}, domain.ErrTooManyEventIDs
	}

	log := obslogger.WithContext(ctx, s.log)
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	result := domain.MarkReadResult{Failures: []domain.MarkReadFailure{}}

	// repeated ids are reported once
	seenRaw := make(map[string]struct{}, len(req.EventIDs))
	seenID := make(map[snowflake.ID]struct{}, len(req.EventIDs))
	for _, raw := range req.EventIDs {
		raw = strings.TrimSpace(raw)
		if _, dup := seenRaw[raw]; dup {
			continue
		}
		seenRaw[raw] = struct{}{}

		eventID, err := snowflake.ParseString(raw)
		if err != nil || eventID <= 0 {
			result.Failures = append(result.Failures, domain.MarkReadFailure{EventID: raw, Code: domain.MarkReadCodeInvalidID})
			continue
		}
		if _, dup := seenID[eventID]; dup {
			continue
		}
		seenID[eventID] = struct{}{}

		found, err := s.repo.UpsertRead(ctx, s.db, eventID, userID, now)
		if err != nil {
			log.Error("notification.mark_read.failed", zap.String("event_id", raw), zap.Error(err))
			result.Failures = append(result.Failures, domain.MarkReadFailure{EventID: raw, Code: domain.MarkReadCodeInternal})
			continue
		}
		if !found {
			result.Failures = append(result.Failures, domain.MarkReadFailure{EventID: raw, Code: domain.MarkReadCodeNotFound})
			continue
		}
		result.UpdatedCount++
	}

	s.metrics.RecordReadsMarked(ctx, result.UpdatedCount)
	return result, nil
}

func (s *Service) ListSettings(ctx context.Context, req domain.ListSettingsRequest) ([]domain.RoleNotificationSetting, error) {
	settings, err := s.repo.ListSettings(ctx, s.db, strings.TrimSpace(req.EventType))
	if err != nil {
		return nil, fmt.Errorf("list notification settings: %w", err)
	}
	if settings == nil {
		settings = []domain.RoleNotificationSetting{}
	}
	return settings, nil
}

func (s *Service) UpsertSetting(ctx context.Context, req domain.UpsertSettingRequest) (domain.RoleNotificationSetting, error) {
	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		return domain.RoleNotificationSetting{}, domain.ErrInvalidActor
	}
	if req.RoleID <= 0 {
		return domain.RoleNotificationSetting{}, domain.ErrInvalidRole
	}
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" || !s.cfg.Get().KnownEventType(eventType) {
		return domain.RoleNotificationSetting{}, domain.ErrInvalidEventType
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	setting := domain.RoleNotificationSetting{
		RoleID:       req.RoleID,
		EventType:    eventType,
		InappEnabled: req.InappEnabled,
		EmailEnabled: req.EmailEnabled,
		UpdatedBy:    &actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertSetting(ctx, s.db, &setting); err != nil {
		return domain.RoleNotificationSetting{}, fmt.Errorf("upsert notification setting: %w", err)
	}

	obslogger.WithContext(ctx, s.log).Info("notification.setting.updated",
		zap.Int64("role_id", setting.RoleID),
		zap.String("event_type", setting.EventType),
		zap.Bool("inapp_enabled", setting.InappEnabled),
		zap.Bool("email_enabled", setting.EmailEnabled),
	)

	settings, err := s.repo.ListSettings(ctx, s.db, eventType)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("notification.setting.reload_failed",
			zap.Int64("role_id", setting.RoleID),
			zap.String("event_type", setting.EventType),
			zap.Error(err),
		)
		return setting, nil
	}
	for _, stored := range settings {
		if stored.RoleID == setting.RoleID {
			return stored, nil
		}
	}
	return setting, nil
}
