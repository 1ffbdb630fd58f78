package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/catering/pkg/db/pagination"
)

// Caller is the identity supplied by the upstream session layer.
type Caller struct {
	UserID  string
	RoleIDs []int64
}

type RunResult struct {
	Job       string    `json:"job"`
	EventType string    `json:"event_type"`
	Lower     time.Time `json:"lower"`
	Upper     time.Time `json:"upper"`
	Changes   int       `json:"changes"`
	Buckets   int       `json:"buckets"`
	Inserted  int       `json:"inserted"`
}

type ListRequest struct {
	Caller     Caller
	Status     string
	Type       string
	UnreadOnly bool
	Limit      int
	Offset     int
}

type EventView struct {
	NotificationEvent
	ReadAt *time.Time `json:"read_at"`
	Unread bool       `json:"unread"`
}

type ListResponse struct {
	pagination.PageInfo
	Events []EventView `json:"events"`
}

type MarkReadRequest struct {
	UserID   string
	EventIDs []string
}

type MarkReadFailure struct {
	EventID string `json:"event_id"`
	Code    string `json:"code"`
}

type MarkReadResult struct {
	UpdatedCount int               `json:"updated_count"`
	Failures     []MarkReadFailure `json:"failures"`
}

type ListSettingsRequest struct {
	EventType string
}

type UpsertSettingRequest struct {
	ActorID      string
	RoleID       int64
	EventType    string
	InappEnabled bool
	EmailEnabled bool
}

type Service interface {
	// RunAggregation scans changes since the job's watermark and emits
	// events in a single transaction. Safe to call repeatedly.
	RunAggregation(ctx context.Context, jobName string) (RunResult, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	MarkRead(ctx context.Context, req MarkReadRequest) (MarkReadResult, error)
	ListSettings(ctx context.Context, req ListSettingsRequest) ([]RoleNotificationSetting, error)
	UpsertSetting(ctx context.Context, req UpsertSettingRequest) (RoleNotificationSetting, error)
}

const (
	MarkReadCodeInvalidID = "invalid_id"
	MarkReadCodeNotFound  = "not_found"
	MarkReadCodeInternal  = "internal_error"
)

// MaxMarkReadBatch bounds the number of ids accepted per mark-read call.
const MaxMarkReadBatch = 500

var (
	ErrInvalidJob       = errors.New("invalid_job")
	ErrJobDisabled      = errors.New("job_disabled")
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidLimit     = errors.New("invalid_limit")
	ErrInvalidOffset    = errors.New("invalid_offset")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrEmptyEventIDs    = errors.New("empty_event_ids")
	ErrTooManyEventIDs  = errors.New("too_many_event_ids")
)
