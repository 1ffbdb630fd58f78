package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EventFilter struct {
	UserID     string
	RoleIDs    []int64
	Status     string
	Type       string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// EventRow is an event joined with the caller's read marker.
type EventRow struct {
	NotificationEvent
	ReadAt *time.Time `gorm:"column:read_at"`
}

type Repository interface {
	EnsureCursor(ctx context.Context, db *gorm.DB, jobName string, initial, now time.Time) error
	LockCursor(ctx context.Context, db *gorm.DB, jobName string) (*JobCursor, error)
	AdvanceCursor(ctx context.Context, db *gorm.DB, jobName string, upper, now time.Time) error

	ListChanges(ctx context.Context, db *gorm.DB, window Window) ([]ChangeRecord, error)
	ListContractCandidates(ctx context.Context, db *gorm.DB, clientIDs []int64) ([]ContractCandidate, error)
	ListKitchenPeriods(ctx context.Context, db *gorm.DB, contractIDs []int64) ([]KitchenPeriodCandidate, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *NotificationEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]EventRow, error)

	ListSettings(ctx context.Context, db *gorm.DB, eventType string) ([]RoleNotificationSetting, error)
	UpsertSetting(ctx context.Context, db *gorm.DB, setting *RoleNotificationSetting) error
	ListEmailRoleIDs(ctx context.Context, db *gorm.DB, eventType string) ([]int64, error)

	// UpsertRead returns false when eventID does not exist.
	UpsertRead(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string, readAt time.Time) (bool, error)

	InsertOutbox(ctx context.Context, db *gorm.DB, msg *OutboxMessage) error
	ClaimOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkOutboxFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, lastErr string, nextAttemptAt, now time.Time) error
}
