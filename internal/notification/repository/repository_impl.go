package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureCursor(ctx context.Context, db *gorm.DB, jobName string, initial, now time.Time) error {
	cursor := domain.JobCursor{
		JobName:       jobName,
		LastCheckedAt: initial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_name"}},
			DoNothing: true,
		}).
		Create(&cursor).Error
}

func (r *repo) LockCursor(ctx context.Context, db *gorm.DB, jobName string) (*domain.JobCursor, error) {
	var cursors []domain.JobCursor
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("job_name = ?", jobName).
		Limit(1).
		Find(&cursors).Error
	if err != nil {
		return nil, err
	}
	if len(cursors) == 0 {
		return nil, nil
	}
	return &cursors[0], nil
}

func (r *repo) AdvanceCursor(ctx context.Context, db *gorm.DB, jobName string, upper, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE job_cursors
		 SET last_checked_at = ?, updated_at = ?
		 WHERE job_name = ? AND last_checked_at < ?`,
		upper,
		now,
		jobName,
		upper,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("advance cursor %q: %d rows updated", jobName, result.RowsAffected)
	}
	return nil
}

func (r *repo) ListChanges(ctx context.Context, db *gorm.DB, window domain.Window) ([]domain.ChangeRecord, error) {
	var changes []domain.ChangeRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, meal_date, updated_at
		 FROM meal_entries
		 WHERE approval_status = ?
		   AND after_cutoff = ?
		   AND updated_at > ?
		   AND updated_at <= ?
		 ORDER BY updated_at ASC, id ASC`,
		domain.ApprovalStatusPending,
		true,
		window.Lower,
		window.Upper,
	).Scan(&changes).Error
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *repo) ListContractCandidates(ctx context.Context, db *gorm.DB, clientIDs []int64) ([]domain.ContractCandidate, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	var contracts []domain.ContractCandidate
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, status, start_date, end_date
		 FROM contracts
		 WHERE client_id IN ?
		   AND status IN ?`,
		clientIDs,
		[]string{domain.ContractStatusActive, domain.ContractStatusPlanned},
	).Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) ListKitchenPeriods(ctx context.Context, db *gorm.DB, contractIDs []int64) ([]domain.KitchenPeriodCandidate, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	var periods []domain.KitchenPeriodCandidate
	err := db.WithContext(ctx).Raw(
		`SELECT id, contract_id, kitchen_id, start_date, end_date
		 FROM contract_kitchen_periods
		 WHERE contract_id IN ?`,
		contractIDs,
	).Scan(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.NotificationEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_events (
			id, type, kitchen_id, client_id, meal_date, count,
			first_at, last_at, last_notified_at, status, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Type,
		event.KitchenID,
		event.ClientID,
		event.MealDate,
		event.Count,
		event.FirstAt,
		event.LastAt,
		event.LastNotifiedAt,
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter domain.EventFilter) ([]domain.EventRow, error) {
	if len(filter.RoleIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := make([]any, 0, 8)

	sb.WriteString(`SELECT e.id, e.type, e.kitchen_id, e.client_id, e.meal_date, e.count,
		e.first_at, e.last_at, e.last_notified_at, e.status, e.created_at, e.updated_at,
		r.read_at
		FROM notification_events e
		LEFT JOIN notification_reads r ON r.event_id = e.id AND r.user_id = ?
		WHERE e.status = ?
		  AND EXISTS (
			SELECT 1 FROM role_notification_settings s
			WHERE s.event_type = e.type
			  AND s.role_id IN ?
			  AND s.inapp_enabled = ?
		  )`)
	args = append(args, filter.UserID, filter.Status, filter.RoleIDs, true)

	if filter.Type != "" {
		sb.WriteString(` AND e.type = ?`)
		args = append(args, filter.Type)
	}
	if filter.UnreadOnly {
		sb.WriteString(` AND (r.read_at IS NULL OR r.read_at < e.last_at)`)
	}
	sb.WriteString(` ORDER BY e.last_at DESC, e.id DESC LIMIT ? OFFSET ?`)
	args = append(args, filter.Limit, filter.Offset)

	var rows []domain.EventRow
	if err := db.WithContext(ctx).Raw(sb.String(), args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListSettings(ctx context.Context, db *gorm.DB, eventType string) ([]domain.RoleNotificationSetting, error) {
	var settings []domain.RoleNotificationSetting
	stmt := db.WithContext(ctx).Model(&domain.RoleNotificationSetting{})
	if eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if err := stmt.Order("event_type asc, role_id asc").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *repo) UpsertSetting(ctx context.Context, db *gorm.DB, setting *domain.RoleNotificationSetting) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "role_id"}, {Name: "event_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"inapp_enabled", "email_enabled", "updated_by", "updated_at"}),
		}).
		Create(setting).Error
}

func (r *repo) ListEmailRoleIDs(ctx context.Context, db *gorm.DB, eventType string) ([]int64, error) {
	var roleIDs []int64
	err := db.WithContext(ctx).Raw(
		`SELECT role_id
		 FROM role_notification_settings
		 WHERE event_type = ? AND email_enabled = ?
		 ORDER BY role_id ASC`,
		eventType,
		true,
	).Scan(&roleIDs).Error
	if err != nil {
		return nil, err
	}
	return roleIDs, nil
}

func (r *repo) UpsertRead(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string, readAt time.Time) (bool, error) {
	var found int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM notification_events WHERE id = ?`,
		eventID,
	).Scan(&found).Error
	if err != nil {
		return false, err
	}
	if found == 0 {
		return false, nil
	}

	read := domain.NotificationRead{EventID: eventID, UserID: userID, ReadAt: readAt}
	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"read_at"}),
		}).
		Create(&read).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) InsertOutbox(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (
			id, event_id, event_type, payload, status, attempts, next_attempt_at, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.EventID,
		msg.EventType,
		msg.Payload,
		msg.Status,
		msg.Attempts,
		msg.NextAttemptAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	).Error
}

func (r *repo) ClaimOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	var msgs []domain.OutboxMessage
	err := db.WithContext(ctx).
		Clauses(clause.Locking{
			Strength: clause.LockingStrengthUpdate,
			Options:  clause.LockingOptionsSkipLocked,
		}).
		Where("status IN ? AND next_attempt_at <= ?",
			[]string{domain.OutboxStatusPending, domain.OutboxStatusFailed},
			now,
		).
		Order("next_attempt_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *repo) MarkOutboxSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, attempts = attempts + 1, sent_at = ?, last_error = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.OutboxStatusSent,
		now,
		now,
		id,
	).Error
}

func (r *repo) MarkOutboxFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, lastErr string, nextAttemptAt, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		lastErr,
		nextAttemptAt,
		now,
		id,
	).Error
}
