package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ContractStatusActive  = "active"
	ContractStatusPlanned = "planned"

	ApprovalStatusPending = "pending_approval"

	EventStatusOpen   = "open"
	EventStatusClosed = "closed"

	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
	OutboxStatusDead    = "dead"
)

// KitchenUnknown marks a bucket whose change could not be tied to a kitchen.
const KitchenUnknown int64 = 0

type JobCursor struct {
	JobName       string    `gorm:"column:job_name;primaryKey" json:"job_name"`
	LastCheckedAt time.Time `gorm:"column:last_checked_at;not null" json:"last_checked_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (JobCursor) TableName() string { return "job_cursors" }

// MealEntry is owned by the ordering side; this module only reads it.
type MealEntry struct {
	ID             int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ClientID       int64     `gorm:"not null;index" json:"client_id"`
	MealDate       time.Time `gorm:"type:date;not null" json:"meal_date"`
	AfterCutoff    bool      `gorm:"not null" json:"after_cutoff"`
	ApprovalStatus string    `gorm:"not null" json:"approval_status"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;index" json:"updated_at"`
}

func (MealEntry) TableName() string { return "meal_entries" }

type Contract struct {
	ID        int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ClientID  int64      `gorm:"not null;index" json:"client_id"`
	Status    string     `gorm:"not null" json:"status"`
	StartDate time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate   *time.Time `gorm:"type:date" json:"end_date,omitempty"`
}

func (Contract) TableName() string { return "contracts" }

type ContractKitchenPeriod struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ContractID int64      `gorm:"not null;index" json:"contract_id"`
	KitchenID  int64      `gorm:"not null" json:"kitchen_id"`
	StartDate  time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate    *time.Time `gorm:"type:date" json:"end_date,omitempty"`
}

func (ContractKitchenPeriod) TableName() string { return "contract_kitchen_periods" }

type NotificationEvent struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Type           string       `gorm:"not null" json:"type"`
	KitchenID      int64        `gorm:"not null" json:"kitchen_id"`
	ClientID       int64        `gorm:"not null" json:"client_id"`
	MealDate       time.Time    `gorm:"type:date;not null" json:"meal_date"`
	Count          int          `gorm:"not null" json:"count"`
	FirstAt        time.Time    `gorm:"not null" json:"first_at"`
	LastAt         time.Time    `gorm:"not null" json:"last_at"`
	LastNotifiedAt time.Time    `gorm:"not null" json:"last_notified_at"`
	Status         string       `gorm:"not null" json:"status"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (NotificationEvent) TableName() string { return "notification_events" }

type RoleNotificationSetting struct {
	RoleID       int64     `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
	EventType    string    `gorm:"primaryKey" json:"event_type"`
	InappEnabled bool      `gorm:"column:inapp_enabled;not null" json:"inapp_enabled"`
	EmailEnabled bool      `gorm:"column:email_enabled;not null" json:"email_enabled"`
	UpdatedBy    *string   `gorm:"column:updated_by" json:"updated_by,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (RoleNotificationSetting) TableName() string { return "role_notification_settings" }

type NotificationRead struct {
	EventID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	UserID  string       `gorm:"primaryKey" json:"user_id"`
	ReadAt  time.Time    `gorm:"not null" json:"read_at"`
}

func (NotificationRead) TableName() string { return "notification_reads" }

type OutboxMessage struct {
	ID            snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EventID       snowflake.ID   `gorm:"not null;index" json:"event_id"`
	EventType     string         `gorm:"not null" json:"event_type"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	Status        string         `gorm:"not null" json:"status"`
	Attempts      int            `gorm:"not null" json:"attempts"`
	LastError     *string        `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `gorm:"not null" json:"next_attempt_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (OutboxMessage) TableName() string { return "notification_outbox" }

// Models lists every table this module reads or writes.
func Models() []any {
	return []any{
		&JobCursor{},
		&MealEntry{},
		&Contract{},
		&ContractKitchenPeriod{},
		&NotificationEvent{},
		&RoleNotificationSetting{},
		&NotificationRead{},
		&OutboxMessage{},
	}
}
