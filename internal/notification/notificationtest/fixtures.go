// Package notificationtest seeds catalog and meal entry rows for tests.
package notificationtest

import (
	"testing"
	"time"

	"github.com/smallbiznis/catering/internal/notification/domain"
	"github.com/smallbiznis/catering/pkg/db/dbtest"
	"gorm.io/gorm"
)

// Open returns a test database with every notification table migrated.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	return dbtest.Open(t, domain.Models()...)
}

// OpenConcurrent returns a file-backed test database whose transactions
// serialize on the database write lock.
func OpenConcurrent(t testing.TB) *gorm.DB {
	t.Helper()
	return dbtest.OpenFile(t, 5*time.Second, domain.Models()...)
}

// Date parses a YYYY-MM-DD day in UTC.
func Date(t testing.TB, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return parsed
}

// DatePtr is Date for nullable end dates.
func DatePtr(t testing.TB, value string) *time.Time {
	t.Helper()
	d := Date(t, value)
	return &d
}

// At parses an RFC3339 timestamp and normalizes it to UTC.
func At(t testing.TB, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed.UTC()
}

type Seeder struct {
	t  testing.TB
	db *gorm.DB
}

func NewSeeder(t testing.TB, db *gorm.DB) *Seeder {
	return &Seeder{t: t, db: db}
}

func (s *Seeder) create(value any) {
	s.t.Helper()
	if err := s.db.Create(value).Error; err != nil {
		s.t.Fatalf("seed %T: %v", value, err)
	}
}

func (s *Seeder) Contract(id, clientID int64, status string, start time.Time, end *time.Time) {
	s.t.Helper()
	s.create(&domain.Contract{
		ID:        id,
		ClientID:  clientID,
		Status:    status,
		StartDate: start,
		EndDate:   end,
	})
}

func (s *Seeder) KitchenPeriod(id, contractID, kitchenID int64, start time.Time, end *time.Time) {
	s.t.Helper()
	s.create(&domain.ContractKitchenPeriod{
		ID:         id,
		ContractID: contractID,
		KitchenID:  kitchenID,
		StartDate:  start,
		EndDate:    end,
	})
}

// PendingEntry inserts a meal entry that the aggregation job treats as relevant.
func (s *Seeder) PendingEntry(id, clientID int64, mealDate, updatedAt time.Time) {
	s.t.Helper()
	s.MealEntry(domain.MealEntry{
		ID:             id,
		ClientID:       clientID,
		MealDate:       mealDate,
		AfterCutoff:    true,
		ApprovalStatus: domain.ApprovalStatusPending,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	})
}

func (s *Seeder) MealEntry(entry domain.MealEntry) {
	s.t.Helper()
	s.create(&entry)
}

func (s *Seeder) Setting(roleID int64, eventType string, inapp, email bool) {
	s.t.Helper()
	now := time.Now().UTC()
	s.create(&domain.RoleNotificationSetting{
		RoleID:       roleID,
		EventType:    eventType,
		InappEnabled: inapp,
		EmailEnabled: email,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}
