package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catering/internal/notification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EmitRequest struct {
	EventType   string
	Buckets     []domain.Bucket
	Upper       time.Time
	EmailFanout bool
}

type Store struct {
	repo  domain.Repository
	genID *snowflake.Node
}

func New(repo domain.Repository, genID *snowflake.Node) *Store {
	return &Store{repo: repo, genID: genID}
}

// Emit appends one open event per bucket. Earlier events for the same key are
// left untouched. With EmailFanout an outbox row is written per event on the
// same tx.
func (s *Store) Emit(ctx context.Context, tx *gorm.DB, req EmitRequest) ([]domain.NotificationEvent, error) {
	if len(req.Buckets) == 0 {
		return nil, nil
	}

	upper := req.Upper.UTC()
	events := make([]domain.NotificationEvent, 0, len(req.Buckets))
	for _, bucket := range req.Buckets {
		event := domain.NotificationEvent{
			ID:             s.genID.Generate(),
			Type:           req.EventType,
			KitchenID:      bucket.KitchenID,
			ClientID:       bucket.ClientID,
			MealDate:       domain.DateOf(bucket.MealDate),
			Count:          bucket.Count,
			FirstAt:        bucket.FirstAt.UTC(),
			LastAt:         bucket.LastAt.UTC(),
			LastNotifiedAt: upper,
			Status:         domain.EventStatusOpen,
			CreatedAt:      upper,
			UpdatedAt:      upper,
		}
		if err := s.repo.InsertEvent(ctx, tx, &event); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		if req.EmailFanout {
			if err := s.enqueue(ctx, tx, event); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Store) enqueue(ctx context.Context, tx *gorm.DB, event domain.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	msg := domain.OutboxMessage{
		ID:            s.genID.Generate(),
		EventID:       event.ID,
		EventType:     event.Type,
		Payload:       datatypes.JSON(payload),
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: event.CreatedAt,
		CreatedAt:     event.CreatedAt,
		UpdatedAt:     event.CreatedAt,
	}
	if err := s.repo.InsertOutbox(ctx, tx, &msg); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
