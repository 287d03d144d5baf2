// Package eventstore is the append-only store of ingested TelemetryEvents:
// write path for the telemetry parser, read/ack path for the dispatcher.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/drivelog/tripcore/pkg/models"
)

// Store persists and replays telemetry events.
type Store struct {
	db *gorm.DB
}

// New wraps a GORM connection as an event Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append durably writes a new event. The event's ID is generated by
// Postgres (gen_random_uuid()) if not already set.
func (s *Store) Append(ctx context.Context, event *models.TelemetryEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("eventstore: append: %w", err)
	}
	return nil
}

// ListUnprocessed returns up to limit unprocessed events ordered by
// (created_at, id) — the stable order the dispatcher needs to sort per-VIN.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]models.TelemetryEvent, error) {
	var events []models.TelemetryEvent
	err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("eventstore: list unprocessed: %w", err)
	}
	return events, nil
}

// MarkProcessed flags the given event IDs as processed. Idempotent: marking
// an already-processed event is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&models.TelemetryEvent{}).
		Where("id IN ?", ids).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("eventstore: mark processed: %w", err)
	}
	return nil
}

// ListByVin returns every event for vin created at or after since, oldest
// first.
func (s *Store) ListByVin(ctx context.Context, vin string, since time.Time) ([]models.TelemetryEvent, error) {
	var events []models.TelemetryEvent
	err := s.db.WithContext(ctx).
		Where("vin = ? AND created_at >= ?", vin, since).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("eventstore: list by vin: %w", err)
	}
	return events, nil
}

// PurgeOlderThan deletes every event older than cutoff, returning the number
// of rows removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.TelemetryEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("eventstore: purge older than: %w", result.Error)
	}
	return result.RowsAffected, nil
}
