// Package connection holds the per-(user,VIN) running state
// (VehicleConnection) consumed by the trip state machine, and the Redis
// distributed lock that enforces single-processor-per-VIN semantics.
package connection

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/drivelog/tripcore/pkg/models"
)

// Store persists VehicleConnection rows.
type Store struct {
	db *gorm.DB
}

// New wraps a GORM connection as a connection Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetByVin returns the connection for (userID, vin), or nil if none exists.
// The dispatcher does not create one: it discards events for which this
// returns nil.
func (s *Store) GetByVin(ctx context.Context, userID, vin string) (*models.VehicleConnection, error) {
	var conn models.VehicleConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND vin = ?", userID, vin).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connection: get by vin: %w", err)
	}
	return &conn, nil
}

// GetByID loads a connection by its primary key, or nil if it doesn't
// exist — used by the operator refresh/disconnect commands, which address
// connections by ID rather than VIN.
func (s *Store) GetByID(ctx context.Context, connectionID string) (*models.VehicleConnection, error) {
	var conn models.VehicleConnection
	err := s.db.WithContext(ctx).First(&conn, "id = ?", connectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connection: get by id: %w", err)
	}
	return &conn, nil
}

// ResolveUserID looks up the owning user for a bare VIN, with no user
// context — what the webhook and Kafka ingestion paths need, since the
// upstream telemetry payload carries only the VIN. A VIN is expected to
// belong to exactly one active connection at a time; ok is false if none
// exists (the event is then stored with an empty user ID, and the
// dispatcher, finding no connection for it, discards it).
func (s *Store) ResolveUserID(ctx context.Context, vin string) (string, bool, error) {
	var conn models.VehicleConnection
	err := s.db.WithContext(ctx).
		Where("vin = ? AND is_active = ?", vin, true).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("connection: resolve user id: %w", err)
	}
	return conn.UserID, true, nil
}

// Upsert creates or updates a connection row, keyed by (user_id, vin).
func (s *Store) Upsert(ctx context.Context, conn *models.VehicleConnection) error {
	if conn.ID == "" {
		existing, err := s.GetByVin(ctx, conn.UserID, conn.VIN)
		if err != nil {
			return err
		}
		if existing != nil {
			conn.ID = existing.ID
		}
	}
	if err := s.db.WithContext(ctx).Save(conn).Error; err != nil {
		return fmt.Errorf("connection: upsert: %w", err)
	}
	return nil
}

// ListActiveWithTripInProgress returns every active connection that
// currently has a trip open — the reaper's working set.
func (s *Store) ListActiveWithTripInProgress(ctx context.Context) ([]models.VehicleConnection, error) {
	var conns []models.VehicleConnection
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND trip_start_time IS NOT NULL", true).
		Find(&conns).Error
	if err != nil {
		return nil, fmt.Errorf("connection: list active with trip in progress: %w", err)
	}
	return conns, nil
}

// Deactivate marks a connection inactive, halting dispatcher processing for
// its VIN (used by the operator disconnect command).
func (s *Store) Deactivate(ctx context.Context, connectionID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.VehicleConnection{}).
		Where("id = ?", connectionID).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("connection: deactivate: %w", err)
	}
	return nil
}
