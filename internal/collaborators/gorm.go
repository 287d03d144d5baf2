package collaborators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/drivelog/tripcore/pkg/models"
)

// GormVehicleStore implements VehicleStore against the shared Postgres
// database. It's a thin reader/writer on the `vehicles` table owned by the
// out-of-scope vehicle CRUD vertical.
type GormVehicleStore struct {
	db *gorm.DB
}

func NewGormVehicleStore(db *gorm.DB) *GormVehicleStore {
	return &GormVehicleStore{db: db}
}

func (s *GormVehicleStore) Get(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.db.WithContext(ctx).First(&v, "id = ?", vehicleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("collaborators: vehicle %s: %w", vehicleID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("collaborators: get vehicle: %w", err)
	}
	return &v, nil
}

func (s *GormVehicleStore) UpdateOdometerAndBattery(ctx context.Context, vehicleID string, odometerKm, batteryLevel float64) error {
	rounded := math.Round(odometerKm*10) / 10
	err := s.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ?", vehicleID).
		Updates(map[string]interface{}{
			"current_odometer_km": rounded,
			"battery_level":       batteryLevel,
		}).Error
	if err != nil {
		return fmt.Errorf("collaborators: update vehicle snapshot: %w", err)
	}
	return nil
}

// GormGeofenceStore implements GeofenceStore against the shared database.
type GormGeofenceStore struct {
	db *gorm.DB
}

func NewGormGeofenceStore(db *gorm.DB) *GormGeofenceStore {
	return &GormGeofenceStore{db: db}
}

func (s *GormGeofenceStore) ListForUser(ctx context.Context, userID string) ([]models.Geofence, error) {
	var fences []models.Geofence
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&fences).Error
	if err != nil {
		return nil, fmt.Errorf("collaborators: list geofences: %w", err)
	}
	return fences, nil
}

// GormTripStore implements TripStore against the shared database.
type GormTripStore struct {
	db *gorm.DB
}

func NewGormTripStore(db *gorm.DB) *GormTripStore {
	return &GormTripStore{db: db}
}

func (s *GormTripStore) Append(ctx context.Context, trip *models.Trip) error {
	if err := s.db.WithContext(ctx).Create(trip).Error; err != nil {
		return fmt.Errorf("collaborators: append trip: %w", err)
	}
	return nil
}

func (s *GormTripStore) ListByUser(ctx context.Context, userID string, since time.Time) ([]models.Trip, error) {
	var trips []models.Trip
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Find(&trips).Error
	if err != nil {
		return nil, fmt.Errorf("collaborators: list trips by user: %w", err)
	}
	return trips, nil
}

func (s *GormTripStore) ListByVehicleAndDate(ctx context.Context, vehicleID, date string) ([]models.Trip, error) {
	var trips []models.Trip
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND date = ?", vehicleID, date).
		Order("start_time ASC").
		Find(&trips).Error
	if err != nil {
		return nil, fmt.Errorf("collaborators: list trips by vehicle and date: %w", err)
	}
	return trips, nil
}
