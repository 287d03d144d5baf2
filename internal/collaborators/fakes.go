package collaborators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drivelog/tripcore/pkg/models"
)

// FakeGeocoder returns a fixed address for every call, or falls back to
// "lat,lon" when Address is empty, matching the real geocoder's degrade
// behavior.
type FakeGeocoder struct {
	Address string
}

func (f *FakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) string {
	if f.Address != "" {
		return f.Address
	}
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

// FakeRoadSnapper returns Snapped verbatim, or nil if Fail is set.
type FakeRoadSnapper struct {
	Snapped []models.Waypoint
	Fail    bool
}

func (f *FakeRoadSnapper) Snap(_ context.Context, _ []models.Waypoint) []models.Waypoint {
	if f.Fail {
		return nil
	}
	return f.Snapped
}

// FakeUpstreamProvider returns a canned snapshot or error per VIN.
type FakeUpstreamProvider struct {
	Snapshots map[string]VehicleSnapshot
	Err       error
}

func (f *FakeUpstreamProvider) FetchVehicleData(_ context.Context, vin string) (VehicleSnapshot, error) {
	if f.Err != nil {
		return VehicleSnapshot{}, f.Err
	}
	return f.Snapshots[vin], nil
}

// FakeVehicleStore is an in-memory VehicleStore for tests.
type FakeVehicleStore struct {
	mu       sync.Mutex
	vehicles map[string]*models.Vehicle
}

func NewFakeVehicleStore(vehicles ...*models.Vehicle) *FakeVehicleStore {
	s := &FakeVehicleStore{vehicles: make(map[string]*models.Vehicle)}
	for _, v := range vehicles {
		s.vehicles[v.ID] = v
	}
	return s
}

func (s *FakeVehicleStore) Get(_ context.Context, vehicleID string) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("fake vehicle store: vehicle %s not found", vehicleID)
	}
	cp := *v
	return &cp, nil
}

func (s *FakeVehicleStore) UpdateOdometerAndBattery(_ context.Context, vehicleID string, odometerKm, batteryLevel float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("fake vehicle store: vehicle %s not found", vehicleID)
	}
	v.CurrentOdometerKm = odometerKm
	v.BatteryLevel = batteryLevel
	return nil
}

// FakeGeofenceStore is an in-memory GeofenceStore for tests.
type FakeGeofenceStore struct {
	ByUser map[string][]models.Geofence
}

func (s *FakeGeofenceStore) ListForUser(_ context.Context, userID string) ([]models.Geofence, error) {
	return s.ByUser[userID], nil
}

// FakeTripStore is an in-memory TripStore for tests.
type FakeTripStore struct {
	mu    sync.Mutex
	Trips []models.Trip
}

func (s *FakeTripStore) Append(_ context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trips = append(s.Trips, *trip)
	return nil
}

func (s *FakeTripStore) ListByUser(_ context.Context, userID string, since time.Time) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trip
	for _, t := range s.Trips {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *FakeTripStore) ListByVehicleAndDate(_ context.Context, vehicleID, date string) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trip
	for _, t := range s.Trips {
		if t.VehicleID == vehicleID && t.Date == date {
			out = append(out, t)
		}
	}
	return out, nil
}
