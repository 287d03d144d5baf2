package tripwriter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/pkg/models"
)

func f(v float64) *float64 { return &v }

func newWriter(vehicle *models.Vehicle) (*Writer, *collaborators.FakeTripStore, *collaborators.FakeVehicleStore) {
	trips := &collaborators.FakeTripStore{}
	vehicles := collaborators.NewFakeVehicleStore(vehicle)
	w := &Writer{
		Geocoder:    &collaborators.FakeGeocoder{},
		RoadSnapper: &collaborators.FakeRoadSnapper{},
		Vehicles:    vehicles,
		Geofences:   &collaborators.FakeGeofenceStore{},
		Trips:       trips,
	}
	return w, trips, vehicles
}

func baseInput(vehicleID string) Input {
	start := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	return Input{
		UserID:          "user-1",
		VehicleID:       vehicleID,
		StartTime:       start,
		StartLatitude:   f(52.0),
		StartLongitude:  f(13.0),
		StartLocation:   "Home",
		EndTime:         start.Add(20 * time.Minute),
		EndLatitude:     f(52.05),
		EndLongitude:    f(13.05),
		RouteWaypoints:  models.Waypoints{{Latitude: 52.0, Longitude: 13.0}, {Latitude: 52.05, Longitude: 13.05}},
		Reason:          models.EndReasonShiftedToPark,
	}
}

func TestWriteUsesOdometerWhenBothPresent(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 1000}
	w, trips, _ := newWriter(vehicle)

	in := baseInput(vehicle.ID)
	in.StartOdometerKm = f(1000)
	in.EndOdometerKm = f(1010)

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Equal(t, 10.0, trip.DistanceKm)
	assert.Equal(t, 1000.0, trip.StartOdometerKm)
	assert.Equal(t, 1010.0, trip.EndOdometerKm)
	assert.Len(t, trips.Trips, 1)
}

func TestWriteFallsBackToGpsWhenOdometerMissing(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 500}
	w, _, vehicles := newWriter(vehicle)

	in := baseInput(vehicle.ID)

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Greater(t, trip.DistanceKm, 0.0)
	assert.Contains(t, trip.Notes, "GPS")

	updated, _ := vehicles.Get(context.Background(), vehicle.ID)
	assert.Equal(t, trip.EndOdometerKm, updated.CurrentOdometerKm)
}

func TestWriteDiscardsBelowMinimumDistance(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}
	w, trips, _ := newWriter(vehicle)

	in := baseInput(vehicle.ID)
	in.StartOdometerKm = f(100)
	in.EndOdometerKm = f(100.05)
	in.StartLatitude, in.StartLongitude = f(52.0), f(13.0)
	in.EndLatitude, in.EndLongitude = f(52.0), f(13.0)

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, trip)
	assert.Empty(t, trips.Trips)
}

func TestWriteDiscardsWhenDistanceUnknown(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1"}
	w, trips, _ := newWriter(vehicle)

	in := baseInput(vehicle.ID)
	in.StartLatitude, in.StartLongitude = nil, nil
	in.EndLatitude, in.EndLongitude = nil, nil

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, trip)
	assert.Empty(t, trips.Trips)
}

func TestWriteReconciliationUsesVehicleOdometerWhenNeitherPresent(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 2000}
	w, _, _ := newWriter(vehicle)

	in := baseInput(vehicle.ID)

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Equal(t, 2000.0, trip.StartOdometerKm)
	assert.InDelta(t, 2000.0+trip.DistanceKm, trip.EndOdometerKm, 0.01)
}

func TestWriteClassifiesBusinessWhenEndpointInBusinessFence(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}
	w, _, _ := newWriter(vehicle)
	w.Geofences = &collaborators.FakeGeofenceStore{
		ByUser: map[string][]models.Geofence{
			"user-1": {{CenterLat: 52.05, CenterLon: 13.05, RadiusMeters: 500, TripType: models.TripBusiness}},
		},
	}

	in := baseInput(vehicle.ID)
	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Equal(t, models.TripBusiness, trip.TripType)
}

func TestWriteRoadSnapFailureKeepsRawWaypoints(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}
	w, _, _ := newWriter(vehicle)
	w.RoadSnapper = &collaborators.FakeRoadSnapper{Fail: true}

	in := baseInput(vehicle.ID)
	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Nil(t, trip.RouteGeometry)
	assert.Equal(t, in.RouteWaypoints, trip.RouteCoordinates)
}

func TestWriteUnknownEndLocationWhenNoCoordinates(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}
	w, _, _ := newWriter(vehicle)

	in := baseInput(vehicle.ID)
	in.StartOdometerKm = f(100)
	in.EndOdometerKm = f(150)
	in.EndLatitude, in.EndLongitude = nil, nil

	trip, err := w.Write(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, trip)
	assert.Equal(t, "Unknown", trip.EndLocation)
}
