package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/statemachine"
	"github.com/drivelog/tripcore/internal/tripwriter"
	"github.com/drivelog/tripcore/pkg/models"
)

func f(v float64) *float64 { return &v }

func newMachine(vehicle *models.Vehicle) *statemachine.Machine {
	writer := &tripwriter.Writer{
		Geocoder:    &collaborators.FakeGeocoder{},
		RoadSnapper: &collaborators.FakeRoadSnapper{},
		Vehicles:    collaborators.NewFakeVehicleStore(vehicle),
		Geofences:   &collaborators.FakeGeofenceStore{},
		Trips:       &collaborators.FakeTripStore{},
	}
	return &statemachine.Machine{
		Config:     statemachine.Config{GPSSilence: 3 * time.Minute, StaleTrip: 12 * time.Hour},
		Geocoder:   &collaborators.FakeGeocoder{},
		Vehicles:   collaborators.NewFakeVehicleStore(vehicle),
		TripWriter: writer,
	}
}

func TestTickProcessesEventsInOrderAndMarksProcessed(t *testing.T) {
	vehicle := &models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}
	conn := &models.VehicleConnection{UserID: "user-1", VIN: "VIN1", VehicleID: "veh-1", IsActive: true}
	conn.LastLatitude, conn.LastLongitude = f(51.99), f(13.0)

	start := time.Now()
	events := []models.TelemetryEvent{
		{ID: "evt-2", UserID: "user-1", VIN: "VIN1", CreatedAt: start.Add(1 * time.Minute), Latitude: f(52.02), Longitude: f(13.0), OdometerKm: f(105)},
		{ID: "evt-1", UserID: "user-1", VIN: "VIN1", CreatedAt: start, Latitude: f(52.01), Longitude: f(13.0), OdometerKm: f(101)},
	}

	d := &Dispatcher{
		Events:      newFakeEventStore(events...),
		Connections: newFakeConnectionStore(conn),
		Locker:      fakeLocker{},
		Machine:     newMachine(vehicle),
		Logger:      logging.Default(),
	}

	err := d.Tick(context.Background())
	require.NoError(t, err)

	got, err := d.Connections.GetByVin(context.Background(), "user-1", "VIN1")
	require.NoError(t, err)
	assert.True(t, got.TripInProgress(), "trip should start once sorted events are applied in order")
	require.NotNil(t, got.TripStartOdometerKm)
	assert.Equal(t, 101.0, *got.TripStartOdometerKm, "evt-1 is older, so the trip starts from its odometer")

	remaining, err := d.Events.ListUnprocessed(context.Background(), BatchSize)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestTickDiscardsEventsForUnknownVin(t *testing.T) {
	events := []models.TelemetryEvent{
		{ID: "evt-1", UserID: "user-1", VIN: "UNKNOWN", CreatedAt: time.Now()},
	}
	d := &Dispatcher{
		Events:      newFakeEventStore(events...),
		Connections: newFakeConnectionStore(),
		Locker:      fakeLocker{},
		Machine:     newMachine(&models.Vehicle{ID: "veh-1"}),
		Logger:      logging.Default(),
	}

	err := d.Tick(context.Background())
	require.NoError(t, err)

	remaining, err := d.Events.ListUnprocessed(context.Background(), BatchSize)
	require.NoError(t, err)
	assert.Empty(t, remaining, "events for an unknown connection are marked processed and discarded, not left to block the queue")
}

func TestTickStopsVinOnMachineErrorLeavingRemainingUnprocessed(t *testing.T) {
	// VehicleID references a vehicle the fake store doesn't know about, so
	// the trip writer's Vehicles.Get fails once a trip actually ends.
	conn := &models.VehicleConnection{UserID: "user-1", VIN: "VIN1", VehicleID: "missing-vehicle", IsActive: true}
	conn.LastLatitude, conn.LastLongitude = f(51.9), f(13.0)

	start := time.Now()
	shiftPark := models.ShiftPark
	events := []models.TelemetryEvent{
		{ID: "evt-1", UserID: "user-1", VIN: "VIN1", CreatedAt: start, Latitude: f(52.0), Longitude: f(13.0), OdometerKm: f(200)},
		{ID: "evt-2", UserID: "user-1", VIN: "VIN1", CreatedAt: start.Add(time.Minute), ShiftState: &shiftPark, OdometerKm: f(210)},
	}

	machine := newMachine(&models.Vehicle{ID: "veh-1"})

	d := &Dispatcher{
		Events:      newFakeEventStore(events...),
		Connections: newFakeConnectionStore(conn),
		Locker:      fakeLocker{},
		Machine:     machine,
		Logger:      logging.Default(),
	}

	err := d.Tick(context.Background())
	require.NoError(t, err)

	remaining, err := d.Events.ListUnprocessed(context.Background(), BatchSize)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "evt-1 should process fine; evt-2's trip-end should fail and stop the vin")
	assert.Equal(t, "evt-2", remaining[0].ID)
}
