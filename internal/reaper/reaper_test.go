package reaper

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
func tp(t time.Time) *time.Time { return &t }

type fakeConnLister struct {
	conns   []models.VehicleConnection
	updated []models.VehicleConnection
}

func (l *fakeConnLister) ListActiveWithTripInProgress(_ context.Context) ([]models.VehicleConnection, error) {
	return l.conns, nil
}

func (l *fakeConnLister) Upsert(_ context.Context, conn *models.VehicleConnection) error {
	l.updated = append(l.updated, *conn)
	return nil
}

type fakeEventPurger struct {
	lastCutoff time.Time
	deleted    int64
}

func (p *fakeEventPurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.lastCutoff = cutoff
	return p.deleted, nil
}

func newMachine(vehicle *models.Vehicle) *statemachine.Machine {
	writer := &tripwriter.Writer{
		Geocoder:    &collaborators.FakeGeocoder{},
		RoadSnapper: &collaborators.FakeRoadSnapper{},
		Vehicles:    collaborators.NewFakeVehicleStore(vehicle),
		Geofences:   &collaborators.FakeGeofenceStore{},
		Trips:       &collaborators.FakeTripStore{},
	}
	return &statemachine.Machine{
		Geocoder:   &collaborators.FakeGeocoder{},
		Vehicles:   collaborators.NewFakeVehicleStore(vehicle),
		TripWriter: writer,
	}
}

func activeConn(vehicleID string) models.VehicleConnection {
	start := time.Now().Add(-20 * time.Minute)
	return models.VehicleConnection{
		UserID:              "user-1",
		VIN:                 "VIN1",
		VehicleID:           vehicleID,
		IsActive:            true,
		TripStartTime:       tp(start),
		TripStartOdometerKm: f(100),
		TripStartLatitude:   f(52.0),
		TripStartLongitude:  f(13.0),
		LastOdometerKm:      f(110),
		LastLatitude:        f(52.05),
		LastLongitude:       f(13.05),
	}
}

func TestTickStaleTripsEndsOnGpsSilence(t *testing.T) {
	conn := activeConn("veh-1")
	conn.LastGpsAt = tp(time.Now().Add(-5 * time.Minute))

	lister := &fakeConnLister{conns: []models.VehicleConnection{conn}}
	r := &Reaper{
		Connections: lister,
		Machine:     newMachine(&models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}),
		Logger:      logging.Default(),
	}

	err := r.TickStaleTrips(context.Background())
	require.NoError(t, err)
	require.Len(t, lister.updated, 1)
	assert.False(t, lister.updated[0].TripInProgress())
}

func TestTickStaleTripsEndsOnAge(t *testing.T) {
	conn := activeConn("veh-1")
	conn.LastGpsAt = tp(time.Now().Add(-30 * time.Second)) // fresh GPS
	conn.TripStartTime = tp(time.Now().Add(-13 * time.Hour))

	lister := &fakeConnLister{conns: []models.VehicleConnection{conn}}
	r := &Reaper{
		Connections: lister,
		Machine:     newMachine(&models.Vehicle{ID: "veh-1", CurrentOdometerKm: 100}),
		Logger:      logging.Default(),
	}

	err := r.TickStaleTrips(context.Background())
	require.NoError(t, err)
	require.Len(t, lister.updated, 1)
	assert.False(t, lister.updated[0].TripInProgress())
}

func TestTickStaleTripsLeavesFreshTripsAlone(t *testing.T) {
	conn := activeConn("veh-1")
	conn.LastGpsAt = tp(time.Now().Add(-30 * time.Second))
	conn.TripStartTime = tp(time.Now().Add(-5 * time.Minute))

	lister := &fakeConnLister{conns: []models.VehicleConnection{conn}}
	r := &Reaper{
		Connections: lister,
		Machine:     newMachine(&models.Vehicle{ID: "veh-1"}),
		Logger:      logging.Default(),
	}

	err := r.TickStaleTrips(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lister.updated)
}

func TestTickRetentionUsesConfiguredWindow(t *testing.T) {
	purger := &fakeEventPurger{deleted: 3}
	r := &Reaper{Events: purger, Retention: 24 * time.Hour, Logger: logging.Default()}

	before := time.Now().Add(-24 * time.Hour)
	err := r.TickRetention(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, before, purger.lastCutoff, 5*time.Second)
}

func TestTickRetentionDefaultsTo24Hours(t *testing.T) {
	purger := &fakeEventPurger{}
	r := &Reaper{Events: purger, Logger: logging.Default()}

	before := time.Now().Add(-24 * time.Hour)
	err := r.TickRetention(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, before, purger.lastCutoff, 5*time.Second)
}
