package reconstruct

import (
	"context"
	"time"

	"github.com/drivelog/tripcore/internal/tripwriter"
	"github.com/drivelog/tripcore/pkg/models"
)

type fakeEventLister struct {
	events []models.TelemetryEvent
}

func (f *fakeEventLister) ListByVin(_ context.Context, _ string, _ time.Time) ([]models.TelemetryEvent, error) {
	return f.events, nil
}

type fakeConnectionGetter struct {
	conn *models.VehicleConnection
}

func (f *fakeConnectionGetter) GetByVin(_ context.Context, _, _ string) (*models.VehicleConnection, error) {
	return f.conn, nil
}

type fakeTripLister struct {
	trips []models.Trip
}

func (f *fakeTripLister) ListByVehicleAndDate(_ context.Context, _, _ string) ([]models.Trip, error) {
	return f.trips, nil
}

type fakeTripWriter struct {
	writes []tripwriter.Input
}

func (f *fakeTripWriter) Write(_ context.Context, in tripwriter.Input) (*models.Trip, error) {
	f.writes = append(f.writes, in)
	return &models.Trip{
		VehicleID:       in.VehicleID,
		Date:            in.StartTime.Format("2006-01-02"),
		StartTime:       in.StartTime.Format("15:04"),
		EndTime:         in.EndTime.Format("15:04"),
		AutoLogged:      true,
		StartOdometerKm: deref(in.StartOdometerKm),
		EndOdometerKm:   deref(in.EndOdometerKm),
	}, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
