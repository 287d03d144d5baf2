// Package collaborators defines the contracts for everything the trip
// detection core treats as an external system: reverse geocoding,
// road-snapping, the upstream telemetry provider, and the vehicle/geofence/
// trip stores owned by the outer product. The core only ever calls these
// interfaces — it never implements the product surfaces behind them.
package collaborators

import (
	"context"
	"time"

	"github.com/drivelog/tripcore/pkg/models"
)

// Geocoder resolves a coordinate to a human-readable address. Implementations
// must degrade gracefully to a "lat,lon" string on failure rather than
// returning an error up the call chain — reverse geocoding is a best-effort
// enrichment, never a blocking dependency.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) string
}

// RoadSnapper maps a raw waypoint trail onto road geometry. May return nil
// (snap unavailable) but must never propagate an error that blocks trip
// persistence.
type RoadSnapper interface {
	Snap(ctx context.Context, waypoints []models.Waypoint) []models.Waypoint
}

// VehicleSnapshot is what the upstream provider reports for a VIN.
type VehicleSnapshot struct {
	DriveState   models.DriveState
	VehicleState models.VehicleState
	ChargeLevel  *float64
	OdometerKm   *float64
}

// UpstreamProvider is the vehicle telemetry vendor's pull API, used only for
// the optional auto-enrich path and the operator refresh command.
type UpstreamProvider interface {
	FetchVehicleData(ctx context.Context, vin string) (VehicleSnapshot, error)
}

// VehicleStore is the subset of vehicle CRUD the core needs: reading and
// bumping the odometer/battery snapshot it owns.
type VehicleStore interface {
	Get(ctx context.Context, vehicleID string) (*models.Vehicle, error)
	UpdateOdometerAndBattery(ctx context.Context, vehicleID string, odometerKm, batteryLevel float64) error
}

// GeofenceStore lists the geofences available for classification.
type GeofenceStore interface {
	ListForUser(ctx context.Context, userID string) ([]models.Geofence, error)
}

// TripStore is the append-only trip ledger the trip writer and reconstructor
// write to and query for duplicate detection.
type TripStore interface {
	Append(ctx context.Context, trip *models.Trip) error
	ListByUser(ctx context.Context, userID string, since time.Time) ([]models.Trip, error)
	ListByVehicleAndDate(ctx context.Context, vehicleID, date string) ([]models.Trip, error)
}
