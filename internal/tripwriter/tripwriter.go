// Package tripwriter turns a completed trip segment (the state machine's
// EndTrip call, or a reconstructed segment) into a persisted Trip: distance
// decision tree, odometer reconciliation, business/private classification,
// address resolution, and road-snapping.
package tripwriter

import (
	"context"
	"math"
	"time"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/geo"
	"github.com/drivelog/tripcore/internal/geofence"
	"github.com/drivelog/tripcore/pkg/models"
)

// MinDistanceKm is the discard threshold below which a segment is not
// persisted as a trip.
const MinDistanceKm = 0.1

// Input describes one completed trip segment.
type Input struct {
	UserID    string
	VehicleID string

	StartTime      time.Time
	StartOdometerKm *float64
	StartLatitude  *float64
	StartLongitude *float64
	StartLocation  string

	EndTime        time.Time
	EndOdometerKm  *float64
	EndLatitude    *float64
	EndLongitude   *float64

	RouteWaypoints models.Waypoints
	Reason         models.EndReason
}

// Writer computes and persists Trip records.
type Writer struct {
	Geocoder    collaborators.Geocoder
	RoadSnapper collaborators.RoadSnapper
	Vehicles    collaborators.VehicleStore
	Geofences   collaborators.GeofenceStore
	Trips       collaborators.TripStore
}

// distanceResult is the outcome of the distance decision tree.
type distanceResult struct {
	km     float64
	source string
	known  bool
}

func computeDistance(in Input) distanceResult {
	if in.StartOdometerKm != nil && in.EndOdometerKm != nil && *in.EndOdometerKm > *in.StartOdometerKm {
		return distanceResult{km: *in.EndOdometerKm - *in.StartOdometerKm, source: "odometer", known: true}
	}
	if in.StartLatitude != nil && in.StartLongitude != nil && in.EndLatitude != nil && in.EndLongitude != nil {
		meters := geo.Haversine(*in.StartLatitude, *in.StartLongitude, *in.EndLatitude, *in.EndLongitude)
		return distanceResult{km: meters / 1000, source: "gps", known: true}
	}
	return distanceResult{known: false}
}

// reconcileOdometer picks startOdo/endOdo per the spec's decision tree,
// falling back to the linked vehicle's current odometer when neither event
// carried one.
func reconcileOdometer(in Input, distanceKm float64, vehicleOdo float64) (startOdo, endOdo float64) {
	switch {
	case in.StartOdometerKm != nil && in.EndOdometerKm != nil:
		startOdo, endOdo = *in.StartOdometerKm, *in.EndOdometerKm
	case in.StartOdometerKm != nil:
		startOdo = *in.StartOdometerKm
		endOdo = startOdo + distanceKm
	case in.EndOdometerKm != nil:
		endOdo = *in.EndOdometerKm
		startOdo = endOdo - distanceKm
	default:
		startOdo = vehicleOdo
		endOdo = startOdo + distanceKm
	}

	if endOdo < startOdo {
		endOdo = startOdo + distanceKm
	}
	return startOdo, endOdo
}

func roundTo1Decimal(v float64) float64 {
	return math.Round(v*10) / 10
}

// classify returns business if either endpoint falls inside a business
// geofence, private otherwise.
func classify(fences []models.Geofence, startLat, startLon, endLat, endLon *float64) models.TripType {
	if startLat != nil && startLon != nil {
		if f, ok := geofence.MatchAmong(fences, *startLat, *startLon); ok && f.TripType == models.TripBusiness {
			return models.TripBusiness
		}
	}
	if endLat != nil && endLon != nil {
		if f, ok := geofence.MatchAmong(fences, *endLat, *endLon); ok && f.TripType == models.TripBusiness {
			return models.TripBusiness
		}
	}
	return models.TripPrivate
}

func notesFor(source string, reason models.EndReason) string {
	note := ""
	switch source {
	case "gps":
		note = "Distance estimated via GPS (odometer unavailable)"
	case "odometer":
		note = "Distance from odometer delta"
	default:
		note = "Distance unavailable"
	}
	if reason != "" {
		note += "; end reason: " + string(reason)
	}
	return note
}

// Write computes the trip record for in and persists it, returning nil (no
// error) if the segment doesn't clear the minimum-distance threshold — that
// is a normal discard, not a failure.
func (w *Writer) Write(ctx context.Context, in Input) (*models.Trip, error) {
	dist := computeDistance(in)
	if !dist.known || dist.km < MinDistanceKm {
		return nil, nil
	}

	vehicle, err := w.Vehicles.Get(ctx, in.VehicleID)
	if err != nil {
		return nil, err
	}

	startOdo, endOdo := reconcileOdometer(in, dist.km, vehicle.CurrentOdometerKm)

	fences, err := w.Geofences.ListForUser(ctx, in.UserID)
	if err != nil {
		fences = nil
	}
	tripType := classify(fences, in.StartLatitude, in.StartLongitude, in.EndLatitude, in.EndLongitude)

	endLocation := "Unknown"
	if in.EndLatitude != nil && in.EndLongitude != nil {
		endLocation = w.Geocoder.ReverseGeocode(ctx, *in.EndLatitude, *in.EndLongitude)
	}

	var routeGeometry models.Waypoints
	if len(in.RouteWaypoints) >= 2 {
		snapInput := geo.Downsample(in.RouteWaypoints, 100)
		if snapped := w.RoadSnapper.Snap(ctx, snapInput); snapped != nil {
			routeGeometry = snapped
		}
	}

	trip := &models.Trip{
		UserID:          in.UserID,
		VehicleID:       in.VehicleID,
		Date:            in.StartTime.Format("2006-01-02"),
		StartTime:       in.StartTime.Format("15:04"),
		EndTime:         in.EndTime.Format("15:04"),
		StartLocation:   in.StartLocation,
		EndLocation:     endLocation,
		StartOdometerKm: roundTo1Decimal(startOdo),
		EndOdometerKm:   roundTo1Decimal(endOdo),
		DistanceKm:      roundTo1Decimal(dist.km),
		TripType:        tripType,
		AutoLogged:      true,
		RouteCoordinates: in.RouteWaypoints,
		RouteGeometry:    routeGeometry,
		Notes:            notesFor(dist.source, in.Reason),
	}
	if in.StartLatitude != nil {
		trip.StartLatitude = *in.StartLatitude
	}
	if in.StartLongitude != nil {
		trip.StartLongitude = *in.StartLongitude
	}
	if in.EndLatitude != nil {
		trip.EndLatitude = *in.EndLatitude
	}
	if in.EndLongitude != nil {
		trip.EndLongitude = *in.EndLongitude
	}

	if err := w.Trips.Append(ctx, trip); err != nil {
		return nil, err
	}

	if trip.EndOdometerKm > vehicle.CurrentOdometerKm {
		if err := w.Vehicles.UpdateOdometerAndBattery(ctx, in.VehicleID, trip.EndOdometerKm, vehicle.BatteryLevel); err != nil {
			return trip, err
		}
	}

	return trip, nil
}
