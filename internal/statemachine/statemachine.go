// Package statemachine implements the per-VIN trip lifecycle: it consumes
// one normalized telemetry event at a time against a VehicleConnection and
// decides whether to start, extend, or end a trip.
package statemachine

import (
	"context"
	"time"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/geo"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/tripwriter"
	"github.com/drivelog/tripcore/pkg/models"
)

// movedThresholdMeters is the jitter filter: a GPS move at or below this
// distance never starts a trip on its own.
const movedThresholdMeters = 30

// waypointMinGapMeters is the minimum distance between consecutive stored
// route waypoints while a trip is in progress.
const waypointMinGapMeters = 15

// Config holds the timing knobs that drive the transition rules.
type Config struct {
	GPSSilence time.Duration // rule 1: EndTrip(gps_timeout) threshold
	StaleTrip  time.Duration // rule 3: EndTrip(stale) threshold
}

// Machine evaluates telemetry events against connection state.
type Machine struct {
	Config     Config
	Geocoder   collaborators.Geocoder
	Vehicles   collaborators.VehicleStore
	TripWriter *tripwriter.Writer
	Logger     *logging.Logger

	// Upstream and AutoEnrich back the optional best-effort enrichment of
	// state-only events (no GPS/odometer/shift, just a vehicle-state ping):
	// when AutoEnrich is true and Upstream is set, a state-only event also
	// triggers a pull of the vendor's current odometer/battery snapshot. Off
	// by default — never required for correct trip detection.
	Upstream   collaborators.UpstreamProvider
	AutoEnrich bool
}

type signals struct {
	hasGps      bool
	movedMeters float64
	odoDeltaKm  float64
	shiftDriving bool
	shiftParked  bool
	offline      bool
	stateOnly    bool
	isDriving    bool
	isParked     bool
}

func deriveSignals(conn *models.VehicleConnection, e *models.TelemetryEvent) signals {
	s := signals{}
	s.hasGps = e.Latitude != nil && e.Longitude != nil

	if s.hasGps && conn.LastLatitude != nil && conn.LastLongitude != nil {
		s.movedMeters = geo.Haversine(*conn.LastLatitude, *conn.LastLongitude, *e.Latitude, *e.Longitude)
	}

	if e.OdometerKm != nil && conn.LastOdometerKm != nil {
		s.odoDeltaKm = *e.OdometerKm - *conn.LastOdometerKm
	}

	if e.ShiftState != nil {
		switch *e.ShiftState {
		case models.ShiftDrive, models.ShiftReverse, models.ShiftNeutral:
			s.shiftDriving = true
		case models.ShiftPark, models.ShiftSNA:
			s.shiftParked = true
		}
	}

	s.offline = e.VehicleState != nil && (*e.VehicleState == models.VehicleOffline || *e.VehicleState == models.VehicleAsleep)
	s.stateOnly = !s.hasGps && e.OdometerKm == nil && e.ShiftState == nil

	s.isDriving = !s.offline && (s.shiftDriving ||
		(e.ShiftState == nil && (s.movedMeters > 50 || (e.Speed != nil && *e.Speed > 0) || s.odoDeltaKm > 0.1)))
	s.isParked = s.offline || s.shiftParked || (e.ShiftState == nil && !s.isDriving)

	return s
}

// Apply evaluates e against conn, mutating conn in place, and returns any
// Trip that was persisted as a side effect of ending a trip.
func (m *Machine) Apply(ctx context.Context, conn *models.VehicleConnection, e *models.TelemetryEvent) (*models.Trip, error) {
	sig := deriveSignals(conn, e)

	if sig.stateOnly {
		conn.LastPolledAt = &e.CreatedAt
		if sig.offline {
			ds := models.DriveStateAsleep
			conn.LastDriveState = &ds
		}
		m.autoEnrich(ctx, conn, e.VIN)
		if conn.TripInProgress() && conn.LastGpsAt != nil && e.CreatedAt.Sub(*conn.LastGpsAt) >= m.Config.GPSSilence {
			return m.endTrip(ctx, conn, e.CreatedAt, models.EndReasonGpsTimeout)
		}
		return nil, nil
	}

	// Rule 2: always-update snapshot.
	conn.LastPolledAt = &e.CreatedAt
	if e.OdometerKm != nil {
		conn.LastOdometerKm = e.OdometerKm
	}
	if e.Latitude != nil {
		conn.LastLatitude = e.Latitude
	}
	if e.Longitude != nil {
		conn.LastLongitude = e.Longitude
	}
	if e.ShiftState != nil {
		conn.LastShiftState = e.ShiftState
	}
	if sig.hasGps {
		conn.LastGpsAt = &e.CreatedAt
	}
	m.pushVehicleUpdate(ctx, conn, e)

	var trip *models.Trip

	// Rule 3: stale-trip guard. Non-terminal: processing continues with the
	// same event after the trip is closed.
	if conn.TripInProgress() && e.CreatedAt.Sub(*conn.TripStartTime) > m.Config.StaleTrip {
		t, err := m.endTrip(ctx, conn, e.CreatedAt, models.EndReasonStale)
		if err != nil {
			return nil, err
		}
		trip = t
	}

	// Rule 4: shift to Park during a trip.
	if conn.TripInProgress() && e.ShiftState != nil && *e.ShiftState == models.ShiftPark {
		t, err := m.endTrip(ctx, conn, e.CreatedAt, models.EndReasonShiftedToPark)
		if err != nil {
			return nil, err
		}
		return firstNonNil(trip, t), nil
	}

	// Rule 5: trip start.
	if !conn.TripInProgress() && sig.hasGps && sig.movedMeters > movedThresholdMeters {
		m.startTrip(ctx, conn, e)
		return trip, nil
	}

	// Rule 6: trip extend.
	if conn.TripInProgress() && sig.hasGps {
		m.extendTrip(conn, e)
		return trip, nil
	}

	// Rule 7: offline while a trip is in progress.
	if conn.TripInProgress() && sig.offline {
		t, err := m.endTrip(ctx, conn, e.CreatedAt, models.EndReasonOffline)
		if err != nil {
			return nil, err
		}
		return firstNonNil(trip, t), nil
	}

	// Rule 8: otherwise, the snapshot update above is all that's needed.
	return trip, nil
}

func firstNonNil(trips ...*models.Trip) *models.Trip {
	for _, t := range trips {
		if t != nil {
			return t
		}
	}
	return nil
}

func (m *Machine) startTrip(ctx context.Context, conn *models.VehicleConnection, e *models.TelemetryEvent) {
	startLocation := m.Geocoder.ReverseGeocode(ctx, *e.Latitude, *e.Longitude)

	startTime := e.CreatedAt
	conn.TripStartTime = &startTime
	conn.TripStartOdometerKm = e.OdometerKm
	lat, lon := *e.Latitude, *e.Longitude
	conn.TripStartLatitude = &lat
	conn.TripStartLongitude = &lon
	conn.TripStartLocation = &startLocation
	conn.RouteWaypoints = models.Waypoints{{Latitude: lat, Longitude: lon}}
	conn.ParkedSince = nil
	conn.IdleSince = nil
}

func (m *Machine) extendTrip(conn *models.VehicleConnection, e *models.TelemetryEvent) {
	point := models.Waypoint{Latitude: *e.Latitude, Longitude: *e.Longitude}
	if len(conn.RouteWaypoints) == 0 {
		conn.RouteWaypoints = append(conn.RouteWaypoints, point)
	} else {
		last := conn.RouteWaypoints[len(conn.RouteWaypoints)-1]
		if geo.Haversine(last.Latitude, last.Longitude, point.Latitude, point.Longitude) >= waypointMinGapMeters {
			conn.RouteWaypoints = append(conn.RouteWaypoints, point)
		}
	}
	conn.ParkedSince = nil
}

// EndTrip closes conn's in-progress trip for reason, handing off to the trip
// writer. Exported for the reaper, which ends stale trips outside the normal
// per-event flow.
func (m *Machine) EndTrip(ctx context.Context, conn *models.VehicleConnection, now time.Time, reason models.EndReason) (*models.Trip, error) {
	return m.endTrip(ctx, conn, now, reason)
}

func (m *Machine) endTrip(ctx context.Context, conn *models.VehicleConnection, now time.Time, reason models.EndReason) (*models.Trip, error) {
	var startLocation string
	if conn.TripStartLocation != nil {
		startLocation = *conn.TripStartLocation
	}

	in := tripwriter.Input{
		UserID:         conn.UserID,
		VehicleID:      conn.VehicleID,
		StartTime:      *conn.TripStartTime,
		StartOdometerKm: conn.TripStartOdometerKm,
		StartLatitude:  conn.TripStartLatitude,
		StartLongitude: conn.TripStartLongitude,
		StartLocation:  startLocation,
		EndTime:        now,
		EndOdometerKm:  conn.LastOdometerKm,
		EndLatitude:    conn.LastLatitude,
		EndLongitude:   conn.LastLongitude,
		RouteWaypoints: conn.RouteWaypoints,
		Reason:         reason,
	}

	trip, err := m.TripWriter.Write(ctx, in)
	if err != nil {
		return nil, err
	}

	conn.ClearTrip()
	parked := models.DriveStateParked
	conn.LastDriveState = &parked
	conn.IdleSince = &now
	conn.ConsecutiveErrors = 0

	return trip, nil
}

// autoEnrich pulls the vendor's current odometer/battery snapshot for a
// state-only event, when enabled. Best-effort: a failed or slow fetch is
// logged and swallowed, never blocks dispatcher processing.
func (m *Machine) autoEnrich(ctx context.Context, conn *models.VehicleConnection, vin string) {
	if !m.AutoEnrich || m.Upstream == nil || m.Vehicles == nil {
		return
	}

	snapshot, err := m.Upstream.FetchVehicleData(ctx, vin)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("statemachine: auto-enrich fetch failed", "vin", vin, "error", err)
		}
		return
	}
	if snapshot.OdometerKm == nil && snapshot.ChargeLevel == nil {
		return
	}

	vehicle, err := m.Vehicles.Get(ctx, conn.VehicleID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("statemachine: auto-enrich load vehicle failed", "vehicle_id", conn.VehicleID, "error", err)
		}
		return
	}

	odometer := vehicle.CurrentOdometerKm
	if snapshot.OdometerKm != nil && *snapshot.OdometerKm > odometer {
		odometer = *snapshot.OdometerKm
	}
	battery := vehicle.BatteryLevel
	if snapshot.ChargeLevel != nil {
		battery = *snapshot.ChargeLevel
	}
	if odometer == vehicle.CurrentOdometerKm && battery == vehicle.BatteryLevel {
		return
	}
	if err := m.Vehicles.UpdateOdometerAndBattery(ctx, conn.VehicleID, odometer, battery); err != nil && m.Logger != nil {
		m.Logger.Error("statemachine: auto-enrich update vehicle failed", "vehicle_id", conn.VehicleID, "error", err)
	}
}

// pushVehicleUpdate forwards the latest odometer/battery reading to the
// vehicle store. Odometer is monotonic: only a strictly greater reading
// overwrites. Failures are logged and swallowed — this is a best-effort
// enrichment, not part of the durable event-processing path.
func (m *Machine) pushVehicleUpdate(ctx context.Context, conn *models.VehicleConnection, e *models.TelemetryEvent) {
	if m.Vehicles == nil || (e.OdometerKm == nil && e.BatteryLevel == nil) {
		return
	}

	vehicle, err := m.Vehicles.Get(ctx, conn.VehicleID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("statemachine: push vehicle update: load vehicle failed", "vehicle_id", conn.VehicleID, "error", err)
		}
		return
	}

	odometer := vehicle.CurrentOdometerKm
	if e.OdometerKm != nil && *e.OdometerKm > odometer {
		odometer = *e.OdometerKm
	}
	battery := vehicle.BatteryLevel
	if e.BatteryLevel != nil {
		battery = *e.BatteryLevel
	}
	if odometer == vehicle.CurrentOdometerKm && battery == vehicle.BatteryLevel {
		return
	}

	if err := m.Vehicles.UpdateOdometerAndBattery(ctx, conn.VehicleID, odometer, battery); err != nil {
		if m.Logger != nil {
			m.Logger.Error("statemachine: push vehicle update failed", "vehicle_id", conn.VehicleID, "error", err)
		}
	}
}
