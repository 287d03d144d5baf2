// Package reconstruct implements the offline trip reconstructor: an
// on-demand pass over a VIN's historical telemetry that rebuilds any trips
// the live dispatcher/state-machine path missed, while never duplicating
// ones it already logged.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/drivelog/tripcore/internal/geo"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/tripwriter"
	"github.com/drivelog/tripcore/pkg/models"
)

// ErrNoEvents is returned when the lookback window carries no telemetry at
// all for the VIN.
var ErrNoEvents = errors.New("reconstruct: no events in window")

const (
	defaultSinceHours = 24

	// movedThresholdMeters is the GPS-jitter floor for "driving" during
	// reconstruction — looser than the live state machine's 30m start
	// threshold because the reconstructor has no trip-in-progress concept
	// to gate on; it is purely per-event classification.
	movedThresholdMeters = 50
	// segmentCloseGap is how long a non-driving gap must persist before a
	// segment is considered finished rather than tentatively continuing.
	segmentCloseGap = 2 * time.Minute
	// waypointMinGapMeters is the minimum distance from the last stored
	// waypoint for a new point to be appended to a segment's route.
	waypointMinGapMeters = 20
)

// EventLister is the subset of internal/eventstore.Store the reconstructor
// reads from.
type EventLister interface {
	ListByVin(ctx context.Context, vin string, since time.Time) ([]models.TelemetryEvent, error)
}

// ConnectionGetter resolves the VehicleID backing a (userID, vin) pair.
type ConnectionGetter interface {
	GetByVin(ctx context.Context, userID, vin string) (*models.VehicleConnection, error)
}

// TripLister is the duplicate-check lookup against already-logged trips.
type TripLister interface {
	ListByVehicleAndDate(ctx context.Context, vehicleID, date string) ([]models.Trip, error)
}

// TripWriter is the subset of internal/tripwriter.Writer the reconstructor
// drives. A narrow interface so segmentation/dedup logic is testable
// without standing up the full collaborator stack.
type TripWriter interface {
	Write(ctx context.Context, in tripwriter.Input) (*models.Trip, error)
}

// Reconstructor rebuilds trips from historical events on demand.
type Reconstructor struct {
	Events      EventLister
	Connections ConnectionGetter
	Trips       TripLister
	Writer      TripWriter
	Logger      *logging.Logger
}

// SegmentDetail is one diagnostic line in a Result — one per candidate
// segment found during the walk, whatever its outcome.
type SegmentDetail struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DistanceKm float64   `json:"distance_km"`
	Outcome    string    `json:"outcome"`
}

// Result is the operator-facing output of a reconstruction run.
type Result struct {
	TripsCreated int             `json:"trips_created"`
	Details      []SegmentDetail `json:"details"`
}

// segment accumulates the driving-state observed while a candidate trip
// segment is open.
type segment struct {
	startTime     time.Time
	endTime       time.Time
	startOdometer *float64
	endOdometer   *float64
	startLat      *float64
	startLon      *float64
	endLat        *float64
	endLon        *float64
	waypoints     models.Waypoints
	lastDrivingAt time.Time
}

// walkState is the rolling "last observed" snapshot used to derive
// per-event driving signals — the reconstructor's analogue of the state
// machine's VehicleConnection.Last* fields, scoped to one reconstruction
// pass instead of persisted.
type walkState struct {
	lat *float64
	lon *float64
	odo *float64
}

// Run reconstructs missed trips for (userID, vin) over the last sinceHours
// (default 24 if <= 0), returning how many trips it created and a
// diagnostic line per candidate segment it considered.
func (r *Reconstructor) Run(ctx context.Context, userID, vin string, sinceHours int) (*Result, error) {
	if sinceHours <= 0 {
		sinceHours = defaultSinceHours
	}
	since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)

	events, err := r.Events.ListByVin(ctx, vin, since)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: list events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	conn, err := r.Connections.GetByVin(ctx, userID, vin)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: lookup connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("reconstruct: no connection established for vin %s", vin)
	}

	segments := walkSegments(events)

	start := time.Now()
	result := &Result{}
	for _, seg := range segments {
		detail, created := r.resolveSegment(ctx, userID, conn.VehicleID, seg)
		result.Details = append(result.Details, detail)
		if created {
			result.TripsCreated++
		}
	}
	r.Logger.LogJobExecution("reconstruct:"+vin, time.Since(start), nil)
	return result, nil
}

// walkSegments is the pure segmentation step (spec algorithm steps 3-6): it
// never touches storage, so it's unit-testable against a fixed event slice.
func walkSegments(events []models.TelemetryEvent) []segment {
	var segments []segment
	var current *segment
	state := walkState{}

	for i := range events {
		e := &events[i]
		driving := isDriving(state, e)

		if driving {
			if current == nil {
				current = &segment{
					startTime:     e.CreatedAt,
					startOdometer: e.OdometerKm,
					startLat:      e.Latitude,
					startLon:      e.Longitude,
				}
			}
			current.endTime = e.CreatedAt
			current.lastDrivingAt = e.CreatedAt
			if e.OdometerKm != nil {
				current.endOdometer = e.OdometerKm
			}
			if e.Latitude != nil && e.Longitude != nil {
				current.endLat = e.Latitude
				current.endLon = e.Longitude
				appendWaypoint(current, *e.Latitude, *e.Longitude)
			}
		} else if current != nil {
			if e.CreatedAt.Sub(current.lastDrivingAt) >= segmentCloseGap {
				segments = append(segments, *current)
				current = nil
			}
			// Else: tentatively keep the segment open across a short gap.
		}

		state = advance(state, e)
	}
	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}

// isDriving derives the per-event driving classification from spec.md
// §4.8 step 3: shiftDriving-not-stale, positive speed, GPS movement beyond
// the jitter floor since the last fix, or an odometer delta over 0.1km.
func isDriving(state walkState, e *models.TelemetryEvent) bool {
	shiftDriving := e.ShiftState != nil &&
		(*e.ShiftState == models.ShiftDrive || *e.ShiftState == models.ShiftReverse || *e.ShiftState == models.ShiftNeutral)
	offline := e.VehicleState != nil && (*e.VehicleState == models.VehicleOffline || *e.VehicleState == models.VehicleAsleep)
	staleShift := shiftDriving && offline && (e.Speed == nil || *e.Speed == 0)
	if staleShift {
		shiftDriving = false
	}

	if shiftDriving {
		return true
	}
	if e.Speed != nil && *e.Speed > 0 {
		return true
	}
	if state.lat != nil && state.lon != nil && e.Latitude != nil && e.Longitude != nil {
		if geo.Haversine(*state.lat, *state.lon, *e.Latitude, *e.Longitude) > movedThresholdMeters {
			return true
		}
	}
	if state.odo != nil && e.OdometerKm != nil && *e.OdometerKm-*state.odo > 0.1 {
		return true
	}
	return false
}

func advance(state walkState, e *models.TelemetryEvent) walkState {
	if e.Latitude != nil && e.Longitude != nil {
		state.lat, state.lon = e.Latitude, e.Longitude
	}
	if e.OdometerKm != nil {
		state.odo = e.OdometerKm
	}
	return state
}

func appendWaypoint(seg *segment, lat, lon float64) {
	if len(seg.waypoints) > 0 {
		last := seg.waypoints[len(seg.waypoints)-1]
		if geo.Haversine(last.Latitude, last.Longitude, lat, lon) < waypointMinGapMeters {
			return
		}
	}
	seg.waypoints = append(seg.waypoints, models.Waypoint{Latitude: lat, Longitude: lon})
}

// segmentDistance mirrors the tripwriter's odometer-first/GPS-fallback
// decision tree so the reconstructor can apply the same discard threshold
// before bothering with the duplicate check.
func segmentDistance(seg segment) (km float64, known bool) {
	if seg.startOdometer != nil && seg.endOdometer != nil && *seg.endOdometer > *seg.startOdometer {
		return *seg.endOdometer - *seg.startOdometer, true
	}
	if seg.startLat != nil && seg.startLon != nil && seg.endLat != nil && seg.endLon != nil {
		return geo.Haversine(*seg.startLat, *seg.startLon, *seg.endLat, *seg.endLon) / 1000, true
	}
	return 0, false
}

func (r *Reconstructor) resolveSegment(ctx context.Context, userID, vehicleID string, seg segment) (SegmentDetail, bool) {
	detail := SegmentDetail{StartTime: seg.startTime, EndTime: seg.endTime}

	km, known := segmentDistance(seg)
	detail.DistanceKm = km
	if !known || km < tripwriter.MinDistanceKm {
		detail.Outcome = "skipped: distance below minimum"
		return detail, false
	}

	date := seg.startTime.Format("2006-01-02")
	existing, err := r.Trips.ListByVehicleAndDate(ctx, vehicleID, date)
	if err != nil {
		detail.Outcome = fmt.Sprintf("error: duplicate check failed: %v", err)
		return detail, false
	}
	if dup, reason := duplicateOf(seg, existing); dup {
		detail.Outcome = "skipped: already logged (" + reason + ")"
		return detail, false
	}

	in := tripwriter.Input{
		UserID:          userID,
		VehicleID:       vehicleID,
		StartTime:       seg.startTime,
		StartOdometerKm: seg.startOdometer,
		StartLatitude:   seg.startLat,
		StartLongitude:  seg.startLon,
		EndTime:         seg.endTime,
		EndOdometerKm:   seg.endOdometer,
		EndLatitude:     seg.endLat,
		EndLongitude:    seg.endLon,
		RouteWaypoints:  seg.waypoints,
		Reason:          models.EndReasonManual,
	}

	trip, err := r.Writer.Write(ctx, in)
	if err != nil {
		detail.Outcome = fmt.Sprintf("error: %v", err)
		return detail, false
	}
	if trip == nil {
		detail.Outcome = "skipped: distance below minimum"
		return detail, false
	}
	detail.Outcome = "created"
	return detail, true
}

// duplicateOf implements the three dedup rules from spec.md §4.8 step 7.
func duplicateOf(seg segment, existing []models.Trip) (bool, string) {
	startHHMM := seg.startTime.Format("15:04")
	for _, t := range existing {
		if !t.AutoLogged {
			continue
		}
		if t.StartTime == startHHMM {
			return true, "same start time"
		}
		if seg.startOdometer != nil && seg.endOdometer != nil &&
			odometerIntervalsOverlap(*seg.startOdometer, *seg.endOdometer, t.StartOdometerKm, t.EndOdometerKm) {
			return true, "odometer overlap"
		}
		if timeIntervalsOverlap(seg.startTime.Format("15:04"), seg.endTime.Format("15:04"), t.StartTime, t.EndTime) {
			return true, "time overlap"
		}
	}
	return false, ""
}

func odometerIntervalsOverlap(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart <= bEnd && bStart <= aEnd
}

func timeIntervalsOverlap(aStart, aEnd, bStart, bEnd string) bool {
	return aStart <= bEnd && bStart <= aEnd
}
