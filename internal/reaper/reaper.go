// Package reaper runs the two housekeeping loops spec.md §4.7 describes:
// closing stale in-progress trips, and purging old telemetry events.
package reaper

import (
	"context"
	"time"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/statemachine"
	"github.com/drivelog/tripcore/pkg/models"
)

// GPSTimeout is the reaper's own stale-GPS threshold, independent of the
// state machine's rule-1 check (the reaper catches connections that never
// see another event at all).
const GPSTimeout = 3 * time.Minute

// StaleTripAge closes any trip that has been open this long regardless of
// GPS activity.
const StaleTripAge = 12 * time.Hour

// ConnectionLister is the subset of internal/connection.Store the reaper
// needs to find its working set.
type ConnectionLister interface {
	ListActiveWithTripInProgress(ctx context.Context) ([]models.VehicleConnection, error)
	Upsert(ctx context.Context, conn *models.VehicleConnection) error
}

// EventPurger is the subset of internal/eventstore.Store the retention loop
// needs.
type EventPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper ends stale trips and purges old events.
type Reaper struct {
	Connections ConnectionLister
	Events      EventPurger
	Machine     *statemachine.Machine
	Logger      *logging.Logger
	Retention   time.Duration // event retention window, default 24h
}

// TickStaleTrips is the ~2min loop: close any in-progress trip that's gone
// GPS-silent for GPSTimeout, or simply run too long past StaleTripAge.
func (r *Reaper) TickStaleTrips(ctx context.Context) error {
	conns, err := r.Connections.ListActiveWithTripInProgress(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range conns {
		conn := &conns[i]
		var reason models.EndReason
		switch {
		case conn.LastGpsAt == nil || now.Sub(*conn.LastGpsAt) >= GPSTimeout:
			reason = models.EndReasonGpsTimeout
		case conn.TripStartTime != nil && now.Sub(*conn.TripStartTime) > StaleTripAge:
			reason = models.EndReasonStaleAge
		default:
			continue
		}

		if _, err := r.Machine.EndTrip(ctx, conn, now, reason); err != nil {
			r.Logger.Error("reaper: end stale trip failed", "vin", conn.VIN, "reason", reason, "error", err)
			continue
		}
		if err := r.Connections.Upsert(ctx, conn); err != nil {
			r.Logger.Error("reaper: persist connection after stale-trip end failed", "vin", conn.VIN, "error", err)
		}
	}
	return nil
}

// TickRetention is the ~1h loop: delete events older than Retention.
func (r *Reaper) TickRetention(ctx context.Context) error {
	retention := r.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	cutoff := time.Now().Add(-retention)
	deleted, err := r.Events.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		r.Logger.Info("reaper: purged stale events", "count", deleted, "cutoff", cutoff)
	}
	return nil
}
