// Package dispatcher drains unprocessed telemetry events and feeds them,
// ordered and serialized per VIN, into the trip state machine.
package dispatcher

import (
	"context"
	"sort"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/statemachine"
	"github.com/drivelog/tripcore/pkg/models"
)

// BatchSize caps how many unprocessed events a single tick drains, per
// spec.md's backpressure rule.
const BatchSize = 100

// EventStore is the subset of internal/eventstore.Store the dispatcher needs.
type EventStore interface {
	ListUnprocessed(ctx context.Context, limit int) ([]models.TelemetryEvent, error)
	MarkProcessed(ctx context.Context, ids []string) error
}

// ConnectionStore is the subset of internal/connection.Store the dispatcher
// needs.
type ConnectionStore interface {
	GetByVin(ctx context.Context, userID, vin string) (*models.VehicleConnection, error)
	Upsert(ctx context.Context, conn *models.VehicleConnection) error
}

// Locker is the subset of internal/connection.Locker the dispatcher needs.
type Locker interface {
	TryLock(ctx context.Context, vin string) (string, bool, error)
	Release(ctx context.Context, vin, token string) error
}

type vinKey struct {
	userID string
	vin    string
}

// Dispatcher partitions unprocessed events by VIN and runs each partition
// through the state machine under a per-VIN lock.
type Dispatcher struct {
	Events      EventStore
	Connections ConnectionStore
	Locker      Locker
	Machine     *statemachine.Machine
	Logger      *logging.Logger
}

// Tick drains one batch of unprocessed events and processes them.
func (d *Dispatcher) Tick(ctx context.Context) error {
	events, err := d.Events.ListUnprocessed(ctx, BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	groups := make(map[vinKey][]models.TelemetryEvent)
	var order []vinKey
	for _, e := range events {
		k := vinKey{userID: e.UserID, vin: e.VIN}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	for _, k := range order {
		d.processVin(ctx, k, groups[k])
	}
	return nil
}

func (d *Dispatcher) processVin(ctx context.Context, k vinKey, events []models.TelemetryEvent) {
	token, ok, err := d.Locker.TryLock(ctx, k.vin)
	if err != nil || !ok {
		return
	}
	defer func() {
		if err := d.Locker.Release(ctx, k.vin, token); err != nil {
			d.Logger.Warn("dispatcher: lock release failed", "vin", k.vin, "error", err)
		}
	}()

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	conn, err := d.Connections.GetByVin(ctx, k.userID, k.vin)
	if err != nil {
		d.Logger.Error("dispatcher: load connection failed", "vin", k.vin, "error", err)
		return
	}
	if conn == nil {
		// No established connection owns this VIN's telemetry yet: the
		// unknown-VIN contract is discard, not park-and-retry, or these
		// events would wedge the front of the queue forever.
		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		d.Logger.Warn("dispatcher: no connection for vin, discarding events", "vin", k.vin, "count", len(ids))
		if err := d.Events.MarkProcessed(ctx, ids); err != nil {
			d.Logger.Error("dispatcher: mark processed failed for unknown-vin discard", "vin", k.vin, "error", err)
		}
		return
	}

	for i := range events {
		e := &events[i]
		trip, err := d.Machine.Apply(ctx, conn, e)
		if err != nil {
			d.Logger.Error("dispatcher: state machine apply failed, stopping vin", "vin", k.vin, "event_id", e.ID, "error", err)
			break
		}
		if err := d.Connections.Upsert(ctx, conn); err != nil {
			d.Logger.Error("dispatcher: persist connection failed, stopping vin", "vin", k.vin, "event_id", e.ID, "error", err)
			break
		}
		if err := d.Events.MarkProcessed(ctx, []string{e.ID}); err != nil {
			d.Logger.Error("dispatcher: mark processed failed, stopping vin", "vin", k.vin, "event_id", e.ID, "error", err)
			break
		}
		if trip != nil {
			d.Logger.LogTripTransition(k.vin, "trip_ended", map[string]interface{}{"trip_id": trip.ID, "distance_km": trip.DistanceKm})
		}
	}
}
