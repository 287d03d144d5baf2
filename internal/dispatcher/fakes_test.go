package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/drivelog/tripcore/pkg/models"
)

type fakeEventStore struct {
	mu         sync.Mutex
	events     []models.TelemetryEvent
	processed  map[string]bool
}

func newFakeEventStore(events ...models.TelemetryEvent) *fakeEventStore {
	return &fakeEventStore{events: events, processed: make(map[string]bool)}
}

func (s *fakeEventStore) ListUnprocessed(_ context.Context, limit int) ([]models.TelemetryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TelemetryEvent
	for _, e := range s.events {
		if !s.processed[e.ID] {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeEventStore) MarkProcessed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.processed[id] = true
	}
	return nil
}

type fakeConnectionStore struct {
	mu    sync.Mutex
	byKey map[string]*models.VehicleConnection
}

func newFakeConnectionStore(conns ...*models.VehicleConnection) *fakeConnectionStore {
	s := &fakeConnectionStore{byKey: make(map[string]*models.VehicleConnection)}
	for _, c := range conns {
		s.byKey[connKey(c.UserID, c.VIN)] = c
	}
	return s
}

func connKey(userID, vin string) string { return fmt.Sprintf("%s/%s", userID, vin) }

func (s *fakeConnectionStore) GetByVin(_ context.Context, userID, vin string) (*models.VehicleConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[connKey(userID, vin)], nil
}

func (s *fakeConnectionStore) Upsert(_ context.Context, conn *models.VehicleConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[connKey(conn.UserID, conn.VIN)] = conn
	return nil
}

type fakeLocker struct{}

func (fakeLocker) TryLock(_ context.Context, _ string) (string, bool, error) { return "tok", true, nil }
func (fakeLocker) Release(_ context.Context, _, _ string) error              { return nil }
