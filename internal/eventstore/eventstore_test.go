package eventstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivelog/tripcore/internal/eventstore"
	"github.com/drivelog/tripcore/internal/testsupport"
	"github.com/drivelog/tripcore/pkg/models"
)

func newEvent(vin string, createdAt time.Time) *models.TelemetryEvent {
	return &models.TelemetryEvent{
		UserID:    "11111111-1111-1111-1111-111111111111",
		VIN:       vin,
		CreatedAt: createdAt,
		Source:    models.SourceWebhook,
		Processed: false,
	}
}

func TestAppendAndListUnprocessedOrdering(t *testing.T) {
	db, cleanup := testsupport.SetupTestDB(t)
	defer cleanup()
	store := eventstore.New(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	e1 := newEvent("VIN1", base)
	e2 := newEvent("VIN1", base.Add(time.Second))
	e3 := newEvent("VIN2", base.Add(500*time.Millisecond))

	require.NoError(t, store.Append(ctx, e3))
	require.NoError(t, store.Append(ctx, e1))
	require.NoError(t, store.Append(ctx, e2))

	got, err := store.ListUnprocessed(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, e3.ID, got[1].ID)
	assert.Equal(t, e2.ID, got[2].ID)
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	db, cleanup := testsupport.SetupTestDB(t)
	defer cleanup()
	store := eventstore.New(db)
	ctx := context.Background()

	e := newEvent("VIN1", time.Now().UTC())
	require.NoError(t, store.Append(ctx, e))

	require.NoError(t, store.MarkProcessed(ctx, []string{e.ID}))
	require.NoError(t, store.MarkProcessed(ctx, []string{e.ID}))

	remaining, err := store.ListUnprocessed(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestListByVinFiltersOnSince(t *testing.T) {
	db, cleanup := testsupport.SetupTestDB(t)
	defer cleanup()
	store := eventstore.New(db)
	ctx := context.Background()

	now := time.Now().UTC()
	old := newEvent("VIN1", now.Add(-2*time.Hour))
	recent := newEvent("VIN1", now.Add(-time.Minute))
	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, recent))

	got, err := store.ListByVin(ctx, "VIN1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}

func TestPurgeOlderThanDeletesStaleEvents(t *testing.T) {
	db, cleanup := testsupport.SetupTestDB(t)
	defer cleanup()
	store := eventstore.New(db)
	ctx := context.Background()

	now := time.Now().UTC()
	old := newEvent("VIN1", now.Add(-25*time.Hour))
	recent := newEvent("VIN1", now.Add(-time.Hour))
	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, recent))

	n, err := store.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.ListByVin(ctx, "VIN1", now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}
