// Package geofence resolves which of a user's geofences, if any, contains a
// given point — the classification primitive the trip writer and
// reconstructor both use.
package geofence

import (
	"context"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/geo"
	"github.com/drivelog/tripcore/pkg/models"
)

// Resolver classifies points against a user's geofences.
type Resolver struct {
	Store collaborators.GeofenceStore
}

func New(store collaborators.GeofenceStore) *Resolver {
	return &Resolver{Store: store}
}

// Match returns the first geofence containing (lat, lon), if any.
func (r *Resolver) Match(ctx context.Context, userID string, lat, lon float64) (models.Geofence, bool, error) {
	fences, err := r.Store.ListForUser(ctx, userID)
	if err != nil {
		return models.Geofence{}, false, err
	}
	fence, ok := MatchAmong(fences, lat, lon)
	return fence, ok, nil
}

// IsBusiness reports whether (lat, lon) falls inside a business-tagged
// geofence for userID.
func (r *Resolver) IsBusiness(ctx context.Context, userID string, lat, lon float64) (bool, error) {
	fence, ok, err := r.Match(ctx, userID, lat, lon)
	if err != nil {
		return false, err
	}
	return ok && fence.TripType == models.TripBusiness, nil
}

// MatchAmong is the store-free half of Match, for callers that already have
// a user's geofences in hand and want to check several points against the
// same list without refetching — the trip writer classifies both a trip's
// start and end point off a single fetch.
func MatchAmong(fences []models.Geofence, lat, lon float64) (models.Geofence, bool) {
	return geo.FindMatchingFence(lat, lon, fences)
}
