// Package geo provides the pure, dependency-free geometry helpers the trip
// detection core builds on: great-circle distance, geofence containment,
// and route downsampling.
package geo

import (
	"math"

	"github.com/drivelog/tripcore/pkg/models"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Inside reports whether point (lat, lon) falls within fence's radius.
func Inside(lat, lon float64, fence models.Geofence) bool {
	return Haversine(lat, lon, fence.CenterLat, fence.CenterLon) <= fence.RadiusMeters
}

// FindMatchingFence returns the first fence (in insertion order) containing
// the point, or false if none match.
func FindMatchingFence(lat, lon float64, fences []models.Geofence) (models.Geofence, bool) {
	for _, f := range fences {
		if Inside(lat, lon, f) {
			return f, true
		}
	}
	return models.Geofence{}, false
}

// Downsample reduces points to at most maxPoints, always keeping the first
// and last point and evenly spacing the rest. Idempotent: downsampling an
// already-downsampled set to the same maxPoints is a no-op.
func Downsample(points []models.Waypoint, maxPoints int) []models.Waypoint {
	n := len(points)
	if n <= maxPoints || maxPoints < 2 {
		return points
	}

	out := make([]models.Waypoint, maxPoints)
	out[0] = points[0]
	out[maxPoints-1] = points[n-1]

	for i := 1; i < maxPoints-1; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(maxPoints-1)))
		out[i] = points[idx]
	}

	return out
}
