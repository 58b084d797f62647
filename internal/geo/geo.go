// Package geo evaluates event geofences.
package geo

import (
	"math"

	"github.com/erazemk/menjava/internal/model"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Known reports whether a coordinate is a real fix and not the (0,0)
// placeholder devices send without location permission.
func Known(lat, lng float64) bool {
	return lat != 0 || lng != 0
}

// Restricted reports whether any area is configured.
func Restricted(areas []model.GeofenceArea) bool {
	for _, a := range areas {
		if a.Configured() {
			return true
		}
	}
	return false
}

// IsWithinEventArea reports whether the point lies inside any configured
// area. Events with no configured areas are unrestricted.
func IsWithinEventArea(lat, lng float64, areas []model.GeofenceArea) bool {
	if !Restricted(areas) {
		return true
	}

	for _, a := range areas {
		if !a.Configured() {
			continue
		}
		if DistanceKm(lat, lng, *a.Lat, *a.Lng) <= a.Radius() {
			return true
		}
	}
	return false
}
