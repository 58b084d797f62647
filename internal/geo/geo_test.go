package geo

import (
	"math"
	"testing"

	"github.com/erazemk/menjava/internal/model"
)

func ptr(v float64) *float64 { return &v }

// kmPerDegreeLat is the haversine length of one degree of latitude.
const kmPerDegreeLat = EarthRadiusKm * math.Pi / 180

func TestDistanceKm(t *testing.T) {
	if d := DistanceKm(35, 135, 35, 135); d != 0 {
		t.Errorf("same point: expected 0, got %f", d)
	}

	d := DistanceKm(35, 135, 36, 135)
	if math.Abs(d-kmPerDegreeLat) > 0.001 {
		t.Errorf("one degree of latitude: expected %f, got %f", kmPerDegreeLat, d)
	}

	if a, b := DistanceKm(35, 135, 35.1, 135.2), DistanceKm(35.1, 135.2, 35, 135); math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestNoAreasIsUnrestricted(t *testing.T) {
	points := [][2]float64{{0, 0}, {35, 135}, {-89.9, 179.9}, {51.5, -0.12}}

	areaSets := [][]model.GeofenceArea{
		nil,
		{},
		// A radius without a center is not a configured area.
		{{RadiusKm: ptr(5)}},
		{{Lat: ptr(35)}, {Lng: ptr(135), RadiusKm: ptr(2)}},
	}

	for _, areas := range areaSets {
		for _, p := range points {
			if !IsWithinEventArea(p[0], p[1], areas) {
				t.Errorf("IsWithinEventArea(%v, %v) with %d unconfigured areas = false, want true", p[0], p[1], len(areas))
			}
		}
	}
}

func TestSingleArea(t *testing.T) {
	areas := []model.GeofenceArea{{Lat: ptr(35.0), Lng: ptr(135.0), RadiusKm: ptr(1.0)}}

	// 500 m north.
	if !IsWithinEventArea(35.0+0.5/kmPerDegreeLat, 135.0, areas) {
		t.Error("point 500 m away should be inside")
	}

	// 2 km north.
	if IsWithinEventArea(35.0+2.0/kmPerDegreeLat, 135.0, areas) {
		t.Error("point 2 km away should be outside")
	}

	// The (0,0) placeholder is far from the area center.
	if IsWithinEventArea(0, 0, areas) {
		t.Error("(0,0) should not be inside an area centered elsewhere")
	}
}

func TestDefaultRadius(t *testing.T) {
	areas := []model.GeofenceArea{{Lat: ptr(35.0), Lng: ptr(135.0)}}

	if !IsWithinEventArea(35.0+0.9/kmPerDegreeLat, 135.0, areas) {
		t.Error("point 900 m away should be inside the default 1 km radius")
	}
	if IsWithinEventArea(35.0+1.1/kmPerDegreeLat, 135.0, areas) {
		t.Error("point 1.1 km away should be outside the default 1 km radius")
	}
}

func TestAnyOfMultipleAreas(t *testing.T) {
	areas := []model.GeofenceArea{
		{Lat: ptr(35.0), Lng: ptr(135.0), RadiusKm: ptr(0.5)},
		{RadiusKm: ptr(100)}, // ignored: no center
		{Lat: ptr(34.7), Lng: ptr(135.5), RadiusKm: ptr(2.0)},
	}

	if !IsWithinEventArea(34.7, 135.51, areas) {
		t.Error("point near the third area should be inside")
	}
	if IsWithinEventArea(34.85, 135.25, areas) {
		t.Error("point between the areas should be outside")
	}
}

func TestKnown(t *testing.T) {
	if Known(0, 0) {
		t.Error("(0,0) should be unknown")
	}
	if !Known(0, 135) || !Known(35, 0) {
		t.Error("coordinates on one axis should be known")
	}
}
