package model

import "time"

// MaxEventAreas is the number of geofence slots an event can configure.
const MaxEventAreas = 3

// DefaultRadiusKm applies to an area configured without a radius.
const DefaultRadiusKm = 1.0

// GeofenceArea is a circular region in which trading is allowed.
// An area counts only when both Lat and Lng are set.
type GeofenceArea struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	RadiusKm *float64 `json:"radius_km,omitempty"`
}

// Configured reports whether the area has a usable center.
func (a GeofenceArea) Configured() bool {
	return a.Lat != nil && a.Lng != nil
}

// Radius returns the area radius in kilometres, defaulting when unset.
func (a GeofenceArea) Radius() float64 {
	if a.RadiusKm == nil {
		return DefaultRadiusKm
	}
	return *a.RadiusKm
}

// Window is a time range with optional bounds. A nil bound is open.
type Window struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window (inclusive).
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

// Event is a live event with its own goods catalog and trading rules.
type Event struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ArtistName   string         `json:"artist_name,omitempty"`
	Venue        string         `json:"venue,omitempty"`
	EventDate    *time.Time     `json:"event_date,omitempty"`
	Active       bool           `json:"is_active"`
	Areas        []GeofenceArea `json:"areas"`
	Registration Window         `json:"registration"`
	Trade        Window         `json:"trade"`
	CreatedAt    time.Time      `json:"created_at"`
}
