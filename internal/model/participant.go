package model

import "time"

// Participant is an anonymous attendee identity. A device that starts a
// session gets its own Participant; two devices are two participants.
type Participant struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id,omitempty"`
	Nickname     string    `json:"nickname"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Active       bool      `json:"is_active"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}
