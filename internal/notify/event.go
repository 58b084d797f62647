// Package notify pushes change events to connected participants. Push is a
// latency optimisation: every event describes state that clients can also
// obtain by polling the API.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeInventoryChanged = "inventory_changed"
	TypeMatchCreated     = "match_created"
	TypeMatchStatus      = "match_status"
	TypeMatchMessage     = "match_message"
)

// Event is one push message. ID is unique per event so receivers can drop
// duplicates delivered by more than one path.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	EventID       string          `json:"event_id,omitempty"`
	MatchID       string          `json:"match_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an event of the given type with a fresh ID. A payload
// that fails to encode is dropped.
func NewEvent(typ string, payload any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("dropping unencodable event payload", "type", typ, "error", err)
		} else {
			ev.Payload = data
		}
	}
	return ev
}

// Notifier delivers events to one participant or to everyone at an event.
// Delivery is best effort.
type Notifier interface {
	NotifyParticipant(ctx context.Context, participantID string, ev Event)
	NotifyEvent(ctx context.Context, eventID string, ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) NotifyParticipant(context.Context, string, Event) {}
func (Nop) NotifyEvent(context.Context, string, Event)       {}
