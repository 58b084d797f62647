// Package presence keeps the participant active flag in line with geofence
// membership and recent activity. Only active participants are offered as
// trade candidates.
package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/menjava/internal/geo"
	"github.com/erazemk/menjava/internal/metrics"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

// ErrUnknownParticipant is returned for updates about a participant that
// does not exist.
var ErrUnknownParticipant = errors.New("participant not found")

// Transition is the outcome of a location update.
type Transition struct {
	ParticipantID string `json:"participant_id"`
	Active        bool   `json:"is_active"`
	Changed       bool   `json:"changed"`
	LocationKnown bool   `json:"location_known"`
	InArea        bool   `json:"in_area"`
}

// Tracker evaluates location updates. Notifier and Metrics may be nil.
type Tracker struct {
	DB       *sql.DB
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// UpdateLocation records a position sample and sets the active flag. The
// flag is written only when it actually changes. A (0,0) sample means the
// position is unknown: the stored coordinates are kept and the participant
// is not rejected by the geofence.
func (t *Tracker) UpdateLocation(ctx context.Context, participantID string, lat, lng float64) (*Transition, error) {
	p, err := store.GetParticipant(ctx, t.DB, participantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrUnknownParticipant
	}

	now := t.now()
	tr := &Transition{ParticipantID: participantID, LocationKnown: geo.Known(lat, lng)}

	if tr.LocationKnown {
		err = store.SetParticipantLocation(ctx, t.DB, participantID, lat, lng, now)
	} else {
		err = store.TouchParticipant(ctx, t.DB, participantID, now)
	}
	if err != nil {
		return nil, err
	}

	if p.EventID != "" {
		event, err := store.GetEvent(ctx, t.DB, p.EventID)
		if err != nil {
			return nil, err
		}
		if event != nil && event.Active {
			tr.InArea = !tr.LocationKnown || geo.IsWithinEventArea(lat, lng, event.Areas)
		}
	}
	tr.Active = tr.InArea

	tr.Changed, err = store.SetParticipantActive(ctx, t.DB, participantID, tr.Active)
	if err != nil {
		return nil, err
	}

	if tr.Changed {
		t.Metrics.PresenceFlip(tr.Active)
		slog.Info("presence changed", "participant", participantID, "active", tr.Active)
		if t.Notifier != nil {
			ev := notify.NewEvent(notify.TypeInventoryChanged, nil)
			ev.EventID = p.EventID
			ev.ParticipantID = participantID
			t.Notifier.NotifyEvent(ctx, p.EventID, ev)
		}
	}
	return tr, nil
}

// SweepIdle deactivates participants not seen within idleAfter and returns
// their ids.
func (t *Tracker) SweepIdle(ctx context.Context, idleAfter time.Duration) ([]string, error) {
	ids, err := store.DeactivateIdleParticipants(ctx, t.DB, t.now().Add(-idleAfter))
	if err != nil {
		return nil, fmt.Errorf("sweeping idle participants: %w", err)
	}
	for range ids {
		t.Metrics.PresenceFlip(false)
	}
	if len(ids) > 0 {
		slog.Info("deactivated idle participants", "count", len(ids))
	}
	return ids, nil
}

// Run sweeps idle participants every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval, idleAfter time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := t.SweepIdle(ctx, idleAfter); err != nil {
				slog.Error("idle sweep failed", "error", err)
			}
		}
	}
}
