// Package trade runs the barter workflow: registering trade groups,
// scanning for counterparties and moving matches through their lifecycle.
package trade

import (
	"context"
	"database/sql"
	"time"

	"github.com/erazemk/menjava/internal/metrics"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

// DefaultActiveWithin is how recently a participant must have been seen to
// be offered as a candidate.
const DefaultActiveWithin = 10 * time.Minute

// Service implements the trade operations on top of the store.
type Service struct {
	DB           *sql.DB
	Notifier     notify.Notifier
	Metrics      *metrics.Metrics
	Now          func() time.Time
	ActiveWithin time.Duration
}

// NewService creates a service with default settings. notifier and m may
// be nil.
func NewService(db *sql.DB, notifier notify.Notifier, m *metrics.Metrics) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		DB:           db,
		Notifier:     notifier,
		Metrics:      m,
		Now:          time.Now,
		ActiveWithin: DefaultActiveWithin,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) notifier() notify.Notifier {
	if s.Notifier == nil {
		return notify.Nop{}
	}
	return s.Notifier
}

func (s *Service) participant(ctx context.Context, id string) (*model.Participant, error) {
	p, err := store.GetParticipant(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// eventOf returns the active event the participant selected.
func (s *Service) eventOf(ctx context.Context, p *model.Participant) (*model.Event, error) {
	if p.EventID == "" {
		return nil, ineligible("no event selected")
	}
	e, err := store.GetEvent(ctx, s.DB, p.EventID)
	if err != nil {
		return nil, err
	}
	if e == nil || !e.Active {
		return nil, ineligible("event is not active")
	}
	return e, nil
}

func (s *Service) inventoryChanged(ctx context.Context, eventID, participantID string) {
	ev := notify.NewEvent(notify.TypeInventoryChanged, nil)
	ev.EventID = eventID
	ev.ParticipantID = participantID
	s.notifier().NotifyEvent(ctx, eventID, ev)
}
