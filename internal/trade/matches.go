package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

// MatchRequest selects a candidate from a scan.
type MatchRequest struct {
	CounterpartyID string             `json:"counterparty_id"`
	ColorCode      string             `json:"color_code"`
	Groups         []model.MatchGroup `json:"groups"`
}

var openStatuses = []string{model.MatchStatusPending, model.MatchStatusAccepted}

// CreateMatch proposes a trade to a counterparty. The selected group pairs
// must still match against current inventory.
func (s *Service) CreateMatch(ctx context.Context, requesterID string, req MatchRequest) (*model.Match, error) {
	if req.CounterpartyID == "" {
		return nil, invalid("counterparty_id is required")
	}
	if req.CounterpartyID == requesterID {
		return nil, invalid("cannot match with yourself")
	}
	if len(req.Groups) == 0 {
		return nil, invalid("at least one group pair is required")
	}
	if !matching.InPalette(req.ColorCode) {
		return nil, invalid("unknown color code %q", req.ColorCode)
	}

	p, e, err := s.tradeReady(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	other, err := s.participant(ctx, req.CounterpartyID)
	if err != nil {
		return nil, err
	}
	if other.EventID != e.ID {
		return nil, ineligible("counterparty is not at this event")
	}
	if !other.Active || other.LastActiveAt.Before(s.now().Add(-s.activeWithin())) {
		return nil, ineligible("counterparty is not available")
	}

	if err := s.checkPairs(ctx, e.ID, p.ID, other.ID, req.Groups); err != nil {
		return nil, err
	}

	m, err := store.CreateMatch(ctx, s.DB, &model.Match{
		EventID:     e.ID,
		RequesterID: p.ID,
		RecipientID: other.ID,
		ColorCode:   req.ColorCode,
		Groups:      req.Groups,
		CreatedAt:   s.now(),
	})
	if errors.Is(err, store.ErrOpenMatchExists) {
		s.Metrics.Transition(model.MatchStatusPending, false)
		existing, lerr := s.openMatchBetween(ctx, p.ID, other.ID)
		if lerr != nil {
			return nil, lerr
		}
		return nil, &ConflictError{Match: existing, Reason: "an open match with this participant already exists"}
	}
	if err != nil {
		return nil, err
	}
	s.Metrics.Transition(model.MatchStatusPending, true)

	slog.Info("match created", "match", m.ID, "requester", p.ID, "recipient", other.ID)

	ev := notify.NewEvent(notify.TypeMatchCreated, m)
	ev.EventID = m.EventID
	ev.MatchID = m.ID
	ev.Status = m.Status
	ev.ParticipantID = p.ID
	s.notifier().NotifyParticipant(ctx, other.ID, ev)
	return m, nil
}

func (s *Service) checkPairs(ctx context.Context, eventID, requesterID, recipientID string, pairs []model.MatchGroup) error {
	catalog, err := store.ActiveGoodsIDs(ctx, s.DB, eventID)
	if err != nil {
		return err
	}
	groups, err := store.ListGroupsFor(ctx, s.DB, []string{requesterID, recipientID})
	if err != nil {
		return err
	}
	mine := indexByGroup(filterGroups(groups[requesterID], eventID, catalog))
	theirs := indexByGroup(filterGroups(groups[recipientID], eventID, catalog))

	seen := map[model.MatchGroup]bool{}
	for _, pair := range pairs {
		if seen[pair] {
			return invalid("duplicate group pair %d/%d", pair.RequesterGroup, pair.RecipientGroup)
		}
		seen[pair] = true

		a, b := mine[pair.RequesterGroup], theirs[pair.RecipientGroup]
		if a == nil || b == nil {
			return &ConflictError{Reason: fmt.Sprintf("group pair %d/%d no longer exists", pair.RequesterGroup, pair.RecipientGroup)}
		}
		if _, _, ok := matching.MatchGroups(a, b); !ok {
			return &ConflictError{Reason: fmt.Sprintf("group pair %d/%d no longer matches", pair.RequesterGroup, pair.RecipientGroup)}
		}
	}
	return nil
}

func indexByGroup(groups []model.TradeGroup) map[int]*model.TradeGroup {
	out := make(map[int]*model.TradeGroup, len(groups))
	for i := range groups {
		out[groups[i].Index] = &groups[i]
	}
	return out
}

func (s *Service) openMatchBetween(ctx context.Context, a, b string) (*model.Match, error) {
	matches, err := store.ListMatches(ctx, s.DB, a, "")
	if err != nil {
		return nil, err
	}
	for i := range matches {
		m := &matches[i]
		if model.MatchOpen(m.Status) && m.Involves(b) {
			return m, nil
		}
	}
	return nil, nil
}

// GetMatch returns a match the caller is a party to.
func (s *Service) GetMatch(ctx context.Context, matchID, by string) (*model.Match, error) {
	m, err := store.GetMatch(ctx, s.DB, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if !m.Involves(by) {
		return nil, ErrForbidden
	}
	return m, nil
}

// ListMatches returns the caller's matches, newest first. An empty status
// returns all of them.
func (s *Service) ListMatches(ctx context.Context, participantID, status string) ([]model.Match, error) {
	switch status {
	case "", model.MatchStatusPending, model.MatchStatusAccepted,
		model.MatchStatusCompleted, model.MatchStatusCancelled:
	default:
		return nil, invalid("unknown status %q", status)
	}
	matches, err := store.ListMatches(ctx, s.DB, participantID, status)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []model.Match{}
	}
	return matches, nil
}

// Accept moves a pending match to accepted. Only the recipient may accept.
func (s *Service) Accept(ctx context.Context, matchID, by string) (*model.Match, error) {
	m, err := s.GetMatch(ctx, matchID, by)
	if err != nil {
		return nil, err
	}
	if m.RecipientID != by {
		return nil, fmt.Errorf("%w: only the recipient can accept", ErrForbidden)
	}
	return s.move(ctx, m, by, []string{model.MatchStatusPending}, model.MatchStatusAccepted)
}

// Cancel ends an open match without touching inventory. Either party may
// cancel.
func (s *Service) Cancel(ctx context.Context, matchID, by string) (*model.Match, error) {
	m, err := s.GetMatch(ctx, matchID, by)
	if err != nil {
		return nil, err
	}
	return s.move(ctx, m, by, openStatuses, model.MatchStatusCancelled)
}

// Complete marks an open match completed and reconciles both parties'
// inventories in the same transaction. Either party may complete.
func (s *Service) Complete(ctx context.Context, matchID, by string, confirmations []matching.Confirmation) (*model.Match, *matching.Plan, error) {
	m, err := s.GetMatch(ctx, matchID, by)
	if err != nil {
		return nil, nil, err
	}

	plan, ok, err := store.CompleteMatch(ctx, s.DB, m.ID, openStatuses, s.now(), confirmations)
	if err != nil {
		return nil, nil, err
	}
	s.Metrics.Transition(model.MatchStatusCompleted, ok)
	if !ok {
		return nil, nil, s.conflict(ctx, m.ID, model.MatchStatusCompleted)
	}
	s.Metrics.Reconciled()

	updated, err := store.GetMatch(ctx, s.DB, m.ID)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("match completed", "match", m.ID, "by", by, "exchanges", len(plan.Exchanges))

	s.notifyStatus(ctx, updated, by)
	s.inventoryChanged(ctx, updated.EventID, by)
	return updated, plan, nil
}

func (s *Service) move(ctx context.Context, m *model.Match, by string, from []string, to string) (*model.Match, error) {
	ok, err := store.TransitionMatch(ctx, s.DB, m.ID, from, to, s.now())
	if err != nil {
		return nil, err
	}
	s.Metrics.Transition(to, ok)
	if !ok {
		return nil, s.conflict(ctx, m.ID, to)
	}

	updated, err := store.GetMatch(ctx, s.DB, m.ID)
	if err != nil {
		return nil, err
	}
	slog.Info("match status changed", "match", m.ID, "status", to, "by", by)
	s.notifyStatus(ctx, updated, by)
	return updated, nil
}

// conflict reports a transition that lost against the current state.
func (s *Service) conflict(ctx context.Context, matchID, to string) error {
	current, err := store.GetMatch(ctx, s.DB, matchID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	return &ConflictError{Match: current, Reason: "cannot move to " + to}
}

func (s *Service) notifyStatus(ctx context.Context, m *model.Match, by string) {
	ev := notify.NewEvent(notify.TypeMatchStatus, m)
	ev.EventID = m.EventID
	ev.MatchID = m.ID
	ev.Status = m.Status
	ev.ParticipantID = by
	s.notifier().NotifyParticipant(ctx, m.Counterparty(by), ev)
}

// SendMessage appends a chat message to an open match.
func (s *Service) SendMessage(ctx context.Context, matchID, by, body string) (*model.MatchMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("message is empty")
	}
	if utf8.RuneCountInString(body) > model.MaxMessageLength {
		return nil, invalid("message exceeds %d characters", model.MaxMessageLength)
	}

	m, err := s.GetMatch(ctx, matchID, by)
	if err != nil {
		return nil, err
	}
	if !model.MatchOpen(m.Status) {
		return nil, &ConflictError{Match: m, Reason: "match is closed"}
	}

	msg, err := store.CreateMessage(ctx, s.DB, m.ID, by, body, s.now())
	if err != nil {
		return nil, err
	}

	ev := notify.NewEvent(notify.TypeMatchMessage, msg)
	ev.EventID = m.EventID
	ev.MatchID = m.ID
	ev.ParticipantID = by
	s.notifier().NotifyParticipant(ctx, m.Counterparty(by), ev)
	return msg, nil
}

// ListMessages returns a match's messages in the order they were sent.
func (s *Service) ListMessages(ctx context.Context, matchID, by string) ([]model.MatchMessage, error) {
	m, err := s.GetMatch(ctx, matchID, by)
	if err != nil {
		return nil, err
	}
	msgs, err := store.ListMessages(ctx, s.DB, m.ID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.MatchMessage{}
	}
	return msgs, nil
}

// Erase deletes the participant and everything attached to them.
// Counterparties of open matches are told those matches are gone.
func (s *Service) Erase(ctx context.Context, participantID string) error {
	p, err := s.participant(ctx, participantID)
	if err != nil {
		return err
	}
	open, err := store.EraseParticipant(ctx, s.DB, participantID)
	if err != nil {
		return err
	}
	slog.Info("participant erased", "participant", participantID, "open_matches", len(open))

	for i := range open {
		m := &open[i]
		m.Status = model.MatchStatusCancelled
		s.notifyStatus(ctx, m, participantID)
	}
	if p.EventID != "" {
		s.inventoryChanged(ctx, p.EventID, participantID)
	}
	return nil
}
