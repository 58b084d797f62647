package client

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
)

// seenLimit bounds how many push event ids are remembered for dedup.
const seenLimit = 512

// View is the local, possibly stale copy of the participant's matches.
// Every update goes through Apply, which only moves a match forward in
// status order, so poll and push results can arrive in any order.
type View struct {
	mu      sync.Mutex
	matches map[string]model.Match
	seen    map[string]bool
	order   []string
}

// NewView creates an empty view.
func NewView() *View {
	return &View{
		matches: map[string]model.Match{},
		seen:    map[string]bool{},
	}
}

// Apply stores m if it is unknown or its status is newer than the stored
// one. It reports whether the view changed.
func (v *View) Apply(m model.Match) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.apply(m)
}

func (v *View) apply(m model.Match) bool {
	if m.ID == "" {
		return false
	}
	cur, ok := v.matches[m.ID]
	if ok && !model.StatusNewer(cur.Status, m.Status) {
		return false
	}
	v.matches[m.ID] = m
	return true
}

// ApplySnapshot applies a full poll result. Open matches that the server no
// longer returns were erased with their counterparty and are closed
// locally. It returns the number of changed matches.
func (v *View) ApplySnapshot(matches []model.Match) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	present := make(map[string]bool, len(matches))
	changed := 0
	for _, m := range matches {
		present[m.ID] = true
		if v.apply(m) {
			changed++
		}
	}
	for id, m := range v.matches {
		if present[id] || !model.MatchOpen(m.Status) {
			continue
		}
		m.Status = model.MatchStatusCancelled
		v.matches[id] = m
		changed++
	}
	return changed
}

// ApplyEvent applies a push event. Events seen before are ignored. It
// reports whether a match changed and whether inventories changed so that
// a rescan is due.
func (v *View) ApplyEvent(ev notify.Event) (changed, rescan bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ev.ID != "" {
		if v.seen[ev.ID] {
			return false, false
		}
		v.remember(ev.ID)
	}

	switch ev.Type {
	case notify.TypeInventoryChanged:
		return false, true
	case notify.TypeMatchCreated, notify.TypeMatchStatus:
		var m model.Match
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &m); err != nil {
				slog.Warn("ignoring malformed match event", "event", ev.ID, "error", err)
				return false, false
			}
		}
		if m.ID == "" {
			// Status-only event: advance the stored match if known.
			cur, ok := v.matches[ev.MatchID]
			if !ok {
				return false, false
			}
			m = cur
			m.Status = ev.Status
		}
		changed = v.apply(m)
		return changed, changed && m.Status == model.MatchStatusCompleted
	}
	return false, false
}

func (v *View) remember(id string) {
	v.seen[id] = true
	v.order = append(v.order, id)
	if len(v.order) > seenLimit {
		delete(v.seen, v.order[0])
		v.order = v.order[1:]
	}
}

// Get returns the stored match.
func (v *View) Get(id string) (model.Match, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.matches[id]
	return m, ok
}

// Matches returns all stored matches, newest first.
func (v *View) Matches() []model.Match {
	v.mu.Lock()
	out := make([]model.Match, 0, len(v.matches))
	for _, m := range v.matches {
		out = append(out, m)
	}
	v.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
