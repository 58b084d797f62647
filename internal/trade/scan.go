package trade

import (
	"context"
	"sort"
	"time"

	"github.com/erazemk/menjava/internal/geo"
	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/store"
)

// FindMatches scans the caller's event for participants whose groups
// mutually match the caller's groups. Every call is a full rescan.
func (s *Service) FindMatches(ctx context.Context, participantID string) ([]model.MatchResult, error) {
	p, e, err := s.tradeReady(ctx, participantID)
	if err != nil {
		return nil, err
	}

	catalog, err := store.ActiveGoodsIDs(ctx, s.DB, e.ID)
	if err != nil {
		return nil, err
	}

	mine, err := store.ListGroups(ctx, s.DB, p.ID)
	if err != nil {
		return nil, err
	}
	mine = filterGroups(mine, e.ID, catalog)

	active, err := store.ListActiveParticipants(ctx, s.DB, e.ID, s.now().Add(-s.activeWithin()))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(active))
	for _, c := range active {
		if c.ID != p.ID {
			ids = append(ids, c.ID)
		}
	}
	groups, err := store.ListGroupsFor(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	pool := make([]matching.Candidate, 0, len(active))
	for _, c := range active {
		pool = append(pool, matching.Candidate{
			Participant: c,
			Groups:      filterGroups(groups[c.ID], e.ID, catalog),
		})
	}

	exclude, err := store.OpenCounterparties(ctx, s.DB, p.ID)
	if err != nil {
		return nil, err
	}

	results := matching.FindMatches(p.ID, mine, pool, exclude)
	if err := s.fillNames(ctx, results); err != nil {
		return nil, err
	}

	s.Metrics.Scan(len(results))
	if results == nil {
		results = []model.MatchResult{}
	}
	return results, nil
}

// tradeReady loads the participant and their event and checks that they may
// trade right now: the trade window is open and a known position lies
// inside the event area.
func (s *Service) tradeReady(ctx context.Context, participantID string) (*model.Participant, *model.Event, error) {
	p, err := s.participant(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.eventOf(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if !e.Trade.Contains(s.now()) {
		return nil, nil, ineligible("outside trade window")
	}
	if geo.Known(p.Lat, p.Lng) && !geo.IsWithinEventArea(p.Lat, p.Lng, e.Areas) {
		return nil, nil, ineligible("outside event area")
	}
	return p, e, nil
}

func (s *Service) activeWithin() time.Duration {
	if s.ActiveWithin > 0 {
		return s.ActiveWithin
	}
	return DefaultActiveWithin
}

func (s *Service) fillNames(ctx context.Context, results []model.MatchResult) error {
	seen := map[string]bool{}
	var ids []string
	for _, r := range results {
		for _, g := range r.Groups {
			for _, it := range append(append([]model.OfferedItem(nil), g.TheyOffer...), g.YouOffer...) {
				if !seen[it.GoodsID] {
					seen[it.GoodsID] = true
					ids = append(ids, it.GoodsID)
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	names, err := store.GetGoodsNames(ctx, s.DB, ids)
	if err != nil {
		return err
	}
	for i := range results {
		for j := range results[i].Groups {
			g := &results[i].Groups[j]
			for k := range g.TheyOffer {
				g.TheyOffer[k].Name = names[g.TheyOffer[k].GoodsID]
			}
			for k := range g.YouOffer {
				g.YouOffer[k].Name = names[g.YouOffer[k].GoodsID]
			}
		}
	}
	return nil
}

// filterGroups keeps groups of the given event and drops goods that are
// not in the event's active catalog.
func filterGroups(groups []model.TradeGroup, eventID string, catalog map[string]bool) []model.TradeGroup {
	var out []model.TradeGroup
	for _, g := range groups {
		if g.EventID != eventID {
			continue
		}
		c := g.Clone()
		for id := range c.Have {
			if !catalog[id] {
				delete(c.Have, id)
			}
		}
		want := c.WantItems[:0]
		for _, id := range c.WantItems {
			if catalog[id] {
				want = append(want, id)
			}
		}
		c.WantItems = want
		out = append(out, c)
	}
	return out
}
