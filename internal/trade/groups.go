package trade

import (
	"context"
	"log/slog"

	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/store"
)

// Groups returns the caller's trade groups.
func (s *Service) Groups(ctx context.Context, participantID string) ([]model.TradeGroup, error) {
	if _, err := s.participant(ctx, participantID); err != nil {
		return nil, err
	}
	groups, err := store.ListGroups(ctx, s.DB, participantID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []model.TradeGroup{}
	}
	return groups, nil
}

// RegisterGroups replaces the caller's trade groups. It is only allowed
// inside the event's registration window. Inert groups are dropped.
func (s *Service) RegisterGroups(ctx context.Context, participantID string, groups []model.TradeGroup) ([]model.TradeGroup, error) {
	p, err := s.participant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	e, err := s.eventOf(ctx, p)
	if err != nil {
		return nil, err
	}
	if !e.Registration.Contains(s.now()) {
		return nil, ineligible("outside registration window")
	}

	catalog, err := store.ActiveGoodsIDs(ctx, s.DB, e.ID)
	if err != nil {
		return nil, err
	}
	if err := validateGroups(groups, catalog); err != nil {
		return nil, err
	}

	if err := store.ReplaceGroups(ctx, s.DB, participantID, e.ID, groups); err != nil {
		return nil, err
	}

	slog.Info("trade groups registered", "participant", participantID, "event", e.ID, "groups", len(groups))
	s.inventoryChanged(ctx, e.ID, participantID)
	return s.Groups(ctx, participantID)
}

// AdjustHave changes the quantity of one offered item, with a floor of 0.
// It is allowed while either the registration or the trade window is open.
// A group left without offered items is removed; spent reports that.
func (s *Service) AdjustHave(ctx context.Context, participantID string, index int, goodsID string, delta int) (group *model.TradeGroup, spent bool, err error) {
	p, err := s.participant(ctx, participantID)
	if err != nil {
		return nil, false, err
	}
	e, err := s.eventOf(ctx, p)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	if !e.Registration.Contains(now) && !e.Trade.Contains(now) {
		return nil, false, ineligible("outside registration and trade windows")
	}
	if goodsID == "" {
		return nil, false, invalid("goods_id is required")
	}
	if delta > 0 {
		catalog, err := store.ActiveGoodsIDs(ctx, s.DB, e.ID)
		if err != nil {
			return nil, false, err
		}
		if !catalog[goodsID] {
			return nil, false, invalid("unknown goods %s", goodsID)
		}
	}

	group, spent, err = store.AdjustHaveQuantity(ctx, s.DB, participantID, index, goodsID, delta)
	if err != nil {
		return nil, false, err
	}
	if group == nil && !spent {
		return nil, false, ErrNotFound
	}

	s.inventoryChanged(ctx, e.ID, participantID)
	return group, spent, nil
}

func validateGroups(groups []model.TradeGroup, catalog map[string]bool) error {
	seen := map[int]bool{}
	for _, g := range groups {
		if g.Index < 0 {
			return invalid("group index %d is negative", g.Index)
		}
		if seen[g.Index] {
			return invalid("duplicate group index %d", g.Index)
		}
		seen[g.Index] = true

		if g.WantQuantity < 0 || g.GiveCount < 0 {
			return invalid("group %d: quantities must not be negative", g.Index)
		}
		for id, qty := range g.Have {
			if qty < 1 {
				return invalid("group %d: quantity of %s must be at least 1", g.Index, id)
			}
			if !catalog[id] {
				return invalid("group %d: unknown goods %s", g.Index, id)
			}
		}
		for _, id := range g.WantItems {
			if !catalog[id] {
				return invalid("group %d: unknown goods %s", g.Index, id)
			}
		}
	}
	return nil
}
