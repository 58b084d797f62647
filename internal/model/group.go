package model

import "sort"

// Goods row types in a trade group.
const (
	GoodsTypeHave = "have"
	GoodsTypeWant = "want"
)

// TradeGroup is one independent barter intent: give some of Have in
// exchange for WantQuantity units of any item in WantItems.
type TradeGroup struct {
	ParticipantID string         `json:"participant_id,omitempty"`
	EventID       string         `json:"event_id,omitempty"`
	Index         int            `json:"index"`
	Have          map[string]int `json:"have"`
	WantItems     []string       `json:"want_items"`
	WantQuantity  int            `json:"want_quantity"`
	GiveCount     int            `json:"give_count"`
}

// Inert reports whether the group can no longer take part in matching.
func (g *TradeGroup) Inert() bool {
	return len(g.Have) == 0 || len(g.WantItems) == 0 || g.WantQuantity <= 0
}

// Wants reports whether goodsID is acceptable as the ask of this group.
func (g *TradeGroup) Wants(goodsID string) bool {
	for _, id := range g.WantItems {
		if id == goodsID {
			return true
		}
	}
	return false
}

// HaveIDs returns the offered goods ids in sorted order.
func (g *TradeGroup) HaveIDs() []string {
	ids := make([]string, 0, len(g.Have))
	for id, qty := range g.Have {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the group.
func (g TradeGroup) Clone() TradeGroup {
	c := g
	c.Have = make(map[string]int, len(g.Have))
	for k, v := range g.Have {
		c.Have[k] = v
	}
	c.WantItems = append([]string(nil), g.WantItems...)
	return c
}
