package matching

import (
	"sort"

	"github.com/erazemk/menjava/internal/model"
)

// Confirmation is the quantity each side actually handed over for one
// group pair of a match. Entries outside [0, offered] are clamped.
type Confirmation struct {
	RequesterGroup int            `json:"requester_group"`
	RecipientGroup int            `json:"recipient_group"`
	RequesterGives map[string]int `json:"requester_gives"`
	RecipientGives map[string]int `json:"recipient_gives"`
}

// GroupChange is the new state of a trade group after a trade. A spent
// group must be removed.
type GroupChange struct {
	Group model.TradeGroup
	Spent bool
}

// Exchange records what moved for one group pair.
type Exchange struct {
	Pair           model.MatchGroup `json:"pair"`
	RequesterGives map[string]int   `json:"requester_gives"`
	RecipientGives map[string]int   `json:"recipient_gives"`
}

// Plan is the reconciliation outcome for both parties.
type Plan struct {
	Requester []GroupChange
	Recipient []GroupChange
	Exchanges []Exchange
}

// PlanReconciliation applies the traded quantities of every recorded pair
// to copies of the parties' current groups. Pairs whose groups are gone or
// no longer cross-match are skipped. Only groups touched by an exchange
// appear in the plan.
//
// Each side's have quantities drop by what it gave. Its want quantity drops
// by the largest quantity it received of any single item, not the sum.
func PlanReconciliation(requester, recipient []model.TradeGroup, pairs []model.MatchGroup, confirmations []Confirmation) Plan {
	rq := indexGroups(requester)
	rc := indexGroups(recipient)
	touchedRq := map[int]bool{}
	touchedRc := map[int]bool{}

	var plan Plan
	for _, pair := range pairs {
		a, okA := rq[pair.RequesterGroup]
		b, okB := rc[pair.RecipientGroup]
		if !okA || !okB {
			continue
		}

		// Offers are recomputed from current inventory.
		recipientOffer, requesterOffer, ok := MatchGroups(a, b)
		if !ok {
			continue
		}

		var aGives, bGives map[string]int
		if conf, found := findConfirmation(confirmations, pair); found {
			aGives = clampGives(conf.RequesterGives, requesterOffer)
			bGives = clampGives(conf.RecipientGives, recipientOffer)
		} else {
			aGives = defaultGives(requesterOffer, minPositive(a.GiveCount, b.WantQuantity))
			bGives = defaultGives(recipientOffer, minPositive(b.GiveCount, a.WantQuantity))
		}

		give(a, aGives)
		give(b, bGives)
		a.WantQuantity = floor(a.WantQuantity - maxQuantity(bGives))
		b.WantQuantity = floor(b.WantQuantity - maxQuantity(aGives))

		touchedRq[a.Index] = true
		touchedRc[b.Index] = true
		plan.Exchanges = append(plan.Exchanges, Exchange{Pair: pair, RequesterGives: aGives, RecipientGives: bGives})
	}

	plan.Requester = changes(rq, touchedRq)
	plan.Recipient = changes(rc, touchedRc)
	return plan
}

// AdjustHave applies delta to one have entry with a floor of 0. An entry
// reaching 0 is removed.
func AdjustHave(g *model.TradeGroup, goodsID string, delta int) {
	if g.Have == nil {
		g.Have = map[string]int{}
	}
	q := floor(g.Have[goodsID] + delta)
	if q == 0 {
		delete(g.Have, goodsID)
		return
	}
	g.Have[goodsID] = q
}

func indexGroups(groups []model.TradeGroup) map[int]*model.TradeGroup {
	out := make(map[int]*model.TradeGroup, len(groups))
	for _, g := range groups {
		c := g.Clone()
		out[c.Index] = &c
	}
	return out
}

func changes(groups map[int]*model.TradeGroup, touched map[int]bool) []GroupChange {
	var idx []int
	for i := range touched {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]GroupChange, 0, len(idx))
	for _, i := range idx {
		g := groups[i]
		out = append(out, GroupChange{Group: *g, Spent: g.Inert()})
	}
	return out
}

func findConfirmation(confirmations []Confirmation, pair model.MatchGroup) (Confirmation, bool) {
	for _, c := range confirmations {
		if c.RequesterGroup == pair.RequesterGroup && c.RecipientGroup == pair.RecipientGroup {
			return c, true
		}
	}
	return Confirmation{}, false
}

func clampGives(requested map[string]int, offer []model.OfferedItem) map[string]int {
	out := map[string]int{}
	for _, item := range offer {
		q, ok := requested[item.GoodsID]
		if !ok {
			continue
		}
		if q < 0 {
			q = 0
		}
		if q > item.Quantity {
			q = item.Quantity
		}
		out[item.GoodsID] = q
	}
	return out
}

// defaultGives spreads total units over the offered items in order, taking
// as many of each item as available before moving on.
func defaultGives(offer []model.OfferedItem, total int) map[string]int {
	out := map[string]int{}
	for _, item := range offer {
		if total <= 0 {
			break
		}
		q := item.Quantity
		if q > total {
			q = total
		}
		out[item.GoodsID] = q
		total -= q
	}
	return out
}

func give(g *model.TradeGroup, gives map[string]int) {
	for id, q := range gives {
		AdjustHave(g, id, -q)
	}
}

func maxQuantity(m map[string]int) int {
	best := 0
	for _, q := range m {
		if q > best {
			best = q
		}
	}
	return best
}

func minPositive(a, b int) int {
	if a < 1 {
		a = 1
	}
	if b < 1 {
		b = 1
	}
	if a < b {
		return a
	}
	return b
}

func floor(q int) int {
	if q < 0 {
		return 0
	}
	return q
}
