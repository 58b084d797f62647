// Package matching implements mutual-interest matching between trade groups
// and the inventory arithmetic applied when a trade completes.
package matching

import (
	"slices"
	"sort"

	"github.com/erazemk/menjava/internal/geo"
	"github.com/erazemk/menjava/internal/model"
)

// Palette holds the identification colors handed out in discovery order.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#FFE66D",
	"#95E1D3",
	"#F38181",
	"#AA96DA",
	"#FCBAD3",
	"#A8D8EA",
	"#FF9A8B",
	"#6A89CC",
}

// InPalette reports whether color is one of the palette colors.
func InPalette(color string) bool {
	return slices.Contains(Palette, color)
}

// ColorAt returns the palette color for the n-th result of a scan.
func ColorAt(n int) string {
	return Palette[n%len(Palette)]
}

// Candidate is a participant considered by a scan, with their groups.
type Candidate struct {
	Participant model.Participant
	Groups      []model.TradeGroup
}

// MatchGroups cross-checks two trade groups. It returns what theirs offers
// to mine and what mine offers to theirs, and whether both are non-empty.
func MatchGroups(mine, theirs *model.TradeGroup) (theyOffer, youOffer []model.OfferedItem, ok bool) {
	if mine.Inert() || theirs.Inert() {
		return nil, nil, false
	}

	for _, id := range theirs.HaveIDs() {
		if mine.Wants(id) {
			theyOffer = append(theyOffer, model.OfferedItem{GoodsID: id, Quantity: theirs.Have[id]})
		}
	}
	if len(theyOffer) == 0 {
		return nil, nil, false
	}

	for _, id := range mine.HaveIDs() {
		if theirs.Wants(id) {
			youOffer = append(youOffer, model.OfferedItem{GoodsID: id, Quantity: mine.Have[id]})
		}
	}
	if len(youOffer) == 0 {
		return nil, nil, false
	}

	return theyOffer, youOffer, true
}

// FindMatches scans the pool in order and returns one result per candidate
// that has at least one group match with my groups. Candidates equal to
// selfID or listed in exclude are skipped. Colors are assigned by position
// in the returned slice, so the same inputs always yield the same colors.
func FindMatches(selfID string, my []model.TradeGroup, pool []Candidate, exclude map[string]bool) []model.MatchResult {
	mine := sortedGroups(my)

	var results []model.MatchResult
	for _, c := range pool {
		p := c.Participant
		if p.ID == selfID || exclude[p.ID] {
			continue
		}

		theirs := sortedGroups(c.Groups)

		var groups []model.GroupMatch
		for i := range mine {
			for j := range theirs {
				theyOffer, youOffer, ok := MatchGroups(&mine[i], &theirs[j])
				if !ok {
					continue
				}
				groups = append(groups, model.GroupMatch{
					MyGroup:        mine[i].Index,
					TheirGroup:     theirs[j].Index,
					TheyOffer:      theyOffer,
					YouOffer:       youOffer,
					MyGiveCount:    mine[i].GiveCount,
					MyWantQuantity: mine[i].WantQuantity,
					TheirGiveCount: theirs[j].GiveCount,
					TheirWantQty:   theirs[j].WantQuantity,
				})
			}
		}
		if len(groups) == 0 {
			continue
		}

		r := model.MatchResult{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			Groups:        groups,
			ColorCode:     ColorAt(len(results)),
		}
		if geo.Known(p.Lat, p.Lng) {
			lat, lng := p.Lat, p.Lng
			r.Lat, r.Lng = &lat, &lng
		}
		results = append(results, r)
	}
	return results
}

func sortedGroups(groups []model.TradeGroup) []model.TradeGroup {
	out := append([]model.TradeGroup(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
