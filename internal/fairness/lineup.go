package fairness

import (
	"sort"
	"strings"

	"tradeeval/internal/trade"
)

var (
	flexEligible      = map[string]bool{"RB": true, "WR": true, "TE": true}
	superflexEligible = map[string]bool{"QB": true, "RB": true, "WR": true, "TE": true}
)

// OptimalLineup fills dedicated slots, then FLEX, then SUPERFLEX, greedily by
// value, and returns the starters' total value.
func OptimalLineup(players []trade.PricedAsset, slots trade.SlotConfig) float64 {
	pool := make([]trade.PricedAsset, 0, len(players))
	for _, p := range players {
		if p.Ref.Kind == trade.KindPick || !p.Known() {
			continue
		}
		pool = append(pool, p)
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Value > pool[j].Value })

	used := make([]bool, len(pool))
	total := 0.0
	take := func(n int, eligible func(pos string) bool) {
		for i := 0; i < len(pool) && n > 0; i++ {
			if used[i] || !eligible(strings.ToUpper(pool[i].Position)) {
				continue
			}
			used[i] = true
			total += pool[i].Value
			n--
		}
	}
	only := func(want string) func(string) bool {
		return func(pos string) bool { return pos == want }
	}

	take(slots.QB, only("QB"))
	take(slots.RB, only("RB"))
	take(slots.WR, only("WR"))
	take(slots.TE, only("TE"))
	take(slots.Flex, func(pos string) bool { return flexEligible[pos] })
	take(slots.Superflex, func(pos string) bool { return superflexEligible[pos] })
	return total
}

// LineupDelta is the optimal lineup value after the trade minus before it.
// Given assets missing from the roster are treated as held before the trade.
func LineupDelta(roster, gives, receives []trade.PricedAsset, slots trade.SlotConfig) float64 {
	before := make([]trade.PricedAsset, 0, len(roster)+len(gives))
	seen := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		seen[p.ID] = struct{}{}
		before = append(before, p)
	}
	for _, p := range gives {
		if _, ok := seen[p.ID]; !ok {
			before = append(before, p)
		}
	}

	giving := make(map[string]struct{}, len(gives))
	for _, p := range gives {
		giving[p.ID] = struct{}{}
	}
	after := make([]trade.PricedAsset, 0, len(before)+len(receives))
	for _, p := range before {
		if _, ok := giving[p.ID]; ok {
			continue
		}
		after = append(after, p)
	}
	after = append(after, receives...)

	return OptimalLineup(after, slots) - OptimalLineup(before, slots)
}
