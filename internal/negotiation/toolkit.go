// Package negotiation builds the deterministic negotiation toolkit: counters,
// sweeteners, red-lines and DM messages. An optional narrative refinement may
// rephrase the messages, but only through a validated contract.
package negotiation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/config"
	"tradeeval/internal/fairness"
	"tradeeval/internal/trade"
)

type CounterKind string

const (
	CounterAdd    CounterKind = "add"
	CounterRemove CounterKind = "remove"
	CounterSwap   CounterKind = "swap"
)

type Counter struct {
	Kind CounterKind `json:"kind"`
	// Side is the party whose package changes.
	Side        trade.Side `json:"side"`
	Remove      []string   `json:"remove,omitempty"`
	Add         []string   `json:"add,omitempty"`
	ScoreA      float64    `json:"projected_score_a"`
	ScoreB      float64    `json:"projected_score_b"`
	Description string     `json:"description"`
}

type Sweetener struct {
	Side        trade.Side       `json:"side"`
	AssetID     string           `json:"asset_id,omitempty"`
	FAAB        *decimal.Decimal `json:"faab,omitempty"`
	Value       float64          `json:"value"`
	Description string           `json:"description"`
}

type RedLine struct {
	Side    trade.Side `json:"side"`
	AssetID string     `json:"asset_id"`
	Label   string     `json:"label"`
	Reason  string     `json:"reason"`
}

type Refinement struct {
	Attempted bool   `json:"attempted"`
	Provider  string `json:"provider,omitempty"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason,omitempty"`
}

type Toolkit struct {
	Counters    []Counter   `json:"counters"`
	Sweeteners  []Sweetener `json:"sweeteners"`
	RedLines    []RedLine   `json:"red_lines"`
	DMMessages  []string    `json:"dm_messages"`
	Explanation string      `json:"explanation,omitempty"`
	Refinement  Refinement  `json:"refinement"`
}

// Clone copies every slice so a refined toolkit never aliases the
// deterministic one.
func (t Toolkit) Clone() Toolkit {
	out := t
	out.Counters = append([]Counter(nil), t.Counters...)
	out.Sweeteners = append([]Sweetener(nil), t.Sweeteners...)
	out.RedLines = append([]RedLine(nil), t.RedLines...)
	out.DMMessages = append([]string(nil), t.DMMessages...)
	return out
}

type Input struct {
	A          trade.PricedSide
	B          trade.PricedSide
	Slots      trade.SlotConfig
	Fairness   fairness.Result
	Acceptance acceptance.Result
}

type Builder struct {
	Config   config.NegotiationConfig
	Fairness *fairness.Engine
}

func (b *Builder) Build(in Input) Toolkit {
	redLines := b.redLines(in)
	blocked := make(map[string]struct{}, len(redLines))
	for _, r := range redLines {
		blocked[r.AssetID] = struct{}{}
	}
	tk := Toolkit{
		Counters:   b.counters(in, blocked),
		Sweeteners: b.sweeteners(in, blocked),
		RedLines:   redLines,
	}
	tk.DMMessages = b.messages(in, tk)
	return tk
}

func sides(in Input, s trade.Side) (own, other trade.PricedSide) {
	if s == trade.SideB {
		return in.B, in.A
	}
	return in.A, in.B
}

func (b *Builder) redLines(in Input) []RedLine {
	var out []RedLine
	for _, s := range []trade.Side{trade.SideA, trade.SideB} {
		own, _ := sides(in, s)
		explicit := map[string]bool{}
		for _, raw := range own.RedLines {
			explicit[strings.TrimSpace(strings.ToLower(raw))] = true
			explicit[trade.NormalizeName(raw)] = true
		}
		seen := map[string]bool{}
		universe := append(append([]trade.PricedAsset{}, own.Roster...), own.OwnedPicks...)
		universe = append(universe, own.Gives...)
		for _, a := range universe {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			if explicit[strings.ToLower(a.ID)] || explicit[a.Ref.BaseID()] || explicit[trade.NormalizeName(a.Label)] {
				out = append(out, RedLine{Side: s, AssetID: a.ID, Label: a.Label, Reason: "explicit"})
			}
		}
		// The most valuable tier-0 bench asset is never offered.
		var core *trade.PricedAsset
		for _, a := range benchPool(own) {
			if a.Tier != trade.Tier0 || !a.Known() {
				continue
			}
			if core == nil || a.Value > core.Value {
				c := a
				core = &c
			}
		}
		if core != nil && !explicit[strings.ToLower(core.ID)] && !explicit[core.Ref.BaseID()] && !explicit[trade.NormalizeName(core.Label)] {
			out = append(out, RedLine{Side: s, AssetID: core.ID, Label: core.Label, Reason: "core_asset"})
		}
	}
	return out
}

// benchPool is everything a side owns but is not already sending.
func benchPool(s trade.PricedSide) []trade.PricedAsset {
	given := map[string]struct{}{}
	for _, a := range s.Gives {
		given[a.ID] = struct{}{}
	}
	var out []trade.PricedAsset
	seen := map[string]struct{}{}
	for _, a := range append(append([]trade.PricedAsset{}, s.Roster...), s.OwnedPicks...) {
		if _, ok := given[a.ID]; ok {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (b *Builder) counters(in Input, blocked map[string]struct{}) []Counter {
	favored := in.Fairness.Favored()
	if favored == "" || b.Fairness == nil {
		return []Counter{}
	}
	under := favored.Other()
	current := math.Abs(in.Fairness.Score(under) - 50)
	if b.inBand(in.Fairness.Score(under)) {
		return []Counter{}
	}

	var cands []Counter
	eval := func(c Counter, a, bs trade.PricedSide) {
		res := b.Fairness.Evaluate(a, bs, in.Slots)
		c.ScoreA, c.ScoreB = res.ScoreA, res.ScoreB
		if math.Abs(res.Score(under)-50) < current {
			cands = append(cands, c)
		}
	}

	fav, _ := sides(in, favored)
	und, _ := sides(in, under)
	// The favored side adds a bench asset.
	for _, asset := range benchPool(fav) {
		if _, ok := blocked[asset.ID]; ok || !asset.Known() {
			continue
		}
		next := fav
		next.Gives = append(append([]trade.PricedAsset{}, fav.Gives...), asset)
		a, bs := assign(in, favored, next)
		eval(Counter{
			Kind:        CounterAdd,
			Side:        favored,
			Add:         []string{asset.ID},
			Description: fmt.Sprintf("Side %s adds %s", favored, asset.Label),
		}, a, bs)
	}
	// The disadvantaged side pulls one of its assets, or swaps it for a
	// cheaper bench asset.
	for i, give := range und.Gives {
		if len(und.Gives) > 1 {
			next := und
			next.Gives = removeAt(und.Gives, i)
			a, bs := assign(in, under, next)
			eval(Counter{
				Kind:        CounterRemove,
				Side:        under,
				Remove:      []string{give.ID},
				Description: fmt.Sprintf("Side %s keeps %s", under, give.Label),
			}, a, bs)
		}
		for _, alt := range benchPool(und) {
			if _, ok := blocked[alt.ID]; ok || !alt.Known() || alt.Value >= give.Value {
				continue
			}
			next := und
			next.Gives = removeAt(und.Gives, i)
			next.Gives = append(next.Gives, alt)
			a, bs := assign(in, under, next)
			eval(Counter{
				Kind:        CounterSwap,
				Side:        under,
				Remove:      []string{give.ID},
				Add:         []string{alt.ID},
				Description: fmt.Sprintf("Side %s sends %s instead of %s", under, alt.Label, give.Label),
			}, a, bs)
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		di := math.Abs(scoreOf(cands[i], under) - 50)
		dj := math.Abs(scoreOf(cands[j], under) - 50)
		if di != dj {
			return di < dj
		}
		return cands[i].Description < cands[j].Description
	})
	limit := b.Config.MaxCounters
	if limit <= 0 {
		limit = 3
	}
	if len(cands) > limit {
		cands = cands[:limit]
	}
	if cands == nil {
		cands = []Counter{}
	}
	return cands
}

func (b *Builder) sweeteners(in Input, blocked map[string]struct{}) []Sweetener {
	giver := in.Fairness.Favored()
	if giver == "" {
		giver = trade.SideA
	}
	own, _ := sides(in, giver)
	var out []Sweetener

	lateRound := b.Config.LatePickRound
	if lateRound <= 0 {
		lateRound = 3
	}
	for _, p := range benchPool(own) {
		if p.Ref.Kind != trade.KindPick || p.Ref.Round < lateRound {
			continue
		}
		if _, ok := blocked[p.ID]; ok {
			continue
		}
		out = append(out, Sweetener{
			Side:        giver,
			AssetID:     p.ID,
			Value:       p.Value,
			Description: fmt.Sprintf("Side %s adds %s", giver, p.Label),
		})
	}

	ladder := b.Config.FAABLadder
	if len(ladder) == 0 {
		ladder = []float64{0.05, 0.10}
	}
	for _, frac := range ladder {
		if frac <= 0 {
			continue
		}
		amount := own.FAABRemaining.Mul(decimal.NewFromFloat(frac)).Floor()
		if !amount.IsPositive() {
			continue
		}
		amt := amount
		out = append(out, Sweetener{
			Side:        giver,
			FAAB:        &amt,
			Value:       amount.InexactFloat64() * b.faabUnit(),
			Description: fmt.Sprintf("Side %s adds $%s FAAB", giver, amount.String()),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	limit := b.Config.MaxSweeteners
	if limit <= 0 {
		limit = 3
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Sweetener{}
	}
	return out
}

func (b *Builder) faabUnit() float64 {
	if b.Fairness == nil || b.Fairness.Config.FAABValuePerUnit <= 0 {
		return 10
	}
	return b.Fairness.Config.FAABValuePerUnit
}

func (b *Builder) inBand(score float64) bool {
	lo, hi := b.Config.FairBandLow, b.Config.FairBandHigh
	if lo == 0 && hi == 0 {
		lo, hi = 45, 55
	}
	return score >= lo && score <= hi
}

var driverPitch = map[trade.DriverID]string{
	trade.DriverLineupImpact: "It upgrades your starting lineup.",
	trade.DriverVORP:         "You gain value over replacement at the positions involved.",
	trade.DriverMarket:       "You come out ahead on current market value.",
	trade.DriverBehavioral:   "It fits the kind of deals you have accepted before.",
}

func (b *Builder) messages(in Input, tk Toolkit) []string {
	msgs := []string{
		fmt.Sprintf("Offer: %s for %s. Fairness %.0f/%.0f by %s value.",
			labels(in.A.Gives, in.A.FAAB), labels(in.B.Gives, in.B.FAAB),
			in.Fairness.ScoreA, in.Fairness.ScoreB, in.Fairness.Method),
	}

	best := trade.Driver{}
	for _, d := range in.Acceptance.Drivers {
		if d.Contribution > best.Contribution {
			best = d
		}
	}
	if best.ID != "" {
		msgs = append(msgs, driverPitch[best.ID])
	}

	switch {
	case len(tk.Counters) > 0:
		msgs = append(msgs, "Open to adjusting: "+tk.Counters[0].Description+".")
	case len(tk.Sweeteners) > 0:
		msgs = append(msgs, "Happy to sweeten it: "+tk.Sweeteners[0].Description+".")
	}

	limit := b.Config.MaxMessages
	if limit <= 0 {
		limit = 3
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

func labels(assets []trade.PricedAsset, faab decimal.Decimal) string {
	parts := make([]string, 0, len(assets)+1)
	for _, a := range assets {
		parts = append(parts, a.Label)
	}
	if faab.IsPositive() {
		parts = append(parts, "$"+faab.String()+" FAAB")
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, " + ")
}

func assign(in Input, s trade.Side, next trade.PricedSide) (trade.PricedSide, trade.PricedSide) {
	if s == trade.SideA {
		return next, in.B
	}
	return in.A, next
}

func removeAt(assets []trade.PricedAsset, i int) []trade.PricedAsset {
	out := make([]trade.PricedAsset, 0, len(assets)-1)
	out = append(out, assets[:i]...)
	return append(out, assets[i+1:]...)
}

func scoreOf(c Counter, s trade.Side) float64 {
	if s == trade.SideB {
		return c.ScoreB
	}
	return c.ScoreA
}
