// Package labeler detects qualitative trade patterns. Detection is a pure
// function of priced assets and the fairness result.
package labeler

import (
	"sort"

	"tradeeval/internal/fairness"
	"tradeeval/internal/trade"
)

// Input is everything a rule may look at.
type Input struct {
	A        trade.PricedSide
	B        trade.PricedSide
	Fairness fairness.Result
}

// View is one side's perspective of the trade.
type View struct {
	Side     trade.Side
	Gives    []trade.PricedAsset
	Receives []trade.PricedAsset
	// Held is everything the side owned before the trade: the roster when
	// supplied, plus the given assets.
	Held  []trade.PricedAsset
	Score float64
}

// ViewOf builds the view for side.
func ViewOf(in Input, side trade.Side) View {
	own, other := in.A, in.B
	if side == trade.SideB {
		own, other = in.B, in.A
	}
	held := make([]trade.PricedAsset, 0, len(own.Roster)+len(own.Gives))
	seen := make(map[string]struct{}, len(own.Roster))
	for _, a := range own.Roster {
		seen[a.ID] = struct{}{}
		held = append(held, a)
	}
	for _, a := range own.Gives {
		if _, ok := seen[a.ID]; !ok {
			held = append(held, a)
		}
	}
	return View{
		Side:     side,
		Gives:    own.Gives,
		Receives: other.Gives,
		Held:     held,
		Score:    in.Fairness.Score(side),
	}
}

type LabelRule struct {
	Label trade.Label
	Match func(v View) bool
}

type TradeLabeler struct {
	Rules        []LabelRule
	FairBandLow  float64
	FairBandHigh float64
}

func New(fairLow, fairHigh float64) *TradeLabeler {
	l := &TradeLabeler{FairBandLow: fairLow, FairBandHigh: fairHigh}
	l.Rules = l.DefaultRules()
	return l
}

func (l *TradeLabeler) DefaultRules() []LabelRule {
	return []LabelRule{
		{Label: trade.LabelTierJumpWin, Match: TierJump},
		{Label: trade.LabelConsolidation, Match: consolidation},
		{Label: trade.LabelDepthPlay, Match: depthPlay},
		{Label: trade.LabelPickHeavy, Match: pickHeavy},
		{
			Label: trade.LabelFairValue,
			Match: func(v View) bool {
				return v.Score >= l.FairBandLow && v.Score <= l.FairBandHigh
			},
		},
	}
}

// Detect returns the labels of both sides, side A first, in rule order.
func (l *TradeLabeler) Detect(in Input) []trade.SideLabel {
	if l == nil {
		return nil
	}
	rules := l.Rules
	if len(rules) == 0 {
		rules = l.DefaultRules()
	}
	var out []trade.SideLabel
	for _, side := range []trade.Side{trade.SideA, trade.SideB} {
		v := ViewOf(in, side)
		for _, rule := range rules {
			if rule.Match != nil && rule.Match(v) {
				out = append(out, trade.SideLabel{Side: side, Label: rule.Label})
			}
		}
	}
	return out
}

// Has reports whether labels contain label for side.
func Has(labels []trade.SideLabel, side trade.Side, label trade.Label) bool {
	for _, l := range labels {
		if l.Side == side && l.Label == label {
			return true
		}
	}
	return false
}

// TierJump reports whether the best asset received is at least one full tier
// above the best asset the side previously held.
func TierJump(v View) bool {
	received := BestTier(v.Receives)
	if received == trade.TierNone {
		return false
	}
	return received < BestTier(v.Held)
}

// BestTier is the most valuable tier among known assets.
func BestTier(assets []trade.PricedAsset) trade.Tier {
	best := trade.TierNone
	for _, a := range assets {
		if !a.Known() {
			continue
		}
		if a.Tier < best {
			best = a.Tier
		}
	}
	return best
}

func consolidation(v View) bool {
	if len(v.Receives) == 0 || len(v.Receives) >= len(v.Gives) {
		return false
	}
	return BestTier(v.Receives) < BestTier(v.Gives)
}

func depthPlay(v View) bool {
	return len(v.Receives) >= 2 && len(v.Receives) > len(v.Gives)
}

func pickHeavy(v View) bool {
	total, picks := 0.0, 0.0
	for _, a := range v.Receives {
		total += a.Value
		if a.Ref.Kind == trade.KindPick {
			picks += a.Value
		}
	}
	return total > 0 && picks/total >= 0.5
}

// Sorted returns labels ordered by side then label name.
func Sorted(labels []trade.SideLabel) []trade.SideLabel {
	out := append([]trade.SideLabel(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Side != out[j].Side {
			return out[i].Side < out[j].Side
		}
		return out[i].Label < out[j].Label
	})
	return out
}
