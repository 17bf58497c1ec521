// Package risk applies hard veto rules and soft warnings to an evaluated trade.
package risk

import (
	"fmt"

	"tradeeval/internal/config"
	"tradeeval/internal/labeler"
	"tradeeval/internal/trade"
)

type Verdict struct {
	Vetoed     bool                `json:"vetoed"`
	VetoReason string              `json:"veto_reason,omitempty"`
	Floor      float64             `json:"floor"`
	QBFormat   trade.QBFormat      `json:"qb_format"`
	Warnings   []trade.SideWarning `json:"warnings"`
}

func (v Verdict) HasWarning(w trade.Warning) bool {
	for _, item := range v.Warnings {
		if item.Warning == w {
			return true
		}
	}
	return false
}

type VetoEvaluator struct {
	Config config.VetoConfig
}

// Floor is the minimum score a side may receive before a tier-jump trade is
// vetoed. Superflex leagues price QBs higher, so the floor is lower.
func (e *VetoEvaluator) Floor(qb trade.QBFormat) float64 {
	if qb == trade.QBFormatSuperflex {
		return e.Config.FloorSuperflex
	}
	return e.Config.FloorOneQB
}

// Evaluate is deterministic and has no side effects.
func (e *VetoEvaluator) Evaluate(in labeler.Input, labels []trade.SideLabel, qb trade.QBFormat) Verdict {
	out := Verdict{Floor: e.Floor(qb), QBFormat: qb, Warnings: []trade.SideWarning{}}

	res := in.Fairness
	favored := res.Favored()
	minScore := res.MinScore()
	if favored != "" && minScore <= out.Floor && labeler.Has(labels, favored, trade.LabelTierJumpWin) {
		out.Vetoed = true
		out.VetoReason = fmt.Sprintf("side %s scores %.1f (floor %.0f for %s) while side %s lands a tier jump",
			favored.Other(), minScore, out.Floor, qb, favored)
	} else if favored != "" && minScore <= e.Config.WarningThreshold {
		out.Warnings = append(out.Warnings, trade.SideWarning{Side: favored.Other(), Warning: trade.WarningLopsided})
	}

	total, unknown := 0, 0
	for _, side := range []trade.Side{trade.SideA, trade.SideB} {
		v := labeler.ViewOf(in, side)
		sideUnknown := 0
		for _, a := range v.Gives {
			total++
			if !a.Known() {
				sideUnknown++
			}
		}
		unknown += sideUnknown
		if sideUnknown > 0 {
			out.Warnings = append(out.Warnings, trade.SideWarning{Side: side, Warning: trade.WarningUnresolvedAssets})
		}
		if qb == trade.QBFormatSuperflex && countQB(v.Gives) > 0 && countQB(v.Receives) == 0 {
			out.Warnings = append(out.Warnings, trade.SideWarning{Side: side, Warning: trade.WarningQBScarcity})
		}
		if e.Config.VolatilityCeiling > 0 && meanVolatility(v.Receives) > e.Config.VolatilityCeiling {
			out.Warnings = append(out.Warnings, trade.SideWarning{Side: side, Warning: trade.WarningVolatileReturn})
		}
	}
	if total > 0 && e.Config.LowConfidenceFrac > 0 && float64(unknown)/float64(total) >= e.Config.LowConfidenceFrac {
		out.Warnings = append(out.Warnings, trade.SideWarning{Warning: trade.WarningLowConfidence})
	}
	return out
}

func countQB(assets []trade.PricedAsset) int {
	n := 0
	for _, a := range assets {
		if a.Ref.Kind == trade.KindPlayer && a.Position == "QB" {
			n++
		}
	}
	return n
}

func meanVolatility(assets []trade.PricedAsset) float64 {
	sum, n := 0.0, 0
	for _, a := range assets {
		if a.Ref.Kind != trade.KindPlayer || !a.Known() {
			continue
		}
		sum += a.Volatility
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
