// Package fairness scores a trade from 0 to 100 per side. The lineup method is
// preferred; the composite method is the fallback when rosters are missing.
package fairness

import (
	"errors"
	"fmt"
	"math"

	"tradeeval/internal/config"
	"tradeeval/internal/trade"
)

// ErrRosterIncomplete signals that the lineup method cannot run.
var ErrRosterIncomplete = errors.New("roster incomplete")

type Config struct {
	Scale            float64
	LineupScale      float64
	MinKnownPlayers  int
	FAABValuePerUnit float64
}

func ConfigFrom(cfg config.FairnessConfig) Config {
	return Config{
		Scale:            cfg.Scale,
		LineupScale:      cfg.LineupScale,
		MinKnownPlayers:  cfg.MinKnownPlayers,
		FAABValuePerUnit: cfg.FAABValuePerUnit,
	}
}

type Result struct {
	Method trade.FairnessMethod `json:"method"`
	ScoreA float64              `json:"score_a"`
	ScoreB float64              `json:"score_b"`

	// Totals include FAAB converted to value.
	ValueGivenA float64 `json:"value_given_a"`
	ValueGivenB float64 `json:"value_given_b"`

	LineupDeltaA   *float64 `json:"lineup_delta_a,omitempty"`
	LineupDeltaB   *float64 `json:"lineup_delta_b,omitempty"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

// Score returns the score for side.
func (r Result) Score(side trade.Side) float64 {
	if side == trade.SideB {
		return r.ScoreB
	}
	return r.ScoreA
}

// Favored is the side with the higher score, or "" when even.
func (r Result) Favored() trade.Side {
	switch {
	case r.ScoreA > r.ScoreB:
		return trade.SideA
	case r.ScoreB > r.ScoreA:
		return trade.SideB
	}
	return ""
}

func (r Result) MinScore() float64 {
	return math.Min(r.ScoreA, r.ScoreB)
}

type Engine struct {
	Config Config
}

// Evaluate runs the lineup method and falls back to composite.
func (e *Engine) Evaluate(a, b trade.PricedSide, slots trade.SlotConfig) Result {
	res, err := e.Lineup(a, b, slots)
	if err == nil {
		return res
	}
	out := e.Composite(a, b)
	out.FallbackReason = err.Error()
	return out
}

// Composite scores side A on (received - given) / given. Side B is 100 - A.
func (e *Engine) Composite(a, b trade.PricedSide) Result {
	givenA := e.sideValue(a)
	givenB := e.sideValue(b)
	scoreA := CompositeScore(givenA, givenB, e.scale())
	return Result{
		Method:      trade.MethodComposite,
		ScoreA:      scoreA,
		ScoreB:      100 - scoreA,
		ValueGivenA: givenA,
		ValueGivenB: givenB,
	}
}

// CompositeScore maps the relative surplus of the receiving side onto 0..100.
func CompositeScore(given, received, scale float64) float64 {
	if given <= 0 {
		if received <= 0 {
			return 50
		}
		return 100
	}
	r := (received - given) / given
	return 50 + 50*math.Tanh(r/scale)
}

// Lineup scores on the change in each side's optimal starting lineup.
func (e *Engine) Lineup(a, b trade.PricedSide, slots trade.SlotConfig) (Result, error) {
	minKnown := e.Config.MinKnownPlayers
	if minKnown <= 0 {
		minKnown = 5
	}
	if n := a.KnownRosterPlayers(); n < minKnown {
		return Result{}, fmt.Errorf("%w: side A has %d known players", ErrRosterIncomplete, n)
	}
	if n := b.KnownRosterPlayers(); n < minKnown {
		return Result{}, fmt.Errorf("%w: side B has %d known players", ErrRosterIncomplete, n)
	}

	dA := LineupDelta(a.Roster, a.Gives, b.Gives, slots)
	dB := LineupDelta(b.Roster, b.Gives, a.Gives, slots)

	givenA := e.sideValue(a)
	givenB := e.sideValue(b)
	norm := (givenA + givenB) / 2
	if norm < 1 {
		norm = 1
	}
	scale := e.Config.LineupScale
	if scale <= 0 {
		scale = 0.5
	}
	scoreA := 50 + 50*math.Tanh(((dA-dB)/norm)/scale)
	scoreB := 50 + 50*math.Tanh(((dB-dA)/norm)/scale)

	return Result{
		Method:       trade.MethodLineup,
		ScoreA:       scoreA,
		ScoreB:       scoreB,
		ValueGivenA:  givenA,
		ValueGivenB:  givenB,
		LineupDeltaA: &dA,
		LineupDeltaB: &dB,
	}, nil
}

func (e *Engine) sideValue(s trade.PricedSide) float64 {
	faab, _ := s.FAAB.Float64()
	return s.GivenValue() + faab*e.Config.FAABValuePerUnit
}

func (e *Engine) scale() float64 {
	if e.Config.Scale <= 0 {
		return 0.5
	}
	return e.Config.Scale
}
