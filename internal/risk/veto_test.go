package risk

import (
	"testing"

	"tradeeval/internal/config"
	"tradeeval/internal/fairness"
	"tradeeval/internal/labeler"
	"tradeeval/internal/trade"
)

var edges = []float64{8000, 6000, 4000, 2000}

func testConfig() config.VetoConfig {
	return config.VetoConfig{
		FloorOneQB:        15,
		FloorSuperflex:    10,
		WarningThreshold:  30,
		LowConfidenceFrac: 0.34,
		VolatilityCeiling: 0.6,
	}
}

func player(name, pos string, value float64) trade.PricedAsset {
	ref := trade.AssetRef{Kind: trade.KindPlayer, Name: name, Position: pos}
	return trade.PricedAsset{
		Ref:      ref,
		ID:       ref.ID(),
		Position: pos,
		Value:    value,
		Source:   trade.SourceExact,
		Tier:     trade.TierFor(value, edges),
	}
}

func evaluate(a, b trade.PricedSide, qb trade.QBFormat) Verdict {
	eng := &fairness.Engine{Config: fairness.Config{Scale: 0.5}}
	in := labeler.Input{A: a, B: b, Fairness: eng.Composite(a, b)}
	labels := labeler.New(45, 55).Detect(in)
	ev := &VetoEvaluator{Config: testConfig()}
	return ev.Evaluate(in, labels, qb)
}

func TestVetoTierJumpConsolidation(t *testing.T) {
	a := trade.PricedSide{Gives: []trade.PricedAsset{player("star", "WR", 9000)}}
	b := trade.PricedSide{Gives: []trade.PricedAsset{
		player("x", "WR", 1000), player("y", "RB", 1000), player("z", "TE", 1000),
	}}
	for _, qb := range []trade.QBFormat{trade.QBFormatOne, trade.QBFormatSuperflex} {
		v := evaluate(a, b, qb)
		if !v.Vetoed {
			t.Fatalf("qb=%s expected veto, got %+v", qb, v)
		}
		if v.QBFormat != qb {
			t.Fatalf("qb_format=%s want=%s", v.QBFormat, qb)
		}
		if v.HasWarning(trade.WarningLopsided) {
			t.Fatalf("vetoed trade should not also warn lopsided")
		}
	}
}

func TestVetoFloorDependsOnQBFormat(t *testing.T) {
	// Side A scores ~10.9: below the 1QB floor, above the superflex floor.
	a := trade.PricedSide{Gives: []trade.PricedAsset{player("star", "WR", 8200)}}
	b := trade.PricedSide{Gives: []trade.PricedAsset{player("x", "WR", 1950), player("y", "RB", 1950)}}
	one := evaluate(a, b, trade.QBFormatOne)
	sf := evaluate(a, b, trade.QBFormatSuperflex)
	if !one.Vetoed {
		t.Fatalf("1qb expected veto: %+v", one)
	}
	if sf.Vetoed {
		t.Fatalf("superflex expected no veto: %+v", sf)
	}
	if !sf.HasWarning(trade.WarningLopsided) {
		t.Fatalf("superflex expected lopsided warning: %+v", sf)
	}
}

func TestNoVetoOnEvenTrade(t *testing.T) {
	a := trade.PricedSide{Gives: []trade.PricedAsset{player("a", "WR", 5000)}}
	b := trade.PricedSide{Gives: []trade.PricedAsset{player("b", "RB", 5000)}}
	v := evaluate(a, b, trade.QBFormatOne)
	if v.Vetoed || len(v.Warnings) != 0 {
		t.Fatalf("verdict=%+v want clean", v)
	}
}

func TestWarnings(t *testing.T) {
	ghost := player("ghost", "WR", 0)
	ghost.Source = trade.SourceUnknown
	ghost.Tier = trade.TierNone
	ghost2 := ghost
	ghost2.ID = "player:ghost two"
	qb := player("qb", "QB", 5000)
	boom := player("boom", "WR", 4000)
	boom.Volatility = 0.9

	a := trade.PricedSide{Gives: []trade.PricedAsset{qb}}
	b := trade.PricedSide{Gives: []trade.PricedAsset{boom, ghost, ghost2}}
	v := evaluate(a, b, trade.QBFormatSuperflex)

	want := map[trade.SideWarning]bool{
		{Side: trade.SideB, Warning: trade.WarningUnresolvedAssets}: true,
		{Side: trade.SideA, Warning: trade.WarningQBScarcity}:       true,
		{Side: trade.SideA, Warning: trade.WarningVolatileReturn}:   true,
		{Warning: trade.WarningLowConfidence}:                       true,
	}
	got := map[trade.SideWarning]bool{}
	for _, w := range v.Warnings {
		got[w] = true
	}
	for w := range want {
		if !got[w] {
			t.Fatalf("missing warning %+v in %+v", w, v.Warnings)
		}
	}
}
