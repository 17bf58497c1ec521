package acceptance

import (
	"fmt"
	"math"
	"testing"

	"tradeeval/internal/config"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/trade"
)

func player(name, pos string, value, vorp float64) trade.PricedAsset {
	ref := trade.AssetRef{Kind: trade.KindPlayer, Name: name, Position: pos}
	return trade.PricedAsset{
		Ref:         ref,
		ID:          ref.ID(),
		Position:    pos,
		MarketValue: value,
		VORPValue:   vorp,
		Value:       value,
		Source:      trade.SourceExact,
	}
}

func registry(b0 float64) *modelstate.Registry {
	return modelstate.NewRegistry(modelstate.Weights{
		Version: 1,
		B0:      b0,
		Drivers: map[trade.DriverID]float64{
			trade.DriverLineupImpact: 1,
			trade.DriverVORP:         1,
			trade.DriverMarket:       1,
			trade.DriverBehavioral:   1,
		},
	})
}

func testModel(b0 float64) *Model {
	return &Model{
		Config: config.AcceptanceConfig{
			SegmentMinSample:    50,
			ConfidenceFullN:     200,
			HistoryMinTrades:    3,
			LineupNormalization: 1000,
		},
		Registry: registry(b0),
	}
}

func rosterB() []trade.PricedAsset {
	out := []trade.PricedAsset{}
	for i, pos := range []string{"QB", "RB", "RB", "WR", "WR", "TE"} {
		out = append(out, player(fmt.Sprintf("b%d", i), pos, 3000, 500))
	}
	return out
}

func TestPredictUnavailableWithoutRoster(t *testing.T) {
	m := testModel(0)
	res := m.Predict(Input{
		A: trade.PricedSide{Gives: []trade.PricedAsset{player("a", "WR", 5000, 1000)}},
		B: trade.PricedSide{Gives: []trade.PricedAsset{player("b", "WR", 5000, 1000)}},
	})
	if res.Available || res.Probability != nil {
		t.Fatalf("res=%+v want unavailable", res)
	}
	if res.UnavailableReason != ReasonMissingRoster {
		t.Fatalf("reason=%q want=%q", res.UnavailableReason, ReasonMissingRoster)
	}
	if res.Verdict != "" || res.Lean != "" {
		t.Fatalf("no verdict expected without probability")
	}
}

func TestPredictUnavailableWithoutMarketValue(t *testing.T) {
	m := testModel(0)
	ghost := player("ghost", "WR", 0, 0)
	ghost.Source = trade.SourceUnknown
	res := m.Predict(Input{
		A: trade.PricedSide{Gives: []trade.PricedAsset{ghost}},
		B: trade.PricedSide{Roster: rosterB()},
	})
	if res.Available || res.UnavailableReason != ReasonNoMarketValue {
		t.Fatalf("res=%+v want no_market_value", res)
	}
}

func TestPredictLogistic(t *testing.T) {
	m := testModel(0.2)
	roster := rosterB()
	in := Input{
		A: trade.PricedSide{Gives: []trade.PricedAsset{player("star", "WR", 6000, 2000)}},
		B: trade.PricedSide{Roster: roster, Gives: []trade.PricedAsset{roster[4]}},
		League: trade.LeagueContext{
			Format: "dynasty", QBFormat: trade.QBFormatOne, Scoring: "ppr", Teams: 12,
			Slots: trade.SlotConfig{QB: 1, RB: 2, WR: 2, TE: 1},
		},
		History:    &History{Resolved: 10, Accepted: 7},
		SampleSize: 200,
	}
	res := m.Predict(in)
	if !res.Available || res.Probability == nil {
		t.Fatalf("res=%+v want available", res)
	}
	// lineup: +3000/1000 clamps to 1; vorp: (2000-500)/2000; market: (6000-3000)/6000;
	// behavioral: 2*0.7-1.
	want := Sigmoid(0.2 + 1 + 0.75 + 0.5 + 0.4)
	if math.Abs(*res.Probability-want) > 1e-9 {
		t.Fatalf("p=%v want=%v", *res.Probability, want)
	}
	if len(res.Drivers) != len(trade.AllDrivers) {
		t.Fatalf("drivers=%v", res.Drivers)
	}
	for i, d := range res.Drivers {
		if d.ID != trade.AllDrivers[i] || !d.ID.Valid() {
			t.Fatalf("driver %d id=%s", i, d.ID)
		}
	}
	if res.Verdict != "very_likely" || res.Lean != "accept" {
		t.Fatalf("verdict=%s lean=%s", res.Verdict, res.Lean)
	}
	if res.Confidence.Rating != RatingHigh {
		t.Fatalf("confidence=%+v want HIGH", res.Confidence)
	}
}

func TestBehavioralNeutralBelowHistoryFloor(t *testing.T) {
	m := testModel(0)
	roster := rosterB()
	in := Input{
		A:       trade.PricedSide{Gives: []trade.PricedAsset{player("x", "WR", 3000, 500)}},
		B:       trade.PricedSide{Roster: roster, Gives: []trade.PricedAsset{roster[3]}},
		History: &History{Resolved: 2, Accepted: 2},
	}
	res := m.Predict(in)
	if res.Scores[trade.DriverBehavioral] != 0 {
		t.Fatalf("behavioral=%v want 0", res.Scores[trade.DriverBehavioral])
	}
}

func TestSegmentInterceptOverridesGlobal(t *testing.T) {
	m := testModel(0)
	league := trade.LeagueContext{Format: "dynasty", Scoring: "ppr", Mode: "standard"}
	m.Registry.SwapSegments(map[string]modelstate.SegmentIntercept{
		league.SegmentKey(): {Key: league.SegmentKey(), B0: -1.5, SampleSize: 50},
	})
	roster := rosterB()
	res := m.Predict(Input{
		A:      trade.PricedSide{Gives: []trade.PricedAsset{player("x", "WR", 3000, 500)}},
		B:      trade.PricedSide{Roster: roster, Gives: []trade.PricedAsset{roster[3]}},
		League: league,
	})
	if res.InterceptSource != "segment" || res.Intercept != -1.5 {
		t.Fatalf("intercept=%v source=%s", res.Intercept, res.InterceptSource)
	}
}

func TestConfidenceIgnoresProbability(t *testing.T) {
	roster := rosterB()
	in := Input{
		A:          trade.PricedSide{Gives: []trade.PricedAsset{player("x", "WR", 3000, 500)}},
		B:          trade.PricedSide{Roster: roster, Gives: []trade.PricedAsset{roster[3]}},
		SampleSize: 40,
	}
	low := testModel(-4).Predict(in)
	high := testModel(4).Predict(in)
	if *low.Probability >= *high.Probability {
		t.Fatalf("intercepts should move probability")
	}
	if low.Confidence.Score != high.Confidence.Score || low.Confidence.Rating != high.Confidence.Rating {
		t.Fatalf("confidence low=%+v high=%+v", low.Confidence, high.Confidence)
	}
}

func TestVerdictBins(t *testing.T) {
	cases := map[float64]string{
		0.05: "very_unlikely",
		0.2:  "unlikely",
		0.5:  "toss_up",
		0.79: "likely",
		0.8:  "very_likely",
	}
	for p, want := range cases {
		if got := Verdict(p); got != want {
			t.Fatalf("Verdict(%v)=%s want=%s", p, got, want)
		}
	}
	if Lean(0.5) != "neutral" || Lean(0.55) != "accept" || Lean(0.45) != "reject" {
		t.Fatalf("lean bins")
	}
}

func TestSigmoidLogitInverse(t *testing.T) {
	for _, p := range []float64{0.01, 0.3, 0.5, 0.9} {
		if got := Sigmoid(Logit(p)); math.Abs(got-p) > 1e-9 {
			t.Fatalf("Sigmoid(Logit(%v))=%v", p, got)
		}
	}
	if Sigmoid(-1000) != 0 || Sigmoid(1000) != 1 {
		t.Fatalf("sigmoid saturation")
	}
}
