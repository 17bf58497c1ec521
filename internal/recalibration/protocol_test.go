package recalibration

import (
	"fmt"
	"math"
	"testing"
	"time"

	"tradeeval/internal/acceptance"
)

func testConfig() Config {
	return Config{
		MinSampleSize:    100,
		MinAge:           7 * 24 * time.Hour,
		HardCeiling:      1.0,
		SegmentMinSample: 50,
	}
}

func observations(n, accepted int, pred, intercept float64) []Observation {
	out := make([]Observation, 0, n)
	for i := 0; i < n; i++ {
		o := 0.0
		if i < accepted {
			o = 1
		}
		out = append(out, Observation{Predicted: pred, Outcome: o, Intercept: intercept})
	}
	return out
}

func TestEligibilityByAge(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if ok, reason := cfg.Eligible(100, 0.1, now.Add(-6*24*time.Hour), now); ok || reason != ReasonNotMature {
		t.Fatalf("6 days: ok=%v reason=%s", ok, reason)
	}
	if ok, reason := cfg.Eligible(100, 0.1, now.Add(-8*24*time.Hour), now); !ok {
		t.Fatalf("8 days at floor: not eligible (%s)", reason)
	}
	if ok, _ := cfg.Eligible(99, 0.1, now.Add(-8*24*time.Hour), now); ok {
		t.Fatalf("below floor must not be eligible")
	}
}

func TestHighDivergenceBlockedAtAnyAge(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	for _, age := range []time.Duration{0, 8 * 24 * time.Hour, 365 * 24 * time.Hour} {
		if ok, reason := cfg.Eligible(5000, 1.2, now.Add(-age), now); ok || reason != ReasonDivergenceCeiling {
			t.Fatalf("age=%s ok=%v reason=%s", age, ok, reason)
		}
	}
}

func TestComputeShadowLogOdds(t *testing.T) {
	s, err := ComputeShadow(observations(100, 40, 0.5, 0.2), 0.2)
	if err != nil {
		t.Fatalf("ComputeShadow err=%v", err)
	}
	want := acceptance.Logit(0.4) - acceptance.Logit(0.5)
	if math.Abs(s.LogOddsCorrection-want) > 1e-12 {
		t.Fatalf("correction=%v want=%v", s.LogOddsCorrection, want)
	}
	if math.Abs(s.B0-(0.2+want)) > 1e-12 || math.Abs(s.Divergence-math.Abs(want)) > 1e-12 {
		t.Fatalf("shadow=%+v", s)
	}
	if state, _ := testConfig().Classify(s); state != StateMaturing {
		t.Fatalf("state=%s want MATURING", state)
	}

	// Applying the correction reproduces the observed rate.
	if got := acceptance.Sigmoid(acceptance.Logit(0.5) + s.LogOddsCorrection); math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("corrected rate=%v want 0.4", got)
	}

	if _, err := ComputeShadow(nil, 0); err != ErrNoObservations {
		t.Fatalf("err=%v want ErrNoObservations", err)
	}
}

func TestClassifyDiscards(t *testing.T) {
	cfg := testConfig()
	small, _ := ComputeShadow(observations(99, 50, 0.5, 0), 0)
	if state, _ := cfg.Classify(small); state != StateDiscarded {
		t.Fatalf("small sample state=%s", state)
	}
	wild, _ := ComputeShadow(observations(200, 190, 0.3, 0), 0)
	if state, reason := cfg.Classify(wild); state != StateDiscarded || reason == "" {
		t.Fatalf("wild state=%s reason=%s", state, reason)
	}
}

func TestSegmentFloor(t *testing.T) {
	cfg := testConfig()
	groups := map[string][]Observation{}
	for n := 45; n <= 55; n++ {
		groups[fmt.Sprintf("seg-%d", n)] = observations(n, n/2, 0.5, 0.1)
	}
	got := map[string]bool{}
	for _, s := range cfg.Segments(groups) {
		got[s.Key] = true
		if math.Abs(s.BaseB0-0.1) > 1e-9 {
			t.Fatalf("segment %s base=%v want 0.1", s.Key, s.BaseB0)
		}
	}
	if got["seg-49"] {
		t.Fatalf("segment with 49 outcomes included")
	}
	if !got["seg-50"] {
		t.Fatalf("segment with 50 outcomes missing")
	}
	if len(got) != 6 {
		t.Fatalf("segments=%d want 6", len(got))
	}
}
