package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.ObserveEvaluation("composite", time.Millisecond)
	r.IncUnavailable("missing_roster")
	r.SetShadowState("IDLE", []string{"IDLE"})
}

func TestCountersRecord(t *testing.T) {
	r := New()
	r.ObserveEvaluation("lineup", 10*time.Millisecond)
	r.ObserveEvaluation("lineup", 10*time.Millisecond)
	r.IncPromotion("auto")
	if got := testutil.ToFloat64(r.Evaluations.WithLabelValues("lineup")); got != 2 {
		t.Fatalf("evaluations=%v want=2", got)
	}
	if got := testutil.ToFloat64(r.Promotions.WithLabelValues("auto")); got != 1 {
		t.Fatalf("promotions=%v want=1", got)
	}
	r.SetShadowState("MATURING", []string{"IDLE", "MATURING"})
	if got := testutil.ToFloat64(r.ShadowState.WithLabelValues("IDLE")); got != 0 {
		t.Fatalf("idle gauge=%v want=0", got)
	}
}
