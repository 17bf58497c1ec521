// Package drift detects distribution shift in acceptance features and
// per-segment calibration decay.
package drift

import (
	"fmt"
	"math"
	"sort"
	"time"

	"tradeeval/internal/calibration"
	"tradeeval/internal/config"
)

type Severity string

const (
	SeverityWatch    Severity = "watch"
	SeverityCritical Severity = "critical"
)

// Sample is one outcome record as seen by the detector.
type Sample struct {
	At         time.Time
	SegmentKey string
	Features   map[string]float64
	// Predicted and Outcome are nil until the trade resolves with a prediction.
	Predicted *float64
	Outcome   *float64
	// Intercept is the b0 the prediction was made under.
	Intercept float64
}

type FeatureDrift struct {
	Feature      string             `json:"feature"`
	BaselineN    int                `json:"baseline_n"`
	CurrentN     int                `json:"current_n"`
	PSI          *float64           `json:"psi"`
	JSD          *float64           `json:"jsd"`
	Status       calibration.Status `json:"status"`
	Insufficient bool               `json:"insufficient"`
}

type SeriesPoint struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	FeatureDrift
}

type SegmentMetrics struct {
	SegmentKey     string             `json:"segment_key"`
	N              int                `json:"n"`
	Insufficient   bool               `json:"insufficient"`
	ECE            *float64           `json:"ece"`
	Brier          *float64           `json:"brier"`
	ECEStatus      calibration.Status `json:"ece_status"`
	ObservedRate   float64            `json:"observed_rate"`
	PredictedMean  float64            `json:"predicted_mean"`
	InterceptDelta *float64           `json:"intercept_delta"`
	InterceptState calibration.Status `json:"intercept_status"`
}

type Alert struct {
	Severity        Severity `json:"severity"`
	Reason          string   `json:"reason"`
	Segment         string   `json:"segment,omitempty"`
	Feature         string   `json:"feature,omitempty"`
	Value           float64  `json:"value"`
	SuggestedAction string   `json:"suggested_action"`
}

type Detector struct {
	Config  config.DriftConfig
	Monitor calibration.Monitor
}

func (d Detector) bins() int {
	if d.Config.Bins <= 0 {
		return 10
	}
	return d.Config.Bins
}

func (d Detector) eps() float64 {
	if d.Config.Epsilon <= 0 {
		return 1e-4
	}
	return d.Config.Epsilon
}

func (d Detector) featureMin() int {
	if d.Config.FeatureMinSample <= 0 {
		return 20
	}
	return d.Config.FeatureMinSample
}

func (d Detector) segmentMin() int {
	if d.Config.SegmentMinSample <= 0 {
		return 20
	}
	return d.Config.SegmentMinSample
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func (d Detector) psiStatus(psi float64) calibration.Status {
	switch {
	case psi > orDefault(d.Config.PSICritical, 0.25):
		return calibration.StatusCritical
	case psi > orDefault(d.Config.PSIWatch, 0.10):
		return calibration.StatusWatch
	default:
		return calibration.StatusGood
	}
}

func (d Detector) interceptStatus(delta float64) calibration.Status {
	a := math.Abs(delta)
	switch {
	case a > orDefault(d.Config.InterceptCrit, 0.08):
		return calibration.StatusCritical
	case a > orDefault(d.Config.InterceptWatch, 0.05):
		return calibration.StatusWatch
	default:
		return calibration.StatusGood
	}
}

// CompareFeature reports drift of one feature between two windows. Small
// windows are insufficient rather than drift-free.
func (d Detector) CompareFeature(feature string, baseline, current []float64) FeatureDrift {
	out := FeatureDrift{Feature: feature, BaselineN: len(baseline), CurrentN: len(current)}
	if len(baseline) < d.featureMin() || len(current) < d.featureMin() {
		out.Insufficient = true
		out.Status = calibration.StatusInsufficient
		return out
	}
	psi, jsd := CompareSamples(baseline, current, d.bins(), d.eps())
	out.PSI = &psi
	out.JSD = &jsd
	out.Status = d.psiStatus(psi)
	return out
}

// Values extracts a feature from samples in [from, to).
func Values(samples []Sample, feature string, from, to time.Time) []float64 {
	var out []float64
	for _, s := range samples {
		if s.At.Before(from) || !s.At.Before(to) {
			continue
		}
		if v, ok := s.Features[feature]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Features compares the window ending at end against the window before it.
func (d Detector) Features(samples []Sample, features []string, end time.Time) []FeatureDrift {
	window := d.window()
	out := make([]FeatureDrift, 0, len(features))
	for _, f := range features {
		base := Values(samples, f, end.Add(-2*window), end.Add(-window))
		cur := Values(samples, f, end.Add(-window), end)
		out = append(out, d.CompareFeature(f, base, cur))
	}
	return out
}

// Series is the weekly PSI/JSD of a feature over [from, to), each window
// compared with the one before it.
func (d Detector) Series(samples []Sample, feature string, from, to time.Time) []SeriesPoint {
	window := d.window()
	var out []SeriesPoint
	for start := from; start.Before(to); start = start.Add(window) {
		end := start.Add(window)
		base := Values(samples, feature, start.Add(-window), start)
		cur := Values(samples, feature, start, end)
		out = append(out, SeriesPoint{WindowStart: start, WindowEnd: end, FeatureDrift: d.CompareFeature(feature, base, cur)})
	}
	return out
}

func (d Detector) window() time.Duration {
	days := d.Config.WindowDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Segments computes calibration per segment. The intercept delta is the
// segment's implied intercept, mean applied b0 plus the log-odds gap, minus
// activeB0.
func (d Detector) Segments(samples []Sample, activeB0 float64) []SegmentMetrics {
	groups := map[string][]calibration.Pair{}
	applied := map[string]float64{}
	for _, s := range samples {
		if s.Predicted == nil || s.Outcome == nil {
			continue
		}
		groups[s.SegmentKey] = append(groups[s.SegmentKey], calibration.Pair{Predicted: *s.Predicted, Outcome: *s.Outcome})
		applied[s.SegmentKey] += s.Intercept
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]SegmentMetrics, 0, len(keys))
	for _, k := range keys {
		pairs := groups[k]
		rep := d.Monitor.Compute(pairs)
		m := SegmentMetrics{
			SegmentKey:    k,
			N:             len(pairs),
			ObservedRate:  rep.BaseRate,
			PredictedMean: rep.MeanPred,
		}
		if len(pairs) < d.segmentMin() || rep.Insufficient {
			m.Insufficient = true
			m.ECEStatus = calibration.StatusInsufficient
			m.InterceptState = calibration.StatusInsufficient
			out = append(out, m)
			continue
		}
		m.ECE = rep.ECE
		m.Brier = rep.Brier
		m.ECEStatus = rep.ECEStatus
		implied := applied[k]/float64(len(pairs)) + LogOddsGap(rep.BaseRate, rep.MeanPred)
		delta := implied - activeB0
		m.InterceptDelta = &delta
		m.InterceptState = d.interceptStatus(delta)
		out = append(out, m)
	}
	return out
}

// LogOddsGap is logit(observed) - logit(predicted) with rates clamped away
// from 0 and 1.
func LogOddsGap(observed, predicted float64) float64 {
	return logit(observed) - logit(predicted)
}

func logit(p float64) float64 {
	const eps = 1e-3
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

// WorstSegments ranks segments by ECE, then by |intercept delta|. Segments
// without enough samples are left out entirely.
func (d Detector) WorstSegments(segments []SegmentMetrics) []SegmentMetrics {
	ranked := make([]SegmentMetrics, 0, len(segments))
	for _, s := range segments {
		if s.Insufficient || s.ECE == nil {
			continue
		}
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if *ranked[i].ECE != *ranked[j].ECE {
			return *ranked[i].ECE > *ranked[j].ECE
		}
		return math.Abs(*ranked[i].InterceptDelta) > math.Abs(*ranked[j].InterceptDelta)
	})
	limit := d.Config.WorstSegments
	if limit <= 0 {
		limit = 5
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Alerts turns report statuses into operator alerts. Insufficient data never
// alerts.
func (d Detector) Alerts(global calibration.Report, features []FeatureDrift, segments []SegmentMetrics) []Alert {
	var out []Alert
	sev := func(s calibration.Status) (Severity, bool) {
		switch s {
		case calibration.StatusCritical:
			return SeverityCritical, true
		case calibration.StatusWatch:
			return SeverityWatch, true
		}
		return "", false
	}

	if !global.Insufficient {
		if s, ok := sev(global.ECEStatus); ok {
			out = append(out, Alert{
				Severity:        s,
				Reason:          fmt.Sprintf("global ECE %.3f", *global.ECE),
				Value:           *global.ECE,
				SuggestedAction: "review the shadow intercept and consider a manual recalibration",
			})
		}
		if s, ok := sev(global.BrierStatus); ok {
			out = append(out, Alert{
				Severity:        s,
				Reason:          fmt.Sprintf("global Brier score %.3f", *global.Brier),
				Value:           *global.Brier,
				SuggestedAction: "check driver weights; intercept correction alone may not recover accuracy",
			})
		}
	}
	for _, f := range features {
		if f.Insufficient || f.PSI == nil {
			continue
		}
		if s, ok := sev(f.Status); ok {
			out = append(out, Alert{
				Severity:        s,
				Reason:          fmt.Sprintf("feature %s PSI %.3f", f.Feature, *f.PSI),
				Feature:         f.Feature,
				Value:           *f.PSI,
				SuggestedAction: "inspect upstream market values and league mix for a population shift",
			})
		}
	}
	for _, seg := range segments {
		if seg.Insufficient || seg.InterceptDelta == nil {
			continue
		}
		if s, ok := sev(seg.InterceptState); ok {
			out = append(out, Alert{
				Severity:        s,
				Reason:          fmt.Sprintf("segment intercept delta %+.3f", *seg.InterceptDelta),
				Segment:         seg.SegmentKey,
				Value:           *seg.InterceptDelta,
				SuggestedAction: "let the segment intercept refresh on the next recalibration cycle",
			})
		}
		if s, ok := sev(seg.ECEStatus); ok {
			out = append(out, Alert{
				Severity:        s,
				Reason:          fmt.Sprintf("segment ECE %.3f", *seg.ECE),
				Segment:         seg.SegmentKey,
				Value:           *seg.ECE,
				SuggestedAction: "compare segment reliability curve with the global curve",
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity == SeverityCritical && out[j].Severity != SeverityCritical
	})
	return out
}
