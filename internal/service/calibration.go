package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tradeeval/internal/calibration"
	"tradeeval/internal/drift"
	"tradeeval/internal/metrics"
	"tradeeval/internal/models"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

// CalibrationQuery filters the outcomes log. Zero values mean "all".
type CalibrationQuery struct {
	Since   *time.Time
	Until   *time.Time
	Mode    string
	Segment string
}

type CalibrationSummary struct {
	Report         calibration.Report `json:"report"`
	Pending        int64              `json:"pending"`
	WeightsVersion int                `json:"weights_version"`
	ActiveB0       float64            `json:"active_b0"`
	Since          *time.Time         `json:"since,omitempty"`
	Until          *time.Time         `json:"until,omitempty"`
}

type SegmentsReport struct {
	Segments []drift.SegmentMetrics `json:"segments"`
	Worst    []drift.SegmentMetrics `json:"worst"`
}

type DriftReport struct {
	WindowEnd time.Time            `json:"window_end"`
	Features  []drift.FeatureDrift `json:"features"`
	Series    []drift.SeriesPoint  `json:"series,omitempty"`
}

type InterceptsReport struct {
	Active     modelstate.Weights            `json:"active"`
	Segments   []modelstate.SegmentIntercept `json:"segments"`
	Shadows    []models.ShadowIntercept      `json:"shadows"`
	Promotions []models.PromotionRecord      `json:"promotions"`
}

// CalibrationService answers the read-only calibration and drift queries.
type CalibrationService struct {
	Repo     repository.Repository
	Registry *modelstate.Registry
	Monitor  calibration.Monitor
	Detector drift.Detector
	Logger   *zap.Logger
	Metrics  *metrics.Registry
	Now      func() time.Time
}

// DriftFeatures are the outcome snapshot fields monitored for drift.
func DriftFeatures() []string {
	out := make([]string, 0, len(trade.AllDrivers))
	for _, id := range trade.AllDrivers {
		out = append(out, string(id))
	}
	return out
}

func (s *CalibrationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CalibrationService) params(q CalibrationQuery, resolvedOnly bool) repository.ListOutcomesParams {
	p := repository.ListOutcomesParams{Since: q.Since, Until: q.Until, ResolvedOnly: resolvedOnly, OrderBy: "created_at", Asc: boolPtr(true)}
	if q.Mode != "" {
		p.Mode = &q.Mode
	}
	if q.Segment != "" {
		p.SegmentKey = &q.Segment
	}
	return p
}

// Samples loads the outcomes log as detector samples.
func (s *CalibrationService) Samples(ctx context.Context, q CalibrationQuery) ([]drift.Sample, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	items, err := s.Repo.ListOutcomes(ctx, s.params(q, false))
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	out := make([]drift.Sample, 0, len(items))
	for _, it := range items {
		out = append(out, SampleFromRecord(it))
	}
	return out, nil
}

// SampleFromRecord converts an outcome row. Predicted and Outcome stay nil
// until the trade resolves with a prediction.
func SampleFromRecord(it models.OutcomeRecord) drift.Sample {
	smp := drift.Sample{At: it.CreatedAt, SegmentKey: it.SegmentKey, Features: map[string]float64{}, Intercept: it.InterceptUsed}
	if len(it.Features) > 0 {
		_ = json.Unmarshal(it.Features, &smp.Features)
	}
	o := trade.Outcome(it.Outcome)
	if it.AcceptProbability != nil && o.Resolved() {
		p := *it.AcceptProbability
		y := o.Label()
		smp.Predicted = &p
		smp.Outcome = &y
	}
	return smp
}

func pairs(samples []drift.Sample) []calibration.Pair {
	out := make([]calibration.Pair, 0, len(samples))
	for _, smp := range samples {
		if smp.Predicted == nil || smp.Outcome == nil {
			continue
		}
		out = append(out, calibration.Pair{Predicted: *smp.Predicted, Outcome: *smp.Outcome})
	}
	return out
}

func (s *CalibrationService) Summary(ctx context.Context, q CalibrationQuery) (*CalibrationSummary, error) {
	samples, err := s.Samples(ctx, q)
	if err != nil {
		return nil, err
	}
	rep := s.Monitor.Compute(pairs(samples))
	out := &CalibrationSummary{Report: rep, Since: q.Since, Until: q.Until}
	for _, smp := range samples {
		if smp.Outcome == nil {
			out.Pending++
		}
	}
	if snap := s.Registry.Load(); snap != nil {
		out.WeightsVersion = snap.Weights.Version
		out.ActiveB0 = snap.Weights.B0
	}
	if !rep.Insufficient && q.Segment == "" && q.Mode == "" {
		s.Metrics.SetCalibration("global", *rep.ECE, *rep.Brier)
	}
	return out, nil
}

func (s *CalibrationService) Segments(ctx context.Context, q CalibrationQuery) (*SegmentsReport, error) {
	samples, err := s.Samples(ctx, q)
	if err != nil {
		return nil, err
	}
	segs := s.Detector.Segments(samples, s.activeB0())
	return &SegmentsReport{Segments: segs, Worst: s.Detector.WorstSegments(segs)}, nil
}

// Drift compares the latest window with the one before it for every
// feature. When feature is set, a weekly series over [since, until) is
// included.
func (s *CalibrationService) Drift(ctx context.Context, q CalibrationQuery, feature string) (*DriftReport, error) {
	end := s.now()
	if q.Until != nil && !q.Until.IsZero() {
		end = q.Until.UTC()
	}
	samples, err := s.Samples(ctx, q)
	if err != nil {
		return nil, err
	}
	out := &DriftReport{WindowEnd: end, Features: s.Detector.Features(samples, DriftFeatures(), end)}
	for _, f := range out.Features {
		if f.PSI != nil {
			s.Metrics.SetFeaturePSI(f.Feature, *f.PSI)
		}
	}
	if feature != "" {
		from := end.AddDate(0, 0, -7*12)
		if q.Since != nil && !q.Since.IsZero() {
			from = q.Since.UTC()
		}
		out.Series = s.Detector.Series(samples, feature, from, end)
	}
	return out, nil
}

func (s *CalibrationService) Intercepts(ctx context.Context) (*InterceptsReport, error) {
	out := &InterceptsReport{Segments: []modelstate.SegmentIntercept{}}
	if snap := s.Registry.Load(); snap != nil {
		out.Active = snap.Weights
		for _, seg := range snap.Segments {
			out.Segments = append(out.Segments, seg)
		}
		sortSegments(out.Segments)
	}
	if s.Repo == nil {
		return out, nil
	}
	shadows, err := s.Repo.ListShadows(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("list shadows: %w", err)
	}
	promotions, err := s.Repo.ListPromotions(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	out.Shadows = shadows
	out.Promotions = promotions
	return out, nil
}

// Alerts evaluates global, feature and segment health for q.
func (s *CalibrationService) Alerts(ctx context.Context, q CalibrationQuery) ([]drift.Alert, error) {
	end := s.now()
	if q.Until != nil && !q.Until.IsZero() {
		end = q.Until.UTC()
	}
	samples, err := s.Samples(ctx, q)
	if err != nil {
		return nil, err
	}
	global := s.Monitor.Compute(pairs(samples))
	features := s.Detector.Features(samples, DriftFeatures(), end)
	segments := s.Detector.Segments(samples, s.activeB0())
	alerts := s.Detector.Alerts(global, features, segments)
	if alerts == nil {
		alerts = []drift.Alert{}
	}
	return alerts, nil
}

func (s *CalibrationService) activeB0() float64 {
	if s.Registry == nil {
		return 0
	}
	if snap := s.Registry.Load(); snap != nil {
		return snap.Weights.B0
	}
	return 0
}

func sortSegments(items []modelstate.SegmentIntercept) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}

func boolPtr(b bool) *bool { return &b }
