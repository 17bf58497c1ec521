package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeeval/internal/audit"
	"tradeeval/internal/config"
	"tradeeval/internal/drift"
	"tradeeval/internal/metrics"
	"tradeeval/internal/models"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/notify"
	"tradeeval/internal/recalibration"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

var ErrVersionNotFound = errors.New("weights version not found")

// CycleResult describes one recalibration pass.
type CycleResult struct {
	State             string                    `json:"state"`
	Reason            string                    `json:"reason,omitempty"`
	Shadow            *models.ShadowIntercept   `json:"shadow,omitempty"`
	PromotedVersion   *int                      `json:"promoted_version,omitempty"`
	SegmentsRefreshed bool                      `json:"segments_refreshed"`
	Segments          []models.SegmentIntercept `json:"segments,omitempty"`
}

// RecalibrationService owns shadow intercepts and is the only writer of the
// active weights and the segment map.
type RecalibrationService struct {
	Repo     repository.Repository
	Registry *modelstate.Registry
	Config   config.RecalibrationConfig
	Settings *SystemSettingsService
	Notifier notify.Notifier
	Alerts   *AlertHub

	Logger  *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time

	mu sync.Mutex
}

func (s *RecalibrationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RecalibrationService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Run is the cron entry point. It is a no-op when recalibration is disabled
// by configuration or by feature switch.
func (s *RecalibrationService) Run(ctx context.Context) {
	if s == nil || !s.Config.Enabled || !s.Settings.Enabled(ctx, FeatureAutoRecalibration) {
		return
	}
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger().Error("recalibration cycle failed", zap.Error(err))
		return
	}
	s.logger().Info("recalibration cycle done",
		zap.String("state", res.State),
		zap.String("reason", res.Reason),
		zap.Bool("segments_refreshed", res.SegmentsRefreshed),
	)
}

// RunOnce advances the shadow lifecycle by one step. A maturing shadow is
// promoted when eligible; otherwise a new shadow is computed when none is
// maturing. The segment map is refreshed on every pass.
func (s *RecalibrationService) RunOnce(ctx context.Context) (*CycleResult, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, errors.New("recalibration service not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.Registry.Load()
	if snap == nil {
		return nil, modelstate.ErrNoActiveWeights
	}
	active := snap.Weights
	cfg := recalibration.ConfigFrom(s.Config)
	now := s.now()
	res := &CycleResult{State: string(recalibration.StateIdle)}

	latest, err := s.Repo.GetLatestShadow(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest shadow: %w", err)
	}
	maturing := latest != nil && latest.State == string(recalibration.StateMaturing)
	if maturing && latest.BaseVersion != active.Version {
		if err := s.Repo.UpdateShadowState(ctx, latest.ID, string(recalibration.StateDiscarded), recalibration.ReasonBaseChanged); err != nil {
			return nil, fmt.Errorf("discard stale shadow: %w", err)
		}
		s.logger().Info("discarded shadow on stale base", zap.Uint64("shadow_id", latest.ID), zap.Int("base_version", latest.BaseVersion))
		maturing = false
	}

	if maturing {
		ok, reason := cfg.Eligible(latest.SampleSize, latest.Divergence, latest.ComputedAt, now)
		switch {
		case ok:
			version, err := s.promote(ctx, active, latest)
			if err != nil {
				return nil, err
			}
			latest.State = string(recalibration.StatePromoted)
			latest.PromotedVersion = &version
			res.State, res.Shadow, res.PromotedVersion = latest.State, latest, &version
		case reason == recalibration.ReasonDivergenceCeiling:
			if err := s.Repo.UpdateShadowState(ctx, latest.ID, string(recalibration.StateDiscarded), reason); err != nil {
				return nil, fmt.Errorf("discard shadow: %w", err)
			}
			latest.State, latest.Reason = string(recalibration.StateDiscarded), reason
			res.State, res.Reason, res.Shadow = latest.State, reason, latest
			s.raiseDivergence(ctx, latest)
		default:
			res.State, res.Reason, res.Shadow = latest.State, reason, latest
		}
	} else {
		shadow, err := s.computeShadow(ctx, cfg, active, now)
		switch {
		case errors.Is(err, recalibration.ErrNoObservations):
			res.Reason = recalibration.ReasonInsufficientSample
		case err != nil:
			return nil, err
		default:
			res.State, res.Reason, res.Shadow = shadow.State, shadow.Reason, shadow
		}
	}

	if s.Config.SegmentIntercepts && s.Settings.Enabled(ctx, FeatureSegmentIntercepts) {
		items, err := s.refreshSegments(ctx, cfg, active, now)
		if err != nil {
			// The global result stands; segments retry next cycle.
			s.logger().Error("segment intercept refresh failed", zap.Error(err))
		} else {
			res.SegmentsRefreshed = true
			res.Segments = items
		}
	}

	s.Metrics.SetShadowState(res.State, recalibration.AllStates)
	return res, nil
}

func (s *RecalibrationService) window(now time.Time) (time.Time, time.Time) {
	days := s.Config.LookbackDays
	if days <= 0 {
		days = 28
	}
	return now.AddDate(0, 0, -days), now
}

// observations loads resolved predictions made under version, or under any
// version when version is zero. When b0 is non-nil only predictions that used
// exactly that intercept are returned, which keeps segment-corrected
// predictions out of the global shadow.
func (s *RecalibrationService) observations(ctx context.Context, version int, b0 *float64, from, to time.Time) (map[string][]recalibration.Observation, int, error) {
	items, err := s.Repo.ListOutcomes(ctx, repository.ListOutcomesParams{Since: &from, Until: &to, ResolvedOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("list resolved outcomes: %w", err)
	}
	groups := map[string][]recalibration.Observation{}
	n := 0
	for _, it := range items {
		if it.AcceptProbability == nil || (version != 0 && it.WeightsVersion != version) {
			continue
		}
		if b0 != nil && math.Abs(it.InterceptUsed-*b0) > 1e-9 {
			continue
		}
		groups[it.SegmentKey] = append(groups[it.SegmentKey], recalibration.Observation{
			Predicted: *it.AcceptProbability,
			Outcome:   trade.Outcome(it.Outcome).Label(),
			Intercept: it.InterceptUsed,
		})
		n++
	}
	return groups, n, nil
}

func (s *RecalibrationService) computeShadow(ctx context.Context, cfg recalibration.Config, active modelstate.Weights, now time.Time) (*models.ShadowIntercept, error) {
	from, to := s.window(now)
	b0 := active.B0
	groups, n, err := s.observations(ctx, active.Version, &b0, from, to)
	if err != nil {
		return nil, err
	}
	all := make([]recalibration.Observation, 0, n)
	for _, obs := range groups {
		all = append(all, obs...)
	}
	shadow, err := recalibration.ComputeShadow(all, active.B0)
	if err != nil {
		return nil, err
	}
	state, reason := cfg.Classify(shadow)
	item := &models.ShadowIntercept{
		B0:                shadow.B0,
		BaseVersion:       active.Version,
		BaseB0:            active.B0,
		SampleSize:        shadow.SampleSize,
		ObservedRate:      shadow.ObservedRate,
		PredictedMean:     shadow.PredictedMean,
		LogOddsCorrection: shadow.LogOddsCorrection,
		Divergence:        shadow.Divergence,
		State:             string(state),
		Reason:            reason,
		WindowStart:       from,
		WindowEnd:         to,
		ComputedAt:        now,
	}
	if err := s.Repo.InsertShadow(ctx, item); err != nil {
		return nil, fmt.Errorf("insert shadow: %w", err)
	}
	s.logger().Info("shadow intercept computed",
		zap.Uint64("shadow_id", item.ID),
		zap.String("state", item.State),
		zap.Int("n", item.SampleSize),
		zap.Float64("b0", item.B0),
		zap.Float64("divergence", item.Divergence),
	)
	if strings.HasPrefix(reason, recalibration.ReasonDivergenceCeiling) {
		s.raiseDivergence(ctx, item)
	}
	return item, nil
}

// promote writes a new version in one transaction, then swaps the snapshot.
// A failed write leaves the snapshot untouched.
func (s *RecalibrationService) promote(ctx context.Context, active modelstate.Weights, shadow *models.ShadowIntercept) (int, error) {
	next := active
	next.B0 = shadow.B0
	next.ComputedAt = s.now()
	item, err := next.ToModel(SourceAuto, fmt.Sprintf("shadow %d over %d outcomes", shadow.ID, shadow.SampleSize))
	if err != nil {
		return 0, err
	}
	shadowID := shadow.ID
	rec := &models.PromotionRecord{
		OldVersion: active.Version,
		OldB0:      active.B0,
		SampleSize: shadow.SampleSize,
		Source:     SourceAuto,
		ShadowID:   &shadowID,
	}
	if err := s.Repo.PromoteWeights(ctx, item, rec); err != nil {
		return 0, fmt.Errorf("promote shadow %d: %w", shadow.ID, err)
	}
	if err := s.publish(*item); err != nil {
		return 0, err
	}
	s.Metrics.IncPromotion(SourceAuto)
	s.logger().Info("shadow intercept promoted",
		zap.Uint64("shadow_id", shadow.ID),
		zap.Int("old_version", active.Version),
		zap.Int("new_version", item.Version),
		zap.Float64("old_b0", active.B0),
		zap.Float64("new_b0", item.B0),
	)
	details := map[string]any{"old_version": active.Version, "new_version": item.Version, "old_b0": active.B0, "new_b0": item.B0}
	audit.Emit(ctx, "tradeeval_weights_promoted", "info", details)
	s.notifyText(ctx, "Intercept promoted", fmt.Sprintf("v%d -> v%d", active.Version, item.Version), fmt.Sprintf("b0 %.4f -> %.4f (n=%d)", active.B0, item.B0, shadow.SampleSize))
	return item.Version, nil
}

func (s *RecalibrationService) publish(item models.CalibratedWeights) error {
	w, err := modelstate.WeightsFromModel(item)
	if err != nil {
		return fmt.Errorf("decode promoted weights: %w", err)
	}
	s.Registry.SwapWeights(w)
	s.Metrics.SetActiveB0(w.B0)
	return nil
}

// refreshSegments replaces the whole segment map from every resolved
// prediction in the window, whatever version produced it. Each observation
// carries the intercept it was made under, so a promotion does not reset the
// map. Segments below the floor are dropped rather than kept stale.
func (s *RecalibrationService) refreshSegments(ctx context.Context, cfg recalibration.Config, active modelstate.Weights, now time.Time) ([]models.SegmentIntercept, error) {
	from, to := s.window(now)
	groups, _, err := s.observations(ctx, 0, nil, from, to)
	if err != nil {
		return nil, err
	}
	results := cfg.Segments(groups)
	items := make([]models.SegmentIntercept, 0, len(results))
	for _, r := range results {
		items = append(items, models.SegmentIntercept{
			SegmentKey:        r.Key,
			B0:                r.B0,
			SampleSize:        r.SampleSize,
			ObservedRate:      r.ObservedRate,
			PredictedMean:     r.PredictedMean,
			LogOddsCorrection: r.LogOddsCorrection,
			BaseVersion:       active.Version,
			ComputedAt:        now,
		})
	}
	if err := s.Repo.ReplaceSegmentIntercepts(ctx, items); err != nil {
		return nil, fmt.Errorf("replace segment intercepts: %w", err)
	}
	s.Registry.SwapSegments(modelstate.SegmentsFromModels(items))
	s.logger().Info("segment intercepts refreshed", zap.Int("segments", len(items)))
	return items, nil
}

// Rollback re-activates the weights of an older version as a new version.
// History is never rewritten.
func (s *RecalibrationService) Rollback(ctx context.Context, version int, note string) (*modelstate.Weights, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, errors.New("recalibration service not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.Repo.GetWeightsByVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("load weights v%d: %w", version, err)
	}
	if target == nil {
		return nil, ErrVersionNotFound
	}
	w, err := modelstate.WeightsFromModel(*target)
	if err != nil {
		return nil, err
	}
	var old modelstate.Weights
	if snap := s.Registry.Load(); snap != nil {
		old = snap.Weights
	}
	w.ComputedAt = s.now()
	if strings.TrimSpace(note) == "" {
		note = fmt.Sprintf("rollback to v%d", version)
	}
	item, err := w.ToModel(SourceRollback, note)
	if err != nil {
		return nil, err
	}
	rec := &models.PromotionRecord{OldVersion: old.Version, OldB0: old.B0, Source: SourceRollback, Note: note}
	if err := s.Repo.PromoteWeights(ctx, item, rec); err != nil {
		return nil, fmt.Errorf("rollback to v%d: %w", version, err)
	}
	if err := s.publish(*item); err != nil {
		return nil, err
	}
	s.Metrics.IncPromotion(SourceRollback)
	s.logger().Warn("weights rolled back", zap.Int("from_version", old.Version), zap.Int("target_version", version), zap.Int("new_version", item.Version))
	audit.Emit(ctx, "tradeeval_weights_rolled_back", "warn", map[string]any{
		"from_version": old.Version, "target_version": version, "new_version": item.Version,
	})
	s.notifyText(ctx, "Weights rolled back", fmt.Sprintf("v%d restored as v%d", version, item.Version))
	out := s.Registry.Load().Weights
	return &out, nil
}

func (s *RecalibrationService) raiseDivergence(ctx context.Context, shadow *models.ShadowIntercept) {
	alert := drift.Alert{
		Severity:        drift.SeverityCritical,
		Reason:          fmt.Sprintf("shadow intercept divergence %.3f above ceiling", shadow.Divergence),
		Value:           shadow.Divergence,
		SuggestedAction: "investigate outcome labelling and upstream data before recalibrating manually",
	}
	s.logger().Warn("shadow promotion blocked", zap.Uint64("shadow_id", shadow.ID), zap.Float64("divergence", shadow.Divergence))
	s.Metrics.IncDriftAlert(string(alert.Severity))
	s.Alerts.Publish([]drift.Alert{alert})
	if s.Notifier != nil {
		if err := s.Notifier.Alerts(ctx, []drift.Alert{alert}); err != nil {
			s.logger().Warn("divergence notification failed", zap.Error(err))
		}
	}
	audit.Emit(ctx, "tradeeval_shadow_blocked", "warn", map[string]any{"shadow_id": shadow.ID, "divergence": shadow.Divergence})
}

func (s *RecalibrationService) notifyText(ctx context.Context, title string, lines ...string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Text(ctx, title, lines...); err != nil {
		s.logger().Warn("notification failed", zap.String("title", title), zap.Error(err))
	}
}
