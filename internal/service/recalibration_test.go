package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/config"
	"tradeeval/internal/drift"
	"tradeeval/internal/models"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/recalibration"
	gormrepository "tradeeval/internal/repository/gorm"
	"tradeeval/internal/trade"
)

var recalBase = time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time      { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

// insertResolved writes n resolved predictions at p for segment. The first
// accepted rows are ACCEPTED, the rest REJECTED.
func insertResolved(t *testing.T, store *gormrepository.Store, segment string, n, accepted int, p float64, version int, b0 float64, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		prob := p
		outcome := trade.OutcomeRejected
		if i < accepted {
			outcome = trade.OutcomeAccepted
		}
		resolved := at.Add(time.Hour)
		require.NoError(t, store.InsertOutcome(context.Background(), &models.OutcomeRecord{
			TradeID:           fmt.Sprintf("%s-%d", segment, i),
			AcceptProbability: &prob,
			Mode:              "standard",
			Format:            "dynasty",
			Scoring:           "ppr",
			QBFormat:          string(trade.QBFormatOne),
			SegmentKey:        segment,
			FairnessScore:     50,
			FairnessMethod:    string(trade.MethodComposite),
			WeightsVersion:    version,
			InterceptUsed:     b0,
			Outcome:           string(outcome),
			ResolvedAt:        &resolved,
			CreatedAt:         at,
		}))
	}
}

func newRecalibration(t *testing.T, store *gormrepository.Store, c *clock) *RecalibrationService {
	t.Helper()
	reg := modelstate.NewRegistry(WeightsFromConfig(testAcceptanceConfig()))
	require.NoError(t, SeedWeights(context.Background(), store, reg, testAcceptanceConfig(), nil))
	return &RecalibrationService{
		Repo:     store,
		Registry: reg,
		Config: config.RecalibrationConfig{
			Enabled:           true,
			LookbackDays:      28,
			MinSampleSize:     100,
			MinAge:            7 * 24 * time.Hour,
			HardCeiling:       1,
			SegmentMinSample:  50,
			SegmentIntercepts: true,
		},
		Settings: &SystemSettingsService{Repo: store},
		Alerts:   NewAlertHub(),
		Now:      c.now,
	}
}

func TestRecalibrationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := &clock{t: recalBase}
	svc := newRecalibration(t, store, c)
	require.Equal(t, 1, svc.Registry.Load().Weights.Version)

	// 60% observed against 50% predicted in aggregate.
	at := recalBase.AddDate(0, 0, -3)
	insertResolved(t, store, "dynasty|ppr|standard", 120, 72, 0.5, 1, 0, at)
	insertResolved(t, store, "redraft|ppr|standard", 50, 30, 0.5, 1, 0, at)
	insertResolved(t, store, "redraft|half|standard", 45, 27, 0.5, 1, 0, at)
	want := math.Log(1.5)

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateMaturing), res.State)
	require.NotNil(t, res.Shadow)
	assert.Equal(t, 215, res.Shadow.SampleSize)
	assert.InDelta(t, want, res.Shadow.B0, 1e-6)
	assert.Equal(t, 1, svc.Registry.Load().Weights.Version, "maturing shadow must not touch active weights")

	require.True(t, res.SegmentsRefreshed)
	segs := svc.Registry.Load().Segments
	assert.Contains(t, segs, "dynasty|ppr|standard")
	assert.Contains(t, segs, "redraft|ppr|standard")
	assert.NotContains(t, segs, "redraft|half|standard")
	assert.InDelta(t, want, segs["dynasty|ppr|standard"].B0, 1e-6)
	assert.Equal(t, 120, segs["dynasty|ppr|standard"].SampleSize)

	c.add(6 * 24 * time.Hour)
	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateMaturing), res.State)
	assert.Equal(t, recalibration.ReasonNotMature, res.Reason)
	assert.Equal(t, 1, svc.Registry.Load().Weights.Version)

	c.add(2 * 24 * time.Hour)
	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StatePromoted), res.State)
	require.NotNil(t, res.PromotedVersion)
	assert.Equal(t, 2, *res.PromotedVersion)

	active := svc.Registry.Load().Weights
	assert.Equal(t, 2, active.Version)
	assert.InDelta(t, want, active.B0, 1e-6)
	assert.Equal(t, SourceAuto, active.Source)

	stored, err := store.GetActiveWeights(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Version)

	latest, err := store.GetLatestShadow(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StatePromoted), latest.State)

	// Outcomes were predicted under v1, so the next pass has nothing to learn from.
	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateIdle), res.State)
	assert.Equal(t, recalibration.ReasonInsufficientSample, res.Reason)

	rolled, err := svc.Rollback(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, rolled.Version)
	assert.InDelta(t, 0, rolled.B0, 1e-12)
	assert.Equal(t, SourceRollback, rolled.Source)

	promotions, err := store.ListPromotions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, promotions, 3)
	sources := map[string]bool{}
	for _, p := range promotions {
		sources[p.Source] = true
	}
	assert.Equal(t, map[string]bool{SourceSeed: true, SourceAuto: true, SourceRollback: true}, sources)

	_, err = svc.Rollback(ctx, 42, "")
	require.ErrorIs(t, err, ErrVersionNotFound)
}

func TestRecalibrationSegmentsSurvivePromotion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := &clock{t: recalBase}
	svc := newRecalibration(t, store, c)
	want := math.Log(1.5)
	insertResolved(t, store, "dynasty|ppr|standard", 120, 72, 0.5, 1, 0, recalBase.AddDate(0, 0, -3))

	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	c.add(8 * 24 * time.Hour)
	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, string(recalibration.StatePromoted), res.State)
	require.Equal(t, 2, svc.Registry.Load().Weights.Version)

	// Predictions made under v2 with a segment intercept already applied.
	insertResolved(t, store, "redraft|ppr|standard", 60, 30, 0.5, 2, want, c.now().AddDate(0, 0, -1))

	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, res.SegmentsRefreshed)

	segs := svc.Registry.Load().Segments
	require.Contains(t, segs, "dynasty|ppr|standard", "v1 evidence must outlive the promotion")
	assert.InDelta(t, want, segs["dynasty|ppr|standard"].B0, 1e-6)
	assert.Equal(t, 120, segs["dynasty|ppr|standard"].SampleSize)
	require.Contains(t, segs, "redraft|ppr|standard")
	// Observed 50% at 50% predicted: the applied intercept is already right.
	assert.InDelta(t, want, segs["redraft|ppr|standard"].B0, 1e-6)

	stored, err := store.ListSegmentIntercepts(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRecalibrationDiscardsDivergentShadow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := &clock{t: recalBase}
	svc := newRecalibration(t, store, c)
	alerts, cancel := svc.Alerts.Subscribe(1)
	defer cancel()

	insertResolved(t, store, "dynasty|ppr|standard", 120, 110, 0.5, 1, 0, recalBase.AddDate(0, 0, -1))

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateDiscarded), res.State)
	assert.Contains(t, res.Reason, recalibration.ReasonDivergenceCeiling)
	assert.Equal(t, 1, svc.Registry.Load().Weights.Version)

	select {
	case batch := <-alerts:
		require.Len(t, batch, 1)
		assert.Equal(t, drift.SeverityCritical, batch[0].Severity)
	default:
		t.Fatal("expected divergence alert on the hub")
	}

	// A discarded shadow is never promoted; the next pass computes a fresh one.
	c.add(8 * 24 * time.Hour)
	res, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateDiscarded), res.State)
	assert.Equal(t, 1, svc.Registry.Load().Weights.Version)
}

func TestRecalibrationSmallSampleIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newRecalibration(t, store, &clock{t: recalBase})
	insertResolved(t, store, "dynasty|ppr|standard", 60, 36, 0.5, 1, 0, recalBase.AddDate(0, 0, -1))

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(recalibration.StateDiscarded), res.State)
	assert.Contains(t, res.Reason, recalibration.ReasonInsufficientSample)
}

func TestRecalibrationDiscardsShadowOnStaleBase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := &clock{t: recalBase}
	svc := newRecalibration(t, store, c)
	insertResolved(t, store, "dynasty|ppr|standard", 120, 72, 0.5, 1, 0, recalBase.AddDate(0, 0, -1))

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, string(recalibration.StateMaturing), res.State)
	shadowID := res.Shadow.ID

	_, err = svc.Rollback(ctx, 1, "manual reset")
	require.NoError(t, err)

	c.add(8 * 24 * time.Hour)
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)

	shadows, err := store.ListShadows(ctx, 10)
	require.NoError(t, err)
	for _, sh := range shadows {
		if sh.ID == shadowID {
			assert.Equal(t, string(recalibration.StateDiscarded), sh.State)
			assert.Equal(t, recalibration.ReasonBaseChanged, sh.Reason)
		}
	}
	assert.Equal(t, 2, svc.Registry.Load().Weights.Version)
}

func TestRecalibrationRunHonoursSwitch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newRecalibration(t, store, &clock{t: recalBase})
	insertResolved(t, store, "dynasty|ppr|standard", 120, 72, 0.5, 1, 0, recalBase.AddDate(0, 0, -1))
	require.NoError(t, svc.Settings.SetEnabled(ctx, FeatureAutoRecalibration, false))

	svc.Run(ctx)
	latest, err := store.GetLatestShadow(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, svc.Settings.SetEnabled(ctx, FeatureAutoRecalibration, true))
	svc.Run(ctx)
	latest, err = store.GetLatestShadow(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, string(recalibration.StateMaturing), latest.State)
}
