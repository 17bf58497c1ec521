package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/calibration"
	"tradeeval/internal/drift"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/trade"
)

func TestCalibrationSummaryCountsPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertResolved(t, store, "dynasty|ppr|standard", 60, 30, 0.5, 1, 0, recalBase.AddDate(0, 0, -2))

	eval := newEvaluationService(t, store, market(map[string]float64{"Alpha WR": 5000}))
	_, err := eval.Evaluate(ctx, EvaluateRequest{SideA: trade.TradeSide{Gives: gives("Alpha WR")}})
	require.NoError(t, err)

	reg := modelstate.NewRegistry(modelstate.Weights{Version: 4, B0: 0.2})
	svc := &CalibrationService{
		Repo:     store,
		Registry: reg,
		Monitor:  calibration.Monitor{Buckets: 10, MinSamples: 30},
		Detector: drift.Detector{Monitor: calibration.Monitor{Buckets: 10, MinSamples: 30}},
	}

	sum, err := svc.Summary(ctx, CalibrationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 60, sum.Report.N)
	assert.False(t, sum.Report.Insufficient)
	require.NotNil(t, sum.Report.ECE)
	assert.InDelta(t, 0, *sum.Report.ECE, 1e-9)
	assert.Equal(t, int64(1), sum.Pending)
	assert.Equal(t, 4, sum.WeightsVersion)
	assert.InDelta(t, 0.2, sum.ActiveB0, 1e-12)

	seg, err := svc.Summary(ctx, CalibrationQuery{Segment: "redraft|half|standard"})
	require.NoError(t, err)
	assert.True(t, seg.Report.Insufficient)
	assert.Zero(t, seg.Report.N)
}

func TestCalibrationIntercepts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newRecalibration(t, store, &clock{t: recalBase})
	insertResolved(t, store, "dynasty|ppr|standard", 120, 72, 0.5, 1, 0, recalBase.AddDate(0, 0, -1))
	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)

	cal := &CalibrationService{Repo: store, Registry: svc.Registry}
	rep, err := cal.Intercepts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Active.Version)
	require.Len(t, rep.Segments, 1)
	assert.Equal(t, "dynasty|ppr|standard", rep.Segments[0].Key)
	require.Len(t, rep.Shadows, 1)
	require.Len(t, rep.Promotions, 1)
	assert.Equal(t, SourceSeed, rep.Promotions[0].Source)
}

func TestSampleFromRecordLeavesPendingUnpaired(t *testing.T) {
	store := newTestStore(t)
	insertResolved(t, store, "dynasty|ppr|standard", 1, 1, 0.7, 1, 0, recalBase)
	rec, err := store.GetOutcome(context.Background(), "dynasty|ppr|standard-0")
	require.NoError(t, err)

	smp := SampleFromRecord(*rec)
	require.NotNil(t, smp.Predicted)
	require.NotNil(t, smp.Outcome)
	assert.InDelta(t, 0.7, *smp.Predicted, 1e-12)
	assert.Equal(t, 1.0, *smp.Outcome)
	assert.Zero(t, smp.Intercept)

	rec.Outcome = string(trade.OutcomePending)
	smp = SampleFromRecord(*rec)
	assert.Nil(t, smp.Predicted)
	assert.Nil(t, smp.Outcome)
}

func TestCalibrationSegmentDeltaIsRelativeToActiveIntercept(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertResolved(t, store, "dynasty|ppr|superflex", 100, 60, 0.6, 2, 0.5, recalBase.AddDate(0, 0, -2))

	svc := &CalibrationService{
		Repo:     store,
		Registry: modelstate.NewRegistry(modelstate.Weights{Version: 2, B0: 0}),
		Monitor:  calibration.Monitor{Buckets: 10, MinSamples: 30},
		Detector: drift.Detector{Monitor: calibration.Monitor{Buckets: 10, MinSamples: 30}},
	}

	rep, err := svc.Segments(ctx, CalibrationQuery{})
	require.NoError(t, err)
	require.Len(t, rep.Segments, 1)
	seg := rep.Segments[0]
	require.NotNil(t, seg.InterceptDelta)
	assert.InDelta(t, 0.5, *seg.InterceptDelta, 1e-9)
	assert.Equal(t, calibration.StatusCritical, seg.InterceptState)

	alerts, err := svc.Alerts(ctx, CalibrationQuery{})
	require.NoError(t, err)
	found := false
	for _, a := range alerts {
		if a.Segment == "dynasty|ppr|superflex" {
			found = true
		}
	}
	assert.True(t, found, "segment intercept drift must raise an alert")
}
