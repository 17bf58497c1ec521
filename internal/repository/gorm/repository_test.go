package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"tradeeval/internal/config"
	"tradeeval/internal/db"
	"tradeeval/internal/models"
	"tradeeval/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(d))
	t.Cleanup(func() { _ = db.Close(d) })
	return New(d.Gorm)
}

func prob(v float64) *float64 { return &v }

func TestResolveOutcomeIsUpdateOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertOutcome(ctx, &models.OutcomeRecord{
		TradeID:           "t-1",
		AcceptProbability: prob(0.6),
		Mode:              "standard",
		Format:            "dynasty",
		Scoring:           "ppr",
		QBFormat:          "1qb",
		SegmentKey:        "dynasty|ppr|standard",
		FairnessMethod:    "composite",
		WeightsVersion:    1,
	}))

	_, err := s.ResolveOutcome(ctx, "missing", "ACCEPTED", time.Now())
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	var wg sync.WaitGroup
	for _, outcome := range []string{"ACCEPTED", "REJECTED", "ACCEPTED"} {
		wg.Add(1)
		go func(o string) {
			defer wg.Done()
			_, _ = s.ResolveOutcome(ctx, "t-1", o, time.Now())
		}(outcome)
	}
	wg.Wait()

	count, err := s.CountOutcomes(ctx, repository.ListOutcomesParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := s.GetOutcome(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, "PENDING", got.Outcome)
	assert.NotNil(t, got.ResolvedAt)
}

func TestListOutcomesResolvedOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []models.OutcomeRecord{
		{TradeID: "a", AcceptProbability: prob(0.4), SegmentKey: "x", CounterpartyID: "m1"},
		{TradeID: "b", AcceptProbability: prob(0.7), SegmentKey: "x", CounterpartyID: "m1"},
		{TradeID: "c", AcceptProbability: nil, SegmentKey: "x"},
		{TradeID: "d", AcceptProbability: prob(0.2), SegmentKey: "y"},
	}
	for i := range rows {
		require.NoError(t, s.InsertOutcome(ctx, &rows[i]))
	}
	for _, id := range []string{"a", "c"} {
		_, err := s.ResolveOutcome(ctx, id, "ACCEPTED", time.Now())
		require.NoError(t, err)
	}
	_, err := s.ResolveOutcome(ctx, "b", "REJECTED", time.Now())
	require.NoError(t, err)

	items, err := s.ListOutcomes(ctx, repository.ListOutcomesParams{ResolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	seg := "y"
	items, err = s.ListOutcomes(ctx, repository.ListOutcomesParams{SegmentKey: &seg})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	stats, err := s.CounterpartyHistory(ctx, "m1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Resolved)
	assert.Equal(t, int64(1), stats.Accepted)
}

func TestPromoteWeightsMovesPointer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active, err := s.GetActiveWeights(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	w := []byte(`{"lineup_impact":1,"vorp":1,"market":1,"behavioral":1}`)
	require.NoError(t, s.PromoteWeights(ctx, &models.CalibratedWeights{
		B0: 0, Weights: datatypes.JSON(w), NormalizationVersion: "v1", Source: "seed", ComputedAt: time.Now(),
	}, &models.PromotionRecord{Source: "seed"}))

	shadow := &models.ShadowIntercept{B0: -0.2, BaseVersion: 1, State: "MATURING", SampleSize: 120, ComputedAt: time.Now(), WindowStart: time.Now(), WindowEnd: time.Now()}
	require.NoError(t, s.InsertShadow(ctx, shadow))

	require.NoError(t, s.PromoteWeights(ctx, &models.CalibratedWeights{
		B0: -0.2, Weights: datatypes.JSON(w), NormalizationVersion: "v1", Source: "auto", ComputedAt: time.Now(),
	}, &models.PromotionRecord{OldVersion: 1, OldB0: 0, SampleSize: 120, Source: "auto", ShadowID: &shadow.ID}))

	active, err = s.GetActiveWeights(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Version)
	assert.InDelta(t, -0.2, active.B0, 1e-9)

	old, err := s.GetWeightsByVersion(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.InDelta(t, 0.0, old.B0, 1e-9)

	promos, err := s.ListPromotions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, promos, 2)
	assert.Equal(t, 2, promos[0].NewVersion)

	latest, err := s.GetLatestShadow(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "PROMOTED", latest.State)
	require.NotNil(t, latest.PromotedVersion)
	assert.Equal(t, 2, *latest.PromotedVersion)
}

func TestReplaceSegmentIntercepts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ReplaceSegmentIntercepts(ctx, []models.SegmentIntercept{
		{SegmentKey: "a", B0: 0.1, SampleSize: 50, ComputedAt: time.Now()},
		{SegmentKey: "b", B0: 0.2, SampleSize: 60, ComputedAt: time.Now()},
	}))
	require.NoError(t, s.ReplaceSegmentIntercepts(ctx, []models.SegmentIntercept{
		{SegmentKey: "b", B0: 0.3, SampleSize: 70, ComputedAt: time.Now()},
	}))
	items, err := s.ListSegmentIntercepts(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].SegmentKey)
	assert.InDelta(t, 0.3, items[0].B0, 1e-9)
}

func TestSystemSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.x", Value: datatypes.JSON(`true`)}))
	require.NoError(t, s.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.x", Value: datatypes.JSON(`false`)}))
	item, err := s.GetSystemSettingByKey(ctx, "feature.x")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.JSONEq(t, `false`, string(item.Value))
}

func TestTimeColumnsReadBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, s.InsertOutcome(ctx, &models.OutcomeRecord{TradeID: "t-time", AcceptProbability: prob(0.5), SegmentKey: "x"}))
	_, err := s.ResolveOutcome(ctx, "t-time", "ACCEPTED", at)
	require.NoError(t, err)
	got, err := s.GetOutcome(ctx, "t-time")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(at), "resolved_at=%s", got.ResolvedAt)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.InsertShadow(ctx, &models.ShadowIntercept{
		B0: 0.1, BaseVersion: 1, State: "MATURING", SampleSize: 100,
		WindowStart: at.AddDate(0, 0, -28), WindowEnd: at, ComputedAt: at,
	}))
	shadow, err := s.GetLatestShadow(ctx)
	require.NoError(t, err)
	require.NotNil(t, shadow)
	assert.True(t, shadow.WindowEnd.Equal(at))
	assert.True(t, shadow.WindowStart.Equal(at.AddDate(0, 0, -28)))

	require.NoError(t, s.ReplaceSegmentIntercepts(ctx, []models.SegmentIntercept{{SegmentKey: "x", B0: 0.2, SampleSize: 50, ComputedAt: at}}))
	segs, err := s.ListSegmentIntercepts(ctx)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.True(t, segs[0].ComputedAt.Equal(at))

	require.NoError(t, s.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.y", Value: datatypes.JSON(`true`)}))
	settings, err := s.ListSystemSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	assert.False(t, settings[0].UpdatedAt.IsZero())
}
