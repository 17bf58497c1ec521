package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/config"
	"tradeeval/internal/db"
	"tradeeval/internal/fairness"
	"tradeeval/internal/labeler"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/negotiation"
	gormrepository "tradeeval/internal/repository/gorm"
	"tradeeval/internal/risk"
	"tradeeval/internal/trade"
	"tradeeval/internal/valuation"
)

func newTestStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(d))
	t.Cleanup(func() { _ = db.Close(d) })
	return gormrepository.New(d.Gorm)
}

type stubMarket struct {
	quotes map[string]valuation.Quote
}

func (s *stubMarket) Quote(_ context.Context, name string, _ bool, _ time.Time) (valuation.Quote, error) {
	q, ok := s.quotes[trade.NormalizeName(name)]
	if !ok {
		return valuation.Quote{}, valuation.ErrUnknownPlayer
	}
	return q, nil
}

func (s *stubMarket) PositionValues(context.Context, string, bool, time.Time) ([]float64, error) {
	return nil, nil
}

func market(players map[string]float64) *stubMarket {
	m := &stubMarket{quotes: map[string]valuation.Quote{}}
	for name, v := range players {
		m.quotes[trade.NormalizeName(name)] = valuation.Quote{Name: name, Position: "WR", Value: v}
	}
	return m
}

func testAcceptanceConfig() config.AcceptanceConfig {
	return config.AcceptanceConfig{
		WeightLineupImpact:  1,
		WeightVORP:          1,
		WeightMarket:        1,
		WeightBehavioral:    1,
		SegmentMinSample:    50,
		ConfidenceFullN:     200,
		HistoryMinTrades:    3,
		LineupNormalization: 1000,
	}
}

func testNegotiationConfig() config.NegotiationConfig {
	return config.NegotiationConfig{
		MaxCounters:   3,
		MaxSweeteners: 3,
		FairBandLow:   45,
		FairBandHigh:  55,
		FAABLadder:    []float64{0.05, 0.10},
		LatePickRound: 3,
		MaxMessages:   3,
	}
}

func newEvaluationService(t *testing.T, store *gormrepository.Store, m valuation.MarketSource) *EvaluationService {
	t.Helper()
	reg := modelstate.NewRegistry(WeightsFromConfig(testAcceptanceConfig()))
	if store != nil {
		require.NoError(t, SeedWeights(context.Background(), store, reg, testAcceptanceConfig(), nil))
	}
	engine := &fairness.Engine{Config: fairness.Config{Scale: 0.5, LineupScale: 0.5, MinKnownPlayers: 5, FAABValuePerUnit: 10}}
	svc := &EvaluationService{
		Valuator: &valuation.Valuator{
			Market:    m,
			Picks:     valuation.NewPickCurve(nil, 0.1),
			Weights:   valuation.CompositeWeights{Version: "test", Market: 1},
			TierEdges: []float64{8000, 6000, 4000, 2000},
		},
		Fairness: engine,
		Labeler:  labeler.New(45, 55),
		Veto: &risk.VetoEvaluator{Config: config.VetoConfig{
			FloorOneQB:        15,
			FloorSuperflex:    10,
			WarningThreshold:  30,
			LowConfidenceFrac: 0.34,
			VolatilityCeiling: 0.6,
		}},
		Acceptance:   &acceptance.Model{Config: testAcceptanceConfig(), Registry: reg},
		Toolkit:      &negotiation.Builder{Config: testNegotiationConfig(), Fairness: engine},
		DefaultTeams: 12,
		MaxMessages:  3,
	}
	if store != nil {
		svc.Repo = store
		svc.Settings = &SystemSettingsService{Repo: store}
	}
	return svc
}

func gives(names ...string) []trade.AssetRef {
	out := make([]trade.AssetRef, 0, len(names))
	for _, n := range names {
		out = append(out, trade.AssetRef{Kind: trade.KindPlayer, Name: n})
	}
	return out
}
