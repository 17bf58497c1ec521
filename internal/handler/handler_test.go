package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/calibration"
	"tradeeval/internal/config"
	"tradeeval/internal/db"
	"tradeeval/internal/drift"
	"tradeeval/internal/fairness"
	"tradeeval/internal/labeler"
	"tradeeval/internal/metrics"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/negotiation"
	gormrepository "tradeeval/internal/repository/gorm"
	"tradeeval/internal/risk"
	"tradeeval/internal/service"
	"tradeeval/internal/valuation"
)

type respBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	reg    *modelstate.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: "file:h_" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(d))
	t.Cleanup(func() { _ = db.Close(d) })
	store := gormrepository.New(d.Gorm)

	accCfg := config.AcceptanceConfig{
		WeightLineupImpact: 1, WeightVORP: 1, WeightMarket: 1, WeightBehavioral: 1,
		SegmentMinSample: 50, ConfidenceFullN: 200, HistoryMinTrades: 3, LineupNormalization: 1000,
	}
	reg := modelstate.NewRegistry(service.WeightsFromConfig(accCfg))
	require.NoError(t, service.SeedWeights(context.Background(), store, reg, accCfg, nil))

	settings := &service.SystemSettingsService{Repo: store}
	engine := &fairness.Engine{Config: fairness.Config{Scale: 0.5, LineupScale: 0.5}}
	eval := &service.EvaluationService{
		Repo: store,
		Valuator: &valuation.Valuator{
			Market:        &valuation.RepoSource{Repo: store},
			Picks:         valuation.NewPickCurve(nil, 0.1),
			Weights:       valuation.CompositeWeights{Version: "test", Market: 1},
			TierEdges:     []float64{8000, 6000, 4000, 2000},
			LookupTimeout: time.Second,
		},
		Fairness:     engine,
		Labeler:      labeler.New(45, 55),
		Veto:         &risk.VetoEvaluator{Config: config.VetoConfig{FloorOneQB: 15, FloorSuperflex: 10, WarningThreshold: 30}},
		Acceptance:   &acceptance.Model{Config: accCfg, Registry: reg},
		Toolkit:      &negotiation.Builder{Config: config.NegotiationConfig{MaxCounters: 3, MaxSweeteners: 3, FairBandLow: 45, FairBandHigh: 55, MaxMessages: 3}, Fairness: engine},
		Settings:     settings,
		DefaultTeams: 12,
		MaxMessages:  3,
	}
	hub := service.NewAlertHub()
	mon := calibration.Monitor{Buckets: 10, MinSamples: 30}

	r := gin.New()
	r.Use(MetricsMiddleware(metrics.New()))
	(&HealthHandler{DB: d.Gorm, Registry: reg}).Register(r)
	(&TradeHandler{Evaluation: eval, Outcomes: &service.OutcomeService{Repo: store}}).Register(r)
	(&CalibrationHandler{
		Service: &service.CalibrationService{Repo: store, Registry: reg, Monitor: mon, Detector: drift.Detector{Monitor: mon}},
		Hub:     hub,
	}).Register(r)
	(&ModelHandler{Recalibration: &service.RecalibrationService{Repo: store, Registry: reg, Settings: settings, Alerts: hub}}).Register(r)
	(&MarketHandler{Repo: store}).Register(r)
	(&SystemSettingsHandler{Settings: settings}).Register(r)
	return &testServer{engine: r, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, respBody) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env respBody
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestReadyReportsWeightsVersion(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"weights_version":1`)
}

func TestEvaluateAndResolve(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPut, "/api/v1/market/values", map[string]any{
		"items": []map[string]any{
			{"name": "Alpha WR", "position": "WR", "value": 5000, "as_of": "2026-01-01"},
			{"name": "Bravo RB", "position": "RB", "value": 5000, "as_of": "2026-01-01"},
		},
	})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/trades/evaluate", map[string]any{
		"side_a": map[string]any{"gives": []map[string]any{{"kind": "PLAYER", "name": "Alpha WR"}}},
		"side_b": map[string]any{"gives": []map[string]any{{"kind": "PLAYER", "name": "Bravo RB"}}},
		"league": map[string]any{"format": "dynasty", "qb_format": "1qb"},
		"as_of":  "2026-02-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, env.Code)
	var ev struct {
		TradeID  string `json:"trade_id"`
		Fairness struct {
			ScoreA float64 `json:"score_a"`
		} `json:"fairness"`
		Risk struct {
			Vetoed bool `json:"vetoed"`
		} `json:"risk"`
		OutcomeLogged bool `json:"outcome_logged"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.NotEmpty(t, ev.TradeID)
	assert.InDelta(t, 50, ev.Fairness.ScoreA, 1e-9)
	assert.False(t, ev.Risk.Vetoed)
	assert.True(t, ev.OutcomeLogged)

	code, _ = s.do(t, http.MethodPost, "/api/v1/trades/"+ev.TradeID+"/outcome", map[string]string{"outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/trades/nope/outcome", map[string]string{"outcome": "ACCEPTED"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/trades/"+ev.TradeID+"/outcome", map[string]string{"outcome": "ACCEPTED"})
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/trades/"+ev.TradeID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "ACCEPTED")
}

func TestEvaluateRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/trades/evaluate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Code)
}

func TestCalibrationSummaryInsufficient(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/calibration/summary?since=2026-01-01", nil)
	require.Equal(t, http.StatusOK, code)
	var sum struct {
		Report struct {
			Insufficient bool `json:"insufficient"`
		} `json:"report"`
		WeightsVersion int `json:"weights_version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.True(t, sum.Report.Insufficient)
	assert.Equal(t, 1, sum.WeightsVersion)

	code, _ = s.do(t, http.MethodGet, "/api/v1/calibration/drift?feature=nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/calibration/drift?feature=market", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRollbackAndSwitches(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/model/rollback", map[string]any{"version": 9})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/model/rollback", map[string]any{"version": 1, "note": "reset"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, s.reg.Load().Weights.Version)

	code, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/switches/drift_alerts", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	code, env := s.do(t, http.MethodGet, "/api/v1/system-settings/switches/drift_alerts", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"enabled":false`)

	code, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/switches/bogus", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusNotFound, code)
}
