package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/audit"
	"tradeeval/internal/fairness"
	"tradeeval/internal/labeler"
	"tradeeval/internal/metrics"
	"tradeeval/internal/models"
	"tradeeval/internal/negotiation"
	"tradeeval/internal/repository"
	"tradeeval/internal/risk"
	"tradeeval/internal/trade"
	"tradeeval/internal/valuation"
)

var ErrEmptyTrade = errors.New("trade has no assets on either side")

// EvaluateRequest is a proposal from side A to side B.
type EvaluateRequest struct {
	SideA  trade.TradeSide     `json:"side_a"`
	SideB  trade.TradeSide     `json:"side_b"`
	League trade.LeagueContext `json:"league"`
	AsOf   *time.Time          `json:"as_of,omitempty"`
	// CounterpartyID falls back to side_b.manager_id.
	CounterpartyID string `json:"counterparty_id,omitempty"`
}

func (r EvaluateRequest) counterparty() string {
	if r.CounterpartyID != "" {
		return r.CounterpartyID
	}
	return r.SideB.ManagerID
}

type Evaluation struct {
	TradeID     string    `json:"trade_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	SegmentKey  string    `json:"segment_key"`

	SideA trade.PricedSide `json:"side_a"`
	SideB trade.PricedSide `json:"side_b"`

	Fairness   fairness.Result     `json:"fairness"`
	Acceptance acceptance.Result   `json:"acceptance"`
	Labels     []trade.SideLabel   `json:"labels"`
	Risk       risk.Verdict        `json:"risk"`
	Toolkit    negotiation.Toolkit `json:"toolkit"`

	OutcomeLogged bool `json:"outcome_logged"`
}

type EvaluationService struct {
	Repo       repository.Repository
	Valuator   *valuation.Valuator
	Fairness   *fairness.Engine
	Labeler    *labeler.TradeLabeler
	Veto       *risk.VetoEvaluator
	Acceptance *acceptance.Model
	Toolkit    *negotiation.Builder
	// Refiner is nil when no narrative provider is configured.
	Refiner      negotiation.Refiner
	Settings     *SystemSettingsService
	DefaultTeams int
	MaxMessages  int

	Logger  *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

func (s *EvaluationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *EvaluationService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	if s == nil || s.Valuator == nil || s.Fairness == nil || s.Acceptance == nil {
		return nil, errors.New("evaluation service not configured")
	}
	if len(req.SideA.Gives) == 0 && len(req.SideB.Gives) == 0 && req.SideA.FAAB.IsZero() && req.SideB.FAAB.IsZero() {
		return nil, ErrEmptyTrade
	}
	start := time.Now()
	now := s.now()
	asOf := now
	if req.AsOf != nil && !req.AsOf.IsZero() {
		asOf = req.AsOf.UTC()
	}
	if req.League.QBFormat == "" && req.League.Slots.Superflex > 0 {
		req.League.QBFormat = trade.QBFormatSuperflex
	}
	qb := trade.ParseQBFormat(string(req.League.QBFormat))

	out := &Evaluation{
		TradeID:     uuid.NewString(),
		EvaluatedAt: now,
		SegmentKey:  req.League.SegmentKey(),
	}
	log := s.logger().With(zap.String("trade_id", out.TradeID), zap.String("segment", out.SegmentKey))

	vctx := valuation.ContextFor(req.League, asOf, s.DefaultTeams)
	a, b := s.Valuator.PriceSides(ctx, req.SideA, req.SideB, vctx)
	out.SideA, out.SideB = a, b

	out.Fairness = s.Fairness.Evaluate(a, b, vctx.Slots)
	if out.Fairness.FallbackReason != "" {
		log.Debug("lineup fairness unavailable", zap.String("reason", out.Fairness.FallbackReason))
	}

	lin := labeler.Input{A: a, B: b, Fairness: out.Fairness}
	if s.Labeler != nil {
		out.Labels = s.Labeler.Detect(lin)
	}
	if out.Labels == nil {
		out.Labels = []trade.SideLabel{}
	}
	if s.Veto != nil {
		out.Risk = s.Veto.Evaluate(lin, out.Labels, qb)
	}

	out.Acceptance = s.Acceptance.Predict(acceptance.Input{
		A:          a,
		B:          b,
		League:     req.League,
		Slots:      vctx.Slots,
		History:    s.history(ctx, req.counterparty(), now),
		SampleSize: s.sampleSize(ctx, out.SegmentKey),
	})
	if !out.Acceptance.Available {
		s.Metrics.IncUnavailable(out.Acceptance.UnavailableReason)
	}

	if s.Toolkit != nil {
		nin := negotiation.Input{A: a, B: b, Slots: vctx.Slots, Fairness: out.Fairness, Acceptance: out.Acceptance}
		out.Toolkit = s.Toolkit.Build(nin)
		out.Toolkit = s.refine(ctx, log, out.TradeID, nin, out.Toolkit)
	}

	if s.Repo != nil && s.Settings.Enabled(ctx, FeatureOutcomeLogging) {
		if err := s.logOutcome(ctx, out, req); err != nil {
			log.Error("append outcome record failed", zap.Error(err))
		} else {
			out.OutcomeLogged = true
		}
	}

	s.Metrics.ObserveEvaluation(string(out.Fairness.Method), time.Since(start))
	log.Info("trade evaluated",
		zap.String("method", string(out.Fairness.Method)),
		zap.Float64("score_a", out.Fairness.ScoreA),
		zap.Bool("vetoed", out.Risk.Vetoed),
		zap.Bool("acceptance_available", out.Acceptance.Available),
	)
	return out, nil
}

func (s *EvaluationService) history(ctx context.Context, managerID string, before time.Time) *acceptance.History {
	if managerID == "" || s.Repo == nil {
		return nil
	}
	stats, err := s.Repo.CounterpartyHistory(ctx, managerID, before)
	if err != nil {
		s.logger().Warn("counterparty history lookup failed", zap.String("manager", managerID), zap.Error(err))
		return nil
	}
	return &acceptance.History{Resolved: stats.Resolved, Accepted: stats.Accepted}
}

func (s *EvaluationService) sampleSize(ctx context.Context, segment string) int64 {
	if s.Repo == nil {
		return 0
	}
	n, err := s.Repo.CountOutcomes(ctx, repository.ListOutcomesParams{SegmentKey: &segment, ResolvedOnly: true})
	if err != nil {
		s.logger().Warn("count resolved outcomes failed", zap.String("segment", segment), zap.Error(err))
		return 0
	}
	return n
}

// refine returns base unchanged unless a configured provider produced a
// narrative that passed validation.
func (s *EvaluationService) refine(ctx context.Context, log *zap.Logger, tradeID string, in negotiation.Input, base negotiation.Toolkit) negotiation.Toolkit {
	if s.Refiner == nil || !s.Settings.Enabled(ctx, FeatureNarrativeRefinement) {
		return base
	}
	c := negotiation.NewContract(in, base, s.MaxMessages)
	refined, v := negotiation.Refine(ctx, s.Refiner, base, c)
	switch res := v.(type) {
	case negotiation.Valid:
		s.Metrics.IncRefinement("valid")
		return refined
	case negotiation.Invalid:
		s.Metrics.IncRefinement(res.Reason)
		s.recordRejection(ctx, log, tradeID, res)
	}
	return refined
}

func (s *EvaluationService) recordRejection(ctx context.Context, log *zap.Logger, tradeID string, inv negotiation.Invalid) {
	provider := s.Refiner.Provider()
	log.Warn("narrative refinement rejected",
		zap.String("provider", provider),
		zap.String("reason", inv.Reason),
		zap.Strings("detail", inv.Detail),
	)
	detail, _ := json.Marshal(inv.Detail)
	if s.Repo != nil {
		ev := &models.NarrativeValidationEvent{
			TradeID:  tradeID,
			Provider: provider,
			Reason:   inv.Reason,
			Detail:   datatypes.JSON(detail),
		}
		if err := s.Repo.InsertNarrativeEvent(ctx, ev); err != nil {
			log.Error("persist narrative validation event failed", zap.Error(err))
		}
	}
	audit.EmitTrade(ctx, tradeID, "tradeeval_narrative_rejected", "warn", map[string]any{
		"provider": provider,
		"reason":   inv.Reason,
		"detail":   inv.Detail,
	})
}

func (s *EvaluationService) logOutcome(ctx context.Context, ev *Evaluation, req EvaluateRequest) error {
	features, err := json.Marshal(ev.Acceptance.Features())
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	league := req.League
	item := &models.OutcomeRecord{
		TradeID:           ev.TradeID,
		AcceptProbability: ev.Acceptance.Probability,
		Mode:              orDefault(league.Mode, "standard"),
		Format:            orDefault(league.Format, "redraft"),
		Scoring:           orDefault(league.Scoring, "ppr"),
		QBFormat:          string(trade.ParseQBFormat(string(league.QBFormat))),
		SegmentKey:        ev.SegmentKey,
		CounterpartyID:    req.counterparty(),
		FairnessScore:     ev.Fairness.ScoreA,
		FairnessMethod:    string(ev.Fairness.Method),
		WeightsVersion:    ev.Acceptance.WeightsVersion,
		InterceptUsed:     ev.Acceptance.Intercept,
		Features:          datatypes.JSON(features),
		Outcome:           string(trade.OutcomePending),
		CreatedAt:         ev.EvaluatedAt,
	}
	return s.Repo.InsertOutcome(ctx, item)
}

func orDefault(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return s
}
