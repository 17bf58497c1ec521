package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradeeval/internal/audit"
	"tradeeval/internal/metrics"
	"tradeeval/internal/models"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

var ErrInvalidOutcome = errors.New("outcome must be ACCEPTED, REJECTED, COUNTERED or EXPIRED")

type OutcomeService struct {
	Repo    repository.OutcomeRepository
	Logger  *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Resolve sets the outcome of a logged evaluation. Resolving again overwrites
// the outcome only. Unknown trade ids return repository.ErrNotFound.
func (s *OutcomeService) Resolve(ctx context.Context, tradeID, outcome string) (*models.OutcomeRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, repository.ErrNotFound
	}
	o, ok := trade.ParseOutcome(strings.ToUpper(strings.TrimSpace(outcome)))
	if !ok {
		return nil, ErrInvalidOutcome
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	item, err := s.Repo.ResolveOutcome(ctx, tradeID, string(o), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve outcome %s: %w", tradeID, err)
	}
	s.Metrics.IncOutcome(string(o))
	if s.Logger != nil {
		s.Logger.Info("trade outcome resolved", zap.String("trade_id", tradeID), zap.String("outcome", string(o)))
	}
	audit.EmitTrade(ctx, tradeID, "tradeeval_outcome_resolved", "info", map[string]any{"outcome": string(o)})
	return item, nil
}

func (s *OutcomeService) Get(ctx context.Context, tradeID string) (*models.OutcomeRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.GetOutcome(ctx, tradeID)
}
