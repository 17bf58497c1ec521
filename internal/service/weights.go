package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradeeval/internal/config"
	"tradeeval/internal/models"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

const (
	SourceSeed     = "seed"
	SourceAuto     = "auto"
	SourceRollback = "rollback"
)

// WeightsFromConfig builds the unversioned weights used until the store has
// an active version.
func WeightsFromConfig(cfg config.AcceptanceConfig) modelstate.Weights {
	return modelstate.Weights{
		B0: cfg.B0,
		Drivers: map[trade.DriverID]float64{
			trade.DriverLineupImpact: cfg.WeightLineupImpact,
			trade.DriverVORP:         cfg.WeightVORP,
			trade.DriverMarket:       cfg.WeightMarket,
			trade.DriverBehavioral:   cfg.WeightBehavioral,
		},
		NormalizationVersion: modelstate.NormalizationVersion,
		Source:               SourceSeed,
		ComputedAt:           time.Now().UTC(),
	}
}

// SeedWeights writes the configured weights as version 1 when no version is
// active, then loads the active version into the registry.
func SeedWeights(ctx context.Context, repo repository.ModelRepository, reg *modelstate.Registry, cfg config.AcceptanceConfig, logger *zap.Logger) error {
	if repo == nil || reg == nil {
		return nil
	}
	active, err := repo.GetActiveWeights(ctx)
	if err != nil {
		return fmt.Errorf("load active weights: %w", err)
	}
	if active == nil {
		m, err := WeightsFromConfig(cfg).ToModel(SourceSeed, "seeded from configuration")
		if err != nil {
			return err
		}
		rec := &models.PromotionRecord{Source: SourceSeed, Note: "initial weights"}
		if err := repo.PromoteWeights(ctx, m, rec); err != nil {
			return fmt.Errorf("seed weights: %w", err)
		}
		if logger != nil {
			logger.Info("seeded calibrated weights", zap.Int("version", m.Version), zap.Float64("b0", m.B0))
		}
	}
	return reg.Reload(ctx, repo)
}
