package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tradeeval/internal/models"
)

// ErrNotFound is returned by writes that target a row that does not exist.
// Reads return (nil, nil) on a miss.
var ErrNotFound = errors.New("record not found")

// AcceptanceModelName is the model pointer row for the acceptance model.
const AcceptanceModelName = "acceptance"

type OutcomeRepository interface {
	InsertOutcome(ctx context.Context, item *models.OutcomeRecord) error
	// ResolveOutcome sets the outcome of an existing record. Repeated calls
	// overwrite the outcome field only.
	ResolveOutcome(ctx context.Context, tradeID, outcome string, resolvedAt time.Time) (*models.OutcomeRecord, error)
	GetOutcome(ctx context.Context, tradeID string) (*models.OutcomeRecord, error)
	ListOutcomes(ctx context.Context, params ListOutcomesParams) ([]models.OutcomeRecord, error)
	CountOutcomes(ctx context.Context, params ListOutcomesParams) (int64, error)
	CounterpartyHistory(ctx context.Context, managerID string, before time.Time) (CounterpartyStats, error)
}

type ModelRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	GetActiveWeights(ctx context.Context) (*models.CalibratedWeights, error)
	GetWeightsByVersion(ctx context.Context, version int) (*models.CalibratedWeights, error)
	ListWeights(ctx context.Context, limit int) ([]models.CalibratedWeights, error)
	// PromoteWeights inserts a new version, records the promotion, moves the
	// active pointer and marks the shadow promoted in one transaction.
	PromoteWeights(ctx context.Context, item *models.CalibratedWeights, record *models.PromotionRecord) error
	ListPromotions(ctx context.Context, limit int) ([]models.PromotionRecord, error)

	InsertShadow(ctx context.Context, item *models.ShadowIntercept) error
	UpdateShadowState(ctx context.Context, id uint64, state, reason string) error
	GetLatestShadow(ctx context.Context) (*models.ShadowIntercept, error)
	ListShadows(ctx context.Context, limit int) ([]models.ShadowIntercept, error)

	ReplaceSegmentIntercepts(ctx context.Context, items []models.SegmentIntercept) error
	ListSegmentIntercepts(ctx context.Context) ([]models.SegmentIntercept, error)
}

type MarketRepository interface {
	// GetMarketValue returns the latest snapshot at or before asOf.
	GetMarketValue(ctx context.Context, normalizedName string, superflex bool, asOf time.Time) (*models.PlayerMarketValue, error)
	// ListPositionValues returns values at a position, highest first, from the
	// latest snapshot at or before asOf.
	ListPositionValues(ctx context.Context, position string, superflex bool, asOf time.Time) ([]float64, error)
	UpsertMarketValues(ctx context.Context, items []models.PlayerMarketValue) error
}

type AuditRepository interface {
	InsertNarrativeEvent(ctx context.Context, item *models.NarrativeValidationEvent) error
	ListNarrativeEvents(ctx context.Context, limit int) ([]models.NarrativeValidationEvent, error)
}

type SettingsRepository interface {
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
}

// Repository is the unified store used by services.
type Repository interface {
	OutcomeRepository
	ModelRepository
	MarketRepository
	AuditRepository
	SettingsRepository
}

type ListOutcomesParams struct {
	Limit      int
	Offset     int
	Since      *time.Time
	Until      *time.Time
	Mode       *string
	SegmentKey *string
	Method     *string
	// ResolvedOnly excludes PENDING rows and rows without a probability.
	ResolvedOnly bool
	OrderBy      string
	Asc          *bool
}

type CounterpartyStats struct {
	Resolved int64
	Accepted int64
}
