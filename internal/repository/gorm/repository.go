package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeeval/internal/models"
	"tradeeval/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- outcomes ----------------------------------------------------------------

func (s *Store) InsertOutcome(ctx context.Context, item *models.OutcomeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TradeID = strings.TrimSpace(item.TradeID)
	if item.Outcome == "" {
		item.Outcome = "PENDING"
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ResolveOutcome(ctx context.Context, tradeID, outcome string, resolvedAt time.Time) (*models.OutcomeRecord, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return nil, repository.ErrNotFound
	}
	res := s.db.WithContext(ctx).
		Model(&models.OutcomeRecord{}).
		Where("trade_id = ?", tradeID).
		Updates(map[string]any{
			"outcome":     outcome,
			"resolved_at": resolvedAt.UTC(),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, repository.ErrNotFound
	}
	return s.GetOutcome(ctx, tradeID)
}

func (s *Store) GetOutcome(ctx context.Context, tradeID string) (*models.OutcomeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.OutcomeRecord
	err := s.db.WithContext(ctx).
		Model(&models.OutcomeRecord{}).
		Where("trade_id = ?", strings.TrimSpace(tradeID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) outcomeQuery(ctx context.Context, params repository.ListOutcomesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.OutcomeRecord{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("created_at < ?", params.Until.UTC())
	}
	if params.Mode != nil && strings.TrimSpace(*params.Mode) != "" {
		query = query.Where("mode = ?", strings.TrimSpace(*params.Mode))
	}
	if params.SegmentKey != nil && strings.TrimSpace(*params.SegmentKey) != "" {
		query = query.Where("segment_key = ?", strings.TrimSpace(*params.SegmentKey))
	}
	if params.Method != nil && strings.TrimSpace(*params.Method) != "" {
		query = query.Where("fairness_method = ?", strings.TrimSpace(*params.Method))
	}
	if params.ResolvedOnly {
		query = query.Where("outcome <> ?", "PENDING").Where("accept_probability IS NOT NULL")
	}
	return query
}

func (s *Store) ListOutcomes(ctx context.Context, params repository.ListOutcomesParams) ([]models.OutcomeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.outcomeQuery(ctx, params), params.OrderBy, params.Asc, "created_at")
	if params.Limit > 0 {
		query = query.Limit(params.Limit).Offset(normalizeOffset(params.Offset))
	}
	var items []models.OutcomeRecord
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOutcomes(ctx context.Context, params repository.ListOutcomesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := s.outcomeQuery(ctx, params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CounterpartyHistory(ctx context.Context, managerID string, before time.Time) (repository.CounterpartyStats, error) {
	var out repository.CounterpartyStats
	if s == nil || s.db == nil {
		return out, nil
	}
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return out, nil
	}
	type row struct {
		Resolved int64
		Accepted int64
	}
	var r row
	query := s.db.WithContext(ctx).
		Model(&models.OutcomeRecord{}).
		Select("COUNT(*) AS resolved, COALESCE(SUM(CASE WHEN outcome = 'ACCEPTED' THEN 1 ELSE 0 END),0) AS accepted").
		Where("counterparty_id = ?", managerID).
		Where("outcome <> ?", "PENDING")
	if !before.IsZero() {
		query = query.Where("created_at < ?", before.UTC())
	}
	if err := query.Scan(&r).Error; err != nil {
		return out, err
	}
	out.Resolved = r.Resolved
	out.Accepted = r.Accepted
	return out, nil
}

// --- model registry ----------------------------------------------------------

func (s *Store) GetActiveWeights(ctx context.Context) (*models.CalibratedWeights, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ptr models.ModelPointer
	err := s.db.WithContext(ctx).
		Model(&models.ModelPointer{}).
		Where("name = ?", repository.AcceptanceModelName).
		First(&ptr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetWeightsByVersion(ctx, ptr.Version)
}

func (s *Store) GetWeightsByVersion(ctx context.Context, version int) (*models.CalibratedWeights, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.CalibratedWeights
	err := s.db.WithContext(ctx).
		Model(&models.CalibratedWeights{}).
		Where("version = ?", version).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWeights(ctx context.Context, limit int) ([]models.CalibratedWeights, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CalibratedWeights
	if err := s.db.WithContext(ctx).
		Model(&models.CalibratedWeights{}).
		Order("version desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PromoteWeights(ctx context.Context, item *models.CalibratedWeights, record *models.PromotionRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&models.CalibratedWeights{}).
			Select("COALESCE(MAX(version),0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		item.ID = 0
		item.Version = maxVersion + 1
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		ptr := models.ModelPointer{
			Name:      repository.AcceptanceModelName,
			Version:   item.Version,
			UpdatedAt: time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "updated_at"}),
		}).Create(&ptr).Error; err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		record.NewVersion = item.Version
		record.NewB0 = item.B0
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if record.ShadowID != nil {
			promoted := item.Version
			if err := tx.Model(&models.ShadowIntercept{}).
				Where("id = ?", *record.ShadowID).
				Updates(map[string]any{
					"state":            "PROMOTED",
					"promoted_version": promoted,
					"updated_at":       time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListPromotions(ctx context.Context, limit int) ([]models.PromotionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PromotionRecord
	if err := s.db.WithContext(ctx).
		Model(&models.PromotionRecord{}).
		Order("created_at desc, id desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertShadow(ctx context.Context, item *models.ShadowIntercept) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateShadowState(ctx context.Context, id uint64, state, reason string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.ShadowIntercept{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      state,
			"reason":     reason,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) GetLatestShadow(ctx context.Context) (*models.ShadowIntercept, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ShadowIntercept
	err := s.db.WithContext(ctx).
		Model(&models.ShadowIntercept{}).
		Order("computed_at desc, id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListShadows(ctx context.Context, limit int) ([]models.ShadowIntercept, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ShadowIntercept
	if err := s.db.WithContext(ctx).
		Model(&models.ShadowIntercept{}).
		Order("computed_at desc, id desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ReplaceSegmentIntercepts(ctx context.Context, items []models.SegmentIntercept) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.SegmentIntercept{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = 0
		}
		return createInBatches(tx, items, 200)
	})
}

func (s *Store) ListSegmentIntercepts(ctx context.Context) ([]models.SegmentIntercept, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SegmentIntercept
	if err := s.db.WithContext(ctx).
		Model(&models.SegmentIntercept{}).
		Order("segment_key asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- market data -------------------------------------------------------------

func (s *Store) GetMarketValue(ctx context.Context, normalizedName string, superflex bool, asOf time.Time) (*models.PlayerMarketValue, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	normalizedName = strings.TrimSpace(normalizedName)
	if normalizedName == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.PlayerMarketValue{}).
		Where("normalized_name = ? AND superflex = ?", normalizedName, superflex)
	if !asOf.IsZero() {
		query = query.Where("as_of <= ?", asOf.UTC())
	}
	var item models.PlayerMarketValue
	err := query.Order("as_of desc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositionValues(ctx context.Context, position string, superflex bool, asOf time.Time) ([]float64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	position = strings.ToUpper(strings.TrimSpace(position))
	if position == "" {
		return nil, nil
	}
	snapshot := s.db.WithContext(ctx).
		Model(&models.PlayerMarketValue{}).
		Select("MAX(as_of)").
		Where("superflex = ?", superflex)
	if !asOf.IsZero() {
		snapshot = snapshot.Where("as_of <= ?", asOf.UTC())
	}
	var values []float64
	if err := s.db.WithContext(ctx).
		Model(&models.PlayerMarketValue{}).
		Where("position = ? AND superflex = ?", position, superflex).
		Where("as_of = (?)", snapshot).
		Order("value desc").
		Pluck("value", &values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) UpsertMarketValues(ctx context.Context, items []models.PlayerMarketValue) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "normalized_name"}, {Name: "superflex"}, {Name: "as_of"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"position",
			"age",
			"value",
			"volatility",
			"updated_at",
		}),
	}).CreateInBatches(items, 200).Error
}

// --- audit -------------------------------------------------------------------

func (s *Store) InsertNarrativeEvent(ctx context.Context, item *models.NarrativeValidationEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListNarrativeEvents(ctx context.Context, limit int) ([]models.NarrativeValidationEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.NarrativeValidationEvent
	if err := s.db.WithContext(ctx).
		Model(&models.NarrativeValidationEvent{}).
		Order("created_at desc, id desc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).
		Model(&models.SystemSetting{}).
		Order("key asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "created_at", "resolved_at", "accept_probability", "fairness_score", "segment_key":
	default:
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
