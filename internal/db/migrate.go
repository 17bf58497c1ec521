package db

import (
	"tradeeval/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.OutcomeRecord{},
		&models.CalibratedWeights{},
		&models.ModelPointer{},
		&models.ShadowIntercept{},
		&models.SegmentIntercept{},
		&models.PromotionRecord{},
		&models.NarrativeValidationEvent{},
		&models.PlayerMarketValue{},
		&models.SystemSetting{},
	)
}
