package models

import "time"

// PromotionRecord is the audit trail of active pointer moves.
type PromotionRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	OldVersion int     `gorm:"not null"`
	NewVersion int     `gorm:"not null;index"`
	OldB0      float64 `gorm:"type:double precision;not null"`
	NewB0      float64 `gorm:"type:double precision;not null"`
	SampleSize int     `gorm:"not null"`

	// auto, rollback or seed.
	Source   string  `gorm:"type:varchar(20);not null"`
	ShadowID *uint64 `gorm:"index"`
	Note     string  `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (PromotionRecord) TableName() string {
	return "promotion_records"
}
