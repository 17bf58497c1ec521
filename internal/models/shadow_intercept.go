package models

import "time"

// ShadowIntercept is a candidate intercept awaiting maturity.
type ShadowIntercept struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	B0          float64 `gorm:"type:double precision;not null"`
	BaseVersion int     `gorm:"not null"`
	BaseB0      float64 `gorm:"type:double precision;not null"`

	SampleSize        int     `gorm:"not null"`
	ObservedRate      float64 `gorm:"type:double precision;not null"`
	PredictedMean     float64 `gorm:"type:double precision;not null"`
	LogOddsCorrection float64 `gorm:"type:double precision;not null"`
	Divergence        float64 `gorm:"type:double precision;not null"`

	// COMPUTING_SHADOW, MATURING, DISCARDED or PROMOTED.
	State  string `gorm:"type:varchar(20);not null;index"`
	Reason string `gorm:"type:text"`

	WindowStart time.Time `gorm:"not null"`
	WindowEnd   time.Time `gorm:"not null"`

	PromotedVersion *int `gorm:""`

	ComputedAt time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ShadowIntercept) TableName() string {
	return "shadow_intercepts"
}
