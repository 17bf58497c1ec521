package models

import "time"

// SegmentIntercept is one entry of the per-segment intercept map. The whole
// map is replaced on every recalibration cycle.
type SegmentIntercept struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	SegmentKey string `gorm:"type:varchar(140);not null;uniqueIndex"`

	B0                float64 `gorm:"type:double precision;not null"`
	SampleSize        int     `gorm:"not null"`
	ObservedRate      float64 `gorm:"type:double precision;not null"`
	PredictedMean     float64 `gorm:"type:double precision;not null"`
	LogOddsCorrection float64 `gorm:"type:double precision;not null"`
	BaseVersion       int     `gorm:"not null"`

	ComputedAt time.Time `gorm:"not null"`
}

func (SegmentIntercept) TableName() string {
	return "segment_intercepts"
}
