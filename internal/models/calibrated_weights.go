package models

import (
	"time"

	"gorm.io/datatypes"
)

// CalibratedWeights is an immutable acceptance model version.
type CalibratedWeights struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Version int `gorm:"not null;uniqueIndex"`

	B0 float64 `gorm:"type:double precision;not null"`

	// Weights keyed by driver id.
	Weights datatypes.JSON `gorm:"type:jsonb;not null"`

	NormalizationVersion string `gorm:"type:varchar(20);not null"`
	Source               string `gorm:"type:varchar(20);not null"`
	Note                 string `gorm:"type:text"`

	ComputedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (CalibratedWeights) TableName() string {
	return "calibrated_weights"
}

// ModelPointer names the active version of a model.
type ModelPointer struct {
	Name      string    `gorm:"type:varchar(60);primaryKey"`
	Version   int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ModelPointer) TableName() string {
	return "model_pointers"
}
