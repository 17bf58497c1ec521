package models

import (
	"time"

	"gorm.io/datatypes"
)

// NarrativeValidationEvent records a rejected narrative refinement.
type NarrativeValidationEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeID  string `gorm:"type:varchar(64);not null;index"`
	Provider string `gorm:"type:varchar(40);not null"`
	Reason   string `gorm:"type:varchar(60);not null;index"`

	// Offending ids, names or numbers.
	Detail datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (NarrativeValidationEvent) TableName() string {
	return "narrative_validation_events"
}
