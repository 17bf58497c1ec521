package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutcomeRecord pairs an acceptance prediction with its eventual resolution.
// Rows are created at evaluation time and never deleted.
type OutcomeRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeID string `gorm:"type:varchar(64);not null;uniqueIndex"`

	// Nil when the acceptance model declined to predict.
	AcceptProbability *float64 `gorm:"type:double precision"`

	Mode           string `gorm:"type:varchar(40);not null;index"`
	Format         string `gorm:"type:varchar(40);not null"`
	Scoring        string `gorm:"type:varchar(40);not null"`
	QBFormat       string `gorm:"type:varchar(20);not null"`
	SegmentKey     string `gorm:"type:varchar(140);not null;index"`
	CounterpartyID string `gorm:"type:varchar(120);index"`

	FairnessScore  float64 `gorm:"type:double precision;not null"`
	FairnessMethod string  `gorm:"type:varchar(20);not null"`
	WeightsVersion int     `gorm:"not null"`
	InterceptUsed  float64 `gorm:"type:double precision;not null"`

	// Driver evidence keyed by driver id.
	Features datatypes.JSON `gorm:"type:jsonb"`

	Outcome    string     `gorm:"type:varchar(20);not null;default:PENDING;index"`
	ResolvedAt *time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (OutcomeRecord) TableName() string {
	return "outcome_records"
}
