package models

import "time"

// PlayerMarketValue is a read-only crowd valuation snapshot loaded from the
// league data source.
type PlayerMarketValue struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Name           string `gorm:"type:varchar(120);not null"`
	NormalizedName string `gorm:"type:varchar(120);not null;uniqueIndex:idx_pmv_name_sf_asof,priority:1"`
	Position       string `gorm:"type:varchar(8);not null;index"`
	Age            int    `gorm:""`

	Superflex bool      `gorm:"not null;default:false;uniqueIndex:idx_pmv_name_sf_asof,priority:2"`
	AsOf      time.Time `gorm:"type:date;not null;uniqueIndex:idx_pmv_name_sf_asof,priority:3"`

	Value      float64 `gorm:"type:double precision;not null"`
	Volatility float64 `gorm:"type:double precision;not null;default:0"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PlayerMarketValue) TableName() string {
	return "player_market_values"
}
