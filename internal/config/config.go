package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Audit  AuditConfig  `mapstructure:"audit"`

	Valuation     ValuationConfig     `mapstructure:"valuation"`
	Fairness      FairnessConfig      `mapstructure:"fairness"`
	Veto          VetoConfig          `mapstructure:"veto"`
	Acceptance    AcceptanceConfig    `mapstructure:"acceptance"`
	Negotiation   NegotiationConfig   `mapstructure:"negotiation"`
	Narrative     NarrativeConfig     `mapstructure:"narrative"`
	Calibration   CalibrationConfig   `mapstructure:"calibration"`
	Drift         DriftConfig         `mapstructure:"drift"`
	Recalibration RecalibrationConfig `mapstructure:"recalibration"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr     string `mapstructure:"http_addr"`
	AuthDisabled bool   `mapstructure:"auth_disabled"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Recalibration string `mapstructure:"recalibration"`
	DriftScan     string `mapstructure:"drift_scan"`
}

type CacheConfig struct {
	// Driver is "", "memory" or "redis". Empty disables the market quote cache.
	Driver   string        `mapstructure:"driver"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AuditConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Agent   string `mapstructure:"agent"`
}

type CompositeWeightsConfig struct {
	Version    string  `mapstructure:"version"`
	Market     float64 `mapstructure:"market"`
	Impact     float64 `mapstructure:"impact"`
	VORP       float64 `mapstructure:"vorp"`
	Volatility float64 `mapstructure:"volatility"`
}

type ValuationConfig struct {
	Composite        CompositeWeightsConfig `mapstructure:"composite"`
	PickCurvePath    string                 `mapstructure:"pick_curve_path"`
	PickYearDiscount float64                `mapstructure:"pick_year_discount"`
	LookupTimeout    time.Duration          `mapstructure:"lookup_timeout"`
	MaxConcurrency   int                    `mapstructure:"max_concurrency"`
	TierEdges        []float64              `mapstructure:"tier_edges"`
	DefaultTeams     int                    `mapstructure:"default_teams"`
}

type FairnessConfig struct {
	Scale            float64 `mapstructure:"scale"`
	LineupScale      float64 `mapstructure:"lineup_scale"`
	MinKnownPlayers  int     `mapstructure:"min_known_players"`
	FAABValuePerUnit float64 `mapstructure:"faab_value_per_unit"`
}

type VetoConfig struct {
	FloorOneQB        float64 `mapstructure:"floor_1qb"`
	FloorSuperflex    float64 `mapstructure:"floor_superflex"`
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	LowConfidenceFrac float64 `mapstructure:"low_confidence_frac"`
	VolatilityCeiling float64 `mapstructure:"volatility_ceiling"`
}

type AcceptanceConfig struct {
	B0                  float64 `mapstructure:"b0"`
	WeightLineupImpact  float64 `mapstructure:"weight_lineup_impact"`
	WeightVORP          float64 `mapstructure:"weight_vorp"`
	WeightMarket        float64 `mapstructure:"weight_market"`
	WeightBehavioral    float64 `mapstructure:"weight_behavioral"`
	SegmentMinSample    int     `mapstructure:"segment_min_sample"`
	ConfidenceFullN     int     `mapstructure:"confidence_full_n"`
	HistoryMinTrades    int     `mapstructure:"history_min_trades"`
	LineupNormalization float64 `mapstructure:"lineup_normalization"`
}

type NegotiationConfig struct {
	MaxCounters   int       `mapstructure:"max_counters"`
	MaxSweeteners int       `mapstructure:"max_sweeteners"`
	FairBandLow   float64   `mapstructure:"fair_band_low"`
	FairBandHigh  float64   `mapstructure:"fair_band_high"`
	FAABLadder    []float64 `mapstructure:"faab_ladder"`
	LatePickRound int       `mapstructure:"late_pick_round"`
	MaxMessages   int       `mapstructure:"max_messages"`
}

type NarrativeConfig struct {
	// Provider is "", "openai" or "anthropic". Empty keeps the deterministic toolkit only.
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type CalibrationConfig struct {
	Buckets    int `mapstructure:"buckets"`
	MinSamples int `mapstructure:"min_samples"`
}

type DriftConfig struct {
	Bins             int     `mapstructure:"bins"`
	Epsilon          float64 `mapstructure:"epsilon"`
	PSIWatch         float64 `mapstructure:"psi_watch"`
	PSICritical      float64 `mapstructure:"psi_critical"`
	InterceptWatch   float64 `mapstructure:"intercept_watch"`
	InterceptCrit    float64 `mapstructure:"intercept_critical"`
	SegmentMinSample int     `mapstructure:"segment_min_sample"`
	FeatureMinSample int     `mapstructure:"feature_min_sample"`
	WindowDays       int     `mapstructure:"window_days"`
	WorstSegments    int     `mapstructure:"worst_segments"`
}

type RecalibrationConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	LookbackDays      int           `mapstructure:"lookback_days"`
	MinSampleSize     int           `mapstructure:"min_sample_size"`
	MinAge            time.Duration `mapstructure:"min_age"`
	HardCeiling       float64       `mapstructure:"hard_ceiling"`
	SegmentMinSample  int           `mapstructure:"segment_min_sample"`
	SegmentIntercepts bool          `mapstructure:"segment_intercepts"`
}

type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_disabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.recalibration", "0 0 4 * * MON")
	v.SetDefault("cron.drift_scan", "0 0 * * * *")
	v.SetDefault("cache.driver", "")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("audit.base_url", "")
	v.SetDefault("audit.api_key", "")
	v.SetDefault("audit.agent", "tradeeval-service")

	// Composite weights stay market-only until calibrated values are configured.
	v.SetDefault("valuation.composite.version", "v0-market-only")
	v.SetDefault("valuation.composite.market", 1.0)
	v.SetDefault("valuation.composite.impact", 0.0)
	v.SetDefault("valuation.composite.vorp", 0.0)
	v.SetDefault("valuation.composite.volatility", 0.0)
	v.SetDefault("valuation.pick_curve_path", "config/pick_curve.yaml")
	v.SetDefault("valuation.pick_year_discount", 0.1)
	v.SetDefault("valuation.lookup_timeout", "2s")
	v.SetDefault("valuation.max_concurrency", 8)
	v.SetDefault("valuation.tier_edges", []float64{8000, 6000, 4000, 2000})
	v.SetDefault("valuation.default_teams", 12)

	v.SetDefault("fairness.scale", 0.5)
	v.SetDefault("fairness.lineup_scale", 0.5)
	v.SetDefault("fairness.min_known_players", 5)
	v.SetDefault("fairness.faab_value_per_unit", 10.0)

	v.SetDefault("veto.floor_1qb", 15.0)
	v.SetDefault("veto.floor_superflex", 10.0)
	v.SetDefault("veto.warning_threshold", 30.0)
	v.SetDefault("veto.low_confidence_frac", 0.34)
	v.SetDefault("veto.volatility_ceiling", 0.6)

	v.SetDefault("acceptance.b0", 0.0)
	v.SetDefault("acceptance.weight_lineup_impact", 1.0)
	v.SetDefault("acceptance.weight_vorp", 1.0)
	v.SetDefault("acceptance.weight_market", 1.0)
	v.SetDefault("acceptance.weight_behavioral", 1.0)
	v.SetDefault("acceptance.segment_min_sample", 50)
	v.SetDefault("acceptance.confidence_full_n", 200)
	v.SetDefault("acceptance.history_min_trades", 3)
	v.SetDefault("acceptance.lineup_normalization", 1000.0)

	v.SetDefault("negotiation.max_counters", 3)
	v.SetDefault("negotiation.max_sweeteners", 3)
	v.SetDefault("negotiation.fair_band_low", 45.0)
	v.SetDefault("negotiation.fair_band_high", 55.0)
	v.SetDefault("negotiation.faab_ladder", []float64{0.05, 0.10})
	v.SetDefault("negotiation.late_pick_round", 3)
	v.SetDefault("negotiation.max_messages", 3)

	v.SetDefault("narrative.provider", "")
	v.SetDefault("narrative.model", "")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.base_url", "")
	v.SetDefault("narrative.timeout", "8s")
	v.SetDefault("narrative.max_tokens", 600)
	v.SetDefault("narrative.rate_per_second", 2.0)
	v.SetDefault("narrative.burst", 4)
	v.SetDefault("narrative.breaker_failures", 5)
	v.SetDefault("narrative.breaker_cooldown", "60s")

	v.SetDefault("calibration.buckets", 10)
	v.SetDefault("calibration.min_samples", 5)

	v.SetDefault("drift.bins", 10)
	v.SetDefault("drift.epsilon", 1e-4)
	v.SetDefault("drift.psi_watch", 0.10)
	v.SetDefault("drift.psi_critical", 0.25)
	v.SetDefault("drift.intercept_watch", 0.05)
	v.SetDefault("drift.intercept_critical", 0.08)
	v.SetDefault("drift.segment_min_sample", 20)
	v.SetDefault("drift.feature_min_sample", 20)
	v.SetDefault("drift.window_days", 7)
	v.SetDefault("drift.worst_segments", 5)

	v.SetDefault("recalibration.enabled", true)
	v.SetDefault("recalibration.lookback_days", 28)
	v.SetDefault("recalibration.min_sample_size", 100)
	v.SetDefault("recalibration.min_age", "168h")
	v.SetDefault("recalibration.hard_ceiling", 1.0)
	v.SetDefault("recalibration.segment_min_sample", 50)
	v.SetDefault("recalibration.segment_intercepts", true)

	v.SetDefault("alerts.telegram_token", "")
	v.SetDefault("alerts.telegram_chat_id", 0)
}
