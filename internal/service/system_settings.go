package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"tradeeval/internal/models"
	"tradeeval/internal/repository"
)

const (
	FeatureNarrativeRefinement = "feature.narrative_refinement"
	FeatureAutoRecalibration   = "feature.auto_recalibration"
	FeatureSegmentIntercepts   = "feature.segment_intercepts"
	FeatureDriftAlerts         = "feature.drift_alerts"
	FeatureOutcomeLogging      = "feature.outcome_logging"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureNarrativeRefinement: false,
		FeatureAutoRecalibration:   true,
		FeatureSegmentIntercepts:   true,
		FeatureDriftAlerts:         true,
		FeatureOutcomeLogging:      true,
	}
}

// IsFeatureSwitch reports whether key is one of the known switches.
func IsFeatureSwitch(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}

type FeatureSwitch struct {
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	Default   bool      `json:"default"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
}

// EnsureDefaultSwitches inserts missing switches. Stored values are never
// overwritten, so operator choices survive restarts.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

// Enabled is IsEnabled with the built-in default as fallback.
func (s *SystemSettingsService) Enabled(ctx context.Context, key string) bool {
	return s.IsEnabled(ctx, key, DefaultFeatureSwitches()[key])
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Switches lists every known switch with its effective value.
func (s *SystemSettingsService) Switches(ctx context.Context) ([]FeatureSwitch, error) {
	defaults := DefaultFeatureSwitches()
	stored := map[string]models.SystemSetting{}
	if s != nil && s.Repo != nil {
		items, err := s.Repo.ListSystemSettings(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			stored[it.Key] = it
		}
	}
	out := make([]FeatureSwitch, 0, len(defaults))
	for key, def := range defaults {
		fs := FeatureSwitch{Key: key, Enabled: def, Default: def}
		if it, ok := stored[key]; ok {
			var v bool
			if err := json.Unmarshal(it.Value, &v); err == nil {
				fs.Enabled = v
			}
			fs.UpdatedAt = it.UpdatedAt
		}
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
