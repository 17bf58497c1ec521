package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Valuation.Composite.Market != 1 || cfg.Valuation.Composite.VORP != 0 {
		t.Fatalf("composite=%+v want market-only", cfg.Valuation.Composite)
	}
	if cfg.Calibration.Buckets != 10 || cfg.Calibration.MinSamples != 5 {
		t.Fatalf("calibration=%+v", cfg.Calibration)
	}
	if cfg.Recalibration.MinAge != 7*24*time.Hour {
		t.Fatalf("min_age=%v want=168h", cfg.Recalibration.MinAge)
	}
	if cfg.Recalibration.SegmentMinSample != 50 {
		t.Fatalf("segment_min_sample=%d want=50", cfg.Recalibration.SegmentMinSample)
	}
	if len(cfg.Valuation.TierEdges) != 4 {
		t.Fatalf("tier_edges=%v", cfg.Valuation.TierEdges)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("fairness:\n  scale: 0.75\nveto:\n  floor_1qb: 12\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TE_VETO_FLOOR_SUPERFLEX", "8")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Fairness.Scale != 0.75 {
		t.Fatalf("scale=%v want=0.75", cfg.Fairness.Scale)
	}
	if cfg.Veto.FloorOneQB != 12 {
		t.Fatalf("floor_1qb=%v want=12", cfg.Veto.FloorOneQB)
	}
	if cfg.Veto.FloorSuperflex != 8 {
		t.Fatalf("floor_superflex=%v want=8", cfg.Veto.FloorSuperflex)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
