// Package modelstate holds the active acceptance model as an immutable
// snapshot behind a single atomic pointer. Readers always see one complete
// version; writers build a new snapshot and swap it in.
package modelstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"

	"tradeeval/internal/models"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

// NormalizationVersion identifies the feature normalization the weights were
// fitted under. Bump it whenever feature scaling changes.
const NormalizationVersion = "n1-clamp"

var ErrNoActiveWeights = errors.New("no active calibrated weights")

type Weights struct {
	Version              int                        `json:"version"`
	B0                   float64                    `json:"b0"`
	Drivers              map[trade.DriverID]float64 `json:"drivers"`
	NormalizationVersion string                     `json:"normalization_version"`
	Source               string                     `json:"source"`
	ComputedAt           time.Time                  `json:"computed_at"`
}

func (w Weights) Weight(id trade.DriverID) float64 {
	return w.Drivers[id]
}

type SegmentIntercept struct {
	Key        string    `json:"segment_key"`
	B0         float64   `json:"b0"`
	SampleSize int       `json:"sample_size"`
	ComputedAt time.Time `json:"computed_at"`
}

type Snapshot struct {
	Weights  Weights
	Segments map[string]SegmentIntercept
	LoadedAt time.Time
}

// Intercept returns the segment intercept when the segment has at least
// minSample outcomes, otherwise the global b0.
func (s *Snapshot) Intercept(segmentKey string, minSample int) (float64, bool) {
	if s == nil {
		return 0, false
	}
	if seg, ok := s.Segments[segmentKey]; ok && seg.SampleSize >= minSample {
		return seg.B0, true
	}
	return s.Weights.B0, false
}

type Registry struct {
	ptr atomic.Pointer[Snapshot]
}

func NewRegistry(initial Weights) *Registry {
	r := &Registry{}
	r.Store(&Snapshot{Weights: initial, Segments: map[string]SegmentIntercept{}, LoadedAt: time.Now().UTC()})
	return r
}

// Load never returns nil once the registry has been initialized.
func (r *Registry) Load() *Snapshot {
	if r == nil {
		return nil
	}
	return r.ptr.Load()
}

func (r *Registry) Store(s *Snapshot) {
	if r == nil || s == nil {
		return
	}
	if s.Segments == nil {
		s.Segments = map[string]SegmentIntercept{}
	}
	r.ptr.Store(s)
}

// SwapWeights publishes new weights and keeps the current segment map.
func (r *Registry) SwapWeights(w Weights) {
	for {
		old := r.ptr.Load()
		next := &Snapshot{Weights: w, LoadedAt: time.Now().UTC()}
		if old != nil {
			next.Segments = old.Segments
		}
		if next.Segments == nil {
			next.Segments = map[string]SegmentIntercept{}
		}
		if r.ptr.CompareAndSwap(old, next) {
			return
		}
	}
}

// SwapSegments replaces the whole segment map.
func (r *Registry) SwapSegments(segments map[string]SegmentIntercept) {
	cp := make(map[string]SegmentIntercept, len(segments))
	for k, v := range segments {
		cp[k] = v
	}
	for {
		old := r.ptr.Load()
		next := &Snapshot{Segments: cp, LoadedAt: time.Now().UTC()}
		if old != nil {
			next.Weights = old.Weights
		}
		if r.ptr.CompareAndSwap(old, next) {
			return
		}
	}
}

// Reload rebuilds the snapshot from the repository.
func (r *Registry) Reload(ctx context.Context, repo repository.ModelRepository) error {
	if r == nil || repo == nil {
		return nil
	}
	active, err := repo.GetActiveWeights(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return ErrNoActiveWeights
	}
	w, err := WeightsFromModel(*active)
	if err != nil {
		return err
	}
	segs, err := repo.ListSegmentIntercepts(ctx)
	if err != nil {
		return err
	}
	r.Store(&Snapshot{Weights: w, Segments: SegmentsFromModels(segs), LoadedAt: time.Now().UTC()})
	return nil
}

func WeightsFromModel(m models.CalibratedWeights) (Weights, error) {
	raw := map[string]float64{}
	if len(m.Weights) > 0 {
		if err := json.Unmarshal(m.Weights, &raw); err != nil {
			return Weights{}, fmt.Errorf("decode weights v%d: %w", m.Version, err)
		}
	}
	drivers := make(map[trade.DriverID]float64, len(trade.AllDrivers))
	for k, v := range raw {
		id := trade.DriverID(k)
		if !id.Valid() {
			return Weights{}, fmt.Errorf("weights v%d: unknown driver %q", m.Version, k)
		}
		drivers[id] = v
	}
	return Weights{
		Version:              m.Version,
		B0:                   m.B0,
		Drivers:              drivers,
		NormalizationVersion: m.NormalizationVersion,
		Source:               m.Source,
		ComputedAt:           m.ComputedAt,
	}, nil
}

// ToModel encodes w for a new version row. Version is assigned on insert.
func (w Weights) ToModel(source, note string) (*models.CalibratedWeights, error) {
	raw := make(map[string]float64, len(w.Drivers))
	for id, v := range w.Drivers {
		raw[string(id)] = v
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	norm := w.NormalizationVersion
	if norm == "" {
		norm = NormalizationVersion
	}
	computed := w.ComputedAt
	if computed.IsZero() {
		computed = time.Now().UTC()
	}
	return &models.CalibratedWeights{
		B0:                   w.B0,
		Weights:              datatypes.JSON(b),
		NormalizationVersion: norm,
		Source:               source,
		Note:                 note,
		ComputedAt:           computed,
	}, nil
}

func SegmentsFromModels(items []models.SegmentIntercept) map[string]SegmentIntercept {
	out := make(map[string]SegmentIntercept, len(items))
	for _, it := range items {
		out[it.SegmentKey] = SegmentIntercept{
			Key:        it.SegmentKey,
			B0:         it.B0,
			SampleSize: it.SampleSize,
			ComputedAt: it.ComputedAt,
		}
	}
	return out
}
