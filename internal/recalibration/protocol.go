// Package recalibration computes shadow intercepts from resolved outcomes and
// decides when a shadow may replace the active intercept.
//
// Lifecycle: IDLE -> COMPUTING_SHADOW -> MATURING | DISCARDED -> PROMOTED.
// Everything here is pure; persistence and the pointer swap live in the
// recalibration service.
package recalibration

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/config"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateComputing State = "COMPUTING_SHADOW"
	StateMaturing  State = "MATURING"
	StateDiscarded State = "DISCARDED"
	StatePromoted  State = "PROMOTED"
)

var AllStates = []string{
	string(StateIdle), string(StateComputing), string(StateMaturing), string(StateDiscarded), string(StatePromoted),
}

const (
	ReasonInsufficientSample = "insufficient_sample"
	ReasonDivergenceCeiling  = "divergence_above_ceiling"
	ReasonNotMature          = "not_mature"
	ReasonBaseChanged        = "base_version_changed"
	ReasonSuperseded         = "superseded"
)

var ErrNoObservations = errors.New("no resolved observations")

type Config struct {
	MinSampleSize    int
	MinAge           time.Duration
	HardCeiling      float64
	SegmentMinSample int
}

func ConfigFrom(cfg config.RecalibrationConfig) Config {
	return Config{
		MinSampleSize:    cfg.MinSampleSize,
		MinAge:           cfg.MinAge,
		HardCeiling:      cfg.HardCeiling,
		SegmentMinSample: cfg.SegmentMinSample,
	}
}

// Observation is a resolved prediction with the intercept it was made under.
type Observation struct {
	Predicted float64
	Outcome   float64
	Intercept float64
}

type Shadow struct {
	B0                float64 `json:"b0"`
	BaseB0            float64 `json:"base_b0"`
	SampleSize        int     `json:"sample_size"`
	ObservedRate      float64 `json:"observed_rate"`
	PredictedMean     float64 `json:"predicted_mean"`
	LogOddsCorrection float64 `json:"log_odds_correction"`
	Divergence        float64 `json:"divergence"`
}

// ComputeShadow applies the log-odds correction
//
//	correction = logit(observedRate) - logit(predictedMean)
//	shadowB0   = baseB0 + correction
func ComputeShadow(obs []Observation, baseB0 float64) (Shadow, error) {
	if len(obs) == 0 {
		return Shadow{}, ErrNoObservations
	}
	sumPred, sumObs := 0.0, 0.0
	for _, o := range obs {
		sumPred += o.Predicted
		sumObs += o.Outcome
	}
	n := float64(len(obs))
	s := Shadow{
		BaseB0:        baseB0,
		SampleSize:    len(obs),
		ObservedRate:  sumObs / n,
		PredictedMean: sumPred / n,
	}
	s.LogOddsCorrection = acceptance.Logit(s.ObservedRate) - acceptance.Logit(s.PredictedMean)
	s.B0 = baseB0 + s.LogOddsCorrection
	s.Divergence = math.Abs(s.B0 - baseB0)
	return s, nil
}

func (c Config) ceiling() float64 {
	if c.HardCeiling <= 0 {
		return 1
	}
	return c.HardCeiling
}

func (c Config) minSample() int {
	if c.MinSampleSize <= 0 {
		return 100
	}
	return c.MinSampleSize
}

func (c Config) minAge() time.Duration {
	if c.MinAge <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.MinAge
}

func (c Config) segmentMin() int {
	if c.SegmentMinSample <= 0 {
		return 50
	}
	return c.SegmentMinSample
}

// Classify decides where a freshly computed shadow goes. A shadow with too
// few samples or an extreme divergence is discarded.
func (c Config) Classify(s Shadow) (State, string) {
	if s.SampleSize < c.minSample() {
		return StateDiscarded, fmt.Sprintf("%s: %d < %d", ReasonInsufficientSample, s.SampleSize, c.minSample())
	}
	if s.Divergence > c.ceiling() {
		return StateDiscarded, fmt.Sprintf("%s: %.3f > %.3f", ReasonDivergenceCeiling, s.Divergence, c.ceiling())
	}
	return StateMaturing, ""
}

// Eligible reports whether a maturing shadow may be promoted at now. Very
// high divergence blocks promotion at any age.
func (c Config) Eligible(sampleSize int, divergence float64, computedAt, now time.Time) (bool, string) {
	if divergence > c.ceiling() {
		return false, ReasonDivergenceCeiling
	}
	if sampleSize < c.minSample() {
		return false, ReasonInsufficientSample
	}
	if now.Sub(computedAt) < c.minAge() {
		return false, ReasonNotMature
	}
	return true, ""
}

type SegmentResult struct {
	Key string
	Shadow
}

// Segments computes an intercept per segment that clears the floor. The base
// for each segment is the mean intercept its predictions were made under.
func (c Config) Segments(groups map[string][]Observation) []SegmentResult {
	keys := make([]string, 0, len(groups))
	for k, obs := range groups {
		if len(obs) >= c.segmentMin() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]SegmentResult, 0, len(keys))
	for _, k := range keys {
		obs := groups[k]
		base := 0.0
		for _, o := range obs {
			base += o.Intercept
		}
		base /= float64(len(obs))
		s, err := ComputeShadow(obs, base)
		if err != nil {
			continue
		}
		out = append(out, SegmentResult{Key: k, Shadow: s})
	}
	return out
}
