// Package calibration measures how well acceptance predictions match
// resolved outcomes.
package calibration

import (
	"math"
)

type Status string

const (
	StatusGood         Status = "good"
	StatusWatch        Status = "watch"
	StatusCritical     Status = "critical"
	StatusInsufficient Status = "insufficient_data"
)

// Pair is one prediction with its binary outcome (1 accepted, 0 otherwise).
type Pair struct {
	Predicted float64
	Outcome   float64
}

type Bucket struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
}

type Report struct {
	N            int      `json:"n"`
	Insufficient bool     `json:"insufficient"`
	ECE          *float64 `json:"ece"`
	Brier        *float64 `json:"brier"`
	ECEStatus    Status   `json:"ece_status"`
	BrierStatus  Status   `json:"brier_status"`
	Reliability  []Bucket `json:"reliability"`

	// Histogram counts predictions per bucket and is reported even when the
	// sample is too small for ECE or Brier.
	Histogram []int   `json:"histogram"`
	BaseRate  float64 `json:"base_rate"`
	MeanPred  float64 `json:"mean_predicted"`
}

type Monitor struct {
	Buckets    int
	MinSamples int
}

func (m Monitor) buckets() int {
	if m.Buckets <= 0 {
		return 10
	}
	return m.Buckets
}

func (m Monitor) minSamples() int {
	if m.MinSamples <= 0 {
		return 5
	}
	return m.MinSamples
}

// BucketIndex places p in [0, n). p == 1 falls in the last bucket.
func BucketIndex(p float64, n int) int {
	idx := int(math.Floor(p * float64(n)))
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func (m Monitor) Compute(pairs []Pair) Report {
	n := m.buckets()
	width := 1 / float64(n)
	rep := Report{N: len(pairs), Histogram: make([]int, n)}

	sumPred := make([]float64, n)
	sumObs := make([]float64, n)
	totalPred, totalObs := 0.0, 0.0
	for _, p := range pairs {
		i := BucketIndex(p.Predicted, n)
		rep.Histogram[i]++
		sumPred[i] += p.Predicted
		sumObs[i] += p.Outcome
		totalPred += p.Predicted
		totalObs += p.Outcome
	}
	if len(pairs) > 0 {
		rep.BaseRate = totalObs / float64(len(pairs))
		rep.MeanPred = totalPred / float64(len(pairs))
	}

	rep.Reliability = make([]Bucket, 0, n)
	for i := 0; i < n; i++ {
		b := Bucket{Lower: float64(i) * width, Upper: float64(i+1) * width, Count: rep.Histogram[i]}
		if b.Count > 0 {
			b.MeanPredicted = sumPred[i] / float64(b.Count)
			b.ObservedRate = sumObs[i] / float64(b.Count)
		}
		rep.Reliability = append(rep.Reliability, b)
	}

	if len(pairs) < m.minSamples() {
		rep.Insufficient = true
		rep.ECEStatus = StatusInsufficient
		rep.BrierStatus = StatusInsufficient
		return rep
	}

	ece := ECE(rep.Reliability, len(pairs))
	brier := Brier(pairs)
	rep.ECE = &ece
	rep.Brier = &brier
	rep.ECEStatus = ECEStatus(ece)
	rep.BrierStatus = BrierStatus(brier)
	return rep
}

// ECE is the count-weighted mean gap between predicted and observed rates.
func ECE(buckets []Bucket, total int) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		sum += float64(b.Count) / float64(total) * math.Abs(b.MeanPredicted-b.ObservedRate)
	}
	return sum
}

func Brier(pairs []Pair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pairs {
		d := p.Predicted - p.Outcome
		sum += d * d
	}
	return sum / float64(len(pairs))
}

func ECEStatus(ece float64) Status {
	switch {
	case ece >= 0.12:
		return StatusCritical
	case ece > 0.08:
		return StatusWatch
	default:
		return StatusGood
	}
}

func BrierStatus(brier float64) Status {
	switch {
	case brier > 0.30:
		return StatusCritical
	case brier > 0.20:
		return StatusWatch
	default:
		return StatusGood
	}
}
