package drift

import (
	"math"
)

// Histogram counts values into bins of equal width over [lo, hi]. Values on hi
// land in the last bin.
func Histogram(values []float64, lo, hi float64, bins int) []int {
	out := make([]int, bins)
	if bins <= 0 {
		return out
	}
	width := (hi - lo) / float64(bins)
	for _, v := range values {
		idx := 0
		if width > 0 {
			idx = int(math.Floor((v - lo) / width))
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= bins {
			idx = bins - 1
		}
		out[idx]++
	}
	return out
}

// SharedRange is the min and max across both samples.
func SharedRange(a, b []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range [][]float64{a, b} {
		for _, v := range s {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

func proportions(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float64(c) / float64(total)
	}
	return out
}

// PSI compares two binned distributions. Empty bins are floored at eps so
// disjoint supports give a large finite value.
func PSI(baseline, current []int, eps float64) float64 {
	b := proportions(baseline)
	c := proportions(current)
	sum := 0.0
	for i := range b {
		bi := math.Max(b[i], eps)
		ci := math.Max(c[i], eps)
		sum += (ci - bi) * math.Log(ci/bi)
	}
	return sum
}

// JSD is the Jensen-Shannon divergence in bits, bounded by [0, 1].
func JSD(baseline, current []int) float64 {
	p := proportions(baseline)
	q := proportions(current)
	kl := func(x, m []float64) float64 {
		s := 0.0
		for i := range x {
			if x[i] == 0 || m[i] == 0 {
				continue
			}
			s += x[i] * math.Log2(x[i]/m[i])
		}
		return s
	}
	m := make([]float64, len(p))
	for i := range p {
		m[i] = (p[i] + q[i]) / 2
	}
	return 0.5*kl(p, m) + 0.5*kl(q, m)
}

// CompareSamples bins both samples over their shared range and returns PSI
// and JSD.
func CompareSamples(baseline, current []float64, bins int, eps float64) (float64, float64) {
	lo, hi := SharedRange(baseline, current)
	hb := Histogram(baseline, lo, hi, bins)
	hc := Histogram(current, lo, hi, bins)
	return PSI(hb, hc, eps), JSD(hb, hc)
}
