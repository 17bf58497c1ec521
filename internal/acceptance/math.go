package acceptance

import (
	"fmt"
	"math"

	"tradeeval/internal/trade"
)

// Sigmoid is numerically stable for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logit clamps p away from 0 and 1.
func Logit(p float64) float64 {
	const eps = 1e-6
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

var verdictEdges = []struct {
	upper float64
	label string
}{
	{0.2, "very_unlikely"},
	{0.4, "unlikely"},
	{0.6, "toss_up"},
	{0.8, "likely"},
}

func Verdict(p float64) string {
	for _, e := range verdictEdges {
		if p < e.upper {
			return e.label
		}
	}
	return "very_likely"
}

func Lean(p float64) string {
	switch {
	case p >= 0.55:
		return "accept"
	case p <= 0.45:
		return "reject"
	default:
		return "neutral"
	}
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(-1, math.Min(1, x))
}

// relative maps (recv - given) onto [-1, 1] by the larger magnitude.
func relative(recv, given float64) float64 {
	den := math.Max(math.Abs(recv), math.Abs(given))
	if den == 0 {
		return 0
	}
	return clamp((recv - given) / den)
}

func sumVORP(assets []trade.PricedAsset) float64 {
	total := 0.0
	for _, a := range assets {
		total += a.VORPValue
	}
	return total
}

func sumMarket(assets []trade.PricedAsset) float64 {
	total := 0.0
	for _, a := range assets {
		total += a.MarketValue
	}
	return total
}

func knownFraction(groups ...[]trade.PricedAsset) float64 {
	n, known := 0, 0
	for _, g := range groups {
		for _, a := range g {
			n++
			if a.Known() {
				known++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return float64(known) / float64(n)
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func factor(name string, v float64) string {
	return fmt.Sprintf("%s=%.2f", name, v)
}
