package valuation

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tradeeval/internal/trade"
)

// PickCurve prices draft picks by (year, round, tier).
type PickCurve struct {
	YearDiscount float64     `yaml:"year_discount"`
	Points       []PickPoint `yaml:"picks"`

	index map[string]float64
}

type PickPoint struct {
	Year  int     `yaml:"year"`
	Round int     `yaml:"round"`
	Tier  string  `yaml:"tier"`
	Value float64 `yaml:"value"`
}

func LoadPickCurve(path string) (*PickCurve, error) {
	if strings.TrimSpace(path) == "" {
		return NewPickCurve(nil, 0), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pick curve: %w", err)
	}
	return ParsePickCurve(b)
}

func ParsePickCurve(b []byte) (*PickCurve, error) {
	var c PickCurve
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse pick curve: %w", err)
	}
	return NewPickCurve(c.Points, c.YearDiscount), nil
}

func NewPickCurve(points []PickPoint, yearDiscount float64) *PickCurve {
	c := &PickCurve{YearDiscount: yearDiscount, Points: points, index: map[string]float64{}}
	for _, p := range points {
		c.index[pickKey(p.Year, p.Round, p.Tier)] = p.Value
	}
	return c
}

func pickKey(year, round int, tier string) string {
	return fmt.Sprintf("%d:%d:%s", year, round, normalizeTier(tier))
}

func normalizeTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "early":
		return "early"
	case "late":
		return "late"
	default:
		return "mid"
	}
}

// Price returns the pick value and how it was found. A curve match at another
// year is discounted per year of distance.
func (c *PickCurve) Price(ref trade.AssetRef) (float64, trade.Source) {
	if c == nil || ref.Year == 0 || ref.Round == 0 {
		return 0, trade.SourceUnknown
	}
	tier := normalizeTier(ref.ProjectedRange)
	if v, ok := c.index[pickKey(ref.Year, ref.Round, tier)]; ok {
		return v, trade.SourceExact
	}

	bestDist := math.MaxInt
	bestValue := 0.0
	for _, p := range c.Points {
		if p.Round != ref.Round || normalizeTier(p.Tier) != tier {
			continue
		}
		dist := ref.Year - p.Year
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			bestValue = p.Value
		}
	}
	if bestDist == math.MaxInt {
		return 0, trade.SourceUnknown
	}
	factor := math.Pow(1-c.YearDiscount, float64(bestDist))
	return bestValue * factor, trade.SourceCurve
}
