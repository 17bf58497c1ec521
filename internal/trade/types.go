// Package trade holds the value types shared by the evaluation pipeline:
// assets, trade sides, league context and the closed vocabularies for
// drivers, labels and warnings.
package trade

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPlayer Kind = "PLAYER"
	KindPick   Kind = "PICK"
)

type Source string

const (
	SourceExact   Source = "exact"
	SourceCurve   Source = "curve"
	SourceUnknown Source = "unknown"
)

// Confidence is the per-asset confidence implied by the pricing source.
func (s Source) Confidence() float64 {
	switch s {
	case SourceExact:
		return 1
	case SourceCurve:
		return 0.7
	default:
		return 0
	}
}

type QBFormat string

const (
	QBFormatOne       QBFormat = "1qb"
	QBFormatSuperflex QBFormat = "superflex"
)

func ParseQBFormat(s string) QBFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "superflex", "sf", "2qb":
		return QBFormatSuperflex
	default:
		return QBFormatOne
	}
}

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Tier buckets asset value; Tier0 is the most valuable.
type Tier int

const (
	Tier0 Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
)

// TierNone marks a set with no valued assets.
const TierNone Tier = 99

func (t Tier) String() string {
	if t == TierNone {
		return "none"
	}
	return fmt.Sprintf("tier%d", int(t))
}

// TierFor maps a composite value onto the tier edges (descending).
func TierFor(value float64, edges []float64) Tier {
	for i, edge := range edges {
		if value >= edge {
			return Tier(i)
		}
	}
	return Tier(len(edges))
}

// AssetRef is the unpriced identity of an asset as submitted by a caller.
type AssetRef struct {
	Kind Kind `json:"kind"`
	Name string `json:"name,omitempty"`

	Position string `json:"position,omitempty"`
	Age      int    `json:"age,omitempty"`

	Year           int    `json:"year,omitempty"`
	Round          int    `json:"round,omitempty"`
	ProjectedRange string `json:"projected_range,omitempty"`

	// Owner is the side holding the asset. Set when sides are priced.
	Owner Side `json:"owner,omitempty"`
}

// ID is the stable contract identifier of an asset. Picks are qualified by
// owner, since both sides may hold the same year and round.
func (r AssetRef) ID() string {
	id := r.BaseID()
	if r.Kind == KindPick && r.Owner != "" {
		id += ":" + strings.ToLower(string(r.Owner))
	}
	return id
}

// BaseID is ID without the owner qualifier.
func (r AssetRef) BaseID() string {
	if r.Kind == KindPick {
		rng := strings.ToLower(strings.TrimSpace(r.ProjectedRange))
		if rng == "" {
			rng = "mid"
		}
		return fmt.Sprintf("pick:%d:%d:%s", r.Year, r.Round, rng)
	}
	return "player:" + NormalizeName(r.Name)
}

func (r AssetRef) Label() string {
	if r.Kind == KindPick {
		if r.ProjectedRange != "" {
			return fmt.Sprintf("%d Round %d (%s)", r.Year, r.Round, r.ProjectedRange)
		}
		return fmt.Sprintf("%d Round %d", r.Year, r.Round)
	}
	return strings.TrimSpace(r.Name)
}

// NormalizeName lowercases and collapses whitespace and punctuation for lookups.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '-' || r == '_' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// PricedAsset is an asset with its valuation signals and provenance.
type PricedAsset struct {
	Ref         AssetRef `json:"ref"`
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Position    string   `json:"position,omitempty"`
	Age         int      `json:"age,omitempty"`
	MarketValue float64  `json:"market_value"`
	ImpactValue float64  `json:"impact_value"`
	VORPValue   float64  `json:"vorp_value"`
	Volatility  float64  `json:"volatility"`
	Value       float64  `json:"value"`
	Source      Source   `json:"source"`
	Confidence  float64  `json:"confidence"`
	Tier        Tier     `json:"tier"`
	LookupError string   `json:"lookup_error,omitempty"`
}

func (p PricedAsset) Known() bool {
	return p.Source != SourceUnknown
}

// TradeSide is what one party sends, plus optional context about that party.
type TradeSide struct {
	ManagerID     string          `json:"manager_id,omitempty"`
	Gives         []AssetRef      `json:"gives"`
	FAAB          decimal.Decimal `json:"faab"`
	Roster        []AssetRef      `json:"roster,omitempty"`
	OwnedPicks    []AssetRef      `json:"owned_picks,omitempty"`
	FAABRemaining decimal.Decimal `json:"faab_remaining"`
	RedLines      []string        `json:"red_lines,omitempty"`
}

func (s TradeSide) HasRoster() bool {
	return len(s.Roster) > 0
}

// PricedSide mirrors TradeSide after valuation.
type PricedSide struct {
	Gives         []PricedAsset   `json:"gives"`
	FAAB          decimal.Decimal `json:"faab"`
	Roster        []PricedAsset   `json:"roster,omitempty"`
	OwnedPicks    []PricedAsset   `json:"owned_picks,omitempty"`
	FAABRemaining decimal.Decimal `json:"faab_remaining"`
	RedLines      []string        `json:"red_lines,omitempty"`
}

func (s PricedSide) GivenValue() float64 {
	total := 0.0
	for _, a := range s.Gives {
		total += a.Value
	}
	return total
}

func (s PricedSide) KnownRosterPlayers() int {
	n := 0
	for _, a := range s.Roster {
		if a.Ref.Kind == KindPlayer && a.Known() {
			n++
		}
	}
	return n
}

// Bench returns roster assets not included in the given list.
func (s PricedSide) Bench() []PricedAsset {
	given := make(map[string]struct{}, len(s.Gives))
	for _, a := range s.Gives {
		given[a.ID] = struct{}{}
	}
	out := make([]PricedAsset, 0, len(s.Roster))
	for _, a := range s.Roster {
		if _, ok := given[a.ID]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SlotConfig is the starting lineup shape of a league.
type SlotConfig struct {
	QB        int `json:"qb"`
	RB        int `json:"rb"`
	WR        int `json:"wr"`
	TE        int `json:"te"`
	Flex      int `json:"flex"`
	Superflex int `json:"superflex"`
}

func DefaultSlots(qb QBFormat) SlotConfig {
	s := SlotConfig{QB: 1, RB: 2, WR: 2, TE: 1, Flex: 2}
	if qb == QBFormatSuperflex {
		s.Superflex = 1
	}
	return s
}

func (s SlotConfig) IsZero() bool {
	return s == SlotConfig{}
}

// Starters returns how many starters a single team fields at pos, counting
// flex eligibility fractionally so replacement levels stay meaningful.
func (s SlotConfig) Starters(pos string) float64 {
	switch strings.ToUpper(pos) {
	case "QB":
		return float64(s.QB) + float64(s.Superflex)
	case "RB":
		return float64(s.RB) + float64(s.Flex)*0.4
	case "WR":
		return float64(s.WR) + float64(s.Flex)*0.45
	case "TE":
		return float64(s.TE) + float64(s.Flex)*0.15
	default:
		return 0
	}
}

// LeagueContext describes the league the trade happens in.
type LeagueContext struct {
	Format   string     `json:"format"`
	QBFormat QBFormat   `json:"qb_format"`
	Scoring  string     `json:"scoring"`
	Teams    int        `json:"teams"`
	Slots    SlotConfig `json:"slots"`
	Mode     string     `json:"mode"`
}

// SegmentKey is the format|scoring|mode composite used for calibration strata.
func (l LeagueContext) SegmentKey() string {
	return SegmentKey(l.Format, l.Scoring, l.Mode)
}

func SegmentKey(format, scoring, mode string) string {
	norm := func(s, fallback string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return fallback
		}
		return s
	}
	return norm(format, "redraft") + "|" + norm(scoring, "ppr") + "|" + norm(mode, "standard")
}

// Completeness reports how much league context the caller supplied (0..1).
func (l LeagueContext) Completeness() float64 {
	fields := []bool{
		strings.TrimSpace(l.Format) != "",
		l.QBFormat != "",
		strings.TrimSpace(l.Scoring) != "",
		l.Teams > 0,
		!l.Slots.IsZero(),
	}
	n := 0
	for _, ok := range fields {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}
