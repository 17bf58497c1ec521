// Package acceptance predicts whether the receiving manager (side B) accepts a
// proposed trade. The model is a logistic regression over four fixed drivers.
package acceptance

import (
	"math"

	"tradeeval/internal/config"
	"tradeeval/internal/fairness"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/trade"
)

const (
	ReasonMissingRoster  = "missing_roster"
	ReasonNoMarketValue  = "no_market_value"
	ReasonNoActiveWeight = "no_active_weights"
)

type Rating string

const (
	RatingHigh     Rating = "HIGH"
	RatingMedium   Rating = "MEDIUM"
	RatingLearning Rating = "LEARNING"
)

// History is the counterparty's resolved trade record.
type History struct {
	Resolved int64
	Accepted int64
}

type Input struct {
	// A proposes, B decides.
	A      trade.PricedSide
	B      trade.PricedSide
	League trade.LeagueContext
	Slots  trade.SlotConfig
	// History is nil when the counterparty is unknown.
	History *History
	// SampleSize is the number of resolved outcomes backing the model for
	// this trade's segment.
	SampleSize int64
}

type Confidence struct {
	Rating  Rating   `json:"rating"`
	Score   float64  `json:"score"`
	Factors []string `json:"factors"`
}

type Result struct {
	Available         bool     `json:"available"`
	UnavailableReason string   `json:"unavailable_reason,omitempty"`
	Probability       *float64 `json:"probability"`
	Verdict           string   `json:"verdict,omitempty"`
	Lean              string   `json:"lean,omitempty"`

	Drivers []trade.Driver             `json:"drivers"`
	Scores  map[trade.DriverID]float64 `json:"scores"`

	Confidence Confidence `json:"confidence"`

	WeightsVersion  int     `json:"weights_version"`
	Intercept       float64 `json:"intercept"`
	InterceptSource string  `json:"intercept_source,omitempty"`
	SegmentKey      string  `json:"segment_key"`
}

// Features returns the raw evidence keyed by driver for the outcomes log.
func (r Result) Features() map[string]float64 {
	out := make(map[string]float64, len(r.Drivers))
	for _, d := range r.Drivers {
		out[string(d.ID)] = d.Evidence
	}
	return out
}

type Model struct {
	Config   config.AcceptanceConfig
	Registry *modelstate.Registry
}

// Predict never guesses: when a required driver is undefined the result is
// unavailable and Probability is nil.
func (m *Model) Predict(in Input) Result {
	segment := in.League.SegmentKey()
	out := Result{SegmentKey: segment, Scores: map[trade.DriverID]float64{}, Drivers: []trade.Driver{}}

	snap := m.Registry.Load()
	if snap == nil {
		out.UnavailableReason = ReasonNoActiveWeight
		return out
	}
	b0, isSegment := snap.Intercept(segment, m.segmentMinSample())
	out.WeightsVersion = snap.Weights.Version
	out.Intercept = b0
	out.InterceptSource = "global"
	if isSegment {
		out.InterceptSource = "segment"
	}

	ev, quality, reason := m.features(in)
	logit := b0
	for _, id := range trade.AllDrivers {
		x, ok := ev[id]
		if !ok {
			continue
		}
		w := snap.Weights.Weight(id)
		out.Drivers = append(out.Drivers, trade.Driver{
			ID:           id,
			Evidence:     x,
			Weight:       w,
			Contribution: w * x,
		})
		out.Scores[id] = round(x, 3)
		logit += w * x
	}
	out.Confidence = m.confidence(in, quality)
	if reason != "" {
		out.UnavailableReason = reason
		return out
	}

	p := Sigmoid(logit)
	out.Available = true
	out.Probability = &p
	out.Verdict = Verdict(p)
	out.Lean = Lean(p)
	return out
}

// features computes each driver on [-1, 1]. quality is the share of each
// driver backed by real data.
func (m *Model) features(in Input) (map[trade.DriverID]float64, map[trade.DriverID]float64, string) {
	ev := map[trade.DriverID]float64{}
	quality := map[trade.DriverID]float64{}
	reason := ""

	received, given := in.A.Gives, in.B.Gives
	known := knownFraction(received, given)

	if in.B.KnownRosterPlayers() == 0 {
		reason = ReasonMissingRoster
	} else {
		slots := in.Slots
		if slots.IsZero() {
			slots = trade.DefaultSlots(in.League.QBFormat)
		}
		delta := fairness.LineupDelta(in.B.Roster, given, received, slots)
		ev[trade.DriverLineupImpact] = clamp(delta / m.lineupNorm())
		quality[trade.DriverLineupImpact] = 1
	}

	vRecv, vGiven := sumVORP(received), sumVORP(given)
	ev[trade.DriverVORP] = relative(vRecv, vGiven)
	quality[trade.DriverVORP] = known

	mRecv, mGiven := sumMarket(received), sumMarket(given)
	if mRecv <= 0 && mGiven <= 0 {
		if reason == "" {
			reason = ReasonNoMarketValue
		}
	} else {
		ev[trade.DriverMarket] = relative(mRecv, mGiven)
		quality[trade.DriverMarket] = known
	}

	ev[trade.DriverBehavioral] = 0
	quality[trade.DriverBehavioral] = 0
	if h := in.History; h != nil && h.Resolved >= int64(m.historyMin()) && h.Resolved > 0 {
		rate := float64(h.Accepted) / float64(h.Resolved)
		ev[trade.DriverBehavioral] = clamp(2*rate - 1)
		quality[trade.DriverBehavioral] = 1
	}
	return ev, quality, reason
}

// confidence blends sample size, driver completeness and league context
// completeness. It never looks at the probability.
func (m *Model) confidence(in Input, quality map[trade.DriverID]float64) Confidence {
	full := float64(m.Config.ConfidenceFullN)
	if full <= 0 {
		full = 200
	}
	sample := math.Min(1, float64(in.SampleSize)/full)

	drivers := 0.0
	for _, id := range trade.AllDrivers {
		drivers += quality[id]
	}
	drivers /= float64(len(trade.AllDrivers))

	ctx := in.League.Completeness()
	score := 0.4*sample + 0.35*drivers + 0.25*ctx
	score = round(score, 3)

	rating := RatingLearning
	switch {
	case score >= 0.75:
		rating = RatingHigh
	case score >= 0.5:
		rating = RatingMedium
	}
	return Confidence{
		Rating: rating,
		Score:  score,
		Factors: []string{
			factor("sample_size", sample),
			factor("driver_completeness", drivers),
			factor("league_context", ctx),
		},
	}
}

func (m *Model) segmentMinSample() int {
	if m.Config.SegmentMinSample <= 0 {
		return 50
	}
	return m.Config.SegmentMinSample
}

func (m *Model) historyMin() int {
	if m.Config.HistoryMinTrades <= 0 {
		return 3
	}
	return m.Config.HistoryMinTrades
}

func (m *Model) lineupNorm() float64 {
	if m.Config.LineupNormalization <= 0 {
		return 1000
	}
	return m.Config.LineupNormalization
}
