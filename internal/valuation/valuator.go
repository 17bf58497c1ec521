package valuation

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradeeval/internal/config"
	"tradeeval/internal/metrics"
	"tradeeval/internal/trade"
)

// CompositeWeights combines the valuation signals of a player. The version
// travels with every evaluation so results can be replayed.
type CompositeWeights struct {
	Version    string  `json:"version"`
	Market     float64 `json:"market"`
	Impact     float64 `json:"impact"`
	VORP       float64 `json:"vorp"`
	Volatility float64 `json:"volatility"`
}

func CompositeFromConfig(cfg config.CompositeWeightsConfig) CompositeWeights {
	return CompositeWeights{
		Version:    cfg.Version,
		Market:     cfg.Market,
		Impact:     cfg.Impact,
		VORP:       cfg.VORP,
		Volatility: cfg.Volatility,
	}
}

// Score is the composite value; never negative.
func (w CompositeWeights) Score(market, impact, vorp, volatility float64) float64 {
	v := w.Market*market + w.Impact*impact + w.VORP*vorp - w.Volatility*volatility*market
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Context is the league state an asset is priced under.
type Context struct {
	AsOf      time.Time
	Superflex bool
	Teams     int
	Slots     trade.SlotConfig
}

func ContextFor(league trade.LeagueContext, asOf time.Time, defaultTeams int) Context {
	teams := league.Teams
	if teams <= 0 {
		teams = defaultTeams
	}
	slots := league.Slots
	if slots.IsZero() {
		slots = trade.DefaultSlots(league.QBFormat)
	}
	return Context{
		AsOf:      asOf,
		Superflex: league.QBFormat == trade.QBFormatSuperflex || slots.Superflex > 0,
		Teams:     teams,
		Slots:     slots,
	}
}

type Valuator struct {
	Market         MarketSource
	Picks          *PickCurve
	Weights        CompositeWeights
	TierEdges      []float64
	LookupTimeout  time.Duration
	MaxConcurrency int
	Logger         *zap.Logger
	Metrics        *metrics.Registry
}

// Price values a single asset. Failures are carried on the result.
func (v *Valuator) Price(ctx context.Context, ref trade.AssetRef, vctx Context) trade.PricedAsset {
	var out trade.PricedAsset
	if ref.Kind == trade.KindPick {
		out = v.pricePick(ref)
	} else {
		out = v.pricePlayer(ctx, ref, vctx)
	}
	out.Tier = trade.TierFor(out.Value, v.TierEdges)
	if !out.Known() {
		out.Tier = trade.TierNone
	}
	v.Metrics.IncAssetLookup(strings.ToLower(string(ref.Kind)), string(out.Source))
	return out
}

func newPriced(ref trade.AssetRef) trade.PricedAsset {
	return trade.PricedAsset{
		Ref:      ref,
		ID:       ref.ID(),
		Label:    ref.Label(),
		Position: strings.ToUpper(ref.Position),
		Age:      ref.Age,
		Source:   trade.SourceUnknown,
	}
}

func (v *Valuator) pricePick(ref trade.AssetRef) trade.PricedAsset {
	out := newPriced(ref)
	out.Position = "PICK"
	value, source := v.Picks.Price(ref)
	out.Source = source
	out.Confidence = source.Confidence()
	if source == trade.SourceUnknown {
		return out
	}
	out.MarketValue = value
	out.Value = value
	return out
}

func (v *Valuator) pricePlayer(ctx context.Context, ref trade.AssetRef, vctx Context) trade.PricedAsset {
	out := newPriced(ref)
	if v.Market == nil || strings.TrimSpace(ref.Name) == "" {
		return out
	}

	lctx, cancel := context.WithTimeout(ctx, v.lookupTimeout())
	defer cancel()

	q, err := v.Market.Quote(lctx, ref.Name, vctx.Superflex, vctx.AsOf)
	if err != nil {
		if !errors.Is(err, ErrUnknownPlayer) {
			out.LookupError = err.Error()
			v.logger().Warn("market quote lookup failed", zap.String("asset", out.ID), zap.Error(err))
		}
		return out
	}

	if q.Position != "" {
		out.Position = strings.ToUpper(q.Position)
	}
	if out.Age == 0 {
		out.Age = q.Age
	}
	out.MarketValue = q.Value
	out.Volatility = q.Volatility
	out.Source = trade.SourceExact
	out.Confidence = trade.SourceExact.Confidence()

	pool, err := v.Market.PositionValues(lctx, out.Position, vctx.Superflex, vctx.AsOf)
	if err != nil {
		out.LookupError = err.Error()
		out.Confidence = trade.SourceCurve.Confidence()
		v.logger().Warn("position pool lookup failed", zap.String("asset", out.ID), zap.Error(err))
		pool = nil
	}
	starters := vctx.Slots.Starters(out.Position) * float64(max(vctx.Teams, 1))
	out.ImpactValue, out.VORPValue = Positional(q.Value, pool, starters)
	out.Value = v.Weights.Score(out.MarketValue, out.ImpactValue, out.VORPValue, out.Volatility)
	return out
}

// Positional derives lineup impact and VORP from a player's value, the
// league-wide values at the position (highest first) and the number of
// starters the league fields at that position.
//
// Impact is the value scaled by the chance of starting: full inside the
// starter pool, fading linearly to zero at twice the pool. VORP is the value
// above the first player outside the pool.
func Positional(value float64, pool []float64, starters float64) (impact, vorp float64) {
	if starters <= 0 {
		return 0, value
	}
	rank := 1
	for _, pv := range pool {
		if pv > value {
			rank++
		}
	}
	share := 1.0
	if r := float64(rank); r > starters {
		share = math.Max(0, 1-(r-starters)/starters)
	}
	impact = value * share

	replacementIdx := int(math.Floor(starters))
	replacement := 0.0
	if replacementIdx < len(pool) {
		replacement = pool[replacementIdx]
	}
	vorp = value - replacement
	return impact, vorp
}

// PriceAll prices refs concurrently and returns results in input order.
// Duplicate ids are looked up once.
func (v *Valuator) PriceAll(ctx context.Context, refs []trade.AssetRef, vctx Context) []trade.PricedAsset {
	uniq := make([]trade.AssetRef, 0, len(refs))
	pos := make(map[string]int, len(refs))
	for _, ref := range refs {
		id := ref.ID()
		if _, ok := pos[id]; ok {
			continue
		}
		pos[id] = len(uniq)
		uniq = append(uniq, ref)
	}

	priced := make([]trade.PricedAsset, len(uniq))
	var g errgroup.Group
	g.SetLimit(v.concurrency())
	for i, ref := range uniq {
		g.Go(func() error {
			priced[i] = v.Price(ctx, ref, vctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]trade.PricedAsset, len(refs))
	for i, ref := range refs {
		p := priced[pos[ref.ID()]]
		// Keep caller-supplied identity on duplicates.
		p.Ref = ref
		out[i] = p
	}
	return out
}

// PriceSides prices every asset of both sides in one fan-out.
func (v *Valuator) PriceSides(ctx context.Context, a, b trade.TradeSide, vctx Context) (trade.PricedSide, trade.PricedSide) {
	sides := []trade.TradeSide{a, b}
	var refs []trade.AssetRef
	type span struct{ gives, roster, picks [2]int }
	spans := make([]span, 2)
	for i, s := range sides {
		owner := trade.SideA
		if i == 1 {
			owner = trade.SideB
		}
		spans[i].gives = [2]int{len(refs), len(refs) + len(s.Gives)}
		refs = appendOwned(refs, s.Gives, owner)
		spans[i].roster = [2]int{len(refs), len(refs) + len(s.Roster)}
		refs = appendOwned(refs, s.Roster, owner)
		spans[i].picks = [2]int{len(refs), len(refs) + len(s.OwnedPicks)}
		refs = appendOwned(refs, s.OwnedPicks, owner)
	}

	start := time.Now()
	priced := v.PriceAll(ctx, refs, vctx)
	v.logger().Debug("priced trade assets", zap.Int("assets", len(refs)), zap.Duration("took", time.Since(start)))

	out := make([]trade.PricedSide, 2)
	for i, s := range sides {
		sp := spans[i]
		out[i] = trade.PricedSide{
			Gives:         priced[sp.gives[0]:sp.gives[1]:sp.gives[1]],
			FAAB:          s.FAAB,
			Roster:        priced[sp.roster[0]:sp.roster[1]:sp.roster[1]],
			OwnedPicks:    priced[sp.picks[0]:sp.picks[1]:sp.picks[1]],
			FAABRemaining: s.FAABRemaining,
			RedLines:      s.RedLines,
		}
	}
	return out[0], out[1]
}

func appendOwned(dst, refs []trade.AssetRef, owner trade.Side) []trade.AssetRef {
	for _, r := range refs {
		r.Owner = owner
		dst = append(dst, r)
	}
	return dst
}

func (v *Valuator) lookupTimeout() time.Duration {
	if v.LookupTimeout <= 0 {
		return 2 * time.Second
	}
	return v.LookupTimeout
}

func (v *Valuator) concurrency() int {
	if v.MaxConcurrency <= 0 {
		return 8
	}
	return v.MaxConcurrency
}

func (v *Valuator) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
