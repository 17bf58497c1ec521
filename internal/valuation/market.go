package valuation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradeeval/internal/cache"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

// ErrUnknownPlayer is returned by a MarketSource when a name has no quote.
var ErrUnknownPlayer = errors.New("unknown player")

// Quote is one crowd valuation of a player.
type Quote struct {
	Name       string    `json:"name"`
	Position   string    `json:"position"`
	Age        int       `json:"age"`
	Value      float64   `json:"value"`
	Volatility float64   `json:"volatility"`
	AsOf       time.Time `json:"as_of"`
}

// MarketSource is the read-only league data boundary.
type MarketSource interface {
	Quote(ctx context.Context, name string, superflex bool, asOf time.Time) (Quote, error)
	// PositionValues returns all values at a position, highest first.
	PositionValues(ctx context.Context, position string, superflex bool, asOf time.Time) ([]float64, error)
}

// RepoSource serves quotes from the market value snapshots table.
type RepoSource struct {
	Repo repository.MarketRepository
}

func (s *RepoSource) Quote(ctx context.Context, name string, superflex bool, asOf time.Time) (Quote, error) {
	if s == nil || s.Repo == nil {
		return Quote{}, ErrUnknownPlayer
	}
	item, err := s.Repo.GetMarketValue(ctx, trade.NormalizeName(name), superflex, asOf)
	if err != nil {
		return Quote{}, err
	}
	if item == nil {
		return Quote{}, ErrUnknownPlayer
	}
	return Quote{
		Name:       item.Name,
		Position:   strings.ToUpper(item.Position),
		Age:        item.Age,
		Value:      item.Value,
		Volatility: item.Volatility,
		AsOf:       item.AsOf,
	}, nil
}

func (s *RepoSource) PositionValues(ctx context.Context, position string, superflex bool, asOf time.Time) ([]float64, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListPositionValues(ctx, position, superflex, asOf)
}

// CachedSource caches raw quotes, never priced assets.
type CachedSource struct {
	Next  MarketSource
	Store cache.Store
	TTL   time.Duration
}

// WithCache wraps src when a store is configured.
func WithCache(src MarketSource, store cache.Store, ttl time.Duration) MarketSource {
	if store == nil {
		return src
	}
	return &CachedSource{Next: src, Store: store, TTL: ttl}
}

type cachedQuote struct {
	Found bool  `json:"found"`
	Quote Quote `json:"quote"`
}

func (c *CachedSource) Quote(ctx context.Context, name string, superflex bool, asOf time.Time) (Quote, error) {
	key := fmt.Sprintf("quote:%s:%t:%s", trade.NormalizeName(name), superflex, dayKey(asOf))
	var hit cachedQuote
	if ok, err := cache.GetJSON(ctx, c.Store, key, &hit); err == nil && ok {
		if !hit.Found {
			return Quote{}, ErrUnknownPlayer
		}
		return hit.Quote, nil
	}
	q, err := c.Next.Quote(ctx, name, superflex, asOf)
	switch {
	case err == nil:
		_ = cache.SetJSON(ctx, c.Store, key, cachedQuote{Found: true, Quote: q}, c.TTL)
	case errors.Is(err, ErrUnknownPlayer):
		_ = cache.SetJSON(ctx, c.Store, key, cachedQuote{Found: false}, c.TTL)
	}
	return q, err
}

func (c *CachedSource) PositionValues(ctx context.Context, position string, superflex bool, asOf time.Time) ([]float64, error) {
	key := fmt.Sprintf("pos:%s:%t:%s", strings.ToUpper(position), superflex, dayKey(asOf))
	var values []float64
	if ok, err := cache.GetJSON(ctx, c.Store, key, &values); err == nil && ok {
		return values, nil
	}
	values, err := c.Next.PositionValues(ctx, position, superflex, asOf)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, c.Store, key, values, c.TTL)
	return values, nil
}

func dayKey(t time.Time) string {
	if t.IsZero() {
		return "latest"
	}
	return t.UTC().Format("2006-01-02")
}
