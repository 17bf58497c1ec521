// Package narrative adapts hosted LLM chat APIs to the negotiation Refiner.
// Every call passes a rate limiter, a circuit breaker and a hard timeout.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradeeval/internal/config"
)

var (
	ErrNotConfigured = errors.New("narrative provider not configured")
	ErrEmptyResponse = errors.New("narrative provider returned no text")
)

// completer is one vendor's chat call.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Client implements negotiation.Refiner.
type Client struct {
	provider string
	backend  completer
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// New returns (nil, ErrNotConfigured) when no provider is set; callers keep
// the deterministic toolkit.
func New(cfg config.NarrativeConfig, logger *zap.Logger) (*Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s api key missing", ErrNotConfigured, provider)
	}
	var backend completer
	switch provider {
	case "openai":
		backend = newOpenAI(cfg)
	case "anthropic":
		backend = newAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported narrative provider %q", cfg.Provider)
	}
	return newClient(provider, backend, cfg, logger), nil
}

func newClient(provider string, backend completer, cfg config.NarrativeConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	c := &Client{
		provider: provider,
		backend:  backend,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "narrative-" + provider,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("narrative breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

func (c *Client) Provider() string {
	if c == nil {
		return ""
	}
	return c.provider
}

// Complete waits for a rate token, then calls the backend under the breaker
// with a hard timeout.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil || c.backend == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("narrative rate limit: %w", err)
	}
	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		text, err := c.backend.complete(ctx, system, user)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyResponse
		}
		return text, nil
	})
	if err != nil {
		c.logger.Warn("narrative completion failed",
			zap.String("provider", c.provider),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	c.logger.Debug("narrative completion", zap.String("provider", c.provider), zap.Duration("took", time.Since(start)))
	return out.(string), nil
}

// Open reports whether the breaker is rejecting calls.
func (c *Client) Open() bool {
	return c != nil && c.breaker.State() == gobreaker.StateOpen
}
