// Package audit ships best-effort audit events to the platform log sink.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradeeval/internal/config"
)

const defaultAgent = "tradeeval"

var (
	ErrNoBaseURL = errors.New("audit base url is empty")
	ErrNoAPIKey  = errors.New("audit api key is empty")
)

// Client posts events to the sink. A nil *Client drops every event.
type Client struct {
	BaseURL string
	APIKey  string
	Agent   string

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	HTTP *http.Client
}

// New returns nil when no sink is configured.
func New(cfg config.AuditConfig) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	agent := strings.TrimSpace(cfg.Agent)
	if agent == "" {
		agent = defaultAgent
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Agent:   agent,
	}
}

// Event is one audit entry.
type Event struct {
	Agent   string         `json:"agent"`
	Action  string         `json:"action"`
	Level   string         `json:"level"`
	Details map[string]any `json:"details"`
	TradeID string         `json:"session_key,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (c *Client) login(ctx context.Context) error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	body, _ := json.Marshal(map[string]string{"api_key": c.APIKey})
	b, status, err := c.post(ctx, "/api/v1/auth/login", "", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("audit login http %d: %s", status, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return fmt.Errorf("decode audit token: %w", err)
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(tr.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(tr.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

// bearer returns a token with at least two minutes of validity left.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok, exp := c.token, c.expiresAt
	c.mu.RUnlock()
	if tok != "" && (exp.IsZero() || time.Until(exp) >= 2*time.Minute) {
		return tok, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Send posts ev, filling the agent when empty.
func (c *Client) Send(ctx context.Context, ev Event) error {
	if c == nil {
		return nil
	}
	tok, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	if ev.Agent == "" {
		ev.Agent = c.Agent
	}
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b, status, err := c.post(ctx, "/api/v1/logs", tok, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("audit send http %d: %s", status, strings.TrimSpace(string(b)))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
