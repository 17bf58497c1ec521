package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/config"
)

type sink struct {
	logins atomic.Int32
	events chan Event
}

func newSink(t *testing.T) (*sink, *httptest.Server) {
	t.Helper()
	s := &sink{events: make(chan Event, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			s.logins.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"token":      "tok",
				"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
			})
		case "/api/v1/logs":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var ev Event
			_ = json.NewDecoder(r.Body).Decode(&ev)
			s.events <- ev
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func TestNewWithoutBaseURLIsNil(t *testing.T) {
	require.Nil(t, New(config.AuditConfig{}))
	var c *Client
	require.NoError(t, c.Send(context.Background(), Event{Action: "x"}))
}

func TestSendLogsInOnceAndFillsAgent(t *testing.T) {
	s, srv := newSink(t)
	c := New(config.AuditConfig{BaseURL: srv.URL + "/", APIKey: "k"})
	require.NotNil(t, c)

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, Event{Action: "weights_promoted", Level: "info"}))
	require.NoError(t, c.Send(ctx, Event{Action: "weights_promoted", Level: "info"}))

	assert.Equal(t, int32(1), s.logins.Load())
	ev := <-s.events
	assert.Equal(t, "tradeeval", ev.Agent)
	assert.Equal(t, "weights_promoted", ev.Action)
}

func TestSendRequiresAPIKey(t *testing.T) {
	_, srv := newSink(t)
	c := New(config.AuditConfig{BaseURL: srv.URL})
	require.ErrorIs(t, c.Send(context.Background(), Event{Action: "x"}), ErrNoAPIKey)
}

func TestEmitUsesContextClient(t *testing.T) {
	s, srv := newSink(t)
	c := New(config.AuditConfig{BaseURL: srv.URL, APIKey: "k", Agent: "calib"})

	Emit(context.Background(), "ignored", "info", nil)
	EmitTrade(WithClient(context.Background(), c), "t-1", "narrative_rejected", "warn", map[string]any{"reason": "unknown_asset_id"})

	ev := <-s.events
	assert.Equal(t, "calib", ev.Agent)
	assert.Equal(t, "t-1", ev.TradeID)
	assert.Len(t, s.events, 0)
}

func TestRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireBearer(false))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/calibration/summary", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path, auth string
		want       int
	}{
		{"/healthz", "", http.StatusOK},
		{"/api/v1/calibration/summary", "", http.StatusUnauthorized},
		{"/api/v1/calibration/summary", "Bearer ", http.StatusUnauthorized},
		{"/api/v1/calibration/summary", "Bearer abc", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %q", tc.path, tc.auth)
	}
}

func TestLevelFromStatus(t *testing.T) {
	assert.Equal(t, "info", LevelFromStatus(201))
	assert.Equal(t, "warn", LevelFromStatus(404))
	assert.Equal(t, "error", LevelFromStatus(503))
}
