package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tradeeval/internal/drift"
	"tradeeval/internal/metrics"
	"tradeeval/internal/notify"
)

// AlertHub fans alerts out to stream subscribers. Slow subscribers lose
// batches instead of blocking publishers.
type AlertHub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan []drift.Alert
	nextID uint64

	recentMu sync.Mutex
	recent   []drift.Alert

	droppedFanout atomic.Uint64
}

func NewAlertHub() *AlertHub {
	return &AlertHub{subs: map[uint64]chan []drift.Alert{}}
}

// Subscribe returns a channel of alert batches and a cancel func that must be
// called when the subscriber goes away.
func (h *AlertHub) Subscribe(buf int) (<-chan []drift.Alert, func()) {
	if buf <= 0 {
		buf = 8
	}
	ch := make(chan []drift.Alert, buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *AlertHub) Publish(alerts []drift.Alert) {
	if h == nil || len(alerts) == 0 {
		return
	}
	batch := append([]drift.Alert(nil), alerts...)

	h.recentMu.Lock()
	h.recent = batch
	h.recentMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- batch:
		default:
			h.droppedFanout.Add(1)
		}
	}
}

// Recent is the last published batch, replayed to new stream clients.
func (h *AlertHub) Recent() []drift.Alert {
	if h == nil {
		return nil
	}
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	return append([]drift.Alert(nil), h.recent...)
}

func (h *AlertHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *AlertHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.droppedFanout.Load()
}

// AlertScanner periodically evaluates calibration health and publishes new
// alerts. An alert repeats only after DedupWindow has passed.
type AlertScanner struct {
	Calibration  *CalibrationService
	Settings     *SystemSettingsService
	Hub          *AlertHub
	Notifier     notify.Notifier
	LookbackDays int
	DedupWindow  time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Registry
	Now     func() time.Time

	dedupMu  sync.Mutex
	lastSeen map[string]time.Time
}

func (s *AlertScanner) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Run is the cron entry point.
func (s *AlertScanner) Run(ctx context.Context) {
	if s == nil || s.Calibration == nil || !s.Settings.Enabled(ctx, FeatureDriftAlerts) {
		return
	}
	fresh, err := s.Scan(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("drift alert scan failed", zap.Error(err))
		}
		return
	}
	if len(fresh) == 0 || s.Notifier == nil {
		return
	}
	if err := s.Notifier.Alerts(ctx, fresh); err != nil && s.Logger != nil {
		s.Logger.Warn("alert notification failed", zap.Error(err))
	}
}

// Scan evaluates alerts over the lookback window and returns the ones not
// seen within the dedup window.
func (s *AlertScanner) Scan(ctx context.Context) ([]drift.Alert, error) {
	now := s.now()
	days := s.LookbackDays
	if days <= 0 {
		days = 28
	}
	since := now.AddDate(0, 0, -days)
	alerts, err := s.Calibration.Alerts(ctx, CalibrationQuery{Since: &since, Until: &now})
	if err != nil {
		return nil, err
	}
	fresh := s.dedup(alerts, now)
	for _, a := range fresh {
		s.Metrics.IncDriftAlert(string(a.Severity))
	}
	s.Hub.Publish(fresh)
	if s.Logger != nil {
		s.Logger.Info("drift alert scan done", zap.Int("alerts", len(alerts)), zap.Int("new", len(fresh)))
	}
	return fresh, nil
}

func alertKey(a drift.Alert) string {
	return string(a.Severity) + "|" + a.Segment + "|" + a.Feature + "|" + a.SuggestedAction
}

func (s *AlertScanner) dedup(alerts []drift.Alert, now time.Time) []drift.Alert {
	window := s.DedupWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if s.lastSeen == nil {
		s.lastSeen = map[string]time.Time{}
	}
	out := make([]drift.Alert, 0, len(alerts))
	for _, a := range alerts {
		k := alertKey(a)
		if seen, ok := s.lastSeen[k]; ok && now.Sub(seen) < window {
			continue
		}
		s.lastSeen[k] = now
		out = append(out, a)
	}
	return out
}
