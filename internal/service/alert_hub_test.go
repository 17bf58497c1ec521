package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/calibration"
	"tradeeval/internal/drift"
)

func TestAlertHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewAlertHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()
	require.Equal(t, 1, hub.Subscribers())

	batch := []drift.Alert{{Severity: drift.SeverityWatch, Reason: "x"}}
	hub.Publish(batch)
	hub.Publish(batch)
	assert.Equal(t, uint64(1), hub.Dropped())
	assert.Len(t, <-ch, 1)
	assert.Equal(t, batch, hub.Recent())

	cancel()
	assert.Equal(t, 0, hub.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestAlertHubNilSafe(t *testing.T) {
	var hub *AlertHub
	hub.Publish([]drift.Alert{{Severity: drift.SeverityCritical}})
	assert.Nil(t, hub.Recent())
	assert.Zero(t, hub.Subscribers())
}

type recordingNotifier struct {
	batches [][]drift.Alert
	texts   []string
}

func (r *recordingNotifier) Alerts(_ context.Context, alerts []drift.Alert) error {
	r.batches = append(r.batches, alerts)
	return nil
}

func (r *recordingNotifier) Text(_ context.Context, title string, _ ...string) error {
	r.texts = append(r.texts, title)
	return nil
}

func TestAlertScannerDedupsWithinWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := &clock{t: recalBase}
	// Far from calibrated: 50% predicted, ~92% accepted.
	insertResolved(t, store, "dynasty|ppr|standard", 120, 110, 0.5, 1, 0, recalBase.AddDate(0, 0, -2))

	notifier := &recordingNotifier{}
	scanner := &AlertScanner{
		Calibration: &CalibrationService{
			Repo:     store,
			Monitor:  calibration.Monitor{Buckets: 10, MinSamples: 30},
			Detector: drift.Detector{Monitor: calibration.Monitor{Buckets: 10, MinSamples: 30}},
			Now:      c.now,
		},
		Settings: &SystemSettingsService{Repo: store},
		Hub:      NewAlertHub(),
		Notifier: notifier,
		Now:      c.now,
	}

	first, err := scanner.Scan(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	hasGlobalCritical := false
	for _, a := range first {
		if a.Severity == drift.SeverityCritical && a.Segment == "" && a.Feature == "" {
			hasGlobalCritical = true
		}
	}
	assert.True(t, hasGlobalCritical)
	assert.Equal(t, first, scanner.Hub.Recent())

	again, err := scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	c.add(25 * time.Hour)
	later, err := scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, later, len(first))

	c.add(time.Hour)
	scanner.Run(ctx)
	assert.Empty(t, notifier.batches, "nothing new inside the window")

	require.NoError(t, scanner.Settings.SetEnabled(ctx, FeatureDriftAlerts, false))
	c.add(48 * time.Hour)
	scanner.Run(ctx)
	assert.Empty(t, notifier.batches)

	require.NoError(t, scanner.Settings.SetEnabled(ctx, FeatureDriftAlerts, true))
	scanner.Run(ctx)
	require.Len(t, notifier.batches, 1)
	assert.Len(t, notifier.batches[0], len(first))
}
