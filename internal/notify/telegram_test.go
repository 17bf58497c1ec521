package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeeval/internal/config"
	"tradeeval/internal/drift"
)

type fakeBot struct {
	fails int
	sent  []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, errors.New("boom")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestNewWithoutTokenIsNil(t *testing.T) {
	tg, err := New(config.AlertsConfig{})
	require.NoError(t, err)
	require.Nil(t, tg)
	require.NoError(t, tg.Alerts(context.Background(), []drift.Alert{{Severity: drift.SeverityWatch}}))
}

func TestAlertsRetriesThenSends(t *testing.T) {
	bot := &fakeBot{fails: 1}
	tg := &Telegram{bot: bot, chatID: 42, maxRetries: 3}

	err := tg.Alerts(context.Background(), []drift.Alert{
		{Severity: drift.SeverityCritical, Reason: "segment ECE 0.150", Segment: "dynasty|ppr|standard"},
		{Severity: drift.SeverityWatch, Reason: "feature vorp PSI 0.120", Feature: "vorp"},
	})
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	msg := bot.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.True(t, strings.Index(msg.Text, "🔴") < strings.Index(msg.Text, "🟡"))
	assert.Contains(t, msg.Text, `dynasty\|ppr\|standard`)
	assert.Contains(t, msg.Text, `0\.150`)
}

func TestAlertsGivesUp(t *testing.T) {
	bot := &fakeBot{fails: 5}
	tg := &Telegram{bot: bot, chatID: 1, maxRetries: 2}
	err := tg.Text(context.Background(), "Weights promoted", "v3")
	require.Error(t, err)
	assert.Empty(t, bot.sent)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, Escape("a_b.c!"))
	assert.Equal(t, `\\`, Escape(`\`))
}
