// Package notify delivers drift and recalibration alerts to Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tradeeval/internal/config"
	"tradeeval/internal/drift"
)

// Notifier is implemented by Telegram and by test fakes.
type Notifier interface {
	Alerts(ctx context.Context, alerts []drift.Alert) error
	Text(ctx context.Context, title string, lines ...string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot        sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// New returns nil when no bot token is configured.
func New(cfg config.AlertsConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, nil
	}
	if cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("alerts.telegram_chat_id is required with a bot token")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.TelegramChatID, maxRetries: 3, retryDelay: time.Second}, nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.maxRetries, lastErr)
}

func (t *Telegram) Alerts(ctx context.Context, alerts []drift.Alert) error {
	if t == nil || len(alerts) == 0 {
		return nil
	}
	return t.send(ctx, FormatAlerts(alerts))
}

func (t *Telegram) Text(ctx context.Context, title string, lines ...string) error {
	if t == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("*" + Escape(title) + "*\n")
	for _, l := range lines {
		b.WriteString(Escape(l) + "\n")
	}
	return t.send(ctx, b.String())
}

// FormatAlerts renders alerts as a MarkdownV2 message, critical first as
// given.
func FormatAlerts(alerts []drift.Alert) string {
	var b strings.Builder
	b.WriteString("*Calibration alerts*\n\n")
	for i, a := range alerts {
		icon := "🟡"
		if a.Severity == drift.SeverityCritical {
			icon = "🔴"
		}
		scope := "global"
		switch {
		case a.Segment != "":
			scope = a.Segment
		case a.Feature != "":
			scope = a.Feature
		}
		fmt.Fprintf(&b, "%d\\. %s `%s` %s\n", i+1, icon, Escape(scope), Escape(a.Reason))
		if a.SuggestedAction != "" {
			fmt.Fprintf(&b, "    _%s_\n", Escape(a.SuggestedAction))
		}
	}
	return b.String()
}

var markdownV2Special = []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

// Escape escapes the MarkdownV2 reserved characters.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	for _, ch := range markdownV2Special {
		s = strings.ReplaceAll(s, ch, "\\"+ch)
	}
	return s
}
