package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/pricing"
	"goldwatch/internal/storage"
)

// Dispatcher delivers a triggered-alert notification. Delivery may fail
// independently of trigger-state correctness; the evaluator wraps every
// call and never reverts triggered_at on failure.
type Dispatcher interface {
	Deliver(ctx context.Context, alert storage.Alert, snapshot pricing.Snapshot) error
}

// TelegramDispatcher pushes trigger notifications through the Telegram Bot API.
type TelegramDispatcher struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramDispatcher constructs a Telegram dispatcher.
func NewTelegramDispatcher(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramDispatcher{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "dispatch_telegram").Logger(),
	}
}

// Deliver renders and sends the trigger message.
func (d *TelegramDispatcher) Deliver(ctx context.Context, alert storage.Alert, snapshot pricing.Snapshot) error {
	payload := map[string]string{
		"chat_id": d.chatID,
		"text":    renderMessage(alert, snapshot),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.baseURL, d.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	d.logger.Info().
		Str("alert_id", alert.ID.String()).
		Str("price", snapshot.Price.String()).
		Msg("alert notification delivered")
	return nil
}

func renderMessage(alert storage.Alert, snapshot pricing.Snapshot) string {
	verb := "crossed above"
	if alert.RuleType == storage.RulePriceBelow {
		verb = "dropped below"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s/%s Alert]\n", alert.Asset, alert.Currency))
	builder.WriteString(fmt.Sprintf("Price %s your threshold of %s\n", verb, alert.Threshold.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Current: %s %s\n", snapshot.Price.StringFixed(2), alert.Currency))
	builder.WriteString(fmt.Sprintf("As of: %s UTC\n", snapshot.AsOf.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Source: %s", snapshot.Source))
	if snapshot.FallbackLevel > 0 {
		builder.WriteString(fmt.Sprintf(" (fallback level %d)", snapshot.FallbackLevel))
	}
	return builder.String()
}

var _ Dispatcher = (*TelegramDispatcher)(nil)
