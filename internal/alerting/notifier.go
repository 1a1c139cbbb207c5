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
)

// Notification summarises one finished or failed load.
type Notification struct {
	Symbol      string
	Interval    string
	WindowStart time.Time
	WindowEnd   time.Time
	Samples     int
	Pages       int
	TotalPages  int
	Took        time.Duration
	Err         error
}

// Failed reports whether the load ended with an error.
func (n Notification) Failed() bool { return n.Err != nil }

// Notifier delivers load summaries.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
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
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().
		Str("symbol", note.Symbol).
		Bool("failed", note.Failed()).
		Msg("load summary sent")
	return nil
}

func renderMessage(note Notification) string {
	var b strings.Builder
	if note.Failed() {
		b.WriteString("[Kline load FAILED]\n")
	} else {
		b.WriteString("[Kline load complete]\n")
	}
	fmt.Fprintf(&b, "Symbol: %s %s\n", note.Symbol, note.Interval)
	fmt.Fprintf(&b, "Window: %s -> %s UTC\n",
		note.WindowStart.UTC().Format(time.RFC3339), note.WindowEnd.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Pages: %d/%d\n", note.Pages, note.TotalPages)
	fmt.Fprintf(&b, "Samples: %d\n", note.Samples)
	fmt.Fprintf(&b, "Took: %s\n", note.Took.Round(time.Millisecond))
	if note.Err != nil {
		fmt.Fprintf(&b, "Error: %s\n", note.Err)
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
