package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramNotifier posts alerts to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
	base   string
}

// NewTelegramNotifier builds a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   "https://api.telegram.org",
	}
}

// Send posts one alert as a Markdown message.
func (t *TelegramNotifier) Send(ctx context.Context, a Alert) error {
	text := fmt.Sprintf("*%s* %s\n%s", escapeMarkdown(a.Title), levelEmoji(a.Level), escapeMarkdown(a.Message))

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "MarkdownV2")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var apiErr struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Description != "" {
			return fmt.Errorf("telegram api: %s", apiErr.Description)
		}
		return fmt.Errorf("telegram api: status %d", resp.StatusCode)
	}
	return nil
}

func levelEmoji(l Level) string {
	switch l {
	case LevelTrade:
		return "\U0001F4B0"
	case LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// escapeMarkdown escapes MarkdownV2 special characters.
func escapeMarkdown(s string) string {
	specials := "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
