package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends "[LEVEL] message" through the Bot API.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(ctx context.Context, severity Severity, message string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    "[" + string(severity) + "] " + message,
	})
	if err != nil {
		return err
	}
	url := strings.TrimRight(t.baseURL, "/") + "/bot" + t.token + "/sendMessage"
	return postJSON(ctx, t.client, url, body)
}
