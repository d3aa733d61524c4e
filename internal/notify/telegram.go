package notify

import (
	"context"
	"net/http"
	"strings"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSink posts to a chat through the Bot API.
type TelegramSink struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

// NewTelegramSink returns a sink for chatID. Empty baseURL means
// DefaultTelegramAPI.
func NewTelegramSink(client *http.Client, baseURL, token, chatID string) *TelegramSink {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &TelegramSink{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token, chatID: chatID}
}

// Name implements Sink.
func (s *TelegramSink) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send implements Sink.
func (s *TelegramSink) Send(ctx context.Context, n Notification) error {
	if n.Telegram == "" {
		return ErrSkipped
	}
	return postJSON(ctx, s.client, s.baseURL+"/bot"+s.token+"/sendMessage", nil,
		telegramMessage{ChatID: s.chatID, Text: n.Telegram, ParseMode: "HTML"})
}
