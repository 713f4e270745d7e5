package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessage is Telegram's limit on one text message.
const maxMessage = 4096

type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender logs the bot in. endpoint may be empty for the public
// API or a format string like tgbotapi.APIEndpoint.
func NewTelegramSender(token string, chatID int64, endpoint string) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: missing bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram: missing chat id")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send posts title and message as plain text, split to fit the limit. The
// bot client has no context support so ctx is only checked between parts.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	for _, part := range splitMessage(title+"\n"+message, maxMessage) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
