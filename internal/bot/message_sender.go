package bot

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v4"
)

// messageLimit is the Bot API limit for one text message, in characters.
const messageLimit = 4096

var ErrEmptyMessage = errors.New("empty message")

// MessageSender sends texts through the Bot API, pacing requests and
// splitting texts longer than one Telegram message.
type MessageSender struct {
	bot     telegramAPI
	limiter *rate.Limiter
}

func NewMessageSender(bot telegramAPI, interval time.Duration) *MessageSender {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &MessageSender{
		bot:     bot,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Send delivers text to the chat and returns every message it created.
// On error the messages sent so far are still returned.
func (sender *MessageSender) Send(ctx context.Context, chatID int64, text string) ([]*telebot.Message, error) {
	parts := splitMessage(text, messageLimit)
	if len(parts) == 0 {
		return nil, ErrEmptyMessage
	}

	sent := make([]*telebot.Message, 0, len(parts))
	for _, part := range parts {
		if err := sender.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		message, err := sender.bot.Send(telebot.ChatID(chatID), part, telebot.NoPreview)
		if err != nil {
			return sent, err
		}
		sent = append(sent, message)
	}
	return sent, nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks, then spaces.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		window := string(runes[:limit])

		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = len(window)
		}

		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
