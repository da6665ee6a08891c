package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/telebot.v4"
	"valera/internal/conversation"
)

// transcriptSize bounds the per-chat transcript served to the summary
// command; it matches the largest summary a user may request.
const transcriptSize = maxSummaryMessages

var ErrImageTooLarge = errors.New("image too large")

// HistoryEntry is one text message seen in a chat.
type HistoryEntry struct {
	Sender string
	Text   string
	Time   time.Time
}

// Transport is the outbound side of the messaging platform.
type Transport interface {
	// Send delivers text and returns the ids of the created messages.
	Send(ctx context.Context, chatID int64, text string) ([]int, error)
	MarkRead(ctx context.Context, chatID int64) error
	// FetchHistory returns up to limit recent text messages, oldest first.
	FetchHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// telegramAPI is the part of *telebot.Bot the transport uses.
type telegramAPI interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Notify(to telebot.Recipient, action telebot.ChatAction, threadID ...int) error
	File(file *telebot.File) (io.ReadCloser, error)
}

type TransportOptions struct {
	// Self is the name the bot's own messages get in transcripts.
	Self          string
	SendInterval  time.Duration
	MaxImageBytes int64
	TempDir       string
}

// TelegramTransport implements Transport over the Bot API. The Bot API
// cannot read chat history, so it keeps a bounded transcript of every text
// message it observes or sends.
type TelegramTransport struct {
	bot     telegramAPI
	sender  *MessageSender
	options TransportOptions
	logger  *slog.Logger

	mu          sync.Mutex
	transcripts map[int64]*conversation.Ring[HistoryEntry]
}

func NewTelegramTransport(bot telegramAPI, options TransportOptions, logger *slog.Logger) *TelegramTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramTransport{
		bot:         bot,
		sender:      NewMessageSender(bot, options.SendInterval),
		options:     options,
		logger:      logger,
		transcripts: make(map[int64]*conversation.Ring[HistoryEntry]),
	}
}

// Observe records an inbound message in the chat transcript.
func (t *TelegramTransport) Observe(ev Event) {
	if ev.Text == "" {
		return
	}
	t.record(ev.ChatID, HistoryEntry{Sender: ev.Sender, Text: ev.Text, Time: ev.Time})
}

func (t *TelegramTransport) record(chatID int64, entry HistoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	transcript, ok := t.transcripts[chatID]
	if !ok {
		transcript = conversation.NewRing[HistoryEntry](transcriptSize)
		t.transcripts[chatID] = transcript
	}
	transcript.Push(entry)
}

func (t *TelegramTransport) Send(ctx context.Context, chatID int64, text string) ([]int, error) {
	messages, err := t.sender.Send(ctx, chatID, text)

	ids := make([]int, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
		t.record(chatID, HistoryEntry{Sender: t.options.Self, Text: message.Text, Time: message.Time()})
	}
	if err != nil {
		return ids, fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return ids, nil
}

// MarkRead acknowledges activity in the chat. Bots have no read receipts,
// so it shows the typing action instead.
func (t *TelegramTransport) MarkRead(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.bot.Notify(telebot.ChatID(chatID), telebot.Typing)
}

func (t *TelegramTransport) FetchHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	transcript, ok := t.transcripts[chatID]
	if !ok {
		return []HistoryEntry{}, nil
	}
	return transcript.Last(limit), nil
}

// Download fetches a file through a temporary file that is always removed.
// Files larger than MaxImageBytes are rejected.
func (t *TelegramTransport) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := t.bot.File(&telebot.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(t.options.TempDir, "valera-media-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			t.logger.Warn("Failed to remove temp file", slog.String("path", tmp.Name()), slog.Any("error", err))
		}
	}()

	limit := t.options.MaxImageBytes
	written, err := io.Copy(tmp, io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if written > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, limit)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return io.ReadAll(tmp)
}
