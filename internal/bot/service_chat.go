package bot

import (
	"context"
	"log/slog"
)

// ServiceChat is the operational channel: command feedback and error
// reports go there, never to the monitored chats.
type ServiceChat struct {
	transport Transport
	chatID    int64
	logger    *slog.Logger
}

func NewServiceChat(transport Transport, chatID int64, logger *slog.Logger) *ServiceChat {
	return &ServiceChat{transport: transport, chatID: chatID, logger: logger}
}

func (s *ServiceChat) Send(ctx context.Context, text string) {
	if _, err := s.transport.Send(ctx, s.chatID, text); err != nil {
		s.logger.Error("Failed to send service message", slog.Int64("chat_id", s.chatID), slog.Any("error", err))
	}
}

// ReportError sends a diagnostic; where describes the chat or user involved.
func (s *ServiceChat) ReportError(ctx context.Context, message, where string) {
	text := "❌ Ошибка бота:\n" + message
	if where != "" {
		text += "\n📍 Контекст: " + where
	}
	s.Send(ctx, text)
}
