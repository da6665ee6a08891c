package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/riverqueue/river"
	"valera/internal/conversation"
	assistantpkg "valera/pkg/assistant"
)

const maxSummaryMessages = 1000

var summaryPattern = regexp.MustCompile(`^!(\d+)\s+сообщени[йяе]`)

// Router intercepts "!" commands before a message reaches the chat flow.
// Admin commands are matched only for the configured admin; the summary
// command is open to everyone.
type Router struct {
	admin      string
	store      *conversation.Store
	tuning     *Tuning
	assistant  assistantpkg.Service
	service    *ServiceChat
	enqueue    func(ctx context.Context, args river.JobArgs) error
	workers    int
	tokenLimit int
	logger     *slog.Logger
}

// Route reports whether ev was a command and has been handled.
func (r *Router) Route(ctx context.Context, ev Event) bool {
	if r.isAdmin(ev.Sender) && r.adminCommand(ctx, ev) {
		return true
	}
	return r.summaryCommand(ctx, ev)
}

func (r *Router) isAdmin(sender string) bool {
	return r.admin != "" && strings.EqualFold(sender, r.admin)
}

func (r *Router) adminCommand(ctx context.Context, ev Event) bool {
	text := strings.TrimSpace(ev.Text)
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return false
	}
	command := strings.ToLower(fields[0])
	argument := strings.TrimSpace(text[len(fields[0]):])

	switch {
	case command == "!забудь" && len(fields) == 2 && strings.ToLower(fields[1]) == "все":
		r.store.Clear(ev.ChatID)
		r.logger.Info("Chat context cleared", slog.Int64("chat_id", ev.ChatID))
		r.service.Send(ctx, fmt.Sprintf("✅ Контекст чата %d очищен", ev.ChatID))

	case command == "!вероятность":
		r.setProbability(ctx, fields[1:])

	case command == "!модель":
		if argument == "" {
			r.service.Send(ctx, "❌ Неправильный формат. Используйте: !модель <название_модели>")
			return true
		}
		r.assistant.SetTextModel(argument)
		r.service.Send(ctx, "✅ Модель изменена на: "+argument)

	case command == "!vision":
		if argument == "" {
			r.service.Send(ctx, "❌ Неправильный формат. Используйте: !vision <название_модели>")
			return true
		}
		r.assistant.SetVisionModel(argument)
		r.service.Send(ctx, "✅ Vision модель изменена на: "+argument)

	case command == "!статус" && len(fields) == 1:
		r.service.Send(ctx, r.status(ev.ChatID))

	default:
		return false
	}
	return true
}

func (r *Router) setProbability(ctx context.Context, args []string) {
	if len(args) == 0 {
		r.service.Send(ctx, "❌ Неправильный формат. Используйте: !вероятность <число>")
		return
	}

	percent, err := strconv.ParseFloat(strings.Replace(args[0], ",", ".", 1), 64)
	if err != nil {
		r.service.Send(ctx, "❌ Неправильный формат. Используйте: !вероятность <число>")
		return
	}
	if err := r.tuning.SetProbability(percent / 100); err != nil {
		r.service.Send(ctx, "❌ Вероятность должна быть от 0 до 100")
		return
	}

	r.logger.Info("Response probability updated", slog.Float64("probability", percent/100))
	r.service.Send(ctx, fmt.Sprintf("✅ Вероятность ответа установлена: %s%%", args[0]))
}

func (r *Router) status(chatID int64) string {
	backend := r.assistant.Status()
	return fmt.Sprintf("🤖 Статус бота:\n"+
		"📊 Сообщений в контексте: %d\n"+
		"🎲 Вероятность ответа: %.1f%%\n"+
		"🧠 Модель: %s\n"+
		"👁️ Vision модель: %s\n"+
		"🔗 Ollama хост: %s\n"+
		"⚙️ Воркеров: %d, лимит токенов: %d",
		r.store.Len(chatID),
		r.tuning.Probability()*100,
		backend.TextModel,
		backend.VisionModel,
		backend.Host,
		r.workers,
		r.tokenLimit,
	)
}

func (r *Router) summaryCommand(ctx context.Context, ev Event) bool {
	match := summaryPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(ev.Text)))
	if match == nil {
		return false
	}

	count, err := strconv.Atoi(match[1])
	switch {
	case err != nil:
		r.service.Send(ctx, "❌ Неправильный формат числа в команде саммари")
		return true
	case count <= 0:
		r.service.Send(ctx, "❌ Количество сообщений должно быть больше 0")
		return true
	case count > maxSummaryMessages:
		r.service.Send(ctx, fmt.Sprintf("❌ Максимальное количество сообщений: %d", maxSummaryMessages))
		return true
	}

	r.service.Send(ctx, fmt.Sprintf("📝 %s запросил саммари по %d сообщениям из чата %d", ev.Sender, count, ev.ChatID))

	err = r.enqueue(ctx, SummaryArgs{
		ChatID:      ev.ChatID,
		RequesterID: ev.SenderID,
		Requester:   ev.Sender,
		Count:       count,
	})
	if err != nil {
		r.logger.Error("Failed to enqueue summary", slog.Int64("chat_id", ev.ChatID), slog.Any("error", err))
		r.service.Send(ctx, fmt.Sprintf("❌ Ошибка при обработке команды саммари: %v", err))
	}
	return true
}
