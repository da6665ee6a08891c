package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"valera/internal/conversation"
	assistantpkg "valera/pkg/assistant"
)

type Settings struct {
	AdminUsername string
	Keywords      []string
	MainChatID    int64
	ServiceChatID int64
	TokenLimit    int
	Workers       int
}

type Deps struct {
	Store     *conversation.Store
	Trimmer   *conversation.Trimmer
	Assistant assistantpkg.Service
	Transport Transport
	Tuning    *Tuning
	// Queue may be set after construction, before the first event.
	Queue  Queue
	Random func() float64
	Logger *slog.Logger
}

// Handler processes inbound events end to end: it stores them, routes
// commands, decides whether to answer and queues the backend work.
type Handler struct {
	settings  Settings
	store     *conversation.Store
	trimmer   *conversation.Trimmer
	assistant assistantpkg.Service
	transport Transport
	queue     Queue
	policy    *Policy
	router    *Router
	service   *ServiceChat
	logger    *slog.Logger
}

func NewHandler(settings Settings, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tuning := deps.Tuning
	if tuning == nil {
		tuning = NewTuning(0)
	}

	h := &Handler{
		settings:  settings,
		store:     deps.Store,
		trimmer:   deps.Trimmer,
		assistant: deps.Assistant,
		transport: deps.Transport,
		queue:     deps.Queue,
		policy:    NewPolicy(settings.Keywords, deps.Store, tuning, deps.Random),
		service:   NewServiceChat(deps.Transport, settings.ServiceChatID, logger),
		logger:    logger,
	}
	h.router = &Router{
		admin:      normalizeUsername(settings.AdminUsername),
		store:      deps.Store,
		tuning:     tuning,
		assistant:  deps.Assistant,
		service:    h.service,
		enqueue:    h.enqueue,
		workers:    settings.Workers,
		tokenLimit: settings.TokenLimit,
		logger:     logger,
	}
	return h
}

func (h *Handler) SetQueue(queue Queue) {
	h.queue = queue
}

// Handle processes one inbound event. Errors never escape: they are
// logged or reported to the service chat.
func (h *Handler) Handle(ctx context.Context, ev Event) {
	h.logger.Info("Received message",
		slog.Int64("chat_id", ev.ChatID),
		slog.String("sender", ev.Sender),
		slog.String("media", ev.Media.String()))

	if err := h.transport.MarkRead(ctx, ev.ChatID); err != nil {
		h.logger.Warn("Failed to mark chat as read", slog.Int64("chat_id", ev.ChatID), slog.Any("error", err))
	}

	if h.router.Route(ctx, ev) {
		return
	}

	switch {
	case ev.Media.IsImage():
		h.queueImage(ctx, ev)
	case ev.Media == MediaOther:
		h.store.Append(ev.ChatID, assistantpkg.UserMessage(mediaLine(ev.Sender, "Медиа файл", ev.Text)))
	default:
		h.handleText(ctx, ev)
	}
}

func (h *Handler) handleText(ctx context.Context, ev Event) {
	if ev.Text == "" {
		return
	}
	h.store.Append(ev.ChatID, assistantpkg.UserMessage(textLine(ev.Sender, ev.Text)))

	trigger := h.policy.EvaluateText(ev)
	if trigger == TriggerNone {
		return
	}

	h.logger.Debug("Reply triggered", slog.Int64("chat_id", ev.ChatID), slog.String("trigger", trigger.String()))
	err := h.enqueue(ctx, ReplyArgs{ChatID: ev.ChatID, Reflect: trigger == TriggerRandom})
	if err != nil {
		h.service.ReportError(ctx, "Не удалось поставить ответ в очередь: "+err.Error(), chatWhere(ev.ChatID))
	}
}

// queueImage reserves the image's place in the history before the slow
// download and analysis run, so later messages stay behind it.
func (h *Handler) queueImage(ctx context.Context, ev Event) {
	h.logger.Info("Processing image message", slog.Int64("chat_id", ev.ChatID), slog.String("sender", ev.Sender))
	h.store.Reserve(ev.ChatID, ev.MessageID, assistantpkg.UserMessage(mediaLine(ev.Sender, "Изображение", ev.Text)))

	err := h.enqueue(ctx, ImageArgs{
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
		Sender:    ev.Sender,
		Caption:   ev.Text,
		FileID:    ev.FileID,
		ReplyTo:   ev.ReplyTo,
	})
	if err != nil {
		h.fillImage(ev.ChatID, ev.MessageID, mediaLine(ev.Sender, "Изображение - не удалось обработать", ev.Text))
		h.service.ReportError(ctx, "Ошибка обработки медиа: "+err.Error(), userWhere(ev.ChatID, ev.Sender))
	}
}

func (h *Handler) enqueue(ctx context.Context, args river.JobArgs) error {
	if h.queue == nil {
		return fmt.Errorf("enqueue %s: queue not configured", args.Kind())
	}

	if _, err := h.queue.Insert(ctx, args, nil); err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("kind", args.Kind()), slog.Any("error", err))
		return fmt.Errorf("enqueue %s: %w", args.Kind(), err)
	}
	return nil
}

// processImage downloads and describes an image, fills its reserved
// history entry and answers if the description or caption warrants it.
func (h *Handler) processImage(ctx context.Context, args ImageArgs) {
	image, err := h.transport.Download(ctx, args.FileID)
	if err != nil {
		h.logger.Error("Failed to download image", slog.Int64("chat_id", args.ChatID), slog.Any("error", err))
		h.fillImage(args.ChatID, args.MessageID, mediaLine(args.Sender, "Изображение - не удалось обработать", args.Caption))
		return
	}

	description, err := h.assistant.AnalyzeImage(ctx, image, imagePrompt(args.Caption))
	if err != nil {
		h.fillImage(args.ChatID, args.MessageID, mediaLine(args.Sender, "Изображение - ошибка анализа", args.Caption))
		h.service.ReportError(ctx, "Ошибка анализа изображения: "+err.Error(), userWhere(args.ChatID, args.Sender))
		return
	}

	if !h.fillImage(args.ChatID, args.MessageID, imageLine(args.Sender, args.Caption, description)) {
		return
	}
	h.logger.Info("Image analyzed and added to context", slog.Int64("chat_id", args.ChatID), slog.String("sender", args.Sender))

	trigger := h.policy.EvaluateImage(args.ChatID, args.ReplyTo, args.Caption, description)
	if trigger != TriggerNone {
		h.respond(ctx, args.ChatID, trigger == TriggerRandom)
	}
}

// fillImage reports false when the reserved entry is gone: the history
// was cleared or moved past it while the image was being processed.
func (h *Handler) fillImage(chatID int64, messageID int, line string) bool {
	if h.store.Fill(chatID, messageID, assistantpkg.UserMessage(line)) {
		return true
	}
	h.logger.Info("Image entry no longer in context", slog.Int64("chat_id", chatID), slog.Int("message_id", messageID))
	return false
}

func (h *Handler) persona(chatID int64, reflect bool) string {
	if chatID != h.settings.MainChatID {
		return informalPrompt
	}
	if reflect {
		return selfReflectionPrompt
	}
	return mainChatPrompt
}

// respond generates an answer from the trimmed chat history and sends it.
// Failures are reported to the service chat only; the chat stays silent.
func (h *Handler) respond(ctx context.Context, chatID int64, reflect bool) {
	history := h.trimmer.Trim(h.store.Get(chatID), h.settings.TokenLimit)
	messages := make([]assistantpkg.Message, 0, len(history)+1)
	messages = append(messages, assistantpkg.SystemMessage(h.persona(chatID, reflect)))
	messages = append(messages, history...)

	h.logger.Info("Generating response",
		slog.Int64("chat_id", chatID),
		slog.Bool("reflect", reflect),
		slog.Int("messages", len(history)),
		slog.Int("estimated_tokens", h.trimmer.Cost(history)))

	reply, err := h.assistant.Generate(ctx, messages)
	if err != nil {
		h.service.ReportError(ctx, "Ошибка чат-сервиса: "+err.Error(), chatWhere(chatID))
		return
	}

	ids, err := h.transport.Send(ctx, chatID, reply)
	for _, id := range ids {
		h.store.RecordSent(conversation.SentRef{ChatID: chatID, MessageID: id})
	}
	if err != nil {
		h.logger.Error("Failed to send response", slog.Int64("chat_id", chatID), slog.Any("error", err))
		h.service.ReportError(ctx, "Ошибка отправки ответа: "+err.Error(), chatWhere(chatID))
	}
	if len(ids) > 0 {
		h.store.Append(chatID, assistantpkg.AssistantMessage(reply))
	}
}

// summarize builds a summary of recent chat messages and delivers it to
// the requester privately.
func (h *Handler) summarize(ctx context.Context, args SummaryArgs) {
	requester := func(text string) {
		if _, err := h.transport.Send(ctx, args.RequesterID, text); err != nil {
			h.logger.Error("Failed to send summary", slog.Int64("user_id", args.RequesterID), slog.Any("error", err))
			h.service.ReportError(ctx, "Не удалось отправить саммари: "+err.Error(), "User: "+args.Requester)
		}
	}

	entries, err := h.transport.FetchHistory(ctx, args.ChatID, args.Count)
	if err != nil {
		h.logger.Error("Failed to fetch chat history", slog.Int64("chat_id", args.ChatID), slog.Any("error", err))
	}
	if len(entries) == 0 {
		requester("❌ Не удалось получить сообщения из чата")
		return
	}

	transcript := summaryTranscript(entries)
	if transcript == "" {
		requester("❌ Нет текстовых сообщений для анализа")
		return
	}

	summary, err := h.assistant.Generate(ctx, []assistantpkg.Message{
		assistantpkg.SystemMessage(summaryPrompt(args.Count)),
		assistantpkg.UserMessage("Сообщения для анализа:\n\n" + transcript),
	})
	if err != nil {
		requester("❌ Произошла ошибка при генерации саммари")
		h.service.ReportError(ctx, "Ошибка генерации саммари: "+err.Error(), "User: "+args.Requester)
		return
	}

	requester(fmt.Sprintf("📝 Саммари по %d сообщениям:\n\n%s", args.Count, summary))
}

func chatWhere(chatID int64) string {
	return fmt.Sprintf("Chat: %d", chatID)
}

func userWhere(chatID int64, sender string) string {
	return fmt.Sprintf("Chat: %d, User: %s", chatID, sender)
}

func normalizeUsername(name string) string {
	if name == "" || name[0] == '@' {
		return name
	}
	return "@" + name
}
