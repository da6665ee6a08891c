package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ollamaapi "github.com/ollama/ollama/api"
	assistantpkg "valera/pkg/assistant"
	"valera/pkg/optional"
)

var (
	ErrUnavailable   = errors.New("ollama unavailable")
	ErrNotConnected  = errors.New("ollama not connected")
	ErrEmptyResponse = errors.New("empty response from ollama")
)

const defaultImagePrompt = "Опиши что ты видишь на этой картинке"

type Options struct {
	Host        string
	TextModel   string
	VisionModel string
	// Timeout bounds every backend call. Zero disables the deadline.
	Timeout time.Duration
}

// Service talks to the Ollama server. Model names can be swapped at
// runtime; connected is set once by Connect.
type Service struct {
	ollama  *ollamaapi.Client
	host    string
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.RWMutex
	textModel   string
	visionModel string
	connected   bool
}

func NewService(ollama *ollamaapi.Client, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ollama:      ollama,
		host:        opts.Host,
		timeout:     opts.Timeout,
		logger:      logger,
		textModel:   opts.TextModel,
		visionModel: opts.VisionModel,
	}
}

// Connect probes the server until it answers or attempts run out.
func (svc *Service) Connect(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = svc.probe(ctx)
		if err == nil {
			svc.mu.Lock()
			svc.connected = true
			svc.mu.Unlock()
			svc.logger.Info("Successfully connected to Ollama", slog.String("host", svc.host))
			return nil
		}

		svc.logger.Warn("Ollama is not reachable",
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.Any("error", err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, err)
}

func (svc *Service) probe(ctx context.Context) error {
	ctx, cancel := svc.withTimeout(ctx)
	defer cancel()

	_, err := svc.ollama.List(ctx)
	return err
}

// Pull downloads models onto the server, logging progress.
func (svc *Service) Pull(ctx context.Context, models ...string) error {
	for _, model := range models {
		err := svc.ollama.Pull(ctx, &ollamaapi.PullRequest{Model: model, Stream: optional.Pointer(true)}, func(response ollamaapi.ProgressResponse) error {
			svc.logger.Info("Pulling model",
				slog.String("name", model),
				slog.String("status", response.Status),
				slog.Int64("completed", response.Completed),
				slog.Int64("total", response.Total))
			return nil
		})
		if err != nil {
			return fmt.Errorf("pull %s: %w", model, err)
		}
	}
	return nil
}

func (svc *Service) Generate(ctx context.Context, messages []assistantpkg.Message) (string, error) {
	if !svc.isConnected() {
		return "", ErrNotConnected
	}

	model := svc.TextModel()
	content, err := svc.chat(ctx, model, messagesToOllamaMessages(messages))
	if err != nil {
		svc.logger.Error("Failed to generate response", slog.String("model", model), slog.Any("error", err))
		return "", fmt.Errorf("generate with %s: %w", model, err)
	}
	return content, nil
}

func (svc *Service) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	if !svc.isConnected() {
		return "", ErrNotConnected
	}
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	model := svc.VisionModel()
	content, err := svc.chat(ctx, model, []ollamaapi.Message{{
		Role:    assistantpkg.RoleUser,
		Content: prompt,
		Images:  []ollamaapi.ImageData{image},
	}})
	if err != nil {
		svc.logger.Error("Failed to analyze image", slog.String("model", model), slog.Any("error", err))
		return "", fmt.Errorf("analyze image with %s: %w", model, err)
	}
	return content, nil
}

func (svc *Service) chat(ctx context.Context, model string, messages []ollamaapi.Message) (string, error) {
	ctx, cancel := svc.withTimeout(ctx)
	defer cancel()

	builder := &strings.Builder{}
	builder.Grow(1024)

	err := svc.ollama.Chat(ctx, &ollamaapi.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   optional.Pointer(false),
	}, func(response ollamaapi.ChatResponse) error {
		builder.WriteString(response.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (svc *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if svc.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, svc.timeout)
}

func (svc *Service) SetTextModel(name string) {
	svc.mu.Lock()
	svc.textModel = name
	svc.mu.Unlock()
	svc.logger.Info("Text model updated", slog.String("model", name))
}

func (svc *Service) SetVisionModel(name string) {
	svc.mu.Lock()
	svc.visionModel = name
	svc.mu.Unlock()
	svc.logger.Info("Vision model updated", slog.String("model", name))
}

func (svc *Service) TextModel() string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.textModel
}

func (svc *Service) VisionModel() string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.visionModel
}

func (svc *Service) isConnected() bool {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.connected
}

func (svc *Service) Status() assistantpkg.Status {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return assistantpkg.Status{
		Host:        svc.host,
		TextModel:   svc.textModel,
		VisionModel: svc.visionModel,
		Connected:   svc.connected,
	}
}

func messagesToOllamaMessages(messages []assistantpkg.Message) []ollamaapi.Message {
	result := make([]ollamaapi.Message, len(messages))
	for i, message := range messages {
		result[i] = ollamaapi.Message{
			Role:    message.Role,
			Content: message.Content,
		}
	}
	return result
}
