package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
	"valera/internal/assistant"
	"valera/internal/config"
	"valera/internal/conversation"
)

type Bot struct {
	API         *telebot.Bot
	Assistant   *assistant.Service
	RiverClient *river.Client[pgx.Tx]
	handler     *Handler
	transport   *TelegramTransport
	db          *pgxpool.Pool
	conf        config.Config
	logger      *slog.Logger

	workersStarted bool
	polling        bool
}

func NewBot(ctx context.Context, conf config.Config, logger *slog.Logger) (*Bot, error) {
	api, err := telebot.NewBot(telebot.Settings{
		Token:       conf.Bot.Token,
		Poller:      &telebot.LongPoller{Timeout: conf.Bot.PollTimeout},
		Synchronous: true,
		OnError: func(err error, c telebot.Context) {
			logger.Error("Telegram handler failed", slog.Any("error", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	ollama, err := assistant.NewClient(conf.Ollama.Host, &http.Client{})
	if err != nil {
		return nil, err
	}
	assistantService := assistant.NewService(ollama, assistant.Options{
		Host:        conf.Ollama.Host,
		TextModel:   conf.Ollama.Model,
		VisionModel: conf.Ollama.VisionModel,
		Timeout:     conf.Ollama.Timeout,
	}, logger.With(slog.String("component", "assistant")))

	transport := NewTelegramTransport(api, TransportOptions{
		Self:          "@" + api.Me.Username,
		SendInterval:  conf.Bot.SendInterval,
		MaxImageBytes: conf.Bot.MaxImageBytes,
	}, logger.With(slog.String("component", "transport")))

	store := conversation.NewStore(conf.Chat.ContextSize, conversation.DefaultSentSize)
	trimmer := conversation.NewTrimmer(conversation.NewTiktokenEstimator(conf.Chat.TokenizerModel), logger)

	handler := NewHandler(Settings{
		AdminUsername: conf.Chat.AdminUsername,
		Keywords:      conf.Chat.Keywords,
		MainChatID:    conf.Chat.MainChatID,
		ServiceChatID: conf.Chat.ServiceChatID,
		TokenLimit:    conf.Chat.TokenLimit,
		Workers:       conf.Ollama.Workers,
	}, Deps{
		Store:     store,
		Trimmer:   trimmer,
		Assistant: assistantService,
		Transport: transport,
		Tuning:    NewTuning(conf.Chat.MessageProbability),
		Logger:    logger.With(slog.String("component", "handler")),
	})

	db, err := pgxpool.New(ctx, conf.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ReplyWorker{Handler: handler})
	river.AddWorker(workers, &ImageWorker{Handler: handler})
	river.AddWorker(workers, &SummaryWorker{Handler: handler})

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: conf.Ollama.Workers},
		},
		Workers:    workers,
		JobTimeout: jobTimeout(conf.Ollama.Timeout),
		Logger:     logger.With(slog.String("component", "river")),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create river client: %w", err)
	}
	handler.SetQueue(riverClient)

	return &Bot{
		API:         api,
		Assistant:   assistantService,
		RiverClient: riverClient,
		handler:     handler,
		transport:   transport,
		db:          db,
		conf:        conf,
		logger:      logger,
	}, nil
}

// jobTimeout leaves room for the two backend calls an image job makes.
func jobTimeout(callTimeout time.Duration) time.Duration {
	if callTimeout <= 0 {
		return -1
	}
	return 2*callTimeout + time.Minute
}

// Start connects to Ollama, migrates the job schema, starts the job
// workers and begins polling Telegram in the background. A returned error
// is fatal.
func (bot *Bot) Start(ctx context.Context) error {
	err := bot.Assistant.Connect(ctx, bot.conf.Ollama.MaxRetryAttempts, bot.conf.Ollama.RetryDelay)
	if err != nil {
		return err
	}

	if bot.conf.Ollama.Pull {
		if err := bot.Assistant.Pull(ctx, bot.conf.Ollama.Model, bot.conf.Ollama.VisionModel); err != nil {
			return err
		}
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(bot.db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if err := migrateSchema(ctx, migrator, bot.logger); err != nil {
		return err
	}

	if err := bot.RiverClient.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	bot.workersStarted = true
	bot.logger.Info("River client successfully started", slog.Int("workers", bot.conf.Ollama.Workers))

	bot.API.Use(
		middleware.Recover(),
		middleware.AutoRespond(),
	)
	bot.API.Handle(telebot.OnText, bot.onMessage(ctx))
	bot.API.Handle(telebot.OnMedia, bot.onMessage(ctx))

	go bot.API.Start()
	bot.polling = true
	bot.logger.Info("Telegram bot successfully started", slog.String("username", bot.API.Me.Username))
	return nil
}

type schemaMigrator interface {
	Migrate(ctx context.Context, direction rivermigrate.Direction, opts *rivermigrate.MigrateOpts) (*rivermigrate.MigrateResult, error)
}

// migrateSchema brings the job tables up to date. Applied versions are
// skipped, so it runs on every start.
func migrateSchema(ctx context.Context, migrator schemaMigrator, logger *slog.Logger) error {
	result, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	for _, version := range result.Versions {
		logger.Info("River migration applied", slog.Int("version", version.Version))
	}
	return nil
}

func (bot *Bot) onMessage(ctx context.Context) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		message := c.Message()
		if message == nil || message.Chat == nil {
			return nil
		}

		ev := newEvent(message)
		bot.transport.Observe(ev)
		bot.handler.Handle(ctx, ev)
		return nil
	}
}

// Stop stops polling, then waits for running jobs within ctx. It is safe
// to call after a failed Start.
func (bot *Bot) Stop(ctx context.Context) {
	if bot.polling {
		bot.API.Stop()
		bot.polling = false
	}

	if bot.workersStarted {
		if err := bot.RiverClient.Stop(ctx); err != nil {
			bot.logger.Error("Failed to stop river client", slog.Any("error", err))
		}
		bot.workersStarted = false
	}
	bot.db.Close()
}
