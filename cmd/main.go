package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"valera/internal/bot"
	"valera/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Valera failed to start", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.Read()
	if err != nil {
		return err
	}

	logger := newLogger(conf.Log)
	slog.SetDefault(logger)

	valera, err := bot.NewBot(ctx, conf, logger)
	if err != nil {
		return err
	}

	if err := valera.Start(ctx); err != nil {
		valera.Stop(context.Background())
		return err
	}

	logger.Info("Valera successfully started", slog.Any("config", conf))

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	valera.Stop(shutdownCtx)

	logger.Info("Valera gracefully shutdown")
	return nil
}

func newLogger(conf config.Log) *slog.Logger {
	options := &slog.HandlerOptions{Level: conf.SlogLevel()}
	if conf.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}
