package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/tee-time-reservation/internal/app"
	"github.com/iliyamo/tee-time-reservation/internal/config"
	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	// .env is optional; the process environment wins.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)
	logger.Info("starting application", slog.String("env", cfg.Env), slog.String("db_driver", cfg.DB.Driver))

	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Error("failed to start application", sl.Err(err))
		os.Exit(1)
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Error("server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	//graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGINT)

	sign := <-stopChan
	logger.Info("stopping application", slog.String("signal", sign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		logger.Error("failed to stop application", sl.Err(err))
		return
	}
	logger.Info("application stopped")
}

func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case envLocal:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return logger
}
