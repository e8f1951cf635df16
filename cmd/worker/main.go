package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jimdaga/portfolio-backend/internal/config"
	"github.com/jimdaga/portfolio-backend/internal/database"
	"github.com/jimdaga/portfolio-backend/internal/logging"
	"github.com/jimdaga/portfolio-backend/internal/notify"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"github.com/jimdaga/portfolio-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required to run the worker")
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	mailer, err := notify.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	stopScheduler, err := worker.StartScheduler(cfg, logger)
	if err != nil {
		return err
	}
	defer stopScheduler()

	// Run blocks until SIGINT or SIGTERM.
	return worker.Run(cfg, worker.Deps{
		Logger: logger,
		Mailer: mailer,
		Store:  store.New(db),
	})
}
