package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/portfolio-backend/internal/accounts"
	"github.com/jimdaga/portfolio-backend/internal/auth"
	"github.com/jimdaga/portfolio-backend/internal/config"
	"github.com/jimdaga/portfolio-backend/internal/credentials"
	"github.com/jimdaga/portfolio-backend/internal/database"
	"github.com/jimdaga/portfolio-backend/internal/health"
	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/logging"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/notify"
	"github.com/jimdaga/portfolio-backend/internal/otp"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"github.com/jimdaga/portfolio-backend/internal/streams"
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
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			return err
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set; provider access tokens are stored unencrypted")
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if cfg.RunMigrations {
		if err := database.RunMigrations(db, logger); err != nil {
			return err
		}
	}
	if cfg.SeedDevData && !cfg.IsProduction() {
		if err := database.SeedDevData(db, logger); err != nil {
			return err
		}
	}

	tokens, err := credentials.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.CredentialTTL())
	if err != nil {
		return err
	}

	var notifier notify.Notifier
	var events accounts.EventPublisher
	if cfg.RedisURL != "" {
		queue, err := worker.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer queue.Close()
		notifier = queue

		publisher, err := streams.NewPublisher(cfg.RedisURL, cfg.MessageStream)
		if err != nil {
			return err
		}
		defer publisher.Close()
		events = publisher
		logger.Info("Emails queued through Redis", "stream", cfg.MessageStream)
	} else {
		notifier, err = notify.NewFromConfig(cfg, logger)
		if err != nil {
			return err
		}
	}

	svc := accounts.New(accounts.Deps{
		Store:      store.New(db),
		OTP:        otp.NewService(),
		Reconciler: identity.NewReconciler(logger),
		Resolvers:  identity.DefaultRegistry(),
		Tokens:     tokens,
		Notifier:   notifier,
		Events:     events,
		Logger:     logger,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))

	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", gin.WrapF(health.Readiness(map[string]health.Pinger{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	})))

	auth.NewHandlers(svc, logger).Register(r, auth.RequireAuth(tokens))
	auth.RegisterOAuth(r, svc, auth.InitProviders(cfg, logger), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
