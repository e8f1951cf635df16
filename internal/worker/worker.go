package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/portfolio-backend/internal/config"
	"github.com/jimdaga/portfolio-backend/internal/notify"
	"github.com/jimdaga/portfolio-backend/internal/otp"
	"github.com/jimdaga/portfolio-backend/internal/store"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Deps are the collaborators the task handlers need.
type Deps struct {
	Logger *slog.Logger
	// Mailer delivers emails. It must deliver inline, never enqueue.
	Mailer notify.Notifier
	Store  *store.Store
}

// Run starts the Asynq worker server and blocks until shutdown signal.
func Run(cfg *config.Config, deps Deps) error {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

func newServer(cfg *config.Config, deps Deps) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     concurrency,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(deps.Logger)),
			Logger:          &asynqLoggerAdapter{logger: deps.Logger},
		},
	)

	deps.Logger.Info("Worker starting", "concurrency", concurrency)
	return srv, newMux(deps), nil
}

func newMux(deps Deps) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSendOTPEmail, handleSendOTPEmail(deps.Logger, deps.Mailer))
	mux.HandleFunc(TaskSendMessageEmail, handleSendMessageEmail(deps.Logger, deps.Mailer))
	mux.HandleFunc(TaskPurgeOTPs, handlePurgeOTPs(deps.Logger, deps.Store, time.Now))
	return mux
}

// handleSendOTPEmail delivers a queued OTP email.
func handleSendOTPEmail(logger *slog.Logger, mailer notify.Notifier) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload notify.OTPEmail
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.To == "" {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing email:otp task", "to", payload.To)
		if err := mailer.SendOTP(ctx, payload); err != nil {
			return fmt.Errorf("otp email delivery failed: %w", err)
		}
		return nil
	}
}

// handleSendMessageEmail forwards a queued contact message to the operator.
func handleSendMessageEmail(logger *slog.Logger, mailer notify.Notifier) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload notify.ContactEmail
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.From == "" {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing email:message task", "message_id", payload.MessageID)
		if err := mailer.SendMessage(ctx, payload); err != nil {
			return fmt.Errorf("contact email delivery failed: %w", err)
		}
		return nil
	}
}

// handlePurgeOTPs deletes codes that can no longer verify. Expiry is enforced
// at verification time; this only keeps the table small.
func handlePurgeOTPs(logger *slog.Logger, st *store.Store, now func() time.Time) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		cutoff := now().UTC().Add(-otp.TTL)
		n, err := st.PurgeOTPsIssuedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge otps: %w", err)
		}
		logger.Info("Expired OTP codes purged", "deleted", n, "cutoff", cutoff)
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Final failure: task moves to the archive
		if retried >= maxRetry {
			logger.Error(
				"Task archived (all retries exhausted)",
				"task_type", task.Type(),
			)
		}
	}
}
