package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/portfolio-backend/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config, logger *slog.Logger) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entryID, err := scheduler.Register(cfg.OTPPurgeSchedule, purgeTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register otp purge schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started", "schedule", cfg.OTPPurgeSchedule, "entry_id", entryID)

	return func() { scheduler.Shutdown() }, nil
}

func purgeTask() *asynq.Task {
	return asynq.NewTask(
		TaskPurgeOTPs,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
		asynq.Unique(10*time.Minute), // Prevent duplicate if two schedulers run
	)
}
