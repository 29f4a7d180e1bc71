package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dispatchq/dispatchq/config"
	"github.com/dispatchq/dispatchq/internal/adapters/reaper"
	"github.com/dispatchq/dispatchq/internal/adapters/taskrunner"
	"github.com/dispatchq/dispatchq/internal/observability/statsd"
	"github.com/dispatchq/dispatchq/internal/service/failurenotifier"
)

// WorkerRunnerConfig contains configuration for the task worker runner.
type WorkerRunnerConfig struct {
	DB     *sql.DB
	Logger *slog.Logger
	Config config.WorkerConfig

	// Handlers maps task names to handlers for this process. Unmatched task
	// names fall back to DefaultHandler.
	Handlers       map[string]taskrunner.HandlerFunc
	DefaultHandler taskrunner.HandlerFunc

	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunWorker starts the worker loops that claim and execute tasks.
func RunWorker(ctx context.Context, cfg WorkerRunnerConfig) error {
	runner, err := taskrunner.NewRunner(taskrunner.RunnerOptions{
		DB:              cfg.DB,
		Logger:          cfg.Logger,
		Config:          cfg.Config,
		Handlers:        cfg.Handlers,
		DefaultHandler:  cfg.DefaultHandler,
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run worker runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
