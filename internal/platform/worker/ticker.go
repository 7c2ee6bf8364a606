// Package worker provides the cooperative ticker loop that drives the
// pipeline jobs. Each task runs on its own cadence after a delayed
// initial kick-off; overlap protection is the scheduler's concern, not
// the loop's.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// TickerTask represents a task triggered on its own cadence.
type TickerTask struct {
	Name string

	// Interval is the steady-state cadence.
	Interval time.Duration

	// InitialDelay postpones the first run after loop start, staggering
	// job kick-offs so they do not all fire at once.
	InitialDelay time.Duration

	Run func(ctx context.Context)
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks are the ticker-triggered tasks to run.
	Tasks []TickerTask

	// Logger for the worker.
	Logger *zerolog.Logger
}

// TickerLoop runs tasks on their cadences until the context is
// canceled. Returns a wrapped context error on cancellation.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(cfg.Tasks)).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	if len(cfg.Tasks) == 0 {
		<-ctx.Done()

		return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
	}

	for _, task := range cfg.Tasks {
		go runTask(ctx, task, logger)
	}

	<-ctx.Done()

	return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
}

// runTask waits out the initial delay, then runs the task on its
// interval until cancellation.
func runTask(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	if task.Run == nil || task.Interval <= 0 {
		return
	}

	if err := Wait(ctx, task.InitialDelay); err != nil {
		return
	}

	logger.Debug().Str(logFieldTask, task.Name).Msg("running initial task")
	task.Run(ctx)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
			task.Run(ctx)
		}
	}
}

// Wait sleeps for the duration or until the context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
