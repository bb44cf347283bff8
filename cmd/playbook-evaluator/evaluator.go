package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strackan/playbook-engine/pkg/scheduler"
)

// Evaluator runs the cadence runner as a long-lived service, handling
// signals for graceful shutdown and SIGHUP restart.
type Evaluator struct {
	id           string
	runner       *scheduler.CadenceRunner
	logger       *slog.Logger
	restartCount int
}

// NewEvaluator creates a new Evaluator service instance.
func NewEvaluator(id string, runner *scheduler.CadenceRunner, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		id:     id,
		runner: runner,
		logger: logger.With("module", "evaluator-service"),
	}
}

// Start begins the evaluator service.
func (e *Evaluator) Start(ctx context.Context) {
	eCtx, cancel := context.WithCancel(ctx)

	e.logger.Info("Starting evaluator service")

	e.handleSignals(eCtx, cancel)
	e.run(eCtx)
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (e *Evaluator) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		e.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			e.logger.Info("Reloading configuration...")
			e.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			e.logger.Info("Shutting down gracefully...")
			e.stop(cancel)
			os.Exit(0)
		default:
			e.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart handles service restart with exponential backoff.
func (e *Evaluator) restart(ctx context.Context, cancel context.CancelFunc) {
	e.restartCount++
	newCtx := context.WithoutCancel(ctx)

	e.stop(cancel)

	if e.restartCount > 5 {
		e.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(e.restartCount) * time.Second
	e.logger.Info("Restarting evaluator service...", "backoff", backoff)
	time.Sleep(backoff)

	e.Start(newCtx)
}

// run polls the batch schedules until the context is cancelled.
func (e *Evaluator) run(ctx context.Context) {
	if err := e.runner.Start(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("Cadence runner stopped", "error", err)
	}

	e.logger.Info("Evaluator service context cancelled, stopping...")
}

// stop gracefully shuts down the evaluator service.
func (e *Evaluator) stop(cancel context.CancelFunc) {
	e.logger.Info("Stopping evaluator service")

	if cancel != nil {
		cancel()
	}
}
