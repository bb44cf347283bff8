package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/cmd"
	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/log"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/scheduler"
	trc "github.com/strackan/playbook-engine/pkg/tracer"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmdRoot := &cli.Command{
		Name:                  "playbook-evaluator",
		Usage:                 "Start the batch trigger evaluation service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "evaluator-id",
				Aliases: []string{"id"},
				Usage:   "Custom evaluator ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("EVALUATOR_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "metrics-redis-url",
				Usage:   "Redis URL for usage metrics (empty uses stored customer profiles)",
				Sources: cli.EnvVars("METRICS_REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to check batch schedules for due passes",
				Value:   time.Minute,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := trc.InitTracer(ctx, "playbook-evaluator")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			evaluatorID := command.String("evaluator-id")
			if evaluatorID == "" {
				evaluatorID = fmt.Sprintf("evaluator-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("playbook-evaluator").With("evaluator_id", evaluatorID)

			logger.Info("Initializing Playbook Evaluator", "evaluator_id", evaluatorID)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			metrics := cmd.NewMetricReader(command.String("metrics-redis-url"), persistence)

			notify := notifier.NewNotifier(persistence, eventBus, logger)
			core := evaluator.NewCore(persistence, metrics, logger)
			batchEvaluator := scheduler.NewBatchEvaluator(persistence, core, notify, logger)
			runner := scheduler.NewCadenceRunner(persistence, batchEvaluator, logger, command.Duration("poll-interval"))

			service := NewEvaluator(evaluatorID, runner, logger)
			service.Start(ctx)

			return nil
		},
	}

	if err := cmdRoot.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
