// Package main provides the Playbook Engine API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/eventbus"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/scheduler"
	"github.com/strackan/playbook-engine/pkg/services"
	"github.com/strackan/playbook-engine/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	metrics     evaluator.MetricReader
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	metrics evaluator.MetricReader,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		metrics:     metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	notify := notifier.NewNotifier(a.persistence, a.eventBus, a.logger)
	executionService := services.NewExecution(a.persistence, notify, a.logger)
	reviewService := services.NewReview(a.persistence, notify, a.logger)
	taskService := services.NewTask(a.persistence, notify, a.logger)

	core := evaluator.NewCore(a.persistence, a.metrics, a.logger)
	batchEvaluator := scheduler.NewBatchEvaluator(a.persistence, core, notify, a.logger)

	handlers := web.NewAPIHandlers(executionService, reviewService, taskService, batchEvaluator, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Playbook Engine API")
	})

	e := app.Group("/executions")
	e.Post("/", handlers.CreateExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.ListSteps)
	e.Get("/:id/action-log", handlers.ListActionLog)
	e.Post("/:id/steps/:stepId/progress", handlers.UpdateStepProgress)
	e.Post("/:id/steps/:stepId/complete", handlers.CompleteStep)
	e.Post("/:id/steps/:stepId/skip", handlers.SkipStep)
	e.Post("/:id/complete", handlers.CompleteWorkflow)
	e.Post("/:id/snooze", handlers.SnoozeWorkflow)
	e.Post("/:id/reactivate", handlers.ReactivateWorkflow)

	// Review sub-state-machine:
	e.Post("/:id/review/submit", handlers.SubmitForReview)
	e.Post("/:id/review/approve", handlers.ApproveReview)
	e.Post("/:id/review/request-changes", handlers.RequestChanges)
	e.Post("/:id/review/reject", handlers.RejectReview)
	e.Post("/:id/review/resubmit", handlers.ResubmitReview)

	// Tasks:
	e.Post("/:id/tasks", handlers.AddTask)
	e.Get("/:id/tasks", handlers.ListTasks)
	app.Post("/tasks/:taskId/complete", handlers.CompleteTask)

	// Manual event flags and on-demand evaluation:
	e.Post("/:id/modes/:mode/manual-flags", handlers.SetManualFlag)
	app.Post("/evaluations/:mode/run", handlers.RunEvaluation)

	// Notifications:
	app.Get("/notifications", handlers.ListNotifications)
	app.Post("/notifications/:notificationId/read", handlers.MarkNotificationRead)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
