package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/scheduler"
	"github.com/strackan/playbook-engine/pkg/services"
)

type APIHandlers struct {
	executionService *services.Execution
	reviewService    *services.Review
	taskService      *services.Task
	batchEvaluator   *scheduler.BatchEvaluator
	persistence      persistence.Persistence
	validator        *validator.Validate
}

func NewAPIHandlers(
	executionService *services.Execution,
	reviewService *services.Review,
	taskService *services.Task,
	batchEvaluator *scheduler.BatchEvaluator,
	p persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executionService: executionService,
		reviewService:    reviewService,
		taskService:      taskService,
		batchEvaluator:   batchEvaluator,
		persistence:      p,
		validator:        validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.executionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Playbook Engine API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Playbook Engine API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	var req services.CreateExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := ValidateTriggerPayloads(req.ReviewTriggers); err != nil {
		return badRequest(c, err.Error())
	}

	if err := ValidateTriggerPayloads(req.EscalateTriggers); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.executionService.CreateExecution(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.GetExecution(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Workflow execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ListSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	steps, err := h.executionService.ListSteps(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

func (h *APIHandlers) ListActionLog(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	entries, err := h.persistence.ActionLog().ListByExecution(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *APIHandlers) stepProgress(c fiber.Ctx) (string, string, services.StepProgressRequest, error) {
	var req services.StepProgressRequest

	executionID := c.Params("id")
	stepID := c.Params("stepId")

	if err := c.Bind().JSON(&req); err != nil {
		return "", "", req, badRequest(c, "Invalid JSON format")
	}

	return executionID, stepID, req, nil
}

func (h *APIHandlers) UpdateStepProgress(c fiber.Ctx) error {
	executionID, stepID, req, err := h.stepProgress(c)
	if err != nil {
		return err
	}

	step, err := h.executionService.UpdateStepProgress(c.Context(), executionID, stepID, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) CompleteStep(c fiber.Ctx) error {
	executionID, stepID, req, err := h.stepProgress(c)
	if err != nil {
		return err
	}

	step, err := h.executionService.CompleteStep(c.Context(), executionID, stepID, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) SkipStep(c fiber.Ctx) error {
	executionID, stepID, req, err := h.stepProgress(c)
	if err != nil {
		return err
	}

	step, err := h.executionService.SkipStep(c.Context(), executionID, stepID, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) CompleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req CompleteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	execution, err := h.executionService.CompleteWorkflow(c.Context(), id, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) SnoozeWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req SnoozeWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := ValidateTriggerPayloads(req.Triggers); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.SnoozeWorkflow(c.Context(), id, services.SnoozeRequest{
		Reason:   req.Reason,
		Triggers: req.Triggers,
		ActorID:  req.ActorID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ReactivateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req CompleteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	execution, err := h.executionService.ReactivateWorkflow(c.Context(), id, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) SubmitForReview(c fiber.Ctx) error {
	id := c.Params("id")

	var req SubmitReviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.reviewService.SubmitForReview(c.Context(), id, req.ReviewerID, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ApproveReview(c fiber.Ctx) error {
	id := c.Params("id")

	var req ReviewDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.reviewService.Approve(c.Context(), id, req.ReviewerID, req.Comments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) RequestChanges(c fiber.Ctx) error {
	id := c.Params("id")

	var req ReviewDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.reviewService.RequestChanges(c.Context(), id, req.ReviewerID, req.Comments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) RejectReview(c fiber.Ctx) error {
	id := c.Params("id")

	var req RejectReviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.reviewService.Reject(c.Context(), id, services.RejectRequest{
		ReviewerID: req.ReviewerID,
		Reason:     req.Reason,
		Comments:   req.Comments,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResubmitReview(c fiber.Ctx) error {
	id := c.Params("id")

	var req ResubmitReviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.reviewService.Resubmit(c.Context(), id, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) AddTask(c fiber.Ctx) error {
	id := c.Params("id")

	var req services.AddTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.taskService.AddTask(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if urgentStr := c.Query("urgent"); urgentStr != "" {
		urgent, err := strconv.ParseBool(urgentStr)
		if err != nil {
			return badRequest(c, "Invalid urgent parameter")
		}

		if urgent {
			tasks, err := h.taskService.ListUrgentTasks(c.Context(), id)
			if err != nil {
				return handleServiceError(c, err)
			}

			return c.JSON(fiber.Map{"tasks": tasks})
		}
	}

	tasks, err := h.taskService.ListTasks(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": tasks})
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	id := c.Params("taskId")

	var req CompleteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	task, err := h.taskService.CompleteTask(c.Context(), id, req.ActorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

// SetManualFlag marks a manual event as having happened for an execution's
// evaluator mode, satisfying any manual_event trigger waiting on the key.
func (h *APIHandlers) SetManualFlag(c fiber.Ctx) error {
	id := c.Params("id")
	mode := models.TriggerMode(c.Params("mode"))

	variant, err := evaluator.VariantFor(mode)
	if err != nil {
		return badRequest(c, "Unknown evaluator mode: "+string(mode))
	}

	var req SetManualFlagRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flag := &models.ManualFlag{
		WorkflowID: id,
		EventKey:   req.EventKey,
		Set:        true,
		SetBy:      req.SetBy,
		SetAt:      time.Now().UTC(),
	}

	if err := h.persistence.EvaluationLogs().SetManualFlag(c.Context(), variant.LogTable, flag); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(flag)
}

// RunEvaluation invokes one batch evaluation pass for the given mode.
func (h *APIHandlers) RunEvaluation(c fiber.Ctx) error {
	mode := models.TriggerMode(c.Params("mode"))

	result, err := h.batchEvaluator.RunBatch(c.Context(), mode)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListNotifications(c fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return badRequest(c, "user_id query parameter is required")
	}

	unreadOnly := false

	if unreadStr := c.Query("unread"); unreadStr != "" {
		parsed, err := strconv.ParseBool(unreadStr)
		if err != nil {
			return badRequest(c, "Invalid unread parameter")
		}

		unreadOnly = parsed
	}

	notifications, err := h.persistence.Notifications().ListByUser(c.Context(), userID, unreadOnly)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"notifications": notifications})
}

func (h *APIHandlers) MarkNotificationRead(c fiber.Ctx) error {
	id := c.Params("notificationId")
	if id == "" {
		return badRequest(c, "Notification ID is required")
	}

	if err := h.persistence.Notifications().MarkRead(c.Context(), id, time.Now().UTC()); err != nil {
		if persistence.IsNotificationNotFound(err) {
			return notFound(c, "Notification not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
