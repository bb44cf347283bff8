package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence/file"
	"github.com/strackan/playbook-engine/pkg/scheduler"
	"github.com/strackan/playbook-engine/pkg/services"
	"github.com/strackan/playbook-engine/pkg/web"
)

type stubMetrics struct{}

func (stubMetrics) UsageMetric(_ context.Context, _, _ string) (float64, bool, error) {
	return 0, false, nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.Default()
	n := notifier.NewNotifier(p, nil, logger)

	executionService := services.NewExecution(p, n, logger)
	reviewService := services.NewReview(p, n, logger)
	taskService := services.NewTask(p, n, logger)

	core := evaluator.NewCore(p, stubMetrics{}, logger)
	batchEvaluator := scheduler.NewBatchEvaluator(p, core, n, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(executionService, reviewService, taskService, batchEvaluator, p, validate)

	app := fiber.New()

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
	e.Post("/:id/review/submit", handlers.SubmitForReview)
	e.Post("/:id/review/approve", handlers.ApproveReview)
	e.Post("/:id/review/request-changes", handlers.RequestChanges)
	e.Post("/:id/review/reject", handlers.RejectReview)
	e.Post("/:id/review/resubmit", handlers.ResubmitReview)
	e.Post("/:id/tasks", handlers.AddTask)
	e.Get("/:id/tasks", handlers.ListTasks)
	e.Post("/:id/modes/:mode/manual-flags", handlers.SetManualFlag)
	app.Post("/tasks/:taskId/complete", handlers.CompleteTask)
	app.Post("/evaluations/:mode/run", handlers.RunEvaluation)
	app.Get("/notifications", handlers.ListNotifications)
	app.Post("/notifications/:notificationId/read", handlers.MarkNotificationRead)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, requestBody any) (int, []byte) {
	t.Helper()

	var body []byte

	switch b := requestBody.(type) {
	case nil:
		body = []byte("{}")
	case string:
		body = []byte(b)
	default:
		var err error

		body, err = json.Marshal(requestBody)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func createExecution(t *testing.T, app *fiber.App, totalSteps int) models.WorkflowExecution {
	t.Helper()

	status, body := doJSON(t, app, http.MethodPost, "/executions/", services.CreateExecutionRequest{
		PlaybookID: "pb-onboarding",
		UserID:     "user-1",
		CustomerID: "cust-1",
		TotalSteps: totalSteps,
	})
	require.Equal(t, http.StatusCreated, status)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))

	return execution
}

func TestAPIHandlers_CreateExecution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: services.CreateExecutionRequest{
				PlaybookID: "pb-onboarding",
				UserID:     "user-1",
				CustomerID: "cust-1",
				TotalSteps: 4,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing playbook id",
			requestBody: services.CreateExecutionRequest{
				UserID:     "user-1",
				CustomerID: "cust-1",
				TotalSteps: 4,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "zero total steps",
			requestBody: services.CreateExecutionRequest{
				PlaybookID: "pb-onboarding",
				UserID:     "user-1",
				CustomerID: "cust-1",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "trigger payload with unknown kind",
			requestBody: map[string]any{
				"playbook_id": "pb-onboarding",
				"user_id":     "user-1",
				"customer_id": "cust-1",
				"total_steps": 4,
				"review_triggers": []map[string]any{
					{"id": "t-1", "kind": "weekly"},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			status, body := doJSON(t, app, http.MethodPost, "/executions/", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedStatus == http.StatusCreated {
				var execution models.WorkflowExecution
				require.NoError(t, json.Unmarshal(body, &execution))
				assert.NotEmpty(t, execution.ID)
				assert.Equal(t, models.ExecutionStatusNotStarted, execution.Status)
				assert.Equal(t, 0, execution.CompletionPercentage)
			}
		})
	}
}

func TestAPIHandlers_GetExecution(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	created := createExecution(t, app, 3)

	status, body := doJSON(t, app, http.MethodGet, "/executions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, created.ID, execution.ID)

	status, _ = doJSON(t, app, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_StepLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	execution := createExecution(t, app, 2)

	status, body := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/steps/step-1/complete",
		services.StepProgressRequest{StepIndex: 0, Title: "Kickoff call"})
	require.Equal(t, http.StatusOK, status)

	var step models.StepExecution
	require.NoError(t, json.Unmarshal(body, &step))
	assert.Equal(t, models.StepStatusCompleted, step.Status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/steps/step-2/skip",
		services.StepProgressRequest{StepIndex: 1, Title: "Optional training"})
	require.Equal(t, http.StatusOK, status)

	// First touch starts the execution; two of two steps resolved is 100%.
	status, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var updated models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, models.ExecutionStatusInProgress, updated.Status)
	assert.Equal(t, 100, updated.CompletionPercentage)
	assert.NotNil(t, updated.StartedAt)

	status, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID+"/steps", nil)
	require.Equal(t, http.StatusOK, status)

	var steps struct {
		Steps []models.StepExecution `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(body, &steps))
	assert.Len(t, steps.Steps, 2)

	status, body = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/complete",
		web.CompleteWorkflowRequest{ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status)

	var completed models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &completed))
	assert.Equal(t, models.ExecutionStatusCompleted, completed.Status)

	// Terminal executions reject further step work.
	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/steps/step-1/complete",
		services.StepProgressRequest{StepIndex: 0})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_SnoozeFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	execution := createExecution(t, app, 3)

	status, _ := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/snooze",
		web.SnoozeWorkflowRequest{Reason: "waiting on customer"})
	assert.Equal(t, http.StatusBadRequest, status)

	trigger := &models.Trigger{
		ID:   "t-1",
		Kind: models.TriggerKindDate,
		Date: &models.DateTriggerConfig{Instant: "2099-01-01T09:00:00Z"},
	}

	status, body := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/snooze",
		web.SnoozeWorkflowRequest{Reason: "waiting on customer", Triggers: []*models.Trigger{trigger}})
	require.Equal(t, http.StatusOK, status)

	var snoozed models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &snoozed))
	assert.Equal(t, models.ExecutionStatusSnoozed, snoozed.Status)
	assert.Equal(t, "waiting on customer", snoozed.SnoozeReason)
	require.Len(t, snoozed.Snooze.Triggers, 1)

	status, body = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/reactivate",
		web.CompleteWorkflowRequest{ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status)

	var reactivated models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &reactivated))
	assert.Equal(t, models.ExecutionStatusInProgress, reactivated.Status)
	assert.Empty(t, reactivated.SnoozeReason)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/reactivate",
		web.CompleteWorkflowRequest{ActorID: "user-1"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_ReviewFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	execution := createExecution(t, app, 3)

	status, _ := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/submit",
		web.SubmitReviewRequest{ReviewerID: "reviewer-1", ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status)

	// Only the assigned reviewer decides.
	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/approve",
		web.ReviewDecisionRequest{ReviewerID: "someone-else"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/reject",
		web.RejectReviewRequest{ReviewerID: "reviewer-1", Comments: "too short"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/reject",
		web.RejectReviewRequest{ReviewerID: "reviewer-1", Reason: "incomplete", Comments: "Steps 2 and 3 are missing evidence"})
	require.Equal(t, http.StatusOK, status)

	var rejected models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &rejected))
	require.NotNil(t, rejected.ReviewState)
	assert.Equal(t, models.ReviewStatusRejected, rejected.ReviewState.Status)
	require.Len(t, rejected.ReviewState.RejectionHistory, 1)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/resubmit",
		web.ResubmitReviewRequest{ActorID: "someone-else"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/resubmit",
		web.ResubmitReviewRequest{ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status)

	var resubmitted models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &resubmitted))
	require.NotNil(t, resubmitted.ReviewState)
	assert.Equal(t, models.ReviewStatusPending, resubmitted.ReviewState.Status)
	assert.Equal(t, 2, resubmitted.ReviewState.Iteration)
	assert.Len(t, resubmitted.ReviewState.RejectionHistory, 1)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/approve",
		web.ReviewDecisionRequest{ReviewerID: "reviewer-1", Comments: "looks good"})
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/review/approve",
		web.ReviewDecisionRequest{ReviewerID: "reviewer-1"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_Tasks(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	execution := createExecution(t, app, 3)

	status, body := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/tasks",
		services.AddTaskRequest{Title: "Send renewal quote"})
	require.Equal(t, http.StatusCreated, status)

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskStatusPending, task.Status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/tasks",
		services.AddTaskRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID+"/tasks?urgent=true", nil)
	require.Equal(t, http.StatusOK, status)

	var urgent struct {
		Tasks []services.UrgentTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(body, &urgent))
	require.Len(t, urgent.Tasks, 1)
	assert.Equal(t, models.UrgencyNormal, urgent.Tasks[0].Urgency)

	status, _ = doJSON(t, app, http.MethodPost, "/tasks/"+task.ID+"/complete",
		web.CompleteWorkflowRequest{ActorID: "user-1"})
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, http.MethodPost, "/tasks/"+task.ID+"/complete",
		web.CompleteWorkflowRequest{ActorID: "user-1"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_ManualFlagAndEvaluation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	execution := createExecution(t, app, 3)

	trigger := &models.Trigger{
		ID:   "t-1",
		Kind: models.TriggerKindEvent,
		Event: &models.EventTriggerConfig{
			Kind:   models.EventKindManualEvent,
			Manual: &models.ManualEventParams{EventKey: "contract-signed"},
		},
	}

	status, _ := doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/snooze",
		web.SnoozeWorkflowRequest{Reason: "waiting for signature", Triggers: []*models.Trigger{trigger}})
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/modes/bogus/manual-flags",
		web.SetManualFlagRequest{EventKey: "contract-signed"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodPost, "/executions/"+execution.ID+"/modes/snooze/manual-flags",
		web.SetManualFlagRequest{EventKey: "contract-signed", SetBy: "user-1"})
	require.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, app, http.MethodPost, "/evaluations/snooze/run", nil)
	require.Equal(t, http.StatusOK, status)

	var result scheduler.BatchResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Reactivated)

	status, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var woken models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &woken))
	assert.Equal(t, models.ExecutionStatusInProgress, woken.Status)
}

func TestAPIHandlers_Notifications(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, _ := doJSON(t, app, http.MethodGet, "/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// An escalation fire produces the notification we then mark read.
	trigger := map[string]any{
		"id":   "t-1",
		"kind": "date",
		"date": map[string]any{"instant": "2020-01-01T00:00:00Z"},
	}

	createStatus, body := doJSON(t, app, http.MethodPost, "/executions/", map[string]any{
		"playbook_id":       "pb-onboarding",
		"user_id":           "user-1",
		"customer_id":       "cust-1",
		"total_steps":       3,
		"escalate_triggers": []map[string]any{trigger},
	})
	require.Equal(t, http.StatusCreated, createStatus)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))

	status, _ = doJSON(t, app, http.MethodPost, "/evaluations/escalate/run", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodGet, "/notifications?user_id=user-1&unread=true", nil)
	require.Equal(t, http.StatusOK, status)

	var listed struct {
		Notifications []models.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed.Notifications, 1)
	assert.Equal(t, execution.ID, listed.Notifications[0].ExecutionID)

	status, _ = doJSON(t, app, http.MethodPost, "/notifications/"+listed.Notifications[0].ID+"/read", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = doJSON(t, app, http.MethodGet, "/notifications?user_id=user-1&unread=true", nil)
	require.Equal(t, http.StatusOK, status)

	var after struct {
		Notifications []models.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(body, &after))
	assert.Empty(t, after.Notifications)

	status, _ = doJSON(t, app, http.MethodPost, "/notifications/missing/read", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
