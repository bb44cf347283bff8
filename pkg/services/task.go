package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// ErrTaskNotFound is returned when a task is not found.
var ErrTaskNotFound = persistence.ErrTaskNotFound

// Task manages the obligations attached to an execution. Outstanding tasks
// are what keeps CompleteWorkflow from closing an execution cleanly.
type Task struct {
	persistence persistence.Persistence
	notifier    *notifier.Notifier
	logger      *slog.Logger
}

// NewTask creates a new task service.
func NewTask(p persistence.Persistence, n *notifier.Notifier, logger *slog.Logger) *Task {
	return &Task{
		persistence: p,
		notifier:    n,
		logger:      logger.With("module", "services.task"),
	}
}

// AddTaskRequest contains the fields for attaching a task to an execution.
type AddTaskRequest struct {
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ActorID      string     `json:"actor_id,omitempty"`
}

// AddTask attaches a pending task to the execution.
func (s *Task) AddTask(ctx context.Context, executionID string, req AddTaskRequest) (*models.Task, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	if req.Title == "" {
		return nil, &ServiceError{Op: "AddTask", Err: ErrTaskTitleRequired}
	}

	if _, err := s.persistence.Executions().GetByID(ctx, executionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:           uuid.New().String(),
		ExecutionID:  executionID,
		Title:        req.Title,
		Description:  req.Description,
		AssigneeName: req.AssigneeName,
		Status:       models.TaskStatusPending,
		DueDate:      req.DueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.persistence.Tasks().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.notifier.LogAction(ctx, executionID, models.ActionStepUpdate, "", req.ActorID, map[string]any{
		"task_id":    task.ID,
		"task_title": req.Title,
	})

	return task, nil
}

// CompleteTask marks a task completed. Completing an already completed task
// is a conflict, not a no-op, so double submissions surface to the caller.
func (s *Task) CompleteTask(ctx context.Context, taskID, actorID string) (*models.Task, error) {
	if taskID == "" {
		return nil, ErrInvalidRequest
	}

	task, err := s.persistence.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == models.TaskStatusCompleted {
		return nil, &ServiceError{Op: "CompleteTask", Err: ErrTaskAlreadyCompleted}
	}

	now := time.Now().UTC()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.persistence.Tasks().Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	s.notifier.LogAction(ctx, task.ExecutionID, models.ActionStepUpdate, "", actorID, map[string]any{
		"task_id":        task.ID,
		"task_completed": true,
	})

	return task, nil
}

// UrgentTask pairs a task with its urgency classification.
type UrgentTask struct {
	*models.Task

	Urgency models.Urgency `json:"urgency"`
}

// ListUrgentTasks returns the execution's outstanding tasks ordered by due
// date, each classified by how close it is to due.
func (s *Task) ListUrgentTasks(ctx context.Context, executionID string) ([]UrgentTask, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	tasks, err := s.persistence.Tasks().ListByExecution(ctx, executionID,
		models.TaskStatusPending, models.TaskStatusSnoozed, models.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	now := time.Now().UTC()
	urgent := make([]UrgentTask, 0, len(tasks))

	for _, task := range tasks {
		urgent = append(urgent, UrgentTask{Task: task, Urgency: task.Urgency(now)})
	}

	return urgent, nil
}

// ListTasks returns all tasks for an execution regardless of status.
func (s *Task) ListTasks(ctx context.Context, executionID string) ([]*models.Task, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	return s.persistence.Tasks().ListByExecution(ctx, executionID)
}
