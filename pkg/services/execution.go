package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/events"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution drives the workflow execution state machine. Every mutation is
// persisted before its action log entry and event are emitted; the emit path
// never fails the operation.
type Execution struct {
	persistence persistence.Persistence
	notifier    *notifier.Notifier
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(p persistence.Persistence, n *notifier.Notifier, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: p,
		notifier:    n,
		logger:      logger.With("module", "services.execution"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Execution) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateExecutionRequest contains the fields needed to start tracking a
// playbook run for a customer.
type CreateExecutionRequest struct {
	PlaybookID string `json:"playbook_id" validate:"required"`
	UserID     string `json:"user_id"     validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	TotalSteps int    `json:"total_steps" validate:"min=1"`

	ReviewTriggers   []*models.Trigger `json:"review_triggers,omitempty"`
	EscalateTriggers []*models.Trigger `json:"escalate_triggers,omitempty"`
}

// CreateExecution creates a new execution in the NotStarted state.
func (s *Execution) CreateExecution(ctx context.Context, req CreateExecutionRequest) (*models.WorkflowExecution, error) {
	if req.PlaybookID == "" || req.UserID == "" || req.CustomerID == "" {
		return nil, ErrInvalidRequest
	}

	if req.TotalSteps <= 0 {
		return nil, ErrTotalStepsRequired
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:         uuid.New().String(),
		PlaybookID: req.PlaybookID,
		UserID:     req.UserID,
		CustomerID: req.CustomerID,
		Status:     models.ExecutionStatusNotStarted,
		TotalSteps: req.TotalSteps,
		Review:     models.TriggerModeState{Triggers: req.ReviewTriggers},
		Escalate:   models.TriggerModeState{Triggers: req.EscalateTriggers},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	s.notifier.LogAction(ctx, execution.ID, models.ActionCreate, "", req.UserID, map[string]any{
		"playbook_id": req.PlaybookID,
		"customer_id": req.CustomerID,
		"total_steps": req.TotalSteps,
	})
	s.notifier.Publish(ctx, execution.ID, events.ExecutionCreated{
		BaseEvent:  events.NewBaseEvent(events.ExecutionCreatedEvent, execution.ID),
		PlaybookID: req.PlaybookID,
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		TotalSteps: req.TotalSteps,
	})

	return execution, nil
}

// GetExecution fetches an execution by id.
func (s *Execution) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	if id == "" {
		return nil, ErrEmptyExecutionID
	}

	return s.persistence.Executions().GetByID(ctx, id)
}

// StepProgressRequest carries the incremental updates for a step.
type StepProgressRequest struct {
	StepIndex   int            `json:"step_index" validate:"min=0"`
	Title       string         `json:"title,omitempty"`
	BranchValue string         `json:"branch_value,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
}

// UpdateStepProgress records progress on a step. The first touch of any step
// moves a NotStarted execution to InProgress and stamps StartedAt exactly
// once. Branch values append to the step's audit path, metadata merges with
// caller keys winning.
func (s *Execution) UpdateStepProgress(ctx context.Context, executionID, stepID string, req StepProgressRequest) (*models.StepExecution, error) {
	execution, step, err := s.touchStep(ctx, executionID, stepID, req.StepIndex, req.Title)
	if err != nil {
		return nil, err
	}

	step.AppendBranch(req.BranchValue)
	step.MergeMetadata(req.Metadata)
	step.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Steps().Save(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to save step: %w", err)
	}

	if err := s.recalculate(ctx, execution); err != nil {
		return nil, err
	}

	details := map[string]any{"step_index": req.StepIndex}
	if req.BranchValue != "" {
		details["branch_value"] = req.BranchValue
	}

	s.notifier.LogAction(ctx, executionID, models.ActionStepUpdate, stepID, req.ActorID, details)

	return step, nil
}

// CompleteStep marks a step completed and recalculates the execution's
// completion percentage from the persisted step rows.
func (s *Execution) CompleteStep(ctx context.Context, executionID, stepID string, req StepProgressRequest) (*models.StepExecution, error) {
	execution, step, err := s.touchStep(ctx, executionID, stepID, req.StepIndex, req.Title)
	if err != nil {
		return nil, err
	}

	step.AppendBranch(req.BranchValue)
	step.MergeMetadata(req.Metadata)

	now := time.Now().UTC()
	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now
	step.UpdatedAt = now

	if err := s.persistence.Steps().Save(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to save step: %w", err)
	}

	if err := s.recalculate(ctx, execution); err != nil {
		return nil, err
	}

	s.notifier.LogAction(ctx, executionID, models.ActionComplete, stepID, req.ActorID, map[string]any{
		"step_index":            step.StepIndex,
		"completion_percentage": execution.CompletionPercentage,
	})
	s.notifier.Publish(ctx, executionID, events.StepCompleted{
		BaseEvent:            events.NewBaseEvent(events.StepCompletedEvent, executionID),
		StepID:               stepID,
		CompletionPercentage: execution.CompletionPercentage,
	})

	return step, nil
}

// SkipStep marks a step skipped, creating its row if it was never touched.
// Skipped steps count toward completion the same as completed ones.
func (s *Execution) SkipStep(ctx context.Context, executionID, stepID string, req StepProgressRequest) (*models.StepExecution, error) {
	execution, step, err := s.touchStep(ctx, executionID, stepID, req.StepIndex, req.Title)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	step.Status = models.StepStatusSkipped
	step.CompletedAt = &now
	step.UpdatedAt = now

	if err := s.persistence.Steps().Save(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to save step: %w", err)
	}

	if err := s.recalculate(ctx, execution); err != nil {
		return nil, err
	}

	s.notifier.LogAction(ctx, executionID, models.ActionSkip, stepID, req.ActorID, map[string]any{
		"step_index":            step.StepIndex,
		"completion_percentage": execution.CompletionPercentage,
	})
	s.notifier.Publish(ctx, executionID, events.StepSkipped{
		BaseEvent:            events.NewBaseEvent(events.StepSkippedEvent, executionID),
		StepID:               stepID,
		CompletionPercentage: execution.CompletionPercentage,
	})

	return step, nil
}

// CompleteWorkflow closes the execution. Outstanding tasks (pending, snoozed
// or in progress) force the CompletedWithPendingTasks status instead of a
// clean Completed.
func (s *Execution) CompleteWorkflow(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error) {
	execution, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, &ServiceError{Op: "CompleteWorkflow", Err: ErrExecutionTerminal}
	}

	outstanding, err := s.persistence.Tasks().ListByExecution(ctx, executionID,
		models.TaskStatusPending, models.TaskStatusSnoozed, models.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding tasks: %w", err)
	}

	now := time.Now().UTC()
	if len(outstanding) > 0 {
		execution.Status = models.ExecutionStatusCompletedWithPendingTasks
	} else {
		execution.Status = models.ExecutionStatusCompleted
	}

	execution.CompletedAt = &now
	execution.UpdatedAt = now

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	s.notifier.LogAction(ctx, executionID, models.ActionComplete, "", actorID, map[string]any{
		"status":            string(execution.Status),
		"outstanding_tasks": len(outstanding),
	})
	s.notifier.Publish(ctx, executionID, events.ExecutionCompleted{
		BaseEvent:        events.NewBaseEvent(events.ExecutionCompletedEvent, executionID),
		Status:           execution.Status,
		OutstandingTasks: len(outstanding),
	})

	return execution, nil
}

// SnoozeRequest carries the reason and wake-up triggers for a snooze.
type SnoozeRequest struct {
	Reason   string            `json:"reason,omitempty"`
	Triggers []*models.Trigger `json:"triggers" validate:"required,min=1"`
	ActorID  string            `json:"actor_id,omitempty"`
}

// SnoozeWorkflow parks the execution until one of its triggers fires. At
// least one trigger is required; a snooze nothing can wake is a dead end.
func (s *Execution) SnoozeWorkflow(ctx context.Context, executionID string, req SnoozeRequest) (*models.WorkflowExecution, error) {
	if len(req.Triggers) == 0 {
		return nil, &ServiceError{Op: "SnoozeWorkflow", Err: ErrSnoozeTriggersRequired}
	}

	execution, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, &ServiceError{Op: "SnoozeWorkflow", Err: ErrExecutionTerminal}
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusSnoozed
	execution.SnoozeReason = req.Reason
	execution.Snooze = models.TriggerModeState{Triggers: req.Triggers}
	execution.UpdatedAt = now

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	s.notifier.LogAction(ctx, executionID, models.ActionSnooze, "", req.ActorID, map[string]any{
		"reason":        req.Reason,
		"trigger_count": len(req.Triggers),
	})
	s.notifier.Publish(ctx, executionID, events.ExecutionSnoozed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionSnoozedEvent, executionID),
		Reason:       req.Reason,
		TriggerCount: len(req.Triggers),
	})

	return execution, nil
}

// ReactivateWorkflow manually wakes a snoozed execution without waiting for
// a trigger. The snooze trigger set is cleared so the next batch pass does
// not re-evaluate stale triggers.
func (s *Execution) ReactivateWorkflow(ctx context.Context, executionID, actorID string) (*models.WorkflowExecution, error) {
	execution, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusSnoozed {
		return nil, &ServiceError{Op: "ReactivateWorkflow", Err: ErrExecutionNotSnoozed}
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusInProgress
	execution.SnoozeReason = ""
	execution.Snooze = models.TriggerModeState{}
	execution.UpdatedAt = now

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	s.notifier.LogAction(ctx, executionID, models.ActionReactivate, "", actorID, nil)
	s.notifier.Publish(ctx, executionID, events.ExecutionReactivated{
		BaseEvent: events.NewBaseEvent(events.ExecutionReactivatedEvent, executionID),
	})

	return execution, nil
}

// ListSteps returns all step rows touched for the execution.
func (s *Execution) ListSteps(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	return s.persistence.Steps().ListByExecution(ctx, executionID)
}

// touchStep loads the execution and the step row, creating the step row on
// first touch. First touch also flips a NotStarted execution to InProgress
// and stamps StartedAt exactly once.
func (s *Execution) touchStep(ctx context.Context, executionID, stepID string, stepIndex int, title string) (*models.WorkflowExecution, *models.StepExecution, error) {
	if executionID == "" {
		return nil, nil, ErrEmptyExecutionID
	}

	if stepID == "" {
		return nil, nil, ErrEmptyStepID
	}

	execution, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	if execution.Status.Terminal() {
		return nil, nil, &ServiceError{Op: "touchStep", Err: ErrExecutionTerminal}
	}

	now := time.Now().UTC()

	if execution.Status == models.ExecutionStatusNotStarted {
		execution.Status = models.ExecutionStatusInProgress
		if execution.StartedAt == nil {
			execution.StartedAt = &now
		}

		execution.UpdatedAt = now

		if err := s.persistence.Executions().Save(ctx, execution); err != nil {
			return nil, nil, fmt.Errorf("failed to save execution: %w", err)
		}

		s.notifier.Publish(ctx, executionID, events.ExecutionStarted{
			BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, executionID),
			StepID:    stepID,
		})
	}

	step, err := s.persistence.Steps().GetByExecutionAndStep(ctx, executionID, stepID)
	if err != nil {
		if !persistence.IsStepNotFound(err) {
			return nil, nil, err
		}

		step = &models.StepExecution{
			ID:          uuid.New().String(),
			ExecutionID: executionID,
			StepID:      stepID,
			StepIndex:   stepIndex,
			Title:       title,
			Status:      models.StepStatusInProgress,
			StartedAt:   &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	if step.Status == models.StepStatusNotStarted {
		step.Status = models.StepStatusInProgress
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
	}

	if title != "" {
		step.Title = title
	}

	execution.CurrentStepIndex = stepIndex

	return execution, step, nil
}

// recalculate recomputes the execution's step counters and completion
// percentage from the persisted step rows and saves the execution.
func (s *Execution) recalculate(ctx context.Context, execution *models.WorkflowExecution) error {
	steps, err := s.persistence.Steps().ListByExecution(ctx, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to list steps: %w", err)
	}

	completed, skipped := 0, 0

	for _, step := range steps {
		switch step.Status {
		case models.StepStatusCompleted:
			completed++
		case models.StepStatusSkipped:
			skipped++
		}
	}

	execution.CompletedStepsCount = completed
	execution.SkippedStepsCount = skipped
	execution.CompletionPercentage = models.CompletionPercentage(completed, skipped, execution.TotalSteps)
	execution.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}
