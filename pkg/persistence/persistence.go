// Package persistence provides the data storage abstraction for workflow
// executions, steps, tasks and the evaluator's audit tables.
package persistence

import (
	"context"
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
)

// Persistence aggregates the repositories a backing store must provide.
type Persistence interface {
	Executions() ExecutionRepository
	Steps() StepRepository
	Tasks() TaskRepository
	Customers() CustomerRepository
	ActionLog() ActionLogRepository
	EvaluationLogs() EvaluationLogRepository
	Notifications() NotificationRepository
	BatchSchedules() BatchScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionRepository stores workflow executions, one row per execution.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Save(ctx context.Context, execution *models.WorkflowExecution) error

	// ListDueForEvaluation pages through non-terminal executions carrying at
	// least one trigger for the given mode. Ordering is stable by id so
	// offset pagination does not skip rows between pages.
	ListDueForEvaluation(ctx context.Context, mode models.TriggerMode, limit, offset int) ([]*models.WorkflowExecution, error)
}

// StepRepository stores one row per (execution, step) touched.
type StepRepository interface {
	GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error)
	Save(ctx context.Context, step *models.StepExecution) error
}

// TaskRepository stores execution tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Save(ctx context.Context, task *models.Task) error

	// ListByExecution returns the execution's tasks, optionally filtered to
	// the given statuses, ordered by due date ascending (tasks without a due
	// date last).
	ListByExecution(ctx context.Context, executionID string, statuses ...models.TaskStatus) ([]*models.Task, error)
}

// CustomerRepository reads customer profiles. The engine never writes them;
// SaveProfile exists for stores that own the table (file store, tests).
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*models.CustomerProfile, error)
	SaveProfile(ctx context.Context, profile *models.CustomerProfile) error
}

// ActionLogRepository is the append-only record of state transitions.
type ActionLogRepository interface {
	Append(ctx context.Context, entry *models.ActionLogEntry) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.ActionLogEntry, error)

	// HasCompletedAction reports whether a "complete" action has been logged
	// for the execution, optionally narrowed to one action id.
	HasCompletedAction(ctx context.Context, executionID, actionID string) (bool, error)
}

// EvaluationLogRepository stores per-variant trigger evaluation audit rows
// and the manual event flags kept in the same backing log. The table name is
// supplied by the evaluator variant.
type EvaluationLogRepository interface {
	Upsert(ctx context.Context, table string, entry *models.EvaluationLogEntry) error
	Get(ctx context.Context, table, workflowID, triggerKey string) (*models.EvaluationLogEntry, error)

	ManualFlag(ctx context.Context, table, workflowID, eventKey string) (bool, error)
	SetManualFlag(ctx context.Context, table string, flag *models.ManualFlag) error
}

// NotificationRepository is the in-product notification insert sink.
type NotificationRepository interface {
	Insert(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

// BatchScheduleRepository stores the batch evaluation cadence per mode.
type BatchScheduleRepository interface {
	GetByMode(ctx context.Context, mode models.TriggerMode) (*models.BatchSchedule, error)
	Save(ctx context.Context, schedule *models.BatchSchedule) error
}
