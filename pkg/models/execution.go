package models

import (
	"math"
	"time"
)

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusNotStarted               ExecutionStatus = "not_started"
	ExecutionStatusInProgress               ExecutionStatus = "in_progress"
	ExecutionStatusCompleted                ExecutionStatus = "completed"
	ExecutionStatusCompletedWithPendingTasks ExecutionStatus = "completed_with_pending_tasks"
	ExecutionStatusSnoozed                  ExecutionStatus = "snoozed"
	ExecutionStatusSkipped                  ExecutionStatus = "skipped"
	ExecutionStatusAbandoned                ExecutionStatus = "abandoned"
)

// Terminal reports whether an execution in this status has finished. Terminal
// executions only change state through explicit reactivation or resubmission.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusCompletedWithPendingTasks, ExecutionStatusAbandoned:
		return true
	default:
		return false
	}
}

// TriggerMode names one of the three evaluator behaviors that share the
// trigger evaluation core.
type TriggerMode string

const (
	TriggerModeSnooze   TriggerMode = "snooze"
	TriggerModeReview   TriggerMode = "review"
	TriggerModeEscalate TriggerMode = "escalate"
)

// TriggerModes lists all modes in a stable order.
var TriggerModes = []TriggerMode{TriggerModeSnooze, TriggerModeReview, TriggerModeEscalate}

// TriggerModeState holds one behavior mode's trigger set and evaluation
// bookkeeping. Each execution carries three of these as explicit fields
// rather than prefix-concatenated column names.
type TriggerModeState struct {
	Triggers         []*Trigger  `json:"triggers,omitempty"`
	LastEvaluatedAt  *time.Time  `json:"last_evaluated_at,omitempty"`
	FiredAt          *time.Time  `json:"fired_at,omitempty"`
	FiredTriggerKind TriggerKind `json:"fired_trigger_kind,omitempty"`
}

// WorkflowExecution is one instance of a multi-step playbook being tracked
// for a customer.
type WorkflowExecution struct {
	ID         string `json:"id"          validate:"required"`
	PlaybookID string `json:"playbook_id" validate:"required"`
	UserID     string `json:"user_id"     validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`

	Status           ExecutionStatus `json:"status"`
	CurrentStepIndex int             `json:"current_step_index"`
	TotalSteps       int             `json:"total_steps" validate:"min=0"`

	// Step counters and the derived completion percentage are recomputed
	// from persisted step rows on every change, never drifted incrementally.
	CompletedStepsCount  int `json:"completed_steps_count"`
	SkippedStepsCount    int `json:"skipped_steps_count"`
	CompletionPercentage int `json:"completion_percentage"`

	SnoozeReason string `json:"snooze_reason,omitempty"`

	Snooze   TriggerModeState `json:"snooze"`
	Review   TriggerModeState `json:"review"`
	Escalate TriggerModeState `json:"escalate"`

	ReviewState *ReviewState `json:"review_state,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ModeState returns the trigger state for the given behavior mode. Unknown
// modes return nil.
func (e *WorkflowExecution) ModeState(mode TriggerMode) *TriggerModeState {
	switch mode {
	case TriggerModeSnooze:
		return &e.Snooze
	case TriggerModeReview:
		return &e.Review
	case TriggerModeEscalate:
		return &e.Escalate
	default:
		return nil
	}
}

// CompletionPercentage derives the percent-complete value from step counts.
// The result is always an integer in [0, 100]; a zero step total yields 0.
func CompletionPercentage(completed, skipped, total int) int {
	if total <= 0 {
		return 0
	}

	pct := int(math.Round(100 * float64(completed+skipped) / float64(total)))
	if pct < 0 {
		return 0
	}

	if pct > 100 {
		return 100
	}

	return pct
}
