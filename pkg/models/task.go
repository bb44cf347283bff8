package models

import "time"

// TaskStatus represents the state of a task attached to an execution.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusSnoozed    TaskStatus = "snoozed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Outstanding reports whether a task in this status still blocks a clean
// workflow completion.
func (s TaskStatus) Outstanding() bool {
	switch s {
	case TaskStatusPending, TaskStatusSnoozed, TaskStatusInProgress:
		return true
	default:
		return false
	}
}

// Urgency classifies how close a task is to its due date.
type Urgency string

const (
	UrgencyOverdue  Urgency = "overdue"
	UrgencyCritical Urgency = "critical" // due today
	UrgencyUrgent   Urgency = "urgent"   // due in 1-2 days
	UrgencyUpcoming Urgency = "upcoming" // due in 3-7 days
	UrgencyNormal   Urgency = "normal"
)

// UrgencyFor classifies a due date relative to now, comparing calendar days.
func UrgencyFor(dueDate, now time.Time) Urgency {
	dueDay := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days := int(dueDay.Sub(today).Hours() / 24)

	switch {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyCritical
	case days <= 2:
		return UrgencyUrgent
	case days <= 7:
		return UrgencyUpcoming
	default:
		return UrgencyNormal
	}
}

// Task is an obligation attached to a workflow execution. Outstanding tasks
// keep CompleteWorkflow from closing the execution cleanly.
type Task struct {
	ID           string     `json:"id"           validate:"required"`
	ExecutionID  string     `json:"execution_id" validate:"required"`
	Title        string     `json:"title"        validate:"required"`
	Description  string     `json:"description,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	Status       TaskStatus `json:"status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Urgency classifies the task's due date relative to now. Tasks without a
// due date are normal.
func (t *Task) Urgency(now time.Time) Urgency {
	if t.DueDate == nil {
		return UrgencyNormal
	}

	return UrgencyFor(*t.DueDate, now)
}
