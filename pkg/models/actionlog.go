package models

import "time"

// Action names the kinds of state transitions written to the action log.
type Action string

const (
	ActionCreate     Action = "create"
	ActionStepUpdate Action = "step_update"
	ActionComplete   Action = "complete"
	ActionSkip       Action = "skip"
	ActionSnooze     Action = "snooze"
	ActionReactivate Action = "reactivate"
	ActionSubmit     Action = "submit_for_review"
	ActionApprove    Action = "approve"
	ActionRequest    Action = "request_changes"
	ActionReject     Action = "reject"
	ActionResubmit   Action = "resubmit"
	ActionEscalate   Action = "escalate"
)

// ActionLogEntry is one append-only record of a state transition. Entries
// are never updated or deleted.
type ActionLogEntry struct {
	ID          string         `json:"id"           validate:"required"`
	ExecutionID string         `json:"execution_id" validate:"required"`
	Action      Action         `json:"action"       validate:"required"`
	ActionID    string         `json:"action_id,omitempty"` // playbook action/step identity, when applicable
	ActorID     string         `json:"actor_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EvaluationLogEntry is one upserted audit row per (workflow, trigger
// identity + config). Re-evaluations increment Count in place.
type EvaluationLogEntry struct {
	ID          string      `json:"id"`
	WorkflowID  string      `json:"workflow_id"  validate:"required"`
	TriggerID   string      `json:"trigger_id"   validate:"required"`
	TriggerKey  string      `json:"trigger_key"  validate:"required"`
	TriggerKind TriggerKind `json:"trigger_kind"`
	Fired       bool        `json:"fired"`
	Count       int         `json:"count"`
	LastReason  string      `json:"last_reason,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	FirstAt     time.Time   `json:"first_at"`
	LastAt      time.Time   `json:"last_at"`
}

// ManualFlag is an externally set marker that satisfies a manual event
// trigger. Flags live in the evaluator variant's backing log.
type ManualFlag struct {
	WorkflowID string    `json:"workflow_id" validate:"required"`
	EventKey   string    `json:"event_key"   validate:"required"`
	Set        bool      `json:"set"`
	SetBy      string    `json:"set_by,omitempty"`
	SetAt      time.Time `json:"set_at"`
}

// Notification is an in-product alert row handed to the notification sink.
type Notification struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id" validate:"required"`
	ExecutionID string      `json:"execution_id,omitempty"`
	Mode        TriggerMode `json:"mode,omitempty"`
	Title       string      `json:"title" validate:"required"`
	Body        string      `json:"body,omitempty"`
	Urgency     Urgency     `json:"urgency,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
}
