// Package models defines the core domain models for playbook workflow tracking.
package models

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// TriggerKind distinguishes the two members of the trigger union.
type TriggerKind string

const (
	TriggerKindDate  TriggerKind = "date"
	TriggerKindEvent TriggerKind = "event"
)

// EventKind identifies the condition an event trigger watches for.
type EventKind string

const (
	EventKindWorkflowActionCompleted EventKind = "workflow_action_completed"
	EventKindCustomerLogin           EventKind = "customer_login"
	EventKindUsageThresholdCrossed   EventKind = "usage_threshold_crossed"
	EventKindManualEvent             EventKind = "manual_event"
)

// Trigger is a declarative condition attached to a workflow execution.
// Exactly one of Date or Event is set, selected by Kind. Trigger configs are
// pure data; all evaluation behavior lives in pkg/evaluator.
type Trigger struct {
	ID        string              `json:"id"              validate:"required"`
	Kind      TriggerKind         `json:"kind"            validate:"required,oneof=date event"`
	Date      *DateTriggerConfig  `json:"date,omitempty"`
	Event     *EventTriggerConfig `json:"event,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// DateTriggerConfig fires once the configured instant has passed.
// Instant is kept as text on purpose: a malformed value must evaluate to
// not-fired instead of failing trigger construction.
type DateTriggerConfig struct {
	// Instant is an RFC 3339 timestamp.
	Instant string `json:"instant" validate:"required"`

	// Timezone is an optional IANA zone name. When set, the comparison is
	// made on wall-clock fields after projecting both sides into the zone.
	Timezone string `json:"timezone,omitempty"`
}

// EventTriggerConfig carries the per-kind parameter record for event triggers.
type EventTriggerConfig struct {
	Kind           EventKind                      `json:"kind" validate:"required,oneof=workflow_action_completed customer_login usage_threshold_crossed manual_event"`
	ActionComplete *WorkflowActionCompletedParams `json:"action_complete,omitempty"`
	UsageThreshold *UsageThresholdParams          `json:"usage_threshold,omitempty"`
	Manual         *ManualEventParams             `json:"manual,omitempty"`
}

// WorkflowActionCompletedParams watches the action log of an execution for a
// logged completion, optionally narrowed to a single action.
type WorkflowActionCompletedParams struct {
	ExecutionID string `json:"execution_id" validate:"required"`
	ActionID    string `json:"action_id,omitempty"`
}

// ThresholdOperator is one of the four supported numeric comparisons.
type ThresholdOperator string

const (
	OperatorGreater      ThresholdOperator = ">"
	OperatorGreaterEqual ThresholdOperator = ">="
	OperatorLess         ThresholdOperator = "<"
	OperatorLessEqual    ThresholdOperator = "<="
)

// Compare applies the operator to value against threshold.
func (op ThresholdOperator) Compare(value, threshold float64) (bool, error) {
	switch op {
	case OperatorGreater:
		return value > threshold, nil
	case OperatorGreaterEqual:
		return value >= threshold, nil
	case OperatorLess:
		return value < threshold, nil
	case OperatorLessEqual:
		return value <= threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, string(op))
	}
}

// UsageThresholdParams compares a named customer usage metric to a threshold.
type UsageThresholdParams struct {
	Metric    string            `json:"metric"    validate:"required"`
	Threshold float64           `json:"threshold"`
	Operator  ThresholdOperator `json:"operator"  validate:"required,oneof=> >= < <="`
}

// ManualEventParams fires once the flag named by EventKey has been set in the
// evaluator's backing log.
type ManualEventParams struct {
	EventKey string `json:"event_key" validate:"required"`
}

// Key returns a stable identity for this trigger's id plus configuration,
// used to upsert per-(workflow, trigger) evaluation log rows. A config change
// yields a new key and therefore a fresh audit row.
func (t *Trigger) Key() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(t.ID))
	_, _ = h.Write([]byte(t.Kind))

	if t.Date != nil {
		payload, _ := json.Marshal(t.Date)
		_, _ = h.Write(payload)
	}

	if t.Event != nil {
		payload, _ := json.Marshal(t.Event)
		_, _ = h.Write(payload)
	}

	return fmt.Sprintf("%s:%x", t.ID, h.Sum64())
}

// TriggerEvaluationResult is the outcome of evaluating a single trigger.
// Evaluation always produces a result; failures are captured in Error and
// never propagate as Go errors.
type TriggerEvaluationResult struct {
	TriggerID   string      `json:"trigger_id"`
	TriggerKind TriggerKind `json:"trigger_kind"`
	Fired       bool        `json:"fired"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
	Reason      string      `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// TriggerSetResult is the outcome of evaluating a trigger set. Triggers are
// OR-combined: FiredTrigger is the first trigger in input order whose result
// fired, and Results holds one entry per input trigger regardless.
type TriggerSetResult struct {
	Fired        bool                      `json:"fired"`
	FiredTrigger *Trigger                  `json:"fired_trigger,omitempty"`
	Results      []TriggerEvaluationResult `json:"results"`
}
