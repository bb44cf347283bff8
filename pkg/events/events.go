// Package events defines the typed events published for workflow execution
// state transitions. Every transition the action log records also goes out
// on the event bus so in-product alerting can react without polling.
package events

import (
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
)

type EventType string

// Topic is the event bus topic for execution lifecycle events.
const Topic = "playbook.execution.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionCreatedEvent     EventType = "execution.created"
	ExecutionStartedEvent     EventType = "execution.started"
	StepCompletedEvent        EventType = "execution.step.completed"
	StepSkippedEvent          EventType = "execution.step.skipped"
	ExecutionCompletedEvent   EventType = "execution.completed"
	ExecutionSnoozedEvent     EventType = "execution.snoozed"
	ExecutionReactivatedEvent EventType = "execution.reactivated"
	ReviewSubmittedEvent      EventType = "execution.review.submitted"
	ReviewApprovedEvent       EventType = "execution.review.approved"
	ReviewRejectedEvent       EventType = "execution.review.rejected"
	ReviewResubmittedEvent    EventType = "execution.review.resubmitted"
	TriggerFiredEvent         EventType = "execution.trigger.fired"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
}

// NewBaseEvent creates the common event envelope.
func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

type ExecutionCreated struct {
	BaseEvent

	PlaybookID string `json:"playbook_id"`
	CustomerID string `json:"customer_id"`
	UserID     string `json:"user_id"`
	TotalSteps int    `json:"total_steps"`
}

func (e ExecutionCreated) GetType() EventType { return ExecutionCreatedEvent }

type ExecutionStarted struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type StepCompleted struct {
	BaseEvent

	StepID               string `json:"step_id"`
	CompletionPercentage int    `json:"completion_percentage"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type StepSkipped struct {
	BaseEvent

	StepID               string `json:"step_id"`
	CompletionPercentage int    `json:"completion_percentage"`
}

func (e StepSkipped) GetType() EventType { return StepSkippedEvent }

type ExecutionCompleted struct {
	BaseEvent

	Status           models.ExecutionStatus `json:"status"`
	OutstandingTasks int                    `json:"outstanding_tasks"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionSnoozed struct {
	BaseEvent

	Reason       string `json:"reason,omitempty"`
	TriggerCount int    `json:"trigger_count"`
}

func (e ExecutionSnoozed) GetType() EventType { return ExecutionSnoozedEvent }

type ExecutionReactivated struct {
	BaseEvent

	FiredTriggerID   string             `json:"fired_trigger_id,omitempty"`
	FiredTriggerKind models.TriggerKind `json:"fired_trigger_kind,omitempty"`
}

func (e ExecutionReactivated) GetType() EventType { return ExecutionReactivatedEvent }

type ReviewSubmitted struct {
	BaseEvent

	ReviewerID string `json:"reviewer_id"`
	Iteration  int    `json:"iteration"`
}

func (e ReviewSubmitted) GetType() EventType { return ReviewSubmittedEvent }

type ReviewApproved struct {
	BaseEvent

	ReviewerID string `json:"reviewer_id"`
	Iteration  int    `json:"iteration"`
}

func (e ReviewApproved) GetType() EventType { return ReviewApprovedEvent }

type ReviewRejected struct {
	BaseEvent

	ReviewerID string `json:"reviewer_id"`
	Iteration  int    `json:"iteration"`
	Comments   string `json:"comments"`
}

func (e ReviewRejected) GetType() EventType { return ReviewRejectedEvent }

type ReviewResubmitted struct {
	BaseEvent

	Iteration int `json:"iteration"`
}

func (e ReviewResubmitted) GetType() EventType { return ReviewResubmittedEvent }

type TriggerFired struct {
	BaseEvent

	Mode        models.TriggerMode `json:"mode"`
	TriggerID   string             `json:"trigger_id"`
	TriggerKind models.TriggerKind `json:"trigger_kind"`
	Urgency     models.Urgency     `json:"urgency,omitempty"`
}

func (e TriggerFired) GetType() EventType { return TriggerFiredEvent }
