// Package notifier records workflow actions and raises in-product notifications.
// Both paths are non-critical: failures are logged and swallowed so that state
// transitions never roll back because of bookkeeping.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/eventbus"
	"github.com/strackan/playbook-engine/pkg/events"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

type Notifier struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
}

func NewNotifier(p persistence.Persistence, eb eventbus.EventPublisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		persistence: p,
		eventBus:    eb,
		logger:      logger.With("module", "notifier"),
	}
}

// LogAction appends an entry to the execution's action log.
func (n *Notifier) LogAction(ctx context.Context, executionID string, action models.Action, actionID, actorID string, details map[string]any) {
	entry := models.ActionLogEntry{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Action:      action,
		ActionID:    actionID,
		ActorID:     actorID,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}

	if err := n.persistence.ActionLog().Append(ctx, &entry); err != nil {
		n.logger.WarnContext(ctx, "Failed to append action log entry",
			"execution_id", executionID, "action", action, "error", err)
	}
}

// Publish sends a lifecycle event on the bus, keyed by execution ID.
func (n *Notifier) Publish(ctx context.Context, executionID string, event eventbus.Event) {
	if n.eventBus == nil {
		return
	}

	if err := n.eventBus.Publish(ctx, executionID, event); err != nil {
		n.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"execution_id", executionID, "event_type", event.GetType(), "error", err)
	}
}

// NotifyTriggerFired stores an in-product notification for the execution owner
// and publishes the corresponding event. The review and escalate evaluators
// call this when a trigger fires; the snooze evaluator reactivates instead.
// Urgency comes from the caller (date escalations classify by how overdue
// the instant is); empty means normal.
func (n *Notifier) NotifyTriggerFired(ctx context.Context, execution *models.WorkflowExecution, mode models.TriggerMode, fired *models.TriggerEvaluationResult, urgency models.Urgency) {
	title := fmt.Sprintf("Playbook %s needs attention", execution.PlaybookID)
	body := fired.Reason
	if body == "" {
		body = fmt.Sprintf("%s trigger fired for customer %s", mode, execution.CustomerID)
	}

	if urgency == "" {
		urgency = models.UrgencyNormal
	}

	notification := models.Notification{
		ID:          uuid.New().String(),
		UserID:      execution.UserID,
		ExecutionID: execution.ID,
		Mode:        mode,
		Title:       title,
		Body:        body,
		Urgency:     urgency,
		CreatedAt:   time.Now().UTC(),
	}

	if err := n.persistence.Notifications().Insert(ctx, &notification); err != nil {
		n.logger.WarnContext(ctx, "Failed to store notification",
			"execution_id", execution.ID, "mode", mode, "error", err)
	}

	event := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, execution.ID),
		Mode:        mode,
		TriggerID:   fired.TriggerID,
		TriggerKind: fired.TriggerKind,
		Urgency:     urgency,
	}
	n.Publish(ctx, execution.ID, event)
}
