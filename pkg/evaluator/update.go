package evaluator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/models"
)

// UpdateWithEvaluationResults applies a trigger set result to the execution
// and persists it. On no-fire only the mode's LastEvaluatedAt advances,
// which is what makes re-evaluation idempotent. On fire the mode's FiredAt
// and FiredTriggerKind are stamped too, and the snooze variant additionally
// moves the execution back to in-progress, clears the snooze reason, and
// consumes the trigger set so later passes leave the execution alone.
//
// The bool result carries the variant's semantics: shouldReactivate for the
// snooze variant, shouldNotify for review and escalate.
func (c *Core) UpdateWithEvaluationResults(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution, setResult models.TriggerSetResult) (bool, error) {
	state := execution.ModeState(variant.Mode)
	if state == nil {
		return false, fmt.Errorf("%w: %q", models.ErrUnknownTriggerMode, string(variant.Mode))
	}

	triggers := state.Triggers

	now := c.now()
	state.LastEvaluatedAt = &now

	if setResult.Fired {
		state.FiredAt = &now
		state.FiredTriggerKind = setResult.FiredTrigger.Kind

		if variant.ChangesStatus {
			execution.Status = models.ExecutionStatusInProgress
			execution.SnoozeReason = ""

			// The trigger set is consumed by the wake-up. Clearing it takes
			// the execution out of later due sets, so a fired trigger cannot
			// re-fire and overwrite the FiredAt stamp on the next pass.
			state.Triggers = nil
		}
	}

	execution.UpdatedAt = now

	if err := c.persistence.Executions().Save(ctx, execution); err != nil {
		return false, fmt.Errorf("failed to persist evaluation results for %s: %w", execution.ID, err)
	}

	c.logEvaluations(ctx, variant, execution.ID, triggers, setResult)

	return setResult.Fired, nil
}

// logEvaluations upserts one audit row per evaluated trigger. This is a
// non-critical path: failures are logged and swallowed so audit problems
// never fail an evaluation pass.
func (c *Core) logEvaluations(ctx context.Context, variant VariantConfig, workflowID string, triggers []*models.Trigger, setResult models.TriggerSetResult) {
	for i := range setResult.Results {
		// Results follow trigger input order.
		var trigger *models.Trigger
		if i < len(triggers) {
			trigger = triggers[i]
		}

		c.LogEvaluation(ctx, variant, workflowID, trigger, setResult.Results[i])
	}
}

// LogEvaluation records one trigger's evaluation, keyed by the trigger's
// identity plus configuration so a config change starts a fresh audit row.
// Log failures are swallowed.
func (c *Core) LogEvaluation(ctx context.Context, variant VariantConfig, workflowID string, trigger *models.Trigger, result models.TriggerEvaluationResult) {
	key := result.TriggerID
	if trigger != nil {
		key = trigger.Key()
	}

	entry := &models.EvaluationLogEntry{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		TriggerID:   result.TriggerID,
		TriggerKey:  key,
		TriggerKind: result.TriggerKind,
		Fired:       result.Fired,
		LastReason:  result.Reason,
		LastError:   result.Error,
		LastAt:      result.EvaluatedAt,
	}

	if err := c.persistence.EvaluationLogs().Upsert(ctx, variant.LogTable, entry); err != nil {
		c.logger.Warn("failed to upsert evaluation log row",
			"variant", variant.FieldPrefix,
			"table", variant.LogTable,
			"workflow_id", workflowID,
			"trigger_id", result.TriggerID,
			"error", err)
	}
}
