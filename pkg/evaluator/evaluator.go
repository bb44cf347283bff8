// Package evaluator implements the trigger evaluation core shared by the
// snooze, review and escalate behaviors. Evaluation is total: every path
// produces a TriggerEvaluationResult and failures are captured in the
// result's Error field rather than returned, so a bad trigger can never
// abort a batch.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// MetricReader fetches a named usage metric for a customer. The bool result
// reports whether the metric exists.
type MetricReader interface {
	UsageMetric(ctx context.Context, customerID, metric string) (float64, bool, error)
}

// Core evaluates triggers against the backing store. It is safe for
// concurrent use; all state lives in the store.
type Core struct {
	persistence persistence.Persistence
	metrics     MetricReader
	logger      *slog.Logger
	now         func() time.Time
}

// NewCore creates an evaluation core.
func NewCore(p persistence.Persistence, metrics MetricReader, logger *slog.Logger) *Core {
	return &Core{
		persistence: p,
		metrics:     metrics,
		logger:      logger.With("module", "evaluator"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the core's clock. Tests use this to pin "now".
func (c *Core) WithClock(now func() time.Time) *Core {
	c.now = now

	return c
}

// Evaluate decides fired/not-fired for a single trigger of the given
// execution under the given variant.
func (c *Core) Evaluate(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution, trigger *models.Trigger) models.TriggerEvaluationResult {
	result := models.TriggerEvaluationResult{
		TriggerID:   trigger.ID,
		TriggerKind: trigger.Kind,
		EvaluatedAt: c.now(),
	}

	switch trigger.Kind {
	case models.TriggerKindDate:
		c.evaluateDate(trigger, &result)
	case models.TriggerKindEvent:
		c.evaluateEvent(ctx, variant, execution, trigger, &result)
	default:
		result.Error = fmt.Sprintf("unknown trigger kind %q", trigger.Kind)
	}

	return result
}

// EvaluateAll evaluates the execution's whole trigger set for the variant's
// mode. Every trigger is evaluated so all results can be logged; the fired
// trigger is the first in input order whose result fired.
func (c *Core) EvaluateAll(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution) models.TriggerSetResult {
	state := execution.ModeState(variant.Mode)

	setResult := models.TriggerSetResult{}
	if state == nil {
		return setResult
	}

	setResult.Results = make([]models.TriggerEvaluationResult, 0, len(state.Triggers))

	for _, trigger := range state.Triggers {
		result := c.Evaluate(ctx, variant, execution, trigger)
		setResult.Results = append(setResult.Results, result)

		if result.Fired && !setResult.Fired {
			setResult.Fired = true
			setResult.FiredTrigger = trigger
		}
	}

	return setResult
}

func (c *Core) evaluateDate(trigger *models.Trigger, result *models.TriggerEvaluationResult) {
	cfg := trigger.Date
	if cfg == nil {
		result.Reason = "date trigger has no date configuration"

		return
	}

	instant, err := time.Parse(time.RFC3339, cfg.Instant)
	if err != nil {
		result.Error = fmt.Sprintf("unparsable instant %q: %v", cfg.Instant, err)

		return
	}

	now := result.EvaluatedAt

	if cfg.Timezone == "" {
		result.Fired = !now.Before(instant)
		if !result.Fired {
			result.Reason = "instant not yet reached"
		}

		return
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		result.Error = fmt.Sprintf("unknown timezone %q: %v", cfg.Timezone, err)

		return
	}

	// Compare wall-clock fields in the configured zone: "has this calendar
	// moment passed" for a human in that zone, ignoring sub-second
	// precision.
	result.Fired = !wallClockBefore(now.In(location), instant.In(location))
	if !result.Fired {
		result.Reason = "instant not yet reached in " + cfg.Timezone
	}
}

// wallClockBefore reports whether a's calendar fields (year through second)
// come before b's.
func wallClockBefore(a, b time.Time) bool {
	af := [6]int{a.Year(), int(a.Month()), a.Day(), a.Hour(), a.Minute(), a.Second()}
	bf := [6]int{b.Year(), int(b.Month()), b.Day(), b.Hour(), b.Minute(), b.Second()}

	for i := range af {
		if af[i] != bf[i] {
			return af[i] < bf[i]
		}
	}

	return false
}

func (c *Core) evaluateEvent(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution, trigger *models.Trigger, result *models.TriggerEvaluationResult) {
	cfg := trigger.Event
	if cfg == nil {
		result.Reason = "event trigger has no event configuration"

		return
	}

	switch cfg.Kind {
	case models.EventKindWorkflowActionCompleted:
		c.evaluateActionCompleted(ctx, cfg.ActionComplete, result)
	case models.EventKindCustomerLogin:
		c.evaluateCustomerLogin(ctx, variant, execution, result)
	case models.EventKindUsageThresholdCrossed:
		c.evaluateUsageThreshold(ctx, execution, cfg.UsageThreshold, result)
	case models.EventKindManualEvent:
		c.evaluateManualEvent(ctx, variant, execution, cfg.Manual, result)
	default:
		result.Error = fmt.Sprintf("unknown event kind %q", cfg.Kind)
	}
}

func (c *Core) evaluateActionCompleted(ctx context.Context, params *models.WorkflowActionCompletedParams, result *models.TriggerEvaluationResult) {
	if params == nil || params.ExecutionID == "" {
		result.Reason = "missing execution reference for action-completed trigger"

		return
	}

	completed, err := c.persistence.ActionLog().HasCompletedAction(ctx, params.ExecutionID, params.ActionID)
	if err != nil {
		result.Error = fmt.Sprintf("action log read failed: %v", err)

		return
	}

	result.Fired = completed
	if !completed {
		result.Reason = "no completed action logged"
	}
}

func (c *Core) evaluateCustomerLogin(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution, result *models.TriggerEvaluationResult) {
	profile, err := c.persistence.Customers().GetByID(ctx, execution.CustomerID)
	if err != nil {
		if persistence.IsCustomerNotFound(err) {
			result.Reason = "customer profile not found"
		} else {
			result.Error = fmt.Sprintf("customer read failed: %v", err)
		}

		return
	}

	if profile.LastLoginAt == nil {
		result.Reason = "customer has never logged in"

		return
	}

	// Strictly after the mode's last evaluation, so re-evaluating without a
	// fresh login never re-fires.
	lastEvaluated := execution.ModeState(variant.Mode).LastEvaluatedAt
	if lastEvaluated != nil && !profile.LastLoginAt.After(*lastEvaluated) {
		result.Reason = "no login since last evaluation"

		return
	}

	result.Fired = true
}

func (c *Core) evaluateUsageThreshold(ctx context.Context, execution *models.WorkflowExecution, params *models.UsageThresholdParams, result *models.TriggerEvaluationResult) {
	if params == nil || params.Metric == "" {
		result.Reason = "missing metric name for usage-threshold trigger"

		return
	}

	value, found, err := c.metrics.UsageMetric(ctx, execution.CustomerID, params.Metric)
	if err != nil {
		result.Error = fmt.Sprintf("metric read failed: %v", err)

		return
	}

	if !found {
		result.Reason = fmt.Sprintf("metric %q not available for customer", params.Metric)

		return
	}

	fired, err := params.Operator.Compare(value, params.Threshold)
	if err != nil {
		result.Error = err.Error()

		return
	}

	result.Fired = fired
	if !fired {
		result.Reason = fmt.Sprintf("metric %s=%v does not satisfy %s %v", params.Metric, value, params.Operator, params.Threshold)
	}
}

func (c *Core) evaluateManualEvent(ctx context.Context, variant VariantConfig, execution *models.WorkflowExecution, params *models.ManualEventParams, result *models.TriggerEvaluationResult) {
	if params == nil || params.EventKey == "" {
		result.Reason = "missing event key for manual trigger"

		return
	}

	set, err := c.persistence.EvaluationLogs().ManualFlag(ctx, variant.LogTable, execution.ID, params.EventKey)
	if err != nil {
		result.Error = fmt.Sprintf("manual flag read failed: %v", err)

		return
	}

	result.Fired = set
	if !set {
		result.Reason = fmt.Sprintf("flag %q not set", params.EventKey)
	}
}
