// Package scheduler runs batch trigger evaluation passes over all executions
// due for a given evaluator mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// batchSize is the page size for ListDueForEvaluation. One page is also the
// concurrency bound for a batch.
const batchSize = 100

// BatchResult aggregates one full evaluation pass.
type BatchResult struct {
	Mode models.TriggerMode `json:"mode"`

	// ResultLabel carries the variant's semantics for the fired counts:
	// should_reactivate means Reactivated is the interesting number,
	// should_notify means Notified is.
	ResultLabel evaluator.ResultLabel `json:"result_label"`

	Evaluated   int                `json:"evaluated"`
	Reactivated int                `json:"reactivated"`
	Notified    int                `json:"notified"`
	Errors      int                `json:"errors"`

	// ErrorDetails holds one line per failed workflow so a single bad row
	// never hides the rest of the pass.
	ErrorDetails []string `json:"error_details,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BatchEvaluator pages due executions and evaluates each batch concurrently.
// Per-workflow failures are isolated and counted; the pass always runs to the
// end of its pages. Passes are idempotent, so overlapping runs are safe.
type BatchEvaluator struct {
	persistence persistence.Persistence
	core        *evaluator.Core
	notifier    *notifier.Notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewBatchEvaluator creates a batch evaluator over the given core.
func NewBatchEvaluator(p persistence.Persistence, core *evaluator.Core, n *notifier.Notifier, logger *slog.Logger) *BatchEvaluator {
	return &BatchEvaluator{
		persistence: p,
		core:        core,
		notifier:    n,
		logger:      logger.With("module", "scheduler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the evaluator's clock. Tests use this to pin time.
func (b *BatchEvaluator) WithClock(now func() time.Time) *BatchEvaluator {
	b.now = now

	return b
}

// RunBatch evaluates every execution due for the given mode, in pages of
// batchSize, until a short page signals the end.
func (b *BatchEvaluator) RunBatch(ctx context.Context, mode models.TriggerMode) (*BatchResult, error) {
	variant, err := evaluator.VariantFor(mode)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("playbook-engine/scheduler").Start(ctx, "scheduler.run_batch")
	defer span.End()

	span.SetAttributes(
		attribute.String("evaluator.mode", string(mode)),
		attribute.String("evaluator.variant", variant.FieldPrefix),
	)

	result := &BatchResult{Mode: mode, ResultLabel: variant.ResultLabel, StartedAt: b.now()}
	offset := 0

	for {
		page, err := b.persistence.Executions().ListDueForEvaluation(ctx, mode, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list executions due for evaluation: %w", err)
		}

		if len(page) == 0 {
			break
		}

		b.evaluatePage(ctx, variant, page, result)

		if len(page) < batchSize {
			break
		}

		offset += batchSize
	}

	result.FinishedAt = b.now()
	span.SetAttributes(
		attribute.Int("evaluator.evaluated", result.Evaluated),
		attribute.Int("evaluator.errors", result.Errors),
	)

	b.logger.InfoContext(ctx, "Batch evaluation pass finished",
		"mode", mode,
		"variant", variant.FieldPrefix,
		"result", string(result.ResultLabel),
		"evaluated", result.Evaluated,
		"reactivated", result.Reactivated,
		"notified", result.Notified,
		"errors", result.Errors,
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

// evaluatePage fans one page out across goroutines and folds the outcomes
// back into the aggregate under a single mutex.
func (b *BatchEvaluator) evaluatePage(ctx context.Context, variant evaluator.VariantConfig, page []*models.WorkflowExecution, result *BatchResult) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, execution := range page {
		wg.Add(1)

		go func(execution *models.WorkflowExecution) {
			defer wg.Done()

			fired, err := b.evaluateOne(ctx, variant, execution)

			mu.Lock()
			defer mu.Unlock()

			result.Evaluated++

			switch {
			case err != nil:
				result.Errors++
				result.ErrorDetails = append(result.ErrorDetails,
					fmt.Sprintf("workflow %s: %v", execution.ID, err))
			case fired && variant.Mode == models.TriggerModeSnooze:
				result.Reactivated++
			case fired:
				result.Notified++
			}
		}(execution)
	}

	wg.Wait()
}

// evaluateOne runs the full evaluate-update-notify cycle for a single
// execution. A panic in one workflow is converted to an error so it cannot
// take down the rest of the batch.
func (b *BatchEvaluator) evaluateOne(ctx context.Context, variant evaluator.VariantConfig, execution *models.WorkflowExecution) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()

	setResult := b.core.EvaluateAll(ctx, variant, execution)

	fired, err = b.core.UpdateWithEvaluationResults(ctx, variant, execution, setResult)
	if err != nil {
		return false, err
	}

	if fired && variant.Mode != models.TriggerModeSnooze {
		urgency := b.firedUrgency(setResult.FiredTrigger)
		b.notifier.NotifyTriggerFired(ctx, execution, variant.Mode, firedResult(setResult), urgency)
	}

	return fired, nil
}

// firedUrgency classifies a fired date trigger by how overdue its instant
// is. Event triggers and unparseable instants are normal.
func (b *BatchEvaluator) firedUrgency(trigger *models.Trigger) models.Urgency {
	if trigger == nil || trigger.Kind != models.TriggerKindDate || trigger.Date == nil {
		return models.UrgencyNormal
	}

	instant, err := time.Parse(time.RFC3339, trigger.Date.Instant)
	if err != nil {
		return models.UrgencyNormal
	}

	return models.UrgencyFor(instant, b.now())
}

func firedResult(setResult models.TriggerSetResult) *models.TriggerEvaluationResult {
	for i := range setResult.Results {
		if setResult.Results[i].Fired {
			return &setResult.Results[i]
		}
	}

	return &models.TriggerEvaluationResult{}
}
