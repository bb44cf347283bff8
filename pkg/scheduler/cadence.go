package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// DefaultCadences is the out-of-the-box cron cadence per evaluator mode.
// Snooze wakes hourly, review and escalate poll more often because a person
// is waiting on them.
var DefaultCadences = map[models.TriggerMode]string{
	models.TriggerModeSnooze:   "0 * * * *",
	models.TriggerModeReview:   "*/15 * * * *",
	models.TriggerModeEscalate: "*/15 * * * *",
}

// CadenceRunner polls the per-mode BatchSchedule rows and runs a batch pass
// whenever one is due. The schedule rows are the source of truth, so any
// number of runner processes can poll without coordinating.
type CadenceRunner struct {
	persistence persistence.Persistence
	evaluator   *BatchEvaluator
	logger      *slog.Logger
	interval    time.Duration
}

// NewCadenceRunner creates a runner polling at the given interval.
func NewCadenceRunner(p persistence.Persistence, evaluator *BatchEvaluator, logger *slog.Logger, interval time.Duration) *CadenceRunner {
	if interval <= 0 {
		interval = time.Minute
	}

	return &CadenceRunner{
		persistence: p,
		evaluator:   evaluator,
		logger:      logger.With("module", "scheduler.cadence"),
		interval:    interval,
	}
}

// EnsureSchedules creates the schedule row for any mode that has none yet.
func (r *CadenceRunner) EnsureSchedules(ctx context.Context) error {
	for _, mode := range models.TriggerModes {
		_, err := r.persistence.BatchSchedules().GetByMode(ctx, mode)
		if err == nil {
			continue
		}

		if !persistence.IsScheduleNotFound(err) {
			return fmt.Errorf("failed to load schedule for mode %s: %w", mode, err)
		}

		schedule, err := models.NewBatchSchedule(uuid.New().String(), mode, DefaultCadences[mode])
		if err != nil {
			return fmt.Errorf("failed to build schedule for mode %s: %w", mode, err)
		}

		if err := r.persistence.BatchSchedules().Save(ctx, schedule); err != nil {
			return fmt.Errorf("failed to save schedule for mode %s: %w", mode, err)
		}

		r.logger.InfoContext(ctx, "Created batch schedule",
			"mode", mode, "cron", schedule.CronExpression, "next_due_at", schedule.NextDueAt)
	}

	return nil
}

// RunDue runs a batch pass for every mode whose schedule is due, advancing
// NextDueAt afterwards. Evaluation errors inside a pass are already isolated
// per workflow; a pass that fails outright is logged and skipped so the
// other modes still run.
func (r *CadenceRunner) RunDue(ctx context.Context) []*BatchResult {
	now := time.Now().UTC()
	results := make([]*BatchResult, 0, len(models.TriggerModes))

	for _, mode := range models.TriggerModes {
		schedule, err := r.persistence.BatchSchedules().GetByMode(ctx, mode)
		if err != nil {
			if !persistence.IsScheduleNotFound(err) {
				r.logger.ErrorContext(ctx, "Failed to load batch schedule", "mode", mode, "error", err)
			}

			continue
		}

		if !schedule.IsDue(now) {
			continue
		}

		result, err := r.evaluator.RunBatch(ctx, mode)
		if err != nil {
			r.logger.ErrorContext(ctx, "Batch pass failed", "mode", mode, "error", err)

			continue
		}

		results = append(results, result)

		if err := schedule.UpdateNextDueAt(); err != nil {
			r.logger.ErrorContext(ctx, "Failed to advance schedule", "mode", mode, "error", err)

			continue
		}

		if err := r.persistence.BatchSchedules().Save(ctx, schedule); err != nil {
			r.logger.ErrorContext(ctx, "Failed to save schedule", "mode", mode, "error", err)
		}
	}

	return results
}

// Start polls until the context is cancelled.
func (r *CadenceRunner) Start(ctx context.Context) error {
	if err := r.EnsureSchedules(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "Cadence runner started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunDue(ctx)
		}
	}
}
