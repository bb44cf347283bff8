package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strackan/playbook-engine/pkg/evaluator"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/notifier"
	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/persistence/file"
)

type stubMetrics struct {
	values map[string]float64
}

func (s stubMetrics) UsageMetric(_ context.Context, _, metric string) (float64, bool, error) {
	value, found := s.values[metric]

	return value, found, nil
}

func newTestEvaluator(t *testing.T) (*BatchEvaluator, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	core := evaluator.NewCore(p, stubMetrics{}, slog.Default())
	n := notifier.NewNotifier(p, nil, slog.Default())

	return NewBatchEvaluator(p, core, n, slog.Default()), p
}

func dateTrigger(id, instant string) *models.Trigger {
	return &models.Trigger{
		ID:   id,
		Kind: models.TriggerKindDate,
		Date: &models.DateTriggerConfig{Instant: instant},
	}
}

func storeExecution(t *testing.T, p persistence.Persistence, execution *models.WorkflowExecution) {
	t.Helper()

	now := time.Now().UTC()
	execution.CreatedAt = now
	execution.UpdatedAt = now

	require.NoError(t, p.Executions().Create(t.Context(), execution))
}

func TestRunBatch_SnoozeReactivation(t *testing.T) {
	batch, p := newTestEvaluator(t)

	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-due", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
		Status:       models.ExecutionStatusSnoozed,
		SnoozeReason: "waiting on customer",
		Snooze: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-1", "2020-01-01T00:00:00Z")},
		},
	})

	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-future", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-2",
		Status:       models.ExecutionStatusSnoozed,
		SnoozeReason: "check back next year",
		Snooze: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-2", "2099-01-01T00:00:00Z")},
		},
	})

	// No snooze triggers at all, so the pass never sees this one.
	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-plain", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-3",
		Status: models.ExecutionStatusInProgress,
	})

	result, err := batch.RunBatch(t.Context(), models.TriggerModeSnooze)
	require.NoError(t, err)

	assert.Equal(t, models.TriggerModeSnooze, result.Mode)
	assert.Equal(t, evaluator.ResultShouldReactivate, result.ResultLabel)
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Reactivated)
	assert.Equal(t, 0, result.Notified)
	assert.Equal(t, 0, result.Errors)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	fired, err := p.Executions().GetByID(t.Context(), "exec-due")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, fired.Status)
	assert.Empty(t, fired.SnoozeReason)
	assert.Empty(t, fired.Snooze.Triggers)
	require.NotNil(t, fired.Snooze.FiredAt)

	dormant, err := p.Executions().GetByID(t.Context(), "exec-future")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSnoozed, dormant.Status)
	assert.Equal(t, "check back next year", dormant.SnoozeReason)
	assert.NotNil(t, dormant.Snooze.LastEvaluatedAt)
	assert.Nil(t, dormant.Snooze.FiredAt)

	// Reactivation wakes the execution directly, it does not notify.
	notifications, err := p.Notifications().ListByUser(t.Context(), "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestRunBatch_ReviewNotifies(t *testing.T) {
	batch, p := newTestEvaluator(t)

	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-review", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
		Status: models.ExecutionStatusInProgress,
		Review: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-1", "2020-01-01T00:00:00Z")},
		},
	})

	result, err := batch.RunBatch(t.Context(), models.TriggerModeReview)
	require.NoError(t, err)

	assert.Equal(t, evaluator.ResultShouldNotify, result.ResultLabel)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 0, result.Reactivated)
	assert.Equal(t, 1, result.Notified)

	// A review fire flags the execution without changing its lifecycle.
	execution, err := p.Executions().GetByID(t.Context(), "exec-review")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)
	require.NotNil(t, execution.Review.FiredAt)

	notifications, err := p.Notifications().ListByUser(t.Context(), "user-1", true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "exec-review", notifications[0].ExecutionID)
	assert.Equal(t, models.TriggerModeReview, notifications[0].Mode)
	assert.Equal(t, models.UrgencyOverdue, notifications[0].Urgency)
}

func TestRunBatch_ReactivatedExecutionStaysAwake(t *testing.T) {
	batch, p := newTestEvaluator(t)

	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-due", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
		Status:       models.ExecutionStatusSnoozed,
		SnoozeReason: "waiting on customer",
		Snooze: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-1", "2020-01-01T00:00:00Z")},
		},
	})

	first, err := batch.RunBatch(t.Context(), models.TriggerModeSnooze)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Reactivated)

	woken, err := p.Executions().GetByID(t.Context(), "exec-due")
	require.NoError(t, err)
	require.NotNil(t, woken.Snooze.FiredAt)
	firedAt := *woken.Snooze.FiredAt

	// The reactivated execution has left the due set, so a second pass
	// neither re-counts it nor touches its fired stamp.
	second, err := batch.RunBatch(t.Context(), models.TriggerModeSnooze)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Evaluated)
	assert.Equal(t, 0, second.Reactivated)

	after, err := p.Executions().GetByID(t.Context(), "exec-due")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, after.Status)
	require.NotNil(t, after.Snooze.FiredAt)
	assert.Equal(t, firedAt, *after.Snooze.FiredAt)
}

type failingSaves struct {
	persistence.Persistence

	failID string
}

func (p *failingSaves) Executions() persistence.ExecutionRepository {
	return &failingExecutionSaves{ExecutionRepository: p.Persistence.Executions(), failID: p.failID}
}

type failingExecutionSaves struct {
	persistence.ExecutionRepository

	failID string
}

func (r *failingExecutionSaves) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == r.failID {
		return errors.New("write refused")
	}

	return r.ExecutionRepository.Save(ctx, execution)
}

func TestRunBatch_IsolatesFailingWorkflow(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	p := &failingSaves{Persistence: store, failID: "exec-2"}

	core := evaluator.NewCore(p, stubMetrics{}, slog.Default())
	n := notifier.NewNotifier(p, nil, slog.Default())
	batch := NewBatchEvaluator(p, core, n, slog.Default())

	for _, id := range []string{"exec-1", "exec-2", "exec-3"} {
		storeExecution(t, store, &models.WorkflowExecution{
			ID: id, PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
			Status:       models.ExecutionStatusSnoozed,
			SnoozeReason: "waiting on customer",
			Snooze: models.TriggerModeState{
				Triggers: []*models.Trigger{dateTrigger("t-1", "2020-01-01T00:00:00Z")},
			},
		})
	}

	result, err := batch.RunBatch(t.Context(), models.TriggerModeSnooze)
	require.NoError(t, err)

	// One workflow failing to persist never stops its siblings.
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 2, result.Reactivated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "exec-2")
	assert.Contains(t, result.ErrorDetails[0], "write refused")

	for _, id := range []string{"exec-1", "exec-3"} {
		execution, err := store.Executions().GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)
	}

	stuck, err := store.Executions().GetByID(t.Context(), "exec-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSnoozed, stuck.Status)
}

func TestRunBatch_TerminalExecutionsSkipped(t *testing.T) {
	batch, p := newTestEvaluator(t)

	completedAt := time.Now().UTC()
	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-done", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
		Status:      models.ExecutionStatusCompleted,
		CompletedAt: &completedAt,
		Escalate: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-1", "2020-01-01T00:00:00Z")},
		},
	})

	result, err := batch.RunBatch(t.Context(), models.TriggerModeEscalate)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Evaluated)
	assert.Equal(t, 0, result.Notified)
}

func TestRunBatch_EmptyStore(t *testing.T) {
	batch, _ := newTestEvaluator(t)

	result, err := batch.RunBatch(t.Context(), models.TriggerModeSnooze)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Evaluated)
	assert.Equal(t, 0, result.Errors)
}

func TestRunBatch_UnknownMode(t *testing.T) {
	batch, _ := newTestEvaluator(t)

	_, err := batch.RunBatch(t.Context(), models.TriggerMode("bogus"))
	require.Error(t, err)
}

func TestRunBatch_PassIsIdempotent(t *testing.T) {
	batch, p := newTestEvaluator(t)

	storeExecution(t, p, &models.WorkflowExecution{
		ID: "exec-review", PlaybookID: "pb-1", UserID: "user-1", CustomerID: "cust-1",
		Status: models.ExecutionStatusInProgress,
		Review: models.TriggerModeState{
			Triggers: []*models.Trigger{dateTrigger("t-1", "2099-01-01T00:00:00Z")},
		},
	})

	for range 2 {
		result, err := batch.RunBatch(t.Context(), models.TriggerModeReview)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Evaluated)
		assert.Equal(t, 0, result.Notified)
	}

	execution, err := p.Executions().GetByID(t.Context(), "exec-review")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)
	assert.NotNil(t, execution.Review.LastEvaluatedAt)
	assert.Nil(t, execution.Review.FiredAt)
}

func TestCadenceRunner_EnsureSchedules(t *testing.T) {
	batch, p := newTestEvaluator(t)
	runner := NewCadenceRunner(p, batch, slog.Default(), time.Minute)

	require.NoError(t, runner.EnsureSchedules(t.Context()))

	ids := make(map[models.TriggerMode]string)

	for _, mode := range models.TriggerModes {
		schedule, err := p.BatchSchedules().GetByMode(t.Context(), mode)
		require.NoError(t, err)

		assert.Equal(t, DefaultCadences[mode], schedule.CronExpression)
		assert.True(t, schedule.Active)
		assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))

		ids[mode] = schedule.ID
	}

	// A second call leaves the existing rows alone.
	require.NoError(t, runner.EnsureSchedules(t.Context()))

	for _, mode := range models.TriggerModes {
		schedule, err := p.BatchSchedules().GetByMode(t.Context(), mode)
		require.NoError(t, err)
		assert.Equal(t, ids[mode], schedule.ID)
	}
}

func TestCadenceRunner_RunDue(t *testing.T) {
	batch, p := newTestEvaluator(t)
	runner := NewCadenceRunner(p, batch, slog.Default(), time.Minute)

	require.NoError(t, runner.EnsureSchedules(t.Context()))

	// Nothing is due until its NextDueAt arrives.
	assert.Empty(t, runner.RunDue(t.Context()))

	for _, mode := range models.TriggerModes {
		schedule, err := p.BatchSchedules().GetByMode(t.Context(), mode)
		require.NoError(t, err)

		schedule.NextDueAt = time.Now().UTC().Add(-time.Minute)
		require.NoError(t, p.BatchSchedules().Save(t.Context(), schedule))
	}

	results := runner.RunDue(t.Context())
	require.Len(t, results, len(models.TriggerModes))

	for _, mode := range models.TriggerModes {
		schedule, err := p.BatchSchedules().GetByMode(t.Context(), mode)
		require.NoError(t, err)
		assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))
	}
}
