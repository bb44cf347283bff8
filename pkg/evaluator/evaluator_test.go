package evaluator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/persistence/file"
)

type stubMetrics struct {
	values map[string]float64
	err    error
}

func (s stubMetrics) UsageMetric(_ context.Context, _, metric string) (float64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}

	value, found := s.values[metric]

	return value, found, nil
}

func newTestCore(t *testing.T, metrics MetricReader) (*Core, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	core := NewCore(p, metrics, slog.Default())

	return core, p
}

func snoozedExecution(id string, triggers ...*models.Trigger) *models.WorkflowExecution {
	now := time.Now().UTC()

	return &models.WorkflowExecution{
		ID:           id,
		PlaybookID:   "pb-1",
		UserID:       "user-1",
		CustomerID:   "cust-1",
		Status:       models.ExecutionStatusSnoozed,
		SnoozeReason: "waiting on customer",
		TotalSteps:   5,
		Snooze:       models.TriggerModeState{Triggers: triggers},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func dateTrigger(id, instant, timezone string) *models.Trigger {
	return &models.Trigger{
		ID:   id,
		Kind: models.TriggerKindDate,
		Date: &models.DateTriggerConfig{Instant: instant, Timezone: timezone},
	}
}

func TestEvaluate_DateTrigger(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	core, _ := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	execution := snoozedExecution("exec-1")

	tests := []struct {
		name       string
		trigger    *models.Trigger
		fired      bool
		wantReason bool
		wantError  bool
	}{
		{name: "past instant fires", trigger: dateTrigger("t1", "2026-08-30T00:00:00Z", ""), fired: true},
		{name: "exact instant fires", trigger: dateTrigger("t2", "2026-08-31T12:00:00Z", ""), fired: true},
		{name: "future instant does not fire", trigger: dateTrigger("t3", "2026-09-02T00:00:00Z", ""), wantReason: true},
		{name: "malformed instant is not fired", trigger: dateTrigger("t4", "yesterday-ish", ""), wantError: true},
		{name: "unknown timezone is not fired", trigger: dateTrigger("t5", "2026-08-30T00:00:00Z", "Mars/Olympus"), wantError: true},
		{name: "missing config is not fired", trigger: &models.Trigger{ID: "t6", Kind: models.TriggerKindDate}, wantReason: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := core.Evaluate(t.Context(), SnoozeVariant(), execution, tt.trigger)

			assert.Equal(t, tt.fired, result.Fired)
			assert.Equal(t, now, result.EvaluatedAt)

			if tt.wantReason {
				assert.NotEmpty(t, result.Reason)
			}

			if tt.wantError {
				assert.NotEmpty(t, result.Error)
				assert.False(t, result.Fired)
			}
		})
	}
}

func TestEvaluate_DateTrigger_WallClockTimezone(t *testing.T) {
	// 2026-08-31 23:30 UTC is already 2026-09-01 08:30 in Tokyo.
	now := time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC)

	core, _ := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	execution := snoozedExecution("exec-tz")

	tokyo := core.Evaluate(t.Context(), SnoozeVariant(), execution,
		dateTrigger("t-tokyo", "2026-09-01T08:00:00+09:00", "Asia/Tokyo"))
	assert.True(t, tokyo.Fired)

	// The same instant has not been reached on a New York wall clock.
	newYork := core.Evaluate(t.Context(), SnoozeVariant(), execution,
		dateTrigger("t-ny", "2026-09-01T08:00:00-04:00", "America/New_York"))
	assert.False(t, newYork.Fired)
	assert.Contains(t, newYork.Reason, "America/New_York")
}

func TestEvaluate_UsageThreshold(t *testing.T) {
	core, _ := newTestCore(t, stubMetrics{values: map[string]float64{"active_users": 150}})

	execution := snoozedExecution("exec-2")

	trigger := func(metric string, threshold float64, op models.ThresholdOperator) *models.Trigger {
		return &models.Trigger{
			ID:   "t-usage",
			Kind: models.TriggerKindEvent,
			Event: &models.EventTriggerConfig{
				Kind: models.EventKindUsageThresholdCrossed,
				UsageThreshold: &models.UsageThresholdParams{
					Metric: metric, Threshold: threshold, Operator: op,
				},
			},
		}
	}

	fired := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger("active_users", 100, models.OperatorGreaterEqual))
	assert.True(t, fired.Fired)

	below := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger("active_users", 200, models.OperatorGreaterEqual))
	assert.False(t, below.Fired)
	assert.NotEmpty(t, below.Reason)

	missing := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger("seats_used", 1, models.OperatorGreater))
	assert.False(t, missing.Fired)
	assert.Contains(t, missing.Reason, "seats_used")

	badOperator := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger("active_users", 1, "!="))
	assert.False(t, badOperator.Fired)
	assert.NotEmpty(t, badOperator.Error)
}

func TestEvaluate_CustomerLogin(t *testing.T) {
	core, p := newTestCore(t, stubMetrics{})

	execution := snoozedExecution("exec-3")

	trigger := &models.Trigger{
		ID:    "t-login",
		Kind:  models.TriggerKindEvent,
		Event: &models.EventTriggerConfig{Kind: models.EventKindCustomerLogin},
	}

	// No profile yet.
	result := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.False(t, result.Fired)
	assert.Contains(t, result.Reason, "not found")

	// Profile without a login.
	require.NoError(t, p.Customers().SaveProfile(t.Context(), &models.CustomerProfile{ID: "cust-1", Name: "Acme"}))
	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.False(t, result.Fired)

	// Login before the last evaluation does not re-fire.
	lastEvaluated := time.Now().UTC()
	loginAt := lastEvaluated.Add(-time.Hour)
	require.NoError(t, p.Customers().SaveProfile(t.Context(), &models.CustomerProfile{
		ID: "cust-1", Name: "Acme", LastLoginAt: &loginAt,
	}))
	execution.Snooze.LastEvaluatedAt = &lastEvaluated

	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.False(t, result.Fired)
	assert.Contains(t, result.Reason, "no login since")

	// Fresh login fires.
	freshLogin := lastEvaluated.Add(time.Minute)
	require.NoError(t, p.Customers().SaveProfile(t.Context(), &models.CustomerProfile{
		ID: "cust-1", Name: "Acme", LastLoginAt: &freshLogin,
	}))

	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.True(t, result.Fired)
}

func TestEvaluate_ActionCompleted(t *testing.T) {
	core, p := newTestCore(t, stubMetrics{})

	execution := snoozedExecution("exec-4")

	trigger := &models.Trigger{
		ID:   "t-action",
		Kind: models.TriggerKindEvent,
		Event: &models.EventTriggerConfig{
			Kind:           models.EventKindWorkflowActionCompleted,
			ActionComplete: &models.WorkflowActionCompletedParams{ExecutionID: "other-exec", ActionID: "step-9"},
		},
	}

	result := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.False(t, result.Fired)

	require.NoError(t, p.ActionLog().Append(t.Context(), &models.ActionLogEntry{
		ID:          "log-1",
		ExecutionID: "other-exec",
		Action:      models.ActionComplete,
		ActionID:    "step-9",
		CreatedAt:   time.Now().UTC(),
	}))

	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.True(t, result.Fired)

	// Missing params are a reason, never an error.
	empty := &models.Trigger{
		ID:    "t-empty",
		Kind:  models.TriggerKindEvent,
		Event: &models.EventTriggerConfig{Kind: models.EventKindWorkflowActionCompleted},
	}
	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, empty)
	assert.False(t, result.Fired)
	assert.Empty(t, result.Error)
	assert.NotEmpty(t, result.Reason)
}

func TestEvaluate_ManualEvent(t *testing.T) {
	core, p := newTestCore(t, stubMetrics{})

	execution := snoozedExecution("exec-5")

	trigger := &models.Trigger{
		ID:   "t-manual",
		Kind: models.TriggerKindEvent,
		Event: &models.EventTriggerConfig{
			Kind:   models.EventKindManualEvent,
			Manual: &models.ManualEventParams{EventKey: "contract-signed"},
		},
	}

	result := core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.False(t, result.Fired)

	require.NoError(t, p.EvaluationLogs().SetManualFlag(t.Context(), SnoozeVariant().LogTable, &models.ManualFlag{
		WorkflowID: "exec-5",
		EventKey:   "contract-signed",
		Set:        true,
		SetAt:      time.Now().UTC(),
	}))

	result = core.Evaluate(t.Context(), SnoozeVariant(), execution, trigger)
	assert.True(t, result.Fired)

	// The flag lives in the variant's own table. The same key is unset for
	// the escalate variant.
	result = core.Evaluate(t.Context(), EscalateVariant(), execution, trigger)
	assert.False(t, result.Fired)
}

func TestEvaluateAll_FirstFiredWins(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	core, _ := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	first := dateTrigger("t-first", "2026-08-01T00:00:00Z", "")
	second := dateTrigger("t-second", "2026-08-02T00:00:00Z", "")
	future := dateTrigger("t-future", "2026-12-01T00:00:00Z", "")

	execution := snoozedExecution("exec-6", future, first, second)

	setResult := core.EvaluateAll(t.Context(), SnoozeVariant(), execution)

	require.True(t, setResult.Fired)
	assert.Equal(t, "t-first", setResult.FiredTrigger.ID)

	// Every trigger is still evaluated.
	require.Len(t, setResult.Results, 3)
	assert.False(t, setResult.Results[0].Fired)
	assert.True(t, setResult.Results[1].Fired)
	assert.True(t, setResult.Results[2].Fired)
}

func TestEvaluateAll_EmptyTriggerSet(t *testing.T) {
	core, _ := newTestCore(t, stubMetrics{})

	setResult := core.EvaluateAll(t.Context(), SnoozeVariant(), snoozedExecution("exec-7"))
	assert.False(t, setResult.Fired)
	assert.Nil(t, setResult.FiredTrigger)
	assert.Empty(t, setResult.Results)
}

func TestUpdateWithEvaluationResults_SnoozeFired(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	core, p := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	trigger := dateTrigger("t-wake", "2026-08-01T00:00:00Z", "")
	execution := snoozedExecution("exec-8", trigger)
	require.NoError(t, p.Executions().Create(t.Context(), execution))

	setResult := core.EvaluateAll(t.Context(), SnoozeVariant(), execution)
	require.True(t, setResult.Fired)

	shouldReactivate, err := core.UpdateWithEvaluationResults(t.Context(), SnoozeVariant(), execution, setResult)
	require.NoError(t, err)
	assert.True(t, shouldReactivate)

	stored, err := p.Executions().GetByID(t.Context(), "exec-8")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, stored.Status)
	assert.Empty(t, stored.SnoozeReason)
	require.NotNil(t, stored.Snooze.FiredAt)
	assert.Equal(t, now, *stored.Snooze.FiredAt)
	assert.Equal(t, models.TriggerKindDate, stored.Snooze.FiredTriggerKind)
	require.NotNil(t, stored.Snooze.LastEvaluatedAt)

	// The wake-up consumes the trigger set, so the reactivated execution is
	// not picked up again by later passes.
	assert.Empty(t, stored.Snooze.Triggers)

	// The audit row was upserted under the trigger's config key.
	entry, err := p.EvaluationLogs().Get(t.Context(), SnoozeVariant().LogTable, "exec-8", trigger.Key())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Fired)
	assert.Equal(t, 1, entry.Count)
}

func TestUpdateWithEvaluationResults_NoFireIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	core, p := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	trigger := dateTrigger("t-sleep", "2026-12-01T00:00:00Z", "")
	execution := snoozedExecution("exec-9", trigger)
	require.NoError(t, p.Executions().Create(t.Context(), execution))

	for range 2 {
		setResult := core.EvaluateAll(t.Context(), SnoozeVariant(), execution)
		require.False(t, setResult.Fired)

		fired, err := core.UpdateWithEvaluationResults(t.Context(), SnoozeVariant(), execution, setResult)
		require.NoError(t, err)
		assert.False(t, fired)
	}

	stored, err := p.Executions().GetByID(t.Context(), "exec-9")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSnoozed, stored.Status)
	assert.Equal(t, "waiting on customer", stored.SnoozeReason)
	assert.Nil(t, stored.Snooze.FiredAt)
	require.NotNil(t, stored.Snooze.LastEvaluatedAt)

	// Re-evaluation increments the audit row in place.
	entry, err := p.EvaluationLogs().Get(t.Context(), SnoozeVariant().LogTable, "exec-9", trigger.Key())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.Count)
	assert.False(t, entry.Fired)
}

func TestUpdateWithEvaluationResults_ReviewDoesNotChangeStatus(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	core, p := newTestCore(t, stubMetrics{})
	core.WithClock(func() time.Time { return now })

	trigger := dateTrigger("t-review", "2026-08-01T00:00:00Z", "")
	execution := snoozedExecution("exec-10")
	execution.Status = models.ExecutionStatusInProgress
	execution.Review = models.TriggerModeState{Triggers: []*models.Trigger{trigger}}
	require.NoError(t, p.Executions().Create(t.Context(), execution))

	setResult := core.EvaluateAll(t.Context(), ReviewVariant(), execution)
	require.True(t, setResult.Fired)

	shouldNotify, err := core.UpdateWithEvaluationResults(t.Context(), ReviewVariant(), execution, setResult)
	require.NoError(t, err)
	assert.True(t, shouldNotify)

	stored, err := p.Executions().GetByID(t.Context(), "exec-10")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusInProgress, stored.Status)
	require.NotNil(t, stored.Review.FiredAt)

	// Only the status-changing variant consumes its trigger set.
	assert.Len(t, stored.Review.Triggers, 1)

	// The review variant logs to its own table, not the escalation one.
	entry, err := p.EvaluationLogs().Get(t.Context(), ReviewVariant().LogTable, "exec-10", trigger.Key())
	require.NoError(t, err)
	require.NotNil(t, entry)

	crossWired, err := p.EvaluationLogs().Get(t.Context(), EscalateVariant().LogTable, "exec-10", trigger.Key())
	require.NoError(t, err)
	assert.Nil(t, crossWired)
}

func TestVariantFor(t *testing.T) {
	t.Parallel()

	for _, mode := range models.TriggerModes {
		variant, err := VariantFor(mode)
		require.NoError(t, err)
		assert.Equal(t, mode, variant.Mode)
	}

	_, err := VariantFor("cadence")
	assert.ErrorIs(t, err, models.ErrUnknownTriggerMode)
}
