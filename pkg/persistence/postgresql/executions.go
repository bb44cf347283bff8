package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// ExecutionRepository handles workflow execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
	id
  , playbook_id
  , user_id
  , customer_id
  , status
  , current_step_index
  , total_steps
  , completed_steps_count
  , skipped_steps_count
  , completion_percentage
  , snooze_reason
  , snooze_state
  , review_state_triggers
  , escalate_state
  , review_state
  , started_at
  , completed_at
  , created_at
  , updated_at
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	args, err := executionArgs(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , current_step_index = EXCLUDED.current_step_index
		  , total_steps = EXCLUDED.total_steps
		  , completed_steps_count = EXCLUDED.completed_steps_count
		  , skipped_steps_count = EXCLUDED.skipped_steps_count
		  , completion_percentage = EXCLUDED.completion_percentage
		  , snooze_reason = EXCLUDED.snooze_reason
		  , snooze_state = EXCLUDED.snooze_state
		  , review_state_triggers = EXCLUDED.review_state_triggers
		  , escalate_state = EXCLUDED.escalate_state
		  , review_state = EXCLUDED.review_state
		  , started_at = EXCLUDED.started_at
		  , completed_at = EXCLUDED.completed_at
		  , updated_at = EXCLUDED.updated_at
	`

	args, err := executionArgs(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// ListDueForEvaluation pages through non-terminal executions that carry at
// least one trigger for the given mode. The mode's state column is probed
// with a jsonb existence check so the filter runs server-side.
func (r *ExecutionRepository) ListDueForEvaluation(ctx context.Context, mode models.TriggerMode, limit, offset int) ([]*models.WorkflowExecution, error) {
	stateColumn, err := modeStateColumn(mode)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE status NOT IN ('completed', 'completed_with_pending_tasks', 'abandoned')
		  AND jsonb_array_length(COALESCE(` + stateColumn + `->'triggers', '[]'::jsonb)) > 0
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query due executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func modeStateColumn(mode models.TriggerMode) (string, error) {
	switch mode {
	case models.TriggerModeSnooze:
		return "snooze_state", nil
	case models.TriggerModeReview:
		return "review_state_triggers", nil
	case models.TriggerModeEscalate:
		return "escalate_state", nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownTriggerMode, string(mode))
	}
}

func executionArgs(execution *models.WorkflowExecution) ([]any, error) {
	snoozeState, err := json.Marshal(execution.Snooze)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snooze state: %w", err)
	}

	reviewTriggers, err := json.Marshal(execution.Review)
	if err != nil {
		return nil, fmt.Errorf("failed to encode review trigger state: %w", err)
	}

	escalateState, err := json.Marshal(execution.Escalate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode escalate state: %w", err)
	}

	var reviewState []byte
	if execution.ReviewState != nil {
		reviewState, err = json.Marshal(execution.ReviewState)
		if err != nil {
			return nil, fmt.Errorf("failed to encode review state: %w", err)
		}
	}

	return []any{
		execution.ID,
		execution.PlaybookID,
		execution.UserID,
		execution.CustomerID,
		string(execution.Status),
		execution.CurrentStepIndex,
		execution.TotalSteps,
		execution.CompletedStepsCount,
		execution.SkippedStepsCount,
		execution.CompletionPercentage,
		nullString(execution.SnoozeReason),
		snoozeState,
		reviewTriggers,
		escalateState,
		nullBytes(reviewState),
		execution.StartedAt,
		execution.CompletedAt,
		execution.CreatedAt,
		execution.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution      models.WorkflowExecution
		status         string
		snoozeReason   sql.NullString
		snoozeState    []byte
		reviewTriggers []byte
		escalateState  []byte
		reviewState    []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.PlaybookID,
		&execution.UserID,
		&execution.CustomerID,
		&status,
		&execution.CurrentStepIndex,
		&execution.TotalSteps,
		&execution.CompletedStepsCount,
		&execution.SkippedStepsCount,
		&execution.CompletionPercentage,
		&snoozeReason,
		&snoozeState,
		&reviewTriggers,
		&escalateState,
		&reviewState,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.SnoozeReason = snoozeReason.String

	if err := json.Unmarshal(snoozeState, &execution.Snooze); err != nil {
		return nil, fmt.Errorf("failed to decode snooze state: %w", err)
	}

	if err := json.Unmarshal(reviewTriggers, &execution.Review); err != nil {
		return nil, fmt.Errorf("failed to decode review trigger state: %w", err)
	}

	if err := json.Unmarshal(escalateState, &execution.Escalate); err != nil {
		return nil, fmt.Errorf("failed to decode escalate state: %w", err)
	}

	if len(reviewState) > 0 {
		execution.ReviewState = &models.ReviewState{}
		if err := json.Unmarshal(reviewState, execution.ReviewState); err != nil {
			return nil, fmt.Errorf("failed to decode review state: %w", err)
		}
	}

	return &execution, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}
