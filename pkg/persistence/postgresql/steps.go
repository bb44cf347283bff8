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

// StepRepository handles step execution database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const stepColumns = `
	id
  , execution_id
  , step_id
  , step_index
  , title
  , status
  , branch_path
  , metadata
  , started_at
  , completed_at
  , created_at
  , updated_at
`

func (r *StepRepository) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error) {
	query := `SELECT ` + stepColumns + ` FROM step_executions WHERE execution_id = $1 AND step_id = $2`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, executionID, stepID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.StepError{Op: "GetByExecutionAndStep", ExecutionID: executionID, StepID: stepID, Err: persistence.ErrStepNotFound}
	}

	if err != nil {
		return nil, &persistence.StepError{Op: "GetByExecutionAndStep", ExecutionID: executionID, StepID: stepID, Err: err}
	}

	return step, nil
}

func (r *StepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	query := `SELECT ` + stepColumns + ` FROM step_executions WHERE execution_id = $1 ORDER BY step_index`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.StepExecution, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *StepRepository) Save(ctx context.Context, step *models.StepExecution) error {
	branchPath, err := json.Marshal(step.BranchPath)
	if err != nil {
		return fmt.Errorf("failed to encode branch path: %w", err)
	}

	metadata, err := json.Marshal(step.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO step_executions (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (execution_id, step_id) DO UPDATE SET
			step_index = EXCLUDED.step_index
		  , title = EXCLUDED.title
		  , status = EXCLUDED.status
		  , branch_path = EXCLUDED.branch_path
		  , metadata = EXCLUDED.metadata
		  , started_at = EXCLUDED.started_at
		  , completed_at = EXCLUDED.completed_at
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.StepID,
		step.StepIndex,
		step.Title,
		string(step.Status),
		branchPath,
		metadata,
		step.StartedAt,
		step.CompletedAt,
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		return &persistence.StepError{Op: "Save", ExecutionID: step.ExecutionID, StepID: step.StepID, Err: err}
	}

	return nil
}

func scanStep(row rowScanner) (*models.StepExecution, error) {
	var (
		step       models.StepExecution
		status     string
		title      sql.NullString
		branchPath []byte
		metadata   []byte
	)

	err := row.Scan(
		&step.ID,
		&step.ExecutionID,
		&step.StepID,
		&step.StepIndex,
		&title,
		&status,
		&branchPath,
		&metadata,
		&step.StartedAt,
		&step.CompletedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Title = title.String
	step.Status = models.StepStatus(status)

	if err := json.Unmarshal(branchPath, &step.BranchPath); err != nil {
		return nil, fmt.Errorf("failed to decode branch path: %w", err)
	}

	if err := json.Unmarshal(metadata, &step.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &step, nil
}
