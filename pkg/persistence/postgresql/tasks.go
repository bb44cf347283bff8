package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// TaskRepository handles task database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const taskColumns = `
	id
  , execution_id
  , title
  , description
  , assignee_name
  , status
  , due_date
  , completed_at
  , created_at
  , updated_at
`

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.ExecutionID,
		task.Title,
		nullString(task.Description),
		nullString(task.AssigneeName),
		string(task.Status),
		task.DueDate,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTaskNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	return task, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET
			title = $2
		  , description = $3
		  , assignee_name = $4
		  , status = $5
		  , due_date = $6
		  , completed_at = $7
		  , updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		nullString(task.Description),
		nullString(task.AssigneeName),
		string(task.Status),
		task.DueDate,
		task.CompletedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.ErrTaskNotFound
	}

	return nil
}

func (r *TaskRepository) ListByExecution(ctx context.Context, executionID string, statuses ...models.TaskStatus) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE execution_id = $1`
	args := []any{executionID}

	if len(statuses) > 0 {
		statusValues := make([]string, 0, len(statuses))
		for _, status := range statuses {
			statusValues = append(statusValues, string(status))
		}

		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(statusValues))
	}

	query += ` ORDER BY due_date ASC NULLS LAST, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task         models.Task
		status       string
		description  sql.NullString
		assigneeName sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.ExecutionID,
		&task.Title,
		&description,
		&assigneeName,
		&status,
		&task.DueDate,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.AssigneeName = assigneeName.String
	task.Status = models.TaskStatus(status)

	return &task, nil
}
