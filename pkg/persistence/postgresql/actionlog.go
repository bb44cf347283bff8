package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/strackan/playbook-engine/pkg/models"
)

// ActionLogRepository is the append-only transition log. Rows are only ever
// inserted.
type ActionLogRepository struct {
	db *sql.DB
}

func (r *ActionLogRepository) Append(ctx context.Context, entry *models.ActionLogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	query := `
		INSERT INTO action_log (id, execution_id, action, action_id, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		string(entry.Action),
		nullString(entry.ActionID),
		nullString(entry.ActorID),
		details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append action log entry: %w", err)
	}

	return nil
}

func (r *ActionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ActionLogEntry, error) {
	query := `
		SELECT id, execution_id, action, action_id, actor_id, details, created_at
		FROM action_log
		WHERE execution_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action log: %w", err)
	}

	defer func() { _ = rows.Close() }()

	entries := make([]*models.ActionLogEntry, 0)

	for rows.Next() {
		var (
			entry    models.ActionLogEntry
			action   string
			actionID sql.NullString
			actorID  sql.NullString
			details  []byte
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &action, &actionID, &actorID, &details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action log entry: %w", err)
		}

		entry.Action = models.Action(action)
		entry.ActionID = actionID.String
		entry.ActorID = actorID.String

		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action log: %w", err)
	}

	return entries, nil
}

func (r *ActionLogRepository) HasCompletedAction(ctx context.Context, executionID, actionID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM action_log
			WHERE execution_id = $1
			  AND action = 'complete'
			  AND ($2 = '' OR action_id = $2)
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, executionID, actionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query completed actions: %w", err)
	}

	return exists, nil
}
