package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// EvaluationLogRepository stores per-variant evaluation audit rows. Table
// names come from the evaluator variant configuration and are validated
// against the known set; they are never interpolated from user input.
type EvaluationLogRepository struct {
	db *sql.DB
}

var knownLogTables = map[string]bool{
	"snooze_trigger_evaluations":   true,
	"review_trigger_evaluations":   true,
	"escalate_trigger_evaluations": true,
}

func validateLogTable(table string) error {
	if !knownLogTables[table] {
		return fmt.Errorf("%w: %q", persistence.ErrUnknownLogTable, table)
	}

	return nil
}

func (r *EvaluationLogRepository) Upsert(ctx context.Context, table string, entry *models.EvaluationLogEntry) error {
	if err := validateLogTable(table); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ` + table + `
			(id, workflow_id, trigger_id, trigger_key, trigger_kind, fired, count, last_reason, last_error, first_at, last_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $9, $9)
		ON CONFLICT (workflow_id, trigger_key) DO UPDATE SET
			fired = EXCLUDED.fired
		  , count = ` + table + `.count + 1
		  , last_reason = EXCLUDED.last_reason
		  , last_error = EXCLUDED.last_error
		  , last_at = EXCLUDED.last_at
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.WorkflowID,
		entry.TriggerID,
		entry.TriggerKey,
		string(entry.TriggerKind),
		entry.Fired,
		nullString(entry.LastReason),
		nullString(entry.LastError),
		entry.LastAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation log row: %w", err)
	}

	return nil
}

func (r *EvaluationLogRepository) Get(ctx context.Context, table, workflowID, triggerKey string) (*models.EvaluationLogEntry, error) {
	if err := validateLogTable(table); err != nil {
		return nil, err
	}

	query := `
		SELECT id, workflow_id, trigger_id, trigger_key, trigger_kind, fired, count, last_reason, last_error, first_at, last_at
		FROM ` + table + `
		WHERE workflow_id = $1 AND trigger_key = $2
	`

	var (
		entry      models.EvaluationLogEntry
		kind       string
		lastReason sql.NullString
		lastError  sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, workflowID, triggerKey).Scan(
		&entry.ID,
		&entry.WorkflowID,
		&entry.TriggerID,
		&entry.TriggerKey,
		&kind,
		&entry.Fired,
		&entry.Count,
		&lastReason,
		&lastError,
		&entry.FirstAt,
		&entry.LastAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation log row: %w", err)
	}

	entry.TriggerKind = models.TriggerKind(kind)
	entry.LastReason = lastReason.String
	entry.LastError = lastError.String

	return &entry, nil
}

func (r *EvaluationLogRepository) ManualFlag(ctx context.Context, table, workflowID, eventKey string) (bool, error) {
	if err := validateLogTable(table); err != nil {
		return false, err
	}

	query := `
		SELECT set_flag FROM manual_event_flags
		WHERE log_table = $1 AND workflow_id = $2 AND event_key = $3
	`

	var set bool

	err := r.db.QueryRowContext(ctx, query, table, workflowID, eventKey).Scan(&set)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to query manual flag: %w", err)
	}

	return set, nil
}

func (r *EvaluationLogRepository) SetManualFlag(ctx context.Context, table string, flag *models.ManualFlag) error {
	if err := validateLogTable(table); err != nil {
		return err
	}

	query := `
		INSERT INTO manual_event_flags (log_table, workflow_id, event_key, set_flag, set_by, set_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (log_table, workflow_id, event_key) DO UPDATE SET
			set_flag = EXCLUDED.set_flag
		  , set_by = EXCLUDED.set_by
		  , set_at = EXCLUDED.set_at
	`

	_, err := r.db.ExecContext(ctx, query,
		table,
		flag.WorkflowID,
		flag.EventKey,
		flag.Set,
		nullString(flag.SetBy),
		flag.SetAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set manual flag: %w", err)
	}

	return nil
}
