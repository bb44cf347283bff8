package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// BatchScheduleRepository stores the batch evaluation cadence per mode.
type BatchScheduleRepository struct {
	db *sql.DB
}

func (r *BatchScheduleRepository) GetByMode(ctx context.Context, mode models.TriggerMode) (*models.BatchSchedule, error) {
	query := `
		SELECT id, mode, cron_expression, next_due_at, active, created_at, updated_at
		FROM batch_schedules
		WHERE mode = $1
	`

	var (
		schedule  models.BatchSchedule
		modeValue string
	)

	err := r.db.QueryRowContext(ctx, query, string(mode)).Scan(
		&schedule.ID,
		&modeValue,
		&schedule.CronExpression,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrScheduleNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get batch schedule for %s: %w", mode, err)
	}

	schedule.Mode = models.TriggerMode(modeValue)

	return &schedule, nil
}

func (r *BatchScheduleRepository) Save(ctx context.Context, schedule *models.BatchSchedule) error {
	query := `
		INSERT INTO batch_schedules (id, mode, cron_expression, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mode) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression
		  , next_due_at = EXCLUDED.next_due_at
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		string(schedule.Mode),
		schedule.CronExpression,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch schedule for %s: %w", schedule.Mode, err)
	}

	return nil
}
