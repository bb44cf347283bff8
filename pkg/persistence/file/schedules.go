package file

import (
	"context"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// BatchScheduleRepository stores one schedule file per evaluator mode.
type BatchScheduleRepository struct {
	store *store
}

func (r *BatchScheduleRepository) GetByMode(ctx context.Context, mode models.TriggerMode) (*models.BatchSchedule, error) {
	var schedule models.BatchSchedule

	found, err := r.store.readJSON(r.store.path("schedules", string(mode)+".json"), &schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrScheduleNotFound
	}

	return &schedule, nil
}

func (r *BatchScheduleRepository) Save(ctx context.Context, schedule *models.BatchSchedule) error {
	return r.store.writeJSON(r.store.path("schedules", string(schedule.Mode)+".json"), schedule)
}
