package file

import (
	"context"
	"sort"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// StepRepository handles step execution records, one file per (execution, step).
type StepRepository struct {
	store *store
}

func (r *StepRepository) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error) {
	var step models.StepExecution

	found, err := r.store.readJSON(r.store.path("steps", executionID, stepID+".json"), &step)
	if err != nil {
		return nil, &persistence.StepError{Op: "GetByExecutionAndStep", ExecutionID: executionID, StepID: stepID, Err: err}
	}

	if !found {
		return nil, &persistence.StepError{Op: "GetByExecutionAndStep", ExecutionID: executionID, StepID: stepID, Err: persistence.ErrStepNotFound}
	}

	return &step, nil
}

func (r *StepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	paths, err := r.store.listJSON(r.store.path("steps", executionID))
	if err != nil {
		return nil, err
	}

	steps := make([]*models.StepExecution, 0, len(paths))

	for _, path := range paths {
		var step models.StepExecution

		found, err := r.store.readJSON(path, &step)
		if err != nil {
			return nil, err
		}

		if found {
			steps = append(steps, &step)
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].StepIndex < steps[j].StepIndex })

	return steps, nil
}

func (r *StepRepository) Save(ctx context.Context, step *models.StepExecution) error {
	path := r.store.path("steps", step.ExecutionID, step.StepID+".json")
	if err := r.store.writeJSON(path, step); err != nil {
		return &persistence.StepError{Op: "Save", ExecutionID: step.ExecutionID, StepID: step.StepID, Err: err}
	}

	return nil
}
