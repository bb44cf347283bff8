package file

import (
	"context"
	"sort"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// ExecutionRepository handles workflow execution records on the file system.
type ExecutionRepository struct {
	store *store
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	path := r.store.path("executions", execution.ID+".json")
	if r.store.exists(path) {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	if err := r.store.writeJSON(path, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	found, err := r.store.readJSON(r.store.path("executions", id+".json"), &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if err := r.store.writeJSON(r.store.path("executions", execution.ID+".json"), execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// ListDueForEvaluation scans all executions, filters to those carrying
// triggers for the mode and not yet terminal, and pages in id order. The
// full scan is acceptable for the file store's scale; the SQL store pushes
// the filter into the query.
func (r *ExecutionRepository) ListDueForEvaluation(ctx context.Context, mode models.TriggerMode, limit, offset int) ([]*models.WorkflowExecution, error) {
	paths, err := r.store.listJSON(r.store.path("executions"))
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)

	due := make([]*models.WorkflowExecution, 0)

	for _, path := range paths {
		var execution models.WorkflowExecution

		found, err := r.store.readJSON(path, &execution)
		if err != nil || !found {
			continue
		}

		if execution.Status.Terminal() {
			continue
		}

		state := execution.ModeState(mode)
		if state == nil || len(state.Triggers) == 0 {
			continue
		}

		due = append(due, &execution)
	}

	if offset >= len(due) {
		return []*models.WorkflowExecution{}, nil
	}

	end := offset + limit
	if limit <= 0 || end > len(due) {
		end = len(due)
	}

	return due[offset:end], nil
}
