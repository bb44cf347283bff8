package file

import (
	"context"
	"slices"
	"sort"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// TaskRepository handles task records on the file system.
type TaskRepository struct {
	store *store
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.Save(ctx, task)
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task

	found, err := r.store.readJSON(r.store.path("tasks", id+".json"), &task)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrTaskNotFound
	}

	return &task, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	return r.store.writeJSON(r.store.path("tasks", task.ID+".json"), task)
}

func (r *TaskRepository) ListByExecution(ctx context.Context, executionID string, statuses ...models.TaskStatus) ([]*models.Task, error) {
	paths, err := r.store.listJSON(r.store.path("tasks"))
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0)

	for _, path := range paths {
		var task models.Task

		found, err := r.store.readJSON(path, &task)
		if err != nil || !found {
			continue
		}

		if task.ExecutionID != executionID {
			continue
		}

		if len(statuses) > 0 && !slices.Contains(statuses, task.Status) {
			continue
		}

		tasks = append(tasks, &task)
	}

	// Due date ascending, undated tasks last.
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate, tasks[j].DueDate
		if a == nil {
			return false
		}

		if b == nil {
			return true
		}

		return a.Before(*b)
	})

	return tasks, nil
}
