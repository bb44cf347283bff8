package file

import (
	"context"
	"sort"

	"github.com/strackan/playbook-engine/pkg/models"
)

// ActionLogRepository stores one file per entry under the execution's
// directory. Entries are never rewritten.
type ActionLogRepository struct {
	store *store
}

func (r *ActionLogRepository) Append(ctx context.Context, entry *models.ActionLogEntry) error {
	path := r.store.path("action_log", entry.ExecutionID, entry.ID+".json")

	return r.store.writeJSON(path, entry)
}

func (r *ActionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ActionLogEntry, error) {
	paths, err := r.store.listJSON(r.store.path("action_log", executionID))
	if err != nil {
		return nil, err
	}

	entries := make([]*models.ActionLogEntry, 0, len(paths))

	for _, path := range paths {
		var entry models.ActionLogEntry

		found, err := r.store.readJSON(path, &entry)
		if err != nil {
			return nil, err
		}

		if found {
			entries = append(entries, &entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	return entries, nil
}

func (r *ActionLogRepository) HasCompletedAction(ctx context.Context, executionID, actionID string) (bool, error) {
	entries, err := r.ListByExecution(ctx, executionID)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entry.Action != models.ActionComplete {
			continue
		}

		if actionID == "" || entry.ActionID == actionID {
			return true, nil
		}
	}

	return false, nil
}
