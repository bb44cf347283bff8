package file

import (
	"context"
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
)

// EvaluationLogRepository stores per-variant evaluation audit rows, one file
// per (workflow, trigger key), under a directory named after the variant's
// log table. Manual event flags share the same backing log.
type EvaluationLogRepository struct {
	store *store
}

func (r *EvaluationLogRepository) Upsert(ctx context.Context, table string, entry *models.EvaluationLogEntry) error {
	path := r.store.path("evaluation_logs", table, entry.WorkflowID+"__"+entry.TriggerKey+".json")

	var existing models.EvaluationLogEntry

	found, err := r.store.readJSON(path, &existing)
	if err != nil {
		return err
	}

	if found {
		entry.ID = existing.ID
		entry.Count = existing.Count + 1
		entry.FirstAt = existing.FirstAt
	} else {
		entry.Count = 1
		entry.FirstAt = entry.LastAt
	}

	return r.store.writeJSON(path, entry)
}

func (r *EvaluationLogRepository) Get(ctx context.Context, table, workflowID, triggerKey string) (*models.EvaluationLogEntry, error) {
	var entry models.EvaluationLogEntry

	found, err := r.store.readJSON(r.store.path("evaluation_logs", table, workflowID+"__"+triggerKey+".json"), &entry)
	if err != nil || !found {
		return nil, err
	}

	return &entry, nil
}

func (r *EvaluationLogRepository) ManualFlag(ctx context.Context, table, workflowID, eventKey string) (bool, error) {
	var flag models.ManualFlag

	found, err := r.store.readJSON(r.store.path("evaluation_logs", table, "flags", workflowID+"__"+eventKey+".json"), &flag)
	if err != nil {
		return false, err
	}

	return found && flag.Set, nil
}

func (r *EvaluationLogRepository) SetManualFlag(ctx context.Context, table string, flag *models.ManualFlag) error {
	if flag.SetAt.IsZero() {
		flag.SetAt = time.Now().UTC()
	}

	path := r.store.path("evaluation_logs", table, "flags", flag.WorkflowID+"__"+flag.EventKey+".json")

	return r.store.writeJSON(path, flag)
}
