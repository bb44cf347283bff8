// Package file provides a file-based persistence implementation for local
// development and tests. Each record is one JSON file under the root
// directory; a single lock serializes access.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strackan/playbook-engine/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file system.
type Persistence struct {
	store *store

	executions    *ExecutionRepository
	steps         *StepRepository
	tasks         *TaskRepository
	customers     *CustomerRepository
	actionLog     *ActionLogRepository
	evalLogs      *EvaluationLogRepository
	notifications *NotificationRepository
	schedules     *BatchScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	s := &store{root: cleanRoot}

	return &Persistence{
		store:         s,
		executions:    &ExecutionRepository{store: s},
		steps:         &StepRepository{store: s},
		tasks:         &TaskRepository{store: s},
		customers:     &CustomerRepository{store: s},
		actionLog:     &ActionLogRepository{store: s},
		evalLogs:      &EvaluationLogRepository{store: s},
		notifications: &NotificationRepository{store: s},
		schedules:     &BatchScheduleRepository{store: s},
	}
}

func (fp *Persistence) Executions() persistence.ExecutionRepository         { return fp.executions }
func (fp *Persistence) Steps() persistence.StepRepository                   { return fp.steps }
func (fp *Persistence) Tasks() persistence.TaskRepository                   { return fp.tasks }
func (fp *Persistence) Customers() persistence.CustomerRepository           { return fp.customers }
func (fp *Persistence) ActionLog() persistence.ActionLogRepository          { return fp.actionLog }
func (fp *Persistence) EvaluationLogs() persistence.EvaluationLogRepository { return fp.evalLogs }
func (fp *Persistence) Notifications() persistence.NotificationRepository   { return fp.notifications }
func (fp *Persistence) BatchSchedules() persistence.BatchScheduleRepository { return fp.schedules }

// HealthCheck verifies the root directory exists, creating it if needed.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(fp.store.root, 0o755)
}

// Close performs any necessary cleanup. For file persistence there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

var _ persistence.Persistence = (*Persistence)(nil)

// store serializes JSON reads and writes under the root directory.
type store struct {
	root string
	mu   sync.RWMutex
}

func (s *store) path(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

// readJSON loads one record. The bool result reports whether the file exists.
func (s *store) readJSON(path string, v any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return true, nil
}

func (s *store) writeJSON(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// listJSON returns the JSON files directly under dir, sorted by name.
// A missing directory is an empty listing, not an error.
func (s *store) listJSON(dir string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dir, entry))
	}

	return paths, nil
}

// exists reports whether the path is present without reading it.
func (s *store) exists(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(path)

	return err == nil
}
