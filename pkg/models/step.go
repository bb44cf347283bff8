package models

import "time"

// StepStatus represents the state of a single step within an execution.
type StepStatus string

const (
	StepStatusNotStarted StepStatus = "not_started"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusSkipped    StepStatus = "skipped"
)

// StepExecution is one row per (execution, step) touched. BranchPath is the
// append-only audit trail of the branch values chosen at decision steps.
type StepExecution struct {
	ID          string         `json:"id"           validate:"required"`
	ExecutionID string         `json:"execution_id" validate:"required"`
	StepID      string         `json:"step_id"      validate:"required"`
	StepIndex   int            `json:"step_index"   validate:"min=0"`
	Title       string         `json:"title"`
	Status      StepStatus     `json:"status"`
	BranchPath  []string       `json:"branch_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AppendBranch records a chosen branch value. The path only grows.
func (s *StepExecution) AppendBranch(value string) {
	if value == "" {
		return
	}

	s.BranchPath = append(s.BranchPath, value)
}

// MergeMetadata unions the given metadata into the step's metadata. The
// caller's keys win on conflict.
func (s *StepExecution) MergeMetadata(metadata map[string]any) {
	if len(metadata) == 0 {
		return
	}

	if s.Metadata == nil {
		s.Metadata = make(map[string]any, len(metadata))
	}

	for k, v := range metadata {
		s.Metadata[k] = v
	}
}
