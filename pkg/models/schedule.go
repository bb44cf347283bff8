package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// BatchSchedule records the cadence of one evaluator mode's batch evaluation
// pass. It carries the cron expression and the precomputed next due time so
// an external scheduler can ask "is a pass due" with a single read.
type BatchSchedule struct {
	ID string `json:"id" validate:"required"`

	// Mode is the evaluator behavior this schedule drives.
	Mode TriggerMode `json:"mode" validate:"required,oneof=snooze review escalate"`

	// CronExpression uses the standard 5-field format.
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next run time.
	NextDueAt time.Time `json:"next_due_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Active schedules are the only ones the poller considers.
	Active bool `json:"active"`
}

// NewBatchSchedule creates a schedule with the first due time calculated.
func NewBatchSchedule(id string, mode TriggerMode, cronExpression string) (*BatchSchedule, error) {
	now := time.Now().UTC()
	schedule := &BatchSchedule{
		ID:             id,
		Mode:           mode,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt recalculates the next run time from now.
func (s *BatchSchedule) UpdateNextDueAt() error {
	return s.calculateNextDueAt(time.Now().UTC())
}

func (s *BatchSchedule) calculateNextDueAt(referenceTime time.Time) error {
	cronSchedule, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether a batch pass is due at the given time.
func (s *BatchSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks the schedule fields, including the cron expression.
func (s *BatchSchedule) Validate() error {
	if s.ID == "" || s.Mode == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := cron.ParseStandard(s.CronExpression)

	return err
}
