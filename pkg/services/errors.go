// Package services implements the workflow execution state machine and the
// review and task operations built on top of it.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest         = errors.New("invalid request")
	ErrEmptyExecutionID       = errors.New("execution ID cannot be empty")
	ErrEmptyStepID            = errors.New("step ID cannot be empty")
	ErrTotalStepsRequired     = errors.New("total steps must be greater than zero")
	ErrSnoozeTriggersRequired = errors.New("snooze requires at least one trigger")
	ErrReviewerRequired       = errors.New("reviewer ID is required")
	ErrRejectionCommentsShort = errors.New("rejection comments must be at least 10 characters")
	ErrTaskTitleRequired      = errors.New("task title is required")

	// Business logic conflicts (409 Conflict).
	ErrExecutionTerminal     = errors.New("execution is in a terminal state")
	ErrExecutionNotSnoozed   = errors.New("execution is not snoozed")
	ErrReviewNotPending      = errors.New("review is not pending")
	ErrReviewNotRejected     = errors.New("review is not rejected")
	ErrNoReviewInProgress    = errors.New("execution has no review in progress")
	ErrTaskAlreadyCompleted  = errors.New("task is already completed")

	// Authorization errors (403 Forbidden).
	ErrNotAssignedReviewer = errors.New("caller is not the assigned reviewer")
	ErrNotExecutionOwner   = errors.New("caller does not own this execution")
)

// ServiceError wraps service-level errors with the failing operation.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyExecutionID) ||
		errors.Is(err, ErrEmptyStepID) ||
		errors.Is(err, ErrTotalStepsRequired) ||
		errors.Is(err, ErrSnoozeTriggersRequired) ||
		errors.Is(err, ErrReviewerRequired) ||
		errors.Is(err, ErrRejectionCommentsShort) ||
		errors.Is(err, ErrTaskTitleRequired)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrExecutionNotSnoozed) ||
		errors.Is(err, ErrReviewNotPending) ||
		errors.Is(err, ErrReviewNotRejected) ||
		errors.Is(err, ErrNoReviewInProgress) ||
		errors.Is(err, ErrTaskAlreadyCompleted)
}

// IsForbiddenError checks if an error should map to HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotAssignedReviewer) ||
		errors.Is(err, ErrNotExecutionOwner)
}
