// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates a workflow execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("workflow execution already exists")

	// ErrStepNotFound indicates a step execution was not found for the given (execution, step).
	ErrStepNotFound = errors.New("step execution not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCustomerNotFound indicates no profile exists for the given customer.
	ErrCustomerNotFound = errors.New("customer profile not found")

	// ErrScheduleNotFound indicates no batch schedule exists for the given mode.
	ErrScheduleNotFound = errors.New("batch schedule not found")

	// ErrNotificationNotFound indicates a notification was not found by the given identifier.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrUnknownLogTable indicates an evaluation log table outside the known variant tables.
	ErrUnknownLogTable = errors.New("unknown evaluation log table")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// StepError wraps step-related errors with additional context.
type StepError struct {
	Op          string
	ExecutionID string
	StepID      string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s operation failed for step %s in execution %s: %v", e.Op, e.StepID, e.ExecutionID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks if an error indicates a step execution was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsCustomerNotFound checks if an error indicates a customer profile was not found.
func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

// IsScheduleNotFound checks if an error indicates a batch schedule was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsNotificationNotFound checks if an error indicates a notification was not found.
func IsNotificationNotFound(err error) bool {
	return errors.Is(err, ErrNotificationNotFound)
}
