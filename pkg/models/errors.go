package models

import "errors"

var (
	// ErrUnknownOperator is returned when a threshold operator is not one of >, >=, <, <=.
	ErrUnknownOperator = errors.New("unknown threshold operator")

	// ErrInvalidSchedule is returned when batch schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid batch schedule configuration")

	// ErrUnknownTriggerMode is returned for a mode outside snooze/review/escalate.
	ErrUnknownTriggerMode = errors.New("unknown trigger mode")
)
