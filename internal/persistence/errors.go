package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConditionFailed is returned when a conditional write finds a value other than the expected one.
	ErrConditionFailed = errors.New("persistence: condition failed")
)
