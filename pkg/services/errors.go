package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique-name constraint is violated
	ErrDuplicate = errors.New("duplicate")

	// ErrInvalidArgument is returned when input validation fails
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStateConflict is returned on state-machine violations
	ErrStateConflict = errors.New("state conflict")

	// ErrStorage is returned on underlying store I/O failures
	ErrStorage = errors.New("storage failure")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// taggedError couples a caller-facing message with a taxonomy sentinel so
// errors.Is works while the message stays exact.
type taggedError struct {
	msg  string
	kind error
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.kind }

// NotFoundError builds an ErrNotFound with an exact message.
func NotFoundError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrNotFound}
}

// InvalidArgumentError builds an ErrInvalidArgument with an exact message.
func InvalidArgumentError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrInvalidArgument}
}

// DuplicateError builds an ErrDuplicate with an exact message.
func DuplicateError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrDuplicate}
}

// StateConflictError builds an ErrStateConflict with an exact message.
func StateConflictError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrStateConflict}
}
