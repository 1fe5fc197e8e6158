package council

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when a provider is unknown or its
	// CLI binary is not installed
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout is returned when a provider exceeds its deadline
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrProviderFailure is returned when a provider exits nonzero
	ErrProviderFailure = errors.New("provider failure")

	// ErrUnknownPattern is returned for an unrecognized deliberation pattern id
	ErrUnknownPattern = errors.New("unknown pattern")

	// ErrConversationNotFound is returned when a saved transcript id does not exist
	ErrConversationNotFound = errors.New("conversation not found")
)

// taggedError couples a caller-facing message with a taxonomy sentinel so
// errors.Is works while the message stays exact.
type taggedError struct {
	msg  string
	kind error
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.kind }

// UnavailableError builds an ErrProviderUnavailable with an exact message.
func UnavailableError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrProviderUnavailable}
}

// TimeoutError builds an ErrProviderTimeout with an exact message.
func TimeoutError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrProviderTimeout}
}

// FailureError builds an ErrProviderFailure with an exact message.
func FailureError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrProviderFailure}
}

// UnknownPatternError builds an ErrUnknownPattern with an exact message.
func UnknownPatternError(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), kind: ErrUnknownPattern}
}
