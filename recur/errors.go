package recur

import (
	"errors"
	"fmt"
)

// ErrorType classifies evaluation failures
type ErrorType string

const (
	// ErrConfiguration marks a pattern or component that can never be
	// evaluated: missing FREQ, COUNT and UNTIL both set, a relative
	// end-trigger with no derivable end. Never silently defaulted.
	ErrConfiguration ErrorType = "configuration"
	// ErrRestricted marks a frequency rejected by the evaluation policy.
	ErrRestricted ErrorType = "restricted"
	// ErrUnresolvedZone marks a time-zone identifier with no known
	// observance data. The value is never coerced to UTC.
	ErrUnresolvedZone ErrorType = "unresolved_zone"
)

// Error represents an evaluation-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigError builds an ErrConfiguration error.
func ConfigError(format string, args ...any) *Error {
	return &Error{Type: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsErrorType reports whether err is, or wraps, an *Error of the given
// type.
func IsErrorType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
