package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an aggregate doesn't exist.
	ErrNotFound = errors.New("aggregate not found")

	// ErrConcurrencyConflict is returned when there's an optimistic concurrency conflict.
	ErrConcurrencyConflict = errors.New("optimistic concurrency conflict: aggregate version mismatch")

	// ErrValidationFailed is returned for malformed input or an illegal state transition.
	ErrValidationFailed = errors.New("validation failed")

	// ErrConstraintViolated is returned when a uniqueness or membership constraint would be violated.
	ErrConstraintViolated = errors.New("constraint violated")

	// ErrUnauthorized is returned when no valid session accompanies a request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient is returned for retryable store failures.
	ErrTransient = errors.New("transient store failure")

	// ErrInternal is returned for unexpected failures.
	ErrInternal = errors.New("internal error")
)

// Stable machine-readable error kinds, surfaced in response envelopes.
const (
	KindUnauthorized        = "unauthorized"
	KindValidationFailed    = "validation_failed"
	KindNotFound            = "not_found"
	KindConcurrencyConflict = "optimistic_concurrency_conflict"
	KindConstraintViolated  = "constraint_violated"
	KindTransient           = "transient"
	KindInternal            = "internal"
)

var kindSentinels = map[string]error{
	KindUnauthorized:        ErrUnauthorized,
	KindValidationFailed:    ErrValidationFailed,
	KindNotFound:            ErrNotFound,
	KindConcurrencyConflict: ErrConcurrencyConflict,
	KindConstraintViolated:  ErrConstraintViolated,
	KindTransient:           ErrTransient,
	KindInternal:            ErrInternal,
}

// CommandError is a categorized failure with a human-readable message and a
// stable machine-readable kind for UI routing.
type CommandError struct {
	Kind    string
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrValidationFailed) etc. work on categorized errors.
func (e *CommandError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Validationf builds a validation_failed error.
func Validationf(format string, args ...any) error {
	return &CommandError{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not_found error.
func NotFoundf(format string, args ...any) error {
	return &CommandError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Constraintf builds a constraint_violated error.
func Constraintf(format string, args ...any) error {
	return &CommandError{Kind: KindConstraintViolated, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds an optimistic_concurrency_conflict error.
func Conflictf(format string, args ...any) error {
	return &CommandError{Kind: KindConcurrencyConflict, Message: fmt.Sprintf(format, args...)}
}

// Unauthorizedf builds an unauthorized error.
func Unauthorizedf(format string, args ...any) error {
	return &CommandError{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Transientf builds a transient, retryable error.
func Transientf(format string, args ...any) error {
	return &CommandError{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// KindOf maps an error to its stable kind string, defaulting to internal.
func KindOf(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidationFailed):
		return KindValidationFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrConstraintViolated):
		return KindConstraintViolated
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// IsRetryable reports whether a failed command may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConcurrencyConflict)
}
