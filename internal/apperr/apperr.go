// Package apperr defines the error-kind taxonomy shared by every core
// component: InvalidInput, NotFound, Conflict, Validation, Timeout,
// Dependency, and Internal. Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its retry semantics, not its message.
type Kind string

const (
	InvalidInput Kind = "INVALID_INPUT"
	NotFound     Kind = "NOT_FOUND"
	Conflict     Kind = "CONFLICT"
	Validation   Kind = "VALIDATION"
	Timeout      Kind = "TIMEOUT"
	Dependency   Kind = "DEPENDENCY"
	Internal     Kind = "INTERNAL"
)

// Retryable reports whether a caller may reasonably retry an error of this
// kind. Conflict is retryable only when the caller has a path to resolve it
// (e.g. reacquiring a lock); Timeout retries require an idempotency key.
func (k Kind) Retryable() bool {
	switch k {
	case Conflict, Timeout, Dependency:
		return true
	default:
		return false
	}
}

// Error is the concrete error type produced by core operations.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured context (e.g. the offending field) and
// returns the same error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func InvalidInputf(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func Timeoutf(format string, args ...any) *Error {
	return New(Timeout, fmt.Sprintf(format, args...))
}

func Dependencyf(format string, args ...any) *Error {
	return New(Dependency, fmt.Sprintf(format, args...))
}

func Internalf(format string, args ...any) *Error {
	return New(Internal, fmt.Sprintf(format, args...))
}
