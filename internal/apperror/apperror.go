package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it
// (HTTP status mapping, metrics labels).
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindPolicy     Kind = "policy"
	KindState      Kind = "state"
	KindIntegrity  Kind = "integrity"
	KindUpstream   Kind = "upstream"
	KindStorage    Kind = "storage"
	KindInternal   Kind = "internal"
)

// Error is the error type returned across service boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad input supplied by the caller.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown session, image or resident id.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Policy reports an operation disallowed by the session's current policy.
func Policy(format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

// State reports an operation invalid for the current lifecycle stage.
func State(format string, args ...any) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// Integrity reports data that failed authentication or checksum
// verification.
func Integrity(message string, err error) *Error {
	return &Error{Kind: KindIntegrity, Message: message, Err: err}
}

// Upstream reports a resident directory failure. Message is surfaced
// verbatim to operators.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// Storage reports a filesystem, object store, database or encoding
// failure.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the operator-facing message for err. Upstream and
// validation messages are returned without the wrapped cause.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
