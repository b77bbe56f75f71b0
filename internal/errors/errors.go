// Package errors provides code-tagged errors so that every failure the
// service surfaces is distinguishable by kind, not just by message.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for callers and for HTTP status mapping.
type ErrorCode string

const (
	// Transport / generic codes. UNAUTHENTICATED means no identity was
	// supplied; UNAUTHORIZED means the identified actor is not eligible.
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
	ErrCodeInternal        ErrorCode = "INTERNAL"

	// Approval engine codes. The first group marks broken templates and is
	// never retried automatically; ALREADY_DECIDED is an expected
	// optimistic-concurrency outcome the caller may retry or report.
	ErrCodeFlowNotFound     ErrorCode = "FLOW_NOT_FOUND"
	ErrCodeEmptyFlow        ErrorCode = "EMPTY_FLOW"
	ErrCodeInvalidFlow      ErrorCode = "INVALID_FLOW"
	ErrCodeInvalidApprover  ErrorCode = "INVALID_APPROVER"
	ErrCodeNoSuperior       ErrorCode = "NO_SUPERIOR"
	ErrCodeNoDepartmentHead ErrorCode = "NO_DEPARTMENT_HEAD"
	ErrCodeAlreadyDecided   ErrorCode = "ALREADY_DECIDED"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// CodeOf extracts the code from err, walking the wrap chain.
// Non-coded errors report ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns the coded message without the code prefix, falling back
// to err.Error() for non-coded errors.
func Message(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
