// Package errs defines the error taxonomy surfaced to callers of the
// financial core. Every component converts internal failures into one of
// these codes at its boundary; nothing escapes as an untyped crash.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a caller-visible error category.
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeStepUpRequired     Code = "STEP_UP_REQUIRED"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeInvalidParameter   Code = "INVALID_PARAMETER"
	CodeTermsOutOfPolicy   Code = "TERMS_OUT_OF_POLICY"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeInstrumentInvalid  Code = "INSTRUMENT_INVALID"
	CodePaymentFailed      Code = "PAYMENT_FAILED"
	CodePaymentReturned    Code = "PAYMENT_RETURNED"
	CodeLimitExceeded      Code = "LIMIT_EXCEEDED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeProviderError      Code = "PROVIDER_ERROR"
)

// Error is a taxonomy-coded error. Details carries structured context for
// validation failures (field names, offending values).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches two taxonomy errors by code only.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}

// New creates a taxonomy error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithDetail returns the error with an extra structured detail attached.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// InvalidRequest is the constructor used by pre-write validation. The
// contract is that no side effects have occurred when one is returned.
func InvalidRequest(format string, args ...any) *Error {
	return New(CodeInvalidRequest, format, args...)
}

// NotFound reports a missing entity by kind and identifier.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, "%s not found: %s", kind, id).WithDetail("id", id)
}

// Internal converts an unexpected failure at a component boundary.
func Internal(err error, format string, args ...any) *Error {
	return Wrap(CodeInternal, err, format, args...)
}

// CodeOf extracts the taxonomy code from an error chain, or CodeInternal
// when the chain carries no taxonomy error.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
