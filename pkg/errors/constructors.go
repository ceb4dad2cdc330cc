package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message. The wrapped
// error becomes the Cause. Returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a code and formatted message.
// Returns nil if err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Unauthorized creates a general authentication error (401).
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// Forbidden creates a general authorization error (403).
func Forbidden(message string) *Error {
	return New(CodeAuthzDenied, message)
}

// Validation creates a general validation error (400).
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internal creates a general internal error (500).
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Contract creates a programming-contract violation error. Callers must
// log these at error level; they indicate a bug in the gateway, not a
// bad credential.
func Contract(message string) *Error {
	return New(CodeInternalContract, message)
}

// Unavailable creates a dependency-unavailable error (503).
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a timeout error (504).
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError converts an arbitrary error to an *Error. If the error is
// already an *Error anywhere in its chain, that value is returned;
// otherwise it is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
