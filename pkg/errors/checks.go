package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error by traversing the
// error chain. Returns the Error and true on success.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code carried by err, or the empty code if
// err is nil or not an *Error.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the specified code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsValidation reports whether err is a validation error (VAL_xxx).
func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "VAL"
}

// IsAuthentication reports whether err is an authentication error
// (AUTH_xxx). These map to 401 Unauthorized.
func IsAuthentication(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTH"
}

// IsAuthorization reports whether err is an authorization error
// (AUTHZ_xxx). These map to 403 Forbidden.
func IsAuthorization(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "AUTHZ"
}

// IsInternal reports whether err is an internal error (INT_xxx).
func IsInternal(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "INT"
}

// IsContract reports whether err is a programming-contract violation.
// Contract violations indicate a bug in the gateway and must be logged
// at error level rather than treated as credential failures.
func IsContract(err error) bool {
	return HasCode(err, CodeInternalContract)
}

// IsUnavailable reports whether err is a dependency-unavailable error
// (UNAVAIL_xxx). On the authentication path these fail closed but are
// flagged differently for alerting.
func IsUnavailable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "UNAVAIL"
}

// IsTimeout reports whether err is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == "TIMEOUT"
}

// IsRetryable reports whether the failure is worth retrying. Timeouts
// and dependency outages are retryable; credential failures are not.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}

// IsCredentialFailure reports whether the failure is an expected,
// recoverable rejection of the caller's credential or authorization
// (AUTH_xxx or AUTHZ_xxx). These are logged at warning level; anything
// else on the authentication path is an operational or programming
// problem and is logged at error level.
func IsCredentialFailure(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "AUTH", "AUTHZ":
		return true
	default:
		return false
	}
}
