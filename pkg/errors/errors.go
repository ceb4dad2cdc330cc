// Package errors provides structured, coded errors for the Veriflow
// gateway. Every failure produced by the authentication core carries a
// machine-readable code that maps to an HTTP status and to the
// operational severity at which it should be logged.
//
// # Error Categories
//
//   - Validation errors (VAL_xxx): malformed request input
//   - Authentication errors (AUTH_xxx): the credential itself failed
//     validation: malformed, expired, untrusted, revoked, unknown
//   - Authorization errors (AUTHZ_xxx): the credential is valid but the
//     caller may not do what it asked: tenant mismatch, missing role
//   - Internal errors (INT_xxx): bugs and contract violations in the
//     gateway itself
//   - Unavailable errors (UNAVAIL_xxx): an identity provider or backing
//     store could not be reached; on the authentication path these fail
//     closed but are flagged separately for alerting
//   - Timeout errors (TIMEOUT_xxx): an operation exceeded its deadline
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthMalformed, "certificate bytes are not valid DER")
//
// Wrap an underlying cause:
//
//	err := errors.Wrap(err, errors.CodeUnavailableProvider, "JWKS fetch failed")
//
// Classify for the transport layer:
//
//	if errors.IsAuthorization(err) {
//	    // 403, not 401
//	}
//
// Messages may reach API clients and must never contain secret material;
// put diagnostic context (thumbprints, key ids, provider names) in
// Details, which is only ever written to server-side logs.
package errors

import (
	"fmt"
	"net/http"
)

// Error is a structured error with a code, a client-safe message, an
// optional underlying cause, and optional log-only details.
//
// Error values are immutable after creation; WithDetail and WithDetails
// return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_005").
	Code Code

	// Message is the human-readable message. It may be surfaced to API
	// clients and must not contain credentials or other secrets.
	Message string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Details carries structured diagnostic context (thumbprint, kid,
	// provider name). Details are written to server-side logs only and
	// are never serialized into client responses.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code implied by the error's
// category. Note that the authentication middleware deliberately
// collapses UNAVAIL errors to 401 on the credential-validation path
// (fail closed); this method reports the category's native status.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "INT":
		return http.StatusInternalServerError
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of the error with the given details merged
// in. The receiver is not modified.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Code: e.Code, Message: e.Message, Cause: e.Cause, Details: merged}
}

// WithDetail returns a copy of the error with a single detail added.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter. %v prints the standard message,
// %+v additionally prints details and the full cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
