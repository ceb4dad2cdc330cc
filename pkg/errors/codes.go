package errors

// Code is a machine-readable error code in CATEGORY_XXX form, where
// CATEGORY is a short identifier (AUTH, AUTHZ, VAL, ...) and XXX is a
// three-digit number. Codes are stable once assigned; alerting rules and
// client-side handling key off them.
type Code string

// Error code categories and their HTTP mappings:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Dependency unavailable (503; fail-closed 401 on the auth path)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// The presented credential itself failed validation.

	// CodeAuthentication indicates a general authentication failure,
	// including a missing credential on an endpoint that requires one.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthExpired indicates the credential has expired beyond the
	// configured clock-skew tolerance.
	CodeAuthExpired Code = "AUTH_002"

	// CodeAuthMalformed indicates the credential could not be parsed:
	// invalid base64, invalid DER, or a JWT without three segments.
	CodeAuthMalformed Code = "AUTH_003"

	// CodeAuthUntrustedChain indicates a client certificate whose chain
	// does not terminate at the configured root CA.
	CodeAuthUntrustedChain Code = "AUTH_004"

	// CodeAuthRevoked indicates a credential present in the revocation
	// store.
	CodeAuthRevoked Code = "AUTH_005"

	// CodeAuthWrongPurpose indicates a certificate without the
	// client-authentication extended key usage.
	CodeAuthWrongPurpose Code = "AUTH_006"

	// CodeAuthInvalidToken indicates a bearer token that failed
	// signature, issuer, audience, expiry, or required-claims checks.
	CodeAuthInvalidToken Code = "AUTH_007"

	// CodeAuthInvalidKey indicates an API key that is unknown or does
	// not match the required format.
	CodeAuthInvalidKey Code = "AUTH_008"

	// CodeAuthUnknownKey indicates a JWT signing key id that is absent
	// from the provider's JWKS even after a refresh.
	CodeAuthUnknownKey Code = "AUTH_009"

	// CodeAuthUnknownTenant indicates a credential bound to a tenant
	// that is not configured or not enabled.
	CodeAuthUnknownTenant Code = "AUTH_010"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// The credential is valid but does not authorize the request.

	// CodeAuthzDenied indicates a general authorization failure.
	CodeAuthzDenied Code = "AUTHZ_001"

	// CodeAuthzTenantMismatch indicates a caller-supplied tenant id that
	// is outside the credential's authorized tenant set.
	CodeAuthzTenantMismatch Code = "AUTHZ_002"

	// CodeAuthzInsufficientRole indicates the caller lacks a role the
	// endpoint or credential kind requires.
	CodeAuthzInsufficientRole Code = "AUTHZ_003"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalContract indicates a programming-contract violation:
	// an upstream component produced an inconsistent identity. These are
	// bugs, never bad credentials, and must not be swallowed.
	CodeInternalContract Code = "INT_002"

	// CodeInternalDatabase indicates a backing-store operation failed.
	CodeInternalDatabase Code = "INT_003"

	// CodeInternalConfiguration indicates invalid gateway configuration.
	CodeInternalConfiguration Code = "INT_004"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general dependency outage.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableProvider indicates an identity provider's JWKS or
	// discovery endpoint could not be reached. Distinguished from
	// credential failures for operational alerting; the authentication
	// path still fails closed.
	CodeUnavailableProvider Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
