// Package auth implements the authentication and tenant-resolution core
// of the Veriflow gateway.
//
// The gateway fronts the workflow-orchestration backend for many tenants
// at once, and every downstream repository scopes its queries by the
// tenant id this package resolves. The core accepts three structurally
// different credential kinds:
//
//   - X.509 client certificates, carried as a base64 DER header rather
//     than TLS-layer negotiation, validated against a single configured
//     root CA ([CertificateValidator])
//   - Bearer JWTs from one of five identity providers (Auth0, Keycloak,
//     Azure B2C, generic OIDC, GitHub), each with its own claim shape
//     ([IdentityProvider] adapters)
//   - Long-lived API keys bound to a tenant and a creator
//     ([APIKeyResolver])
//
// Whichever validator succeeds produces an [AuthenticatedIdentity],
// which [BuildTenantContext] converts into the immutable, request-scoped
// [TenantContext] that downstream code trusts for data isolation.
// Per-route [Requirement] values are then evaluated by the policy layer.
//
// # Security
//
// This package is a security boundary: a bug here is a cross-tenant data
// leak. The load-bearing rules are:
//
//   - Only successful validations are cached, and caches are bounded in
//     both lifetime and size. A revoked certificate evicts its cache
//     entry and is never accepted again.
//   - A caller-supplied tenant id is honored only when it is inside the
//     credential's authorized tenant set; the SysAdmin role is the sole
//     exemption.
//   - Validation failures are reported to callers with generic messages
//     ("invalid credential", "access denied"); the specific failing step
//     appears only in server-side logs.
//   - Infrastructure failures (an unreachable JWKS endpoint, a down
//     store) fail closed, never open.
package auth

import (
	"sort"
)

// UserType classifies how the caller authenticated. Downstream handlers
// use it to distinguish interactive users from machine credentials.
type UserType string

const (
	// UserTypeToken identifies a caller holding a bearer JWT issued by
	// one of the configured identity providers.
	UserTypeToken UserType = "UserToken"

	// UserTypeAPIKey identifies a caller presenting a long-lived API
	// key. The identity behind the key is the key's creator.
	UserTypeAPIKey UserType = "UserApiKey"

	// UserTypeAgent identifies a workflow agent authenticating with a
	// client certificate. Agents are always scoped to exactly one
	// tenant.
	UserTypeAgent UserType = "Agent"
)

// String returns the string representation of the user type.
func (t UserType) String() string {
	return string(t)
}

// Valid reports whether the user type is one of the recognized values.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeToken, UserTypeAPIKey, UserTypeAgent:
		return true
	default:
		return false
	}
}

// Role names recognized by the gateway. Role sets are open-ended (tenant
// operators may define their own), but these three carry platform-level
// meaning.
const (
	// RoleSysAdmin is the platform-wide administrative role. SysAdmins
	// are exempt from tenant-membership checks and may act on any
	// tenant.
	RoleSysAdmin = "SysAdmin"

	// RoleTenantAdmin is the tenant-scoped administrative role. A
	// TenantAdmin's authority never extends past the tenant their
	// credential is bound to.
	RoleTenantAdmin = "TenantAdmin"

	// RoleAgent is assigned to certificate-authenticated workflow
	// agents.
	RoleAgent = "Agent"
)

// StringSet is an unordered set of strings used for role sets and
// authorized-tenant sets. The zero value is not usable; construct sets
// with [NewStringSet].
type StringSet map[string]struct{}

// NewStringSet creates a set containing the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether the set contains v.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v into the set.
func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

// Values returns the set's members in sorted order. Sorting keeps log
// output and test assertions deterministic.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// AuthenticatedIdentity is the convergence type produced by every
// validator (certificate, bearer token, API key) on success. It is the
// input to [BuildTenantContext] and exists only for the duration of one
// request.
type AuthenticatedIdentity struct {
	// UserID identifies the authenticated principal: the certificate
	// subject's OU, the token's user-id claim, or the API key's
	// creator.
	UserID string

	// UserType records which credential kind produced this identity.
	UserType UserType

	// Roles is the principal's role set.
	Roles StringSet

	// AuthorizedTenantIDs is the set of tenants this credential may act
	// on. Certificate and API-key identities always carry exactly one;
	// token identities carry zero or more depending on the provider's
	// tenant claims.
	AuthorizedTenantIDs StringSet

	// DefaultTenantID is the tenant used when the caller supplies no
	// explicit override: the certificate's subject tenant, the API
	// key's resolved tenant, or a provider-specific documented default.
	// May be empty for token identities with no tenant claim.
	DefaultTenantID string

	// Provider names the identity provider that validated the
	// credential, for logging. Empty for certificates and API keys.
	Provider string

	// Credential holds the raw presented credential, redacted in all
	// log and serialization surfaces.
	Credential Secret
}

// IsSysAdmin reports whether the identity holds the platform-wide
// SysAdmin role.
func (id *AuthenticatedIdentity) IsSysAdmin() bool {
	return id.Roles.Has(RoleSysAdmin)
}
