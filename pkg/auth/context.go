package auth

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TenantContext is the trustworthy, tenant-scoped identity for one
// request. It is created empty when the request arrives, populated
// exactly once by whichever validator succeeds (via
// [BuildTenantContext]), sealed, read by all downstream code, and
// discarded at request end. It is never persisted and never shared
// across requests.
//
// Invariant: once populated, TenantID is a member of
// AuthorizedTenantIDs, unless the caller holds the SysAdmin role, which
// is exempt from tenant-membership checks. [BuildTenantContext] enforces
// this as a hard contract; a violation is a bug in a validator, not a
// bad credential.
type TenantContext struct {
	// TenantID is the resolved tenant every downstream query is scoped
	// by. May be empty for SysAdmin callers acting outside any tenant;
	// endpoints that need a tenant declare [RequireTenant].
	TenantID string

	// LoggedInUser identifies the authenticated principal.
	LoggedInUser string

	// UserType records the credential kind that authenticated the
	// caller.
	UserType UserType

	// UserRoles is the caller's role set.
	UserRoles StringSet

	// AuthorizedTenantIDs is the set of tenants the credential may act
	// on.
	AuthorizedTenantIDs StringSet

	// Authorization holds the raw presented credential for downstream
	// components that must echo it (never forwarded by the propagation
	// layer, always redacted in logs).
	Authorization Secret

	// sealed flips once the builder finishes populating the context.
	sealed bool
}

// Seal marks the context as fully populated. Mutating a sealed context
// is a programming error; the builder is the only writer.
func (tc *TenantContext) Seal() {
	tc.sealed = true
}

// Sealed reports whether the context has been populated and sealed.
func (tc *TenantContext) Sealed() bool {
	return tc.sealed
}

// IsSysAdmin reports whether the caller holds the platform-wide
// SysAdmin role.
func (tc *TenantContext) IsSysAdmin() bool {
	return tc.UserRoles.Has(RoleSysAdmin)
}

// HasRole reports whether the caller holds the named role.
func (tc *TenantContext) HasRole(role string) bool {
	return tc.UserRoles.Has(role)
}

// AuthorizedFor reports whether the caller may act on the given tenant:
// either the tenant is in the credential's authorized set, or the
// caller is a SysAdmin.
func (tc *TenantContext) AuthorizedFor(tenantID string) bool {
	return tc.IsSysAdmin() || tc.AuthorizedTenantIDs.Has(tenantID)
}

// LogValue implements slog.LogValuer so that a TenantContext logged as
// a value never exposes the raw credential.
func (tc *TenantContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tenant_id", tc.TenantID),
		slog.String("user", tc.LoggedInUser),
		slog.String("user_type", string(tc.UserType)),
		slog.String("roles", strings.Join(tc.UserRoles.Values(), ",")),
	)
}

// contextKey is an unexported type for context keys in this package,
// preventing collisions with keys from other packages.
type contextKey int

const (
	// tenantContextKey stores the request's *TenantContext.
	tenantContextKey contextKey = iota
)

// ContextWithTenant returns a new context carrying the given
// TenantContext. Called by the HTTP middleware and gRPC interceptors
// once authentication succeeds.
func ContextWithTenant(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

// TenantFromContext retrieves the TenantContext from the context.
// Returns the context and true if present, or nil and false when the
// request was not authenticated.
func TenantFromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey).(*TenantContext)
	return tc, ok
}

// MustTenantFromContext retrieves the TenantContext, panicking if none
// is present. Use only behind the authentication middleware, where a
// populated context is guaranteed.
func MustTenantFromContext(ctx context.Context) *TenantContext {
	tc, ok := TenantFromContext(ctx)
	if !ok {
		panic("auth: no tenant context; ensure authentication middleware is configured")
	}
	return tc
}

// TraceIDFromContext extracts the OpenTelemetry trace id from the
// context, letting operators correlate authentication log lines with
// distributed traces. Returns "" and false when no trace is active.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
