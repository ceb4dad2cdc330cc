package auth

import (
	"context"
	"time"
)

// The interfaces below are the core's view of persisted state. All of
// it is read-only from this package's perspective: tenant configuration,
// revocation state, API keys, and user roles are written by the admin
// surfaces, which are outside the authentication core. The pkg/store
// package provides the PostgreSQL and Redis implementations.

// TenantConfig is one row of the tenant configuration table.
type TenantConfig struct {
	// ID is the tenant identifier, as it appears in certificate
	// subjects, token claims, and API-key bindings.
	ID string

	// Enabled gates the tenant. Credentials bound to a disabled tenant
	// are rejected with UnknownTenant, exactly like credentials bound
	// to a tenant that never existed.
	Enabled bool

	// DisplayName is the human-readable tenant name, used in logs only.
	DisplayName string
}

// TenantDirectory resolves tenant ids against the tenant configuration
// table. Implementations return (nil, nil) for unknown tenants and
// reserve errors for infrastructure failures.
type TenantDirectory interface {
	Lookup(ctx context.Context, tenantID string) (*TenantConfig, error)
}

// RevocationStore answers whether a certificate thumbprint has been
// revoked. Revocation state is shared across gateway replicas, so the
// production implementation is Redis-backed.
type RevocationStore interface {
	IsRevoked(ctx context.Context, thumbprint string) (bool, error)
}

// APIKeyRecord is one row of the API-key store, located by the SHA-256
// hash of the presented key. The raw key is never stored.
type APIKeyRecord struct {
	// ID is the key's row identifier.
	ID string

	// KeyHash is the hex SHA-256 hash of the raw key.
	KeyHash string

	// TenantID is the tenant the key is bound to.
	TenantID string

	// CreatedBy is the user id of the key's creator. The creator's
	// roles, not the request path, gate what the key may do.
	CreatedBy string

	// CreatedAt records when the key was issued.
	CreatedAt time.Time
}

// APIKeyStore looks up API keys by hash. Implementations return
// (nil, nil) when no active key matches and reserve errors for
// infrastructure failures.
type APIKeyStore interface {
	FindByHash(ctx context.Context, keyHash string) (*APIKeyRecord, error)
}

// UserRoleStore reads the user/role table.
type UserRoleStore interface {
	// RolesForUser returns the role set granted to the user. An
	// unknown user yields an empty set, not an error.
	RolesForUser(ctx context.Context, userID string) (StringSet, error)

	// TenantsForUser returns the tenants the user belongs to. Used for
	// providers whose tokens carry no tenant claim (GitHub), where
	// tenant resolution happens entirely through this table.
	TenantsForUser(ctx context.Context, userID string) ([]string, error)
}
