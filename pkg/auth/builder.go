package auth

import (
	"log/slog"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// ResolveTenant decides the tenant a request acts on, given the
// authenticated identity and the caller-supplied override (header,
// query parameter, or route segment; "" when the request named none).
//
// Resolution order:
//
//  1. An explicit override wins, but only when it is inside the
//     identity's authorized tenant set or the caller is a SysAdmin.
//     An unauthorized override is rejected, never silently replaced.
//  2. With no override, the identity's default tenant applies.
//  3. With no default either, a single-member authorized set resolves
//     to its only member.
//  4. Otherwise the resolved tenant is empty. That is a legal outcome:
//     endpoints that need a tenant declare [RequireTenant] and reject
//     at policy evaluation instead.
func ResolveTenant(identity *AuthenticatedIdentity, override string) (string, *vferr.Error) {
	if override != "" {
		if !identity.IsSysAdmin() && !identity.AuthorizedTenantIDs.Has(override) {
			return "", vferr.New(vferr.CodeAuthzTenantMismatch, "credential is not authorized for the requested tenant").
				WithDetail("supplied_tenant", override)
		}
		return override, nil
	}
	if identity.DefaultTenantID != "" {
		return identity.DefaultTenantID, nil
	}
	if len(identity.AuthorizedTenantIDs) == 1 {
		return identity.AuthorizedTenantIDs.Values()[0], nil
	}
	return "", nil
}

// BuildTenantContext converts a validated identity and a resolved
// tenant into the sealed per-request TenantContext.
//
// It asserts the package's central invariant: a non-empty tenant must
// be inside the identity's authorized set unless the caller is a
// SysAdmin. A violation here means a validator produced an
// inconsistent identity; it is reported as an internal contract error
// and logged at error level, never as an authentication failure,
// because the credential itself may have been perfectly valid.
func BuildTenantContext(identity *AuthenticatedIdentity, tenantID string, log *slog.Logger) (*TenantContext, *vferr.Error) {
	if tenantID != "" && !identity.IsSysAdmin() && !identity.AuthorizedTenantIDs.Has(tenantID) {
		err := vferr.Contract("resolved tenant is outside the credential's authorized set").
			WithDetail("tenant_id", tenantID).
			WithDetail("user_id", identity.UserID)
		if log != nil {
			log.Error("tenant context contract violation",
				"tenant_id", tenantID,
				"user_id", identity.UserID,
				"user_type", identity.UserType.String(),
				"authorized_tenants", identity.AuthorizedTenantIDs.Values(),
			)
		}
		return nil, err
	}

	tc := &TenantContext{
		TenantID:            tenantID,
		LoggedInUser:        identity.UserID,
		UserType:            identity.UserType,
		UserRoles:           identity.Roles.Clone(),
		AuthorizedTenantIDs: identity.AuthorizedTenantIDs.Clone(),
		Authorization:       identity.Credential,
	}
	tc.Seal()
	return tc, nil
}
