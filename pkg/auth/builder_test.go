package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veriflow/veriflow-gateway/internal/testutil"
	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

func TestResolveTenant(t *testing.T) {
	member := &AuthenticatedIdentity{
		UserID:              "alice",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleTenantAdmin),
		AuthorizedTenantIDs: NewStringSet("acme", "initech"),
		DefaultTenantID:     "acme",
	}
	sysadmin := &AuthenticatedIdentity{
		UserID:              "root",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleSysAdmin),
		AuthorizedTenantIDs: NewStringSet(),
	}
	singleton := &AuthenticatedIdentity{
		UserID:              "agent-7",
		UserType:            UserTypeAgent,
		Roles:               NewStringSet(RoleAgent),
		AuthorizedTenantIDs: NewStringSet("acme"),
	}
	tenantless := &AuthenticatedIdentity{
		UserID:              "drifter",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(),
		AuthorizedTenantIDs: NewStringSet(),
	}

	t.Run("override inside authorized set", func(t *testing.T) {
		got, err := ResolveTenant(member, "initech")
		require.Nil(t, err)
		assert.Equal(t, "initech", got)
	})

	t.Run("override outside authorized set rejected", func(t *testing.T) {
		_, err := ResolveTenant(member, "wayne-corp")
		testutil.RequireErrorCode(t, err, vferr.CodeAuthzTenantMismatch)
	})

	t.Run("sysadmin may override to any tenant", func(t *testing.T) {
		got, err := ResolveTenant(sysadmin, "wayne-corp")
		require.Nil(t, err)
		assert.Equal(t, "wayne-corp", got)
	})

	t.Run("no override uses default", func(t *testing.T) {
		got, err := ResolveTenant(member, "")
		require.Nil(t, err)
		assert.Equal(t, "acme", got)
	})

	t.Run("single authorized tenant is implicit", func(t *testing.T) {
		got, err := ResolveTenant(singleton, "")
		require.Nil(t, err)
		assert.Equal(t, "acme", got)
	})

	t.Run("no tenant resolvable is legal", func(t *testing.T) {
		got, err := ResolveTenant(tenantless, "")
		require.Nil(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("sysadmin with no override stays tenantless", func(t *testing.T) {
		got, err := ResolveTenant(sysadmin, "")
		require.Nil(t, err)
		assert.Equal(t, "", got)
	})
}

func TestBuildTenantContext(t *testing.T) {
	identity := &AuthenticatedIdentity{
		UserID:              "alice",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleTenantAdmin),
		AuthorizedTenantIDs: NewStringSet("acme"),
		Credential:          Secret("raw-token"),
	}

	t.Run("builds a sealed context", func(t *testing.T) {
		tc, err := BuildTenantContext(identity, "acme", nil)
		require.Nil(t, err)

		assert.True(t, tc.Sealed())
		assert.Equal(t, "acme", tc.TenantID)
		assert.Equal(t, "alice", tc.LoggedInUser)
		assert.Equal(t, UserTypeToken, tc.UserType)
		assert.True(t, tc.HasRole(RoleTenantAdmin))
		assert.True(t, tc.AuthorizedFor("acme"))
		assert.False(t, tc.AuthorizedFor("initech"))
	})

	t.Run("copies are independent of the identity", func(t *testing.T) {
		tc, err := BuildTenantContext(identity, "acme", nil)
		require.Nil(t, err)

		tc.UserRoles.Add("Injected")
		assert.False(t, identity.Roles.Has("Injected"),
			"mutating the context must not reach back into the identity")
	})

	t.Run("unauthorized tenant is a contract violation", func(t *testing.T) {
		_, err := BuildTenantContext(identity, "initech", nil)
		testutil.RequireErrorCode(t, err, vferr.CodeInternalContract)
		assert.True(t, vferr.IsContract(err),
			"a validator bug must surface as a bug, not a credential failure")
	})

	t.Run("sysadmin is exempt from membership", func(t *testing.T) {
		root := &AuthenticatedIdentity{
			UserID:              "root",
			UserType:            UserTypeToken,
			Roles:               NewStringSet(RoleSysAdmin),
			AuthorizedTenantIDs: NewStringSet(),
		}
		tc, err := BuildTenantContext(root, "any-tenant", nil)
		require.Nil(t, err)
		assert.Equal(t, "any-tenant", tc.TenantID)
	})

	t.Run("empty tenant always builds", func(t *testing.T) {
		tc, err := BuildTenantContext(identity, "", nil)
		require.Nil(t, err)
		assert.Equal(t, "", tc.TenantID)
	})
}

func TestTenantContext_LogValueRedactsCredential(t *testing.T) {
	tc, err := BuildTenantContext(&AuthenticatedIdentity{
		UserID:              "alice",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleTenantAdmin),
		AuthorizedTenantIDs: NewStringSet("acme"),
		Credential:          Secret("raw-token-material"),
	}, "acme", nil)
	require.Nil(t, err)

	rendered := tc.LogValue().String()
	assert.NotContains(t, rendered, "raw-token-material")
	assert.Contains(t, rendered, "alice")
}
