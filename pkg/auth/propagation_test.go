package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"

	"github.com/Veriflow/veriflow-gateway/internal/testutil"
)

func TestEncodeDecodeIdentity(t *testing.T) {
	tc, err := BuildTenantContext(&AuthenticatedIdentity{
		UserID:              "alice",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleTenantAdmin),
		AuthorizedTenantIDs: NewStringSet("acme", "initech"),
		Credential:          Secret("raw-bearer-token"),
	}, "acme", nil)
	require.Nil(t, err)

	encoded, encErr := EncodeIdentity(tc)
	require.NoError(t, encErr)
	assert.NotContains(t, encoded, "raw-bearer-token",
		"the credential must never ride the propagation header")

	decoded, decErr := DecodeIdentity(encoded)
	require.NoError(t, decErr)
	assert.True(t, decoded.Sealed())
	assert.Equal(t, "acme", decoded.TenantID)
	assert.Equal(t, "alice", decoded.LoggedInUser)
	assert.Equal(t, UserTypeToken, decoded.UserType)
	assert.True(t, decoded.HasRole(RoleTenantAdmin))
	assert.True(t, decoded.AuthorizedFor("initech"))
	assert.Empty(t, decoded.Authorization.Value(), "credentials do not survive propagation")
}

func TestEncodeIdentity_RequiresSealedContext(t *testing.T) {
	_, err := EncodeIdentity(&TenantContext{TenantID: "acme"})
	testutil.RequireErrorCode(t, err, vferr.CodeInternalContract)
	_, err = EncodeIdentity(nil)
	testutil.RequireErrorCode(t, err, vferr.CodeInternalContract)
}

func TestDecodeIdentity_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!"},
		{"not json", "bm90LWpzb24"},
		{"no user", "e30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIdentity(tt.encoded)
			testutil.RequireErrorCode(t, err, vferr.CodeAuthMalformed)
		})
	}
}

func TestPropagatingRoundTripper(t *testing.T) {
	var received http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
	}))
	t.Cleanup(backend.Close)

	client := &http.Client{Transport: NewPropagatingRoundTripper(nil, nil)}

	t.Run("identity forwarded, credential stripped", func(t *testing.T) {
		tc, err := BuildTenantContext(&AuthenticatedIdentity{
			UserID:              "alice",
			UserType:            UserTypeToken,
			Roles:               NewStringSet(RoleTenantAdmin),
			AuthorizedTenantIDs: NewStringSet("acme"),
		}, "acme", nil)
		require.Nil(t, err)

		r, reqErr := http.NewRequest(http.MethodGet, backend.URL, nil)
		require.NoError(t, reqErr)
		r.Header.Set(HeaderAuthorization, "Bearer original-secret")
		r.Header.Set(HeaderClientCert, "original-cert")
		r = r.WithContext(ContextWithTenant(r.Context(), tc))

		resp, doErr := client.Do(r)
		require.NoError(t, doErr)
		_ = resp.Body.Close()

		assert.Empty(t, received.Get(HeaderAuthorization), "raw credentials stop at the gateway")
		assert.Empty(t, received.Get(HeaderClientCert))

		decoded, decErr := DecodeIdentity(received.Get(HeaderIdentity))
		require.NoError(t, decErr)
		assert.Equal(t, "acme", decoded.TenantID)
		assert.Equal(t, "alice", decoded.LoggedInUser)
	})

	t.Run("anonymous context forwards nothing", func(t *testing.T) {
		r, reqErr := http.NewRequest(http.MethodGet, backend.URL, nil)
		require.NoError(t, reqErr)
		r.Header.Set(HeaderAuthorization, "Bearer original-secret")

		resp, doErr := client.Do(r)
		require.NoError(t, doErr)
		_ = resp.Body.Close()

		assert.Empty(t, received.Get(HeaderIdentity))
		assert.Empty(t, received.Get(HeaderAuthorization))
	})
}
