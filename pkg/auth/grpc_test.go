package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// grpcFixture authenticates real gateway session tokens so the
// interceptor tests exercise the full token pipeline, not a stub.
type grpcFixture struct {
	auth  *Authenticator
	gh    *githubProvider
	roles *fakeRoleStore
}

func newGRPCFixture(t *testing.T) *grpcFixture {
	t.Helper()

	roles := newFakeRoleStore()
	roles.member("octocat", "acme")
	roles.grant("octocat", RoleTenantAdmin)

	p, err := NewProvider(ProviderConfig{
		Name:       "github",
		Kind:       ProviderGitHub,
		IssuerURL:  "https://gateway.veriflow.dev/github",
		SigningKey: Secret("0123456789abcdef0123456789abcdef"),
	}, nil, roles, nil)
	require.NoError(t, err)
	gh := p.(*githubProvider)

	auth, err := NewAuthenticator(nil, []IdentityProvider{p}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)

	return &grpcFixture{auth: auth, gh: gh, roles: roles}
}

func incomingContext(kv ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
}

func TestUnaryServerInterceptor(t *testing.T) {
	f := newGRPCFixture(t)
	interceptor := UnaryServerInterceptor(f.auth, RequireTenant())
	info := &grpc.UnaryServerInfo{FullMethod: "/veriflow.v1.Workflows/List"}

	call := func(ctx context.Context) (*TenantContext, error) {
		var seen *TenantContext
		_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			seen = MustTenantFromContext(ctx)
			return "ok", nil
		})
		return seen, err
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := f.gh.MintSessionToken("octocat")
		require.NoError(t, err)

		seen, err := call(incomingContext(metadataAuthorization, "Bearer "+token))
		require.NoError(t, err)
		require.NotNil(t, seen)
		assert.Equal(t, "acme", seen.TenantID)
		assert.Equal(t, "octocat", seen.LoggedInUser)
	})

	t.Run("tenant override honored inside membership", func(t *testing.T) {
		token, err := f.gh.MintSessionToken("octocat")
		require.NoError(t, err)

		seen, err := call(incomingContext(
			metadataAuthorization, "Bearer "+token,
			metadataTenantID, "acme",
		))
		require.NoError(t, err)
		assert.Equal(t, "acme", seen.TenantID)
	})

	t.Run("foreign tenant override is PermissionDenied", func(t *testing.T) {
		token, err := f.gh.MintSessionToken("octocat")
		require.NoError(t, err)

		_, err = call(incomingContext(
			metadataAuthorization, "Bearer "+token,
			metadataTenantID, "initech",
		))
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
		assert.Equal(t, msgAccessDenied, status.Convert(err).Message())
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := call(context.Background())
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := call(incomingContext(metadataTenantID, "acme"))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("garbage token is a generic Unauthenticated", func(t *testing.T) {
		_, err := call(incomingContext(metadataAuthorization, "Bearer not.a.token"))
		require.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.Equal(t, msgInvalidCredential, status.Convert(err).Message())
	})

	t.Run("policy failure for tenantless user", func(t *testing.T) {
		f.roles.member("drifter")
		token, err := f.gh.MintSessionToken("drifter")
		require.NoError(t, err)

		_, err = call(incomingContext(metadataAuthorization, "Bearer "+token))
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})
}

func TestStreamServerInterceptor(t *testing.T) {
	f := newGRPCFixture(t)
	interceptor := StreamServerInterceptor(f.auth)
	info := &grpc.StreamServerInfo{FullMethod: "/veriflow.v1.Workflows/Watch"}

	token, err := f.gh.MintSessionToken("octocat")
	require.NoError(t, err)

	t.Run("wraps the stream with the authenticated context", func(t *testing.T) {
		stream := &stubServerStream{ctx: incomingContext(metadataAuthorization, "Bearer "+token)}
		var seen *TenantContext
		err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
			seen = MustTenantFromContext(ss.Context())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "acme", seen.TenantID)
	})

	t.Run("rejects before the handler runs", func(t *testing.T) {
		stream := &stubServerStream{ctx: context.Background()}
		handlerRan := false
		err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
			handlerRan = true
			return nil
		})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.False(t, handlerRan)
	})
}

func TestClientInterceptors_PropagateIdentity(t *testing.T) {
	tc, buildErr := BuildTenantContext(&AuthenticatedIdentity{
		UserID:              "alice",
		UserType:            UserTypeToken,
		Roles:               NewStringSet(RoleTenantAdmin),
		AuthorizedTenantIDs: NewStringSet("acme"),
	}, "acme", nil)
	require.Nil(t, buildErr)
	ctx := ContextWithTenant(context.Background(), tc)

	t.Run("unary", func(t *testing.T) {
		var outgoing metadata.MD
		invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			outgoing, _ = metadata.FromOutgoingContext(ctx)
			return nil
		}
		err := UnaryClientInterceptor()(ctx, "/veriflow.v1.Workflows/List", nil, nil, nil, invoker)
		require.NoError(t, err)

		require.Len(t, outgoing.Get(metadataTenantID), 1)
		assert.Equal(t, "acme", outgoing.Get(metadataTenantID)[0])

		decoded, err := DecodeIdentity(outgoing.Get(metadataIdentity)[0])
		require.NoError(t, err)
		assert.Equal(t, "alice", decoded.LoggedInUser)
	})

	t.Run("unauthenticated context adds nothing", func(t *testing.T) {
		var outgoing metadata.MD
		invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			outgoing, _ = metadata.FromOutgoingContext(ctx)
			return nil
		}
		err := UnaryClientInterceptor()(context.Background(), "/veriflow.v1.Workflows/List", nil, nil, nil, invoker)
		require.NoError(t, err)
		assert.Empty(t, outgoing.Get(metadataIdentity))
	})
}

// stubServerStream is the minimal grpc.ServerStream for interceptor
// tests.
type stubServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubServerStream) Context() context.Context {
	return s.ctx
}
