package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// Metadata keys for gRPC transport. gRPC metadata keys are lowercase.
const (
	metadataAuthorization = "authorization"
	metadataTenantID      = "x-tenant-id"
	metadataIdentity      = "x-veriflow-identity"
)

// TokenAuthenticator validates a raw bearer token and an optional
// tenant override into a sealed TenantContext. *Authenticator's gRPC
// path satisfies it via [Authenticator.AuthenticateToken].
type TokenAuthenticator interface {
	AuthenticateToken(ctx context.Context, rawToken, tenantOverride string) (*TenantContext, *vferr.Error)
}

// AuthenticateToken runs the bearer-token pipeline without an
// *http.Request: validation, tenant resolution against the override,
// and context building. It backs the gRPC interceptors, which have
// metadata instead of headers.
func (a *Authenticator) AuthenticateToken(ctx context.Context, rawToken, tenantOverride string) (*TenantContext, *vferr.Error) {
	identity, err := a.validateToken(ctx, Secret(rawToken))
	if err != nil {
		return nil, asCoded(err)
	}
	tenantID, rErr := ResolveTenant(identity, tenantOverride)
	if rErr != nil {
		return nil, rErr
	}
	return BuildTenantContext(identity, tenantID, a.log)
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates the bearer token in incoming metadata and stores the
// sealed TenantContext in the handler's context.
//
// Status mapping mirrors the HTTP middleware: authorization failures
// map to PermissionDenied, contract violations to Internal, and
// everything else on the authentication path to Unauthenticated with
// a generic message.
func UnaryServerInterceptor(auth TokenAuthenticator, requirements ...Requirement) grpc.UnaryServerInterceptor {
	policy := NewPolicyEvaluator(requirements...)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, auth, policy)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns the stream-side counterpart of
// [UnaryServerInterceptor], wrapping the stream to carry the enriched
// context.
func StreamServerInterceptor(auth TokenAuthenticator, requirements ...Requirement) grpc.StreamServerInterceptor {
	policy := NewPolicyEvaluator(requirements...)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), auth, policy)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticateGRPC extracts the bearer token and tenant override from
// incoming metadata, authenticates, evaluates policy, and returns the
// enriched context.
func authenticateGRPC(ctx context.Context, auth TokenAuthenticator, policy *PolicyEvaluator) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, msgInvalidCredential)
	}

	var token string
	if values := md.Get(metadataAuthorization); len(values) > 0 {
		token = ExtractBearerToken(values[0])
	}
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, msgInvalidCredential)
	}

	var override string
	if values := md.Get(metadataTenantID); len(values) > 0 {
		override = values[0]
	}

	tc, err := auth.AuthenticateToken(ctx, token, override)
	if err != nil {
		return ctx, grpcStatus(err)
	}
	if err := policy.Evaluate(tc); err != nil {
		return ctx, grpcStatus(err)
	}
	return ContextWithTenant(ctx, tc), nil
}

// grpcStatus maps a coded error to a gRPC status with a generic
// message; the specific failure reason stays in server-side logs,
// recorded by the authenticator.
func grpcStatus(err *vferr.Error) error {
	switch {
	case vferr.IsContract(err):
		return status.Error(codes.Internal, "internal error")
	case vferr.IsAuthorization(err):
		return status.Error(codes.PermissionDenied, msgAccessDenied)
	default:
		return status.Error(codes.Unauthenticated, msgInvalidCredential)
	}
}

// UnaryClientInterceptor returns a client interceptor that propagates
// the context's tenant identity to outgoing metadata, mirroring
// [PropagatingRoundTripper] for gRPC backends. The original credential
// is never forwarded.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(propagateGRPC(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns the stream-side counterpart of
// [UnaryClientInterceptor].
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(propagateGRPC(ctx), desc, cc, method, opts...)
	}
}

func propagateGRPC(ctx context.Context) context.Context {
	tc, ok := TenantFromContext(ctx)
	if !ok {
		return ctx
	}
	encoded, err := EncodeIdentity(tc)
	if err != nil {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx,
		metadataIdentity, encoded,
		metadataTenantID, tc.TenantID,
	)
}

// wrappedServerStream overrides the embedded stream's context with the
// authenticated one.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the enriched context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
