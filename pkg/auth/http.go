package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// Client-facing rejection bodies. Every authentication failure maps to
// one of these two strings; the specific failing step (bad signature,
// unknown key, revoked certificate, unreachable JWKS endpoint) appears
// only in server-side logs. A caller probing the gateway learns nothing
// about which check failed.
const (
	msgInvalidCredential = "invalid credential"
	msgAccessDenied      = "access denied"
)

// Authenticator runs the full authentication pipeline for a request:
// extract the credential, dispatch it to the matching validator,
// resolve the tenant, and build the sealed TenantContext.
type Authenticator struct {
	certs     *CertificateValidator
	keys      *APIKeyResolver
	providers []IdentityProvider
	byIssuer  map[string]IdentityProvider
	log       *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
}

// NewAuthenticator assembles the pipeline. Any validator may be nil,
// in which case its credential kind is rejected; at least one must be
// configured. Provider issuers must be unique.
func NewAuthenticator(certs *CertificateValidator, providers []IdentityProvider, keys *APIKeyResolver, log *slog.Logger, metrics *Metrics) (*Authenticator, error) {
	if certs == nil && keys == nil && len(providers) == 0 {
		return nil, vferr.New(vferr.CodeInternalConfiguration, "authenticator requires at least one validator")
	}
	if log == nil {
		log = slog.Default()
	}
	byIssuer := make(map[string]IdentityProvider, len(providers))
	for _, p := range providers {
		if _, dup := byIssuer[p.Issuer()]; dup {
			return nil, vferr.Newf(vferr.CodeInternalConfiguration, "duplicate provider issuer %q", p.Issuer())
		}
		byIssuer[p.Issuer()] = p
	}
	return &Authenticator{
		certs:     certs,
		keys:      keys,
		providers: providers,
		byIssuer:  byIssuer,
		log:       log,
		tracer:    otel.Tracer(tracerName),
		metrics:   metrics,
	}, nil
}

// Authenticate validates the request's credential and returns the
// sealed TenantContext. The error is always coded; the middleware maps
// it to a status and a generic body.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*TenantContext, *vferr.Error) {
	ctx, span := a.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	cred, err := ExtractCredential(r.Header, r.URL.Query())
	if err != nil {
		coded := asCoded(err)
		finishSpan(span, coded)
		return nil, coded
	}
	if cred == nil {
		coded := vferr.New(vferr.CodeAuthentication, "no credential presented")
		finishSpan(span, coded)
		return nil, coded
	}

	override := TenantOverride(r)

	var identity *AuthenticatedIdentity
	var tenantID string
	switch cred.Kind {
	case KindCertificate:
		identity, err = a.validateCertificate(ctx, cred.CertDER)
		if err == nil {
			// Agents are bound to their certificate's tenant; an
			// override naming any other tenant is refused by
			// ResolveTenant's membership check.
			tenantID, err = a.resolve(identity, override)
		}

	case KindBearerToken:
		identity, err = a.validateToken(ctx, cred.Bearer)
		if err == nil {
			tenantID, err = a.resolve(identity, override)
		}

	case KindAPIKey:
		// The resolver owns the tenant decision for keys: the key's
		// bound tenant wins, with the SysAdmin-only override exception.
		identity, err = a.validateAPIKey(ctx, cred.APIKey, override)
		if err == nil {
			tenantID = identity.DefaultTenantID
		}

	default:
		err = vferr.Contract("unhandled credential kind")
	}
	if err != nil {
		coded := asCoded(err)
		finishSpan(span, coded)
		return nil, coded
	}

	tc, buildErr := BuildTenantContext(identity, tenantID, a.log)
	if buildErr != nil {
		finishSpan(span, buildErr)
		return nil, buildErr
	}
	return tc, nil
}

func (a *Authenticator) validateCertificate(ctx context.Context, der []byte) (*AuthenticatedIdentity, error) {
	if a.certs == nil {
		return nil, vferr.New(vferr.CodeAuthentication, "certificate authentication is not configured")
	}
	return a.certs.Validate(ctx, der)
}

func (a *Authenticator) validateAPIKey(ctx context.Context, key Secret, override string) (*AuthenticatedIdentity, error) {
	if a.keys == nil {
		return nil, vferr.New(vferr.CodeAuthentication, "api key authentication is not configured")
	}
	return a.keys.Resolve(ctx, key.Value(), override)
}

// validateToken routes a bearer token to the provider whose issuer
// matches the token's unverified iss claim, then lets that provider
// perform the real, signature-checked validation. The unverified claim
// is used only for routing; trusting any other part of it would be a
// signature bypass.
func (a *Authenticator) validateToken(ctx context.Context, token Secret) (*AuthenticatedIdentity, error) {
	raw := token.Value()
	if err := checkWellFormed(raw); err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, vferr.Wrap(err, vferr.CodeAuthMalformed, "token could not be parsed")
	}
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, vferr.New(vferr.CodeAuthInvalidToken, "token carries no issuer")
	}
	provider, ok := a.byIssuer[issuer]
	if !ok {
		return nil, vferr.New(vferr.CodeAuthInvalidToken, "token issuer is not a configured provider").
			WithDetail("issuer", issuer)
	}

	tokenIdentity, vErr := provider.ValidateToken(ctx, raw)
	if vErr != nil {
		return nil, vErr
	}

	roles, rErr := a.rolesFor(ctx, tokenIdentity.UserID)
	if rErr != nil {
		return nil, rErr
	}

	// A provider's configured default tenant is a standing grant, so it
	// joins the claim-derived set; the membership invariant in
	// BuildTenantContext holds for it like any other authorized tenant.
	authorized := NewStringSet(tokenIdentity.TenantIDs...)
	defaultTenant := provider.DefaultTenant()
	if defaultTenant != "" {
		authorized.Add(defaultTenant)
	}

	return &AuthenticatedIdentity{
		UserID:              tokenIdentity.UserID,
		UserType:            UserTypeToken,
		Roles:               roles,
		AuthorizedTenantIDs: authorized,
		DefaultTenantID:     defaultTenant,
		Provider:            provider.Name(),
		Credential:          token,
	}, nil
}

// rolesFor fetches the user's role set when a role store is wired via
// the API key resolver's store. Token users without any stored roles
// get an empty set, which is a legal identity.
func (a *Authenticator) rolesFor(ctx context.Context, userID string) (StringSet, error) {
	if a.keys == nil || a.keys.roles == nil {
		return NewStringSet(), nil
	}
	roles, err := a.keys.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, vferr.Wrap(err, vferr.CodeUnavailableProvider, "role lookup failed")
	}
	return roles, nil
}

// resolve adapts ResolveTenant's concrete error type for tuple
// assignment into an error-typed variable without a typed-nil value.
func (a *Authenticator) resolve(identity *AuthenticatedIdentity, override string) (string, error) {
	tenantID, err := ResolveTenant(identity, override)
	if err != nil {
		return "", err
	}
	return tenantID, nil
}

// asCoded coerces any error to a coded error, defaulting to a generic
// authentication failure so the transport layer always has a code.
func asCoded(err error) *vferr.Error {
	if coded, ok := vferr.AsError(err); ok {
		return coded
	}
	return vferr.Wrap(err, vferr.CodeAuthentication, "authentication failed")
}

// Middleware wraps a handler with authentication and per-route policy
// evaluation. On success the request context carries the sealed
// TenantContext; on failure the response is a generic 401 or 403.
//
// Rejection mapping:
//
//   - AUTHZ_xxx → 403 "access denied"
//   - INT_002 (contract violation) → 500; these are bugs, and masking
//     them as credential failures would hide cross-tenant defects
//   - everything else on the authentication path → 401 "invalid
//     credential", including infrastructure outages (fail closed)
func (a *Authenticator) Middleware(requirements ...Requirement) func(http.Handler) http.Handler {
	policy := NewPolicyEvaluator(requirements...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tc, err := a.Authenticate(ctx, r)
			if err != nil {
				a.reject(ctx, w, r, err)
				return
			}

			if err := policy.Evaluate(tc); err != nil {
				a.reject(ctx, w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithTenant(ctx, tc)))
		})
	}
}

// reject writes the generic response and logs the real reason.
// Credential failures log at warn (expected operational noise);
// infrastructure outages and contract violations log at error so they
// alert.
func (a *Authenticator) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, err *vferr.Error) {
	attrs := []any{
		"code", err.Code.String(),
		"error", err.Error(),
		"method", r.Method,
		"path", r.URL.Path,
	}
	if traceID, ok := TraceIDFromContext(ctx); ok {
		attrs = append(attrs, "trace_id", traceID)
	}

	switch {
	case vferr.IsContract(err):
		a.log.ErrorContext(ctx, "authentication contract violation", attrs...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	case vferr.IsAuthorization(err):
		a.log.WarnContext(ctx, "request not authorized", attrs...)
		http.Error(w, msgAccessDenied, http.StatusForbidden)
	case vferr.IsUnavailable(err):
		// Fail closed: the caller sees an ordinary credential
		// rejection, operators see an infrastructure alert.
		a.log.ErrorContext(ctx, "authentication dependency unavailable", attrs...)
		http.Error(w, msgInvalidCredential, http.StatusUnauthorized)
	default:
		a.log.WarnContext(ctx, "credential rejected", attrs...)
		http.Error(w, msgInvalidCredential, http.StatusUnauthorized)
	}
}
