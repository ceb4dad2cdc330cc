package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// ProviderKind identifies one of the identity providers the gateway
// accepts bearer tokens from. The set is closed: adapters are selected
// once at configuration-load time, never per request.
type ProviderKind string

const (
	// ProviderAuth0 validates Auth0-issued tokens. Tenant membership
	// comes from a JSON-object-valued organization claim whose property
	// names are tenant ids.
	ProviderAuth0 ProviderKind = "auth0"

	// ProviderKeycloak validates Keycloak-issued tokens. Tenant
	// membership comes from a flat repeated claim.
	ProviderKeycloak ProviderKind = "keycloak"

	// ProviderAzureB2C validates Azure AD B2C tokens. B2C has no native
	// tenant concept; the token carries no tenant claim and the tenant
	// is derived from request context, with an optional documented
	// default tenant as the only fallback.
	ProviderAzureB2C ProviderKind = "azureb2c"

	// ProviderOIDC validates tokens from a generic OIDC provider with
	// configurable user-id and tenant claim names.
	ProviderOIDC ProviderKind = "oidc"

	// ProviderGitHub validates the gateway's own short-lived HS256
	// session tokens, minted after an upstream GitHub OAuth exchange.
	// These tokens embed no tenant claim at all; tenant resolution
	// happens entirely through the user/role store.
	ProviderGitHub ProviderKind = "github"
)

// Valid reports whether the kind is one of the recognized providers.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderAuth0, ProviderKeycloak, ProviderAzureB2C, ProviderOIDC, ProviderGitHub:
		return true
	default:
		return false
	}
}

// TokenIdentity is the outcome of a successful bearer-token validation:
// the provider-asserted user id and zero or more tenant ids. An empty
// tenant set is a legitimate outcome for providers without a tenant
// claim; the caller then falls back to a header-supplied tenant or
// rejects, per endpoint policy. A default is never invented here.
type TokenIdentity struct {
	UserID    string
	TenantIDs []string
}

// IdentityProvider validates a bearer token and extracts the user and
// tenant ids using the provider's claim mapping. Implementations are
// safe for concurrent use.
type IdentityProvider interface {
	// Name returns the configured provider name, used in logs and for
	// explicit provider hints.
	Name() string

	// Kind returns the provider's adapter kind.
	Kind() ProviderKind

	// Issuer returns the issuer URL this provider's tokens carry in
	// their iss claim; the authenticator routes tokens by it.
	Issuer() string

	// DefaultTenant returns the provider's documented default tenant
	// id, or "" when the provider has none.
	DefaultTenant() string

	// ValidateToken verifies the raw token's signature against the
	// provider's key set and returns the extracted identity.
	ValidateToken(ctx context.Context, raw string) (*TokenIdentity, error)
}

// ProviderConfig configures one identity provider adapter.
type ProviderConfig struct {
	// Name is the unique provider name (e.g., "auth0-prod").
	Name string `json:"name" yaml:"name"`

	// Kind selects the adapter.
	Kind ProviderKind `json:"kind" yaml:"kind"`

	// IssuerURL is the expected iss claim. Required for every kind.
	IssuerURL string `json:"issuer_url" yaml:"issuer_url"`

	// JWKSURL overrides the signing-key-set location. When empty,
	// "<issuer>/.well-known/jwks.json" is used. Ignored for the GitHub
	// kind, which verifies locally with SigningKey.
	JWKSURL string `json:"jwks_url,omitempty" yaml:"jwks_url,omitempty"`

	// Audience is the expected aud claim. When empty, the audience is
	// not validated.
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"`

	// UserIDClaim overrides the claim holding the user id. Defaults
	// per kind ("sub", or "oid" for Azure B2C).
	UserIDClaim string `json:"user_id_claim,omitempty" yaml:"user_id_claim,omitempty"`

	// TenantClaim overrides the claim holding tenant membership for
	// kinds that have one.
	TenantClaim string `json:"tenant_claim,omitempty" yaml:"tenant_claim,omitempty"`

	// DefaultTenantID is the documented fallback tenant for providers
	// with no tenant claim. Only honored for the Azure B2C kind.
	DefaultTenantID string `json:"default_tenant_id,omitempty" yaml:"default_tenant_id,omitempty"`

	// SigningKey is the HMAC key for gateway-minted GitHub session
	// tokens. Required for the GitHub kind; at least 32 bytes.
	SigningKey Secret `json:"-" yaml:"signing_key,omitempty"`

	// SessionTokenTTL is the lifetime of minted GitHub session tokens.
	// Defaults to 15 minutes.
	SessionTokenTTL time.Duration `json:"session_token_ttl,omitempty" yaml:"session_token_ttl,omitempty"`

	// ClockSkew is the tolerated clock difference for expiry and
	// not-before checks. Defaults to 5 minutes.
	ClockSkew time.Duration `json:"clock_skew,omitempty" yaml:"clock_skew,omitempty"`

	// CacheTTL bounds the token validation cache. Defaults to 5
	// minutes, kept short because bearer tokens are more actively
	// revocable than long-lived certificates.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// CacheMaxSize bounds the token validation cache. Defaults to
	// 10000.
	CacheMaxSize int `json:"cache_max_size,omitempty" yaml:"cache_max_size,omitempty"`
}

// Defaults for ProviderConfig.
const (
	DefaultTokenCacheTTL     = 5 * time.Minute
	DefaultTokenCacheMaxSize = 10000
	DefaultClockSkew         = 5 * time.Minute
	DefaultSessionTokenTTL   = 15 * time.Minute
)

// maxTokenSize caps accepted JWTs (8 KB) to prevent resource
// exhaustion.
const maxTokenSize = 8192

// Validate checks the provider configuration for its kind.
func (c *ProviderConfig) Validate() *vferr.Error {
	if c.Name == "" {
		return vferr.New(vferr.CodeInternalConfiguration, "provider: name must not be empty")
	}
	if !c.Kind.Valid() {
		return vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: unknown kind %q", c.Name, c.Kind)
	}
	if c.IssuerURL == "" {
		return vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: issuer URL must not be empty", c.Name)
	}
	if c.Kind == ProviderGitHub && len(c.SigningKey.Value()) < 32 {
		return vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: signing key must be at least 32 bytes", c.Name)
	}
	if c.ClockSkew < 0 || c.CacheTTL < 0 || c.CacheMaxSize < 0 || c.SessionTokenTTL < 0 {
		return vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: durations and sizes must be non-negative", c.Name)
	}
	return nil
}

// applyDefaults fills zero-valued tuning fields.
func (c *ProviderConfig) applyDefaults() {
	if c.ClockSkew == 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultTokenCacheTTL
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = DefaultTokenCacheMaxSize
	}
	if c.SessionTokenTTL == 0 {
		c.SessionTokenTTL = DefaultSessionTokenTTL
	}
	if c.JWKSURL == "" {
		c.JWKSURL = strings.TrimRight(c.IssuerURL, "/") + "/.well-known/jwks.json"
	}
}

// claimMapper extracts the user id and tenant ids from verified claims.
// Each adapter kind supplies its own.
type claimMapper func(claims jwt.MapClaims) (userID string, tenantIDs []string, err *vferr.Error)

// jwksProvider is the shared adapter for every JWKS-verified kind
// (Auth0, Keycloak, Azure B2C, generic OIDC). Adapters differ only in
// their claim mapping and default tenant; the validation pipeline is
// identical.
type jwksProvider struct {
	cfg     ProviderConfig
	jwks    *JWKSCache
	mapper  claimMapper
	cache   *ValidationCache[TokenIdentity]
	tracer  trace.Tracer
	metrics *Metrics
}

func (p *jwksProvider) Name() string       { return p.cfg.Name }
func (p *jwksProvider) Kind() ProviderKind { return p.cfg.Kind }
func (p *jwksProvider) Issuer() string     { return p.cfg.IssuerURL }
func (p *jwksProvider) DefaultTenant() string {
	if p.cfg.Kind == ProviderAzureB2C {
		return p.cfg.DefaultTenantID
	}
	return ""
}

// ValidateToken implements the shared pipeline:
//
//  1. reject tokens that are not well-formed (three dot-separated
//     segments, bounded size)
//  2. consult the token validation cache by SHA-256 hash of the raw
//     token (never the raw token itself)
//  3. resolve the signing key via the JWKS cache (refresh on kid miss)
//  4. validate signature, issuer, audience, expiry with clock-skew
//     leeway, and required claims
//  5. extract user and tenant ids per the provider's claim mapping
//  6. cache the success under the token hash, bounded by the token's
//     own expiry
func (p *jwksProvider) ValidateToken(ctx context.Context, raw string) (*TokenIdentity, error) {
	ctx, span := p.tracer.Start(ctx, "auth.Provider.ValidateToken",
		trace.WithAttributes(attribute.String("auth.provider", p.cfg.Name)))
	defer span.End()

	if err := checkWellFormed(raw); err != nil {
		return nil, p.fail(span, err)
	}

	hash := TokenHash(raw)
	if cached, ok := p.cache.Get(hash); ok {
		span.SetAttributes(attribute.Bool("auth.cache_hit", true))
		if p.metrics != nil {
			p.metrics.CacheLookup("token", true)
		}
		return &cached, nil
	}
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))
	if p.metrics != nil {
		p.metrics.CacheLookup("token", false)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(p.cfg.IssuerURL),
		jwt.WithLeeway(p.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if p.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.Audience))
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, vferr.New(vferr.CodeAuthInvalidToken, "token header missing kid")
		}
		return p.jwks.Key(ctx, p.cfg.JWKSURL, kid)
	}, opts...)
	if err != nil {
		return nil, p.fail(span, classifyTokenError(err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, p.fail(span, vferr.New(vferr.CodeAuthInvalidToken, "token claims could not be extracted"))
	}

	userID, tenantIDs, mapErr := p.mapper(claims)
	if mapErr != nil {
		return nil, p.fail(span, mapErr)
	}

	identity := TokenIdentity{UserID: userID, TenantIDs: tenantIDs}
	if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
		p.cache.PutUntil(hash, identity, exp.Time)
	}

	span.SetAttributes(attribute.String("auth.user_id", userID))
	if p.metrics != nil {
		p.metrics.Validation("token", true)
	}
	return &identity, nil
}

func (p *jwksProvider) fail(span trace.Span, err *vferr.Error) *vferr.Error {
	finishSpan(span, err)
	if p.metrics != nil {
		p.metrics.Validation("token", false)
	}
	return err.WithDetail("provider", p.cfg.Name)
}

// TokenHash returns the hex SHA-256 hash of a raw token. Hashes key the
// token validation cache so that raw secrets never reach cache or log
// surfaces.
func TokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// checkWellFormed rejects tokens that cannot be a JWT before any
// cryptographic work: empty, oversized, or without exactly three
// dot-separated segments.
func checkWellFormed(raw string) *vferr.Error {
	if raw == "" {
		return vferr.New(vferr.CodeAuthMalformed, "token must not be empty")
	}
	if len(raw) > maxTokenSize {
		return vferr.New(vferr.CodeAuthMalformed, "token exceeds maximum size")
	}
	if strings.Count(raw, ".") != 2 {
		return vferr.New(vferr.CodeAuthMalformed, "token is not a three-segment JWT")
	}
	return nil
}

// classifyTokenError converts a jwt library error into the coded
// taxonomy. Errors that are already coded (UnknownKey from the JWKS
// cache, UnavailableProvider from a failed fetch) pass through
// unchanged; the underlying jwt reason stays attached as the cause for
// server-side logging and is never surfaced to the caller verbatim.
func classifyTokenError(err error) *vferr.Error {
	if err == nil {
		return nil
	}
	var coded *vferr.Error
	if errors.As(err, &coded) {
		return coded
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return vferr.Wrap(err, vferr.CodeAuthExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return vferr.Wrap(err, vferr.CodeAuthMalformed, "token is malformed")
	default:
		return vferr.Wrap(err, vferr.CodeAuthInvalidToken, "token validation failed")
	}
}

// stringClaim returns a non-empty string claim or an InvalidToken
// error naming the claim.
func stringClaim(claims jwt.MapClaims, name string) (string, *vferr.Error) {
	v, _ := claims[name].(string)
	if v == "" {
		return "", vferr.Newf(vferr.CodeAuthInvalidToken, "token is missing required claim %q", name)
	}
	return v, nil
}

func newJWKSProvider(cfg ProviderConfig, jwks *JWKSCache, mapper claimMapper, metrics *Metrics) *jwksProvider {
	return &jwksProvider{
		cfg:     cfg,
		jwks:    jwks,
		mapper:  mapper,
		cache:   NewValidationCache[TokenIdentity](cfg.CacheTTL, cfg.CacheMaxSize),
		tracer:  otel.Tracer(tracerName),
		metrics: metrics,
	}
}
