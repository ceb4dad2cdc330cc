package auth

import (
	"context"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// Default claim names per adapter kind. Auth0 custom claims are
// namespaced URLs per Auth0's claim rules.
const (
	defaultAuth0TenantClaim    = "https://veriflow.dev/tenants"
	defaultKeycloakTenantClaim = "tenants"
	defaultOIDCTenantClaim     = "tenants"
	defaultUserIDClaim         = "sub"
	defaultAzureB2CUserIDClaim = "oid"
)

// NewProvider builds the adapter for the configured kind. The roles
// store is only consulted by the GitHub adapter, whose tokens carry no
// tenant claim; other kinds ignore it.
func NewProvider(cfg ProviderConfig, jwks *JWKSCache, roles UserRoleStore, metrics *Metrics) (IdentityProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	switch cfg.Kind {
	case ProviderAuth0:
		return newJWKSProvider(cfg, jwks, auth0Mapper(cfg), metrics), nil
	case ProviderKeycloak:
		return newJWKSProvider(cfg, jwks, keycloakMapper(cfg), metrics), nil
	case ProviderAzureB2C:
		return newJWKSProvider(cfg, jwks, azureB2CMapper(cfg), metrics), nil
	case ProviderOIDC:
		return newJWKSProvider(cfg, jwks, oidcMapper(cfg), metrics), nil
	case ProviderGitHub:
		if roles == nil {
			return nil, vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: github kind requires a user role store", cfg.Name)
		}
		return newGitHubProvider(cfg, roles, metrics), nil
	default:
		return nil, vferr.Newf(vferr.CodeInternalConfiguration, "provider %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// auth0Mapper reads tenant membership from an object-valued claim
// whose property names are the tenant ids. A missing claim yields an
// empty tenant set, not an error: users without organization
// membership are still authenticated.
func auth0Mapper(cfg ProviderConfig) claimMapper {
	userClaim := cfg.UserIDClaim
	if userClaim == "" {
		userClaim = defaultUserIDClaim
	}
	tenantClaim := cfg.TenantClaim
	if tenantClaim == "" {
		tenantClaim = defaultAuth0TenantClaim
	}
	return func(claims jwt.MapClaims) (string, []string, *vferr.Error) {
		userID, err := stringClaim(claims, userClaim)
		if err != nil {
			return "", nil, err
		}
		obj, ok := claims[tenantClaim].(map[string]any)
		if !ok {
			return userID, nil, nil
		}
		tenants := make([]string, 0, len(obj))
		for id := range obj {
			if id != "" {
				tenants = append(tenants, id)
			}
		}
		sort.Strings(tenants)
		return userID, tenants, nil
	}
}

// keycloakMapper reads tenant membership from a flat repeated claim.
// A single string value is accepted for realms that emit unwrapped
// single-element claims.
func keycloakMapper(cfg ProviderConfig) claimMapper {
	userClaim := cfg.UserIDClaim
	if userClaim == "" {
		userClaim = defaultUserIDClaim
	}
	tenantClaim := cfg.TenantClaim
	if tenantClaim == "" {
		tenantClaim = defaultKeycloakTenantClaim
	}
	return flatTenantMapper(userClaim, tenantClaim)
}

// azureB2CMapper extracts only the user id; B2C tokens carry no tenant
// claim. Tenant resolution falls to request context or the provider's
// configured default tenant.
func azureB2CMapper(cfg ProviderConfig) claimMapper {
	userClaim := cfg.UserIDClaim
	if userClaim == "" {
		userClaim = defaultAzureB2CUserIDClaim
	}
	return func(claims jwt.MapClaims) (string, []string, *vferr.Error) {
		userID, err := stringClaim(claims, userClaim)
		if err != nil {
			return "", nil, err
		}
		return userID, nil, nil
	}
}

// oidcMapper is the generic adapter: both claim names are
// configurable, with conventional defaults.
func oidcMapper(cfg ProviderConfig) claimMapper {
	userClaim := cfg.UserIDClaim
	if userClaim == "" {
		userClaim = defaultUserIDClaim
	}
	tenantClaim := cfg.TenantClaim
	if tenantClaim == "" {
		tenantClaim = defaultOIDCTenantClaim
	}
	return flatTenantMapper(userClaim, tenantClaim)
}

func flatTenantMapper(userClaim, tenantClaim string) claimMapper {
	return func(claims jwt.MapClaims) (string, []string, *vferr.Error) {
		userID, err := stringClaim(claims, userClaim)
		if err != nil {
			return "", nil, err
		}
		var tenants []string
		switch v := claims[tenantClaim].(type) {
		case []any:
			for _, item := range v {
				if id, ok := item.(string); ok && id != "" {
					tenants = append(tenants, id)
				}
			}
		case string:
			if v != "" {
				tenants = []string{v}
			}
		}
		sort.Strings(tenants)
		return userID, tenants, nil
	}
}

// ---

// githubProvider validates the gateway's own session tokens. After the
// GitHub OAuth dance completes elsewhere, the gateway mints a
// short-lived HS256 JWT carrying only the user id; tenant membership is
// resolved from the user role store on every validation so that
// membership changes take effect within the cache TTL rather than the
// token lifetime.
type githubProvider struct {
	cfg     ProviderConfig
	roles   UserRoleStore
	cache   *ValidationCache[TokenIdentity]
	tracer  trace.Tracer
	metrics *Metrics
}

func newGitHubProvider(cfg ProviderConfig, roles UserRoleStore, metrics *Metrics) *githubProvider {
	return &githubProvider{
		cfg:     cfg,
		roles:   roles,
		cache:   NewValidationCache[TokenIdentity](cfg.CacheTTL, cfg.CacheMaxSize),
		tracer:  otel.Tracer(tracerName),
		metrics: metrics,
	}
}

func (p *githubProvider) Name() string          { return p.cfg.Name }
func (p *githubProvider) Kind() ProviderKind    { return ProviderGitHub }
func (p *githubProvider) Issuer() string        { return p.cfg.IssuerURL }
func (p *githubProvider) DefaultTenant() string { return "" }

// MintSessionToken issues a short-lived session token for a user whose
// GitHub OAuth exchange has already been verified by the caller.
func (p *githubProvider) MintSessionToken(userID string) (string, error) {
	if userID == "" {
		return "", vferr.New(vferr.CodeInternalContract, "session token requires a user id")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.cfg.IssuerURL,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.SessionTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.cfg.SigningKey.Value()))
	if err != nil {
		return "", vferr.Wrap(err, vferr.CodeInternalContract, "failed to sign session token")
	}
	return signed, nil
}

// ValidateToken verifies the session token locally with the configured
// HMAC key, then resolves tenant membership from the role store.
func (p *githubProvider) ValidateToken(ctx context.Context, raw string) (*TokenIdentity, error) {
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
	if p.metrics != nil {
		p.metrics.CacheLookup("token", false)
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return []byte(p.cfg.SigningKey.Value()), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(p.cfg.IssuerURL),
		jwt.WithLeeway(p.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, p.fail(span, classifyTokenError(err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, p.fail(span, vferr.New(vferr.CodeAuthInvalidToken, "token claims could not be extracted"))
	}
	userID, claimErr := stringClaim(claims, "sub")
	if claimErr != nil {
		return nil, p.fail(span, claimErr)
	}

	tenants, rolesErr := p.roles.TenantsForUser(ctx, userID)
	if rolesErr != nil {
		return nil, p.fail(span, vferr.Wrap(rolesErr, vferr.CodeUnavailableProvider, "failed to resolve tenant membership"))
	}
	sort.Strings(tenants)

	identity := TokenIdentity{UserID: userID, TenantIDs: tenants}
	if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
		p.cache.PutUntil(hash, identity, exp.Time)
	}

	span.SetAttributes(attribute.String("auth.user_id", userID))
	if p.metrics != nil {
		p.metrics.Validation("token", true)
	}
	return &identity, nil
}

func (p *githubProvider) fail(span trace.Span, err *vferr.Error) *vferr.Error {
	finishSpan(span, err)
	if p.metrics != nil {
		p.metrics.Validation("token", false)
	}
	return err.WithDetail("provider", p.cfg.Name)
}
