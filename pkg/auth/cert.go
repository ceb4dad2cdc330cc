package auth

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// CachedCertValidation is the value stored in the certificate
// validation cache under a certificate thumbprint. Only successful
// validations are ever stored (see [ValidationCache]).
type CachedCertValidation struct {
	TenantID string
	UserID   string
}

// CertValidatorConfig configures a [CertificateValidator].
type CertValidatorConfig struct {
	// RootCAPEM is the PEM encoding of the single root CA that client
	// certificate chains must terminate at. Required.
	RootCAPEM []byte

	// CacheTTL bounds how long a successful validation is reused
	// without re-verifying the chain. Defaults to 10 minutes.
	CacheTTL time.Duration

	// CacheMaxSize bounds the validation cache. Defaults to 10000.
	CacheMaxSize int
}

// Defaults for CertValidatorConfig.
const (
	DefaultCertCacheTTL     = 10 * time.Minute
	DefaultCertCacheMaxSize = 10000
)

// Validate checks the configuration, parsing the root CA.
func (c *CertValidatorConfig) Validate() *vferr.Error {
	if len(c.RootCAPEM) == 0 {
		return vferr.New(vferr.CodeInternalConfiguration, "cert: root CA PEM must not be empty")
	}
	if c.CacheTTL < 0 {
		return vferr.New(vferr.CodeInternalConfiguration, "cert: cache TTL must be non-negative")
	}
	if c.CacheMaxSize < 0 {
		return vferr.New(vferr.CodeInternalConfiguration, "cert: cache max size must be non-negative")
	}
	return nil
}

// CertificateValidator validates X.509 client certificates carried as
// DER bytes: it builds a chain against the single configured root CA,
// checks revocation state, checks the client-authentication key usage,
// and extracts the tenant from the subject's O field and the user from
// OU.
//
// Successful validations are cached by thumbprint; revocation evicts.
// CertificateValidator is safe for concurrent use.
type CertificateValidator struct {
	root           *x509.Certificate
	roots          *x509.CertPool
	rootThumbprint string

	revocations RevocationStore
	tenants     TenantDirectory
	cache       *ValidationCache[CachedCertValidation]
	tracer      trace.Tracer
	metrics     *Metrics

	// chainBuilds counts full chain verifications, observable in tests
	// to prove the cache short-circuits repeat work.
	chainBuilds atomic.Int64
}

// NewCertificateValidator builds a validator from the configuration and
// its read-only collaborators. metrics may be nil.
func NewCertificateValidator(cfg CertValidatorConfig, revocations RevocationStore, tenants TenantDirectory, metrics *Metrics) (*CertificateValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if revocations == nil {
		return nil, vferr.New(vferr.CodeInternalConfiguration, "cert: revocation store is required")
	}
	if tenants == nil {
		return nil, vferr.New(vferr.CodeInternalConfiguration, "cert: tenant directory is required")
	}

	block, _ := pem.Decode(cfg.RootCAPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, vferr.New(vferr.CodeInternalConfiguration, "cert: root CA PEM does not contain a certificate block")
	}
	root, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, vferr.Wrap(err, vferr.CodeInternalConfiguration, "cert: root CA certificate is not valid DER")
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCertCacheTTL
	}
	maxSize := cfg.CacheMaxSize
	if maxSize == 0 {
		maxSize = DefaultCertCacheMaxSize
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	return &CertificateValidator{
		root:           root,
		roots:          roots,
		rootThumbprint: Thumbprint(root.Raw),
		revocations:    revocations,
		tenants:        tenants,
		cache:          NewValidationCache[CachedCertValidation](ttl, maxSize),
		tracer:         otel.Tracer(tracerName),
		metrics:        metrics,
	}, nil
}

// Thumbprint returns the hex SHA-256 hash of DER certificate bytes.
// Thumbprints key the validation cache and the revocation store, and
// are safe to log.
func Thumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Validate validates raw DER certificate bytes and returns the
// authenticated agent identity.
//
// The revocation store is consulted on every call, including cache
// hits: the cache exists to skip the expensive chain build, not the
// cheap revocation lookup, and a certificate marked revoked must never
// be accepted again regardless of cache state. Finding a revoked
// thumbprint evicts any cached success.
func (v *CertificateValidator) Validate(ctx context.Context, der []byte) (*AuthenticatedIdentity, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Certificate.Validate")
	defer span.End()

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, v.fail(span, vferr.Wrap(err, vferr.CodeAuthMalformed, "certificate is not valid DER"))
	}

	thumbprint := Thumbprint(der)
	span.SetAttributes(attribute.String("auth.cert.thumbprint", thumbprint))

	revoked, err := v.revocations.IsRevoked(ctx, thumbprint)
	if err != nil {
		return nil, v.fail(span, vferr.Wrap(err, vferr.CodeUnavailable, "revocation store lookup failed").
			WithDetail("thumbprint", thumbprint))
	}
	if revoked {
		v.cache.Evict(thumbprint)
		return nil, v.fail(span, vferr.New(vferr.CodeAuthRevoked, "certificate has been revoked").
			WithDetail("thumbprint", thumbprint))
	}

	cached, hit := v.cache.Get(thumbprint)
	span.SetAttributes(attribute.Bool("auth.cache_hit", hit))
	if v.metrics != nil {
		v.metrics.CacheLookup("cert", hit)
	}

	var tenantID, userID string
	if hit {
		tenantID, userID = cached.TenantID, cached.UserID
	} else {
		var verr *vferr.Error
		tenantID, userID, verr = v.verify(cert)
		if verr != nil {
			return nil, v.fail(span, verr)
		}
	}

	// Tenant state is re-checked even on cache hits: disabling a tenant
	// must take effect within a request, not a cache TTL.
	tenant, err := v.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return nil, v.fail(span, vferr.Wrap(err, vferr.CodeUnavailable, "tenant directory lookup failed").
			WithDetail("tenant_id", tenantID))
	}
	if tenant == nil || !tenant.Enabled {
		v.cache.Evict(thumbprint)
		return nil, v.fail(span, vferr.New(vferr.CodeAuthUnknownTenant, "certificate tenant is not a known, enabled tenant").
			WithDetail("tenant_id", tenantID))
	}

	if !hit {
		// The entry must not outlive the certificate: once NotAfter
		// passes, the next request rebuilds the chain and fails.
		v.cache.PutUntil(thumbprint, CachedCertValidation{TenantID: tenantID, UserID: userID}, cert.NotAfter)
	}

	span.SetAttributes(
		attribute.String("auth.tenant_id", tenantID),
		attribute.String("auth.user_id", userID),
	)
	if v.metrics != nil {
		v.metrics.Validation("certificate", true)
	}

	// An agent credential is scoped to exactly one tenant, never
	// broader.
	return &AuthenticatedIdentity{
		UserID:              userID,
		UserType:            UserTypeAgent,
		Roles:               NewStringSet(RoleAgent),
		AuthorizedTenantIDs: NewStringSet(tenantID),
		DefaultTenantID:     tenantID,
	}, nil
}

// ChainBuilds returns the number of full chain verifications performed,
// for cache-transparency assertions in tests.
func (v *CertificateValidator) ChainBuilds() int64 {
	return v.chainBuilds.Load()
}

// EvictThumbprint drops any cached validation for the thumbprint. The
// revocation admin surface calls this when marking a certificate
// revoked, so the eviction takes effect before the next request.
func (v *CertificateValidator) EvictThumbprint(thumbprint string) {
	v.cache.Evict(thumbprint)
}

// verify performs the expensive part of validation: chain building
// against the configured root and the key-usage check, followed by
// subject extraction. Cache hits skip this entirely.
func (v *CertificateValidator) verify(cert *x509.Certificate) (tenantID, userID string, err *vferr.Error) {
	v.chainBuilds.Add(1)
	if v.metrics != nil {
		v.metrics.ChainBuild()
	}

	chains, verifyErr := cert.Verify(x509.VerifyOptions{
		Roots: v.roots,
		// The client-auth purpose is checked explicitly below so that
		// the failure is reported as WrongPurpose, not UntrustedChain.
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if verifyErr != nil {
		return "", "", vferr.Wrap(verifyErr, vferr.CodeAuthUntrustedChain, "certificate chain verification failed")
	}

	// The chain must terminate at the configured root exactly, not
	// merely at some trusted root. Thumbprint equality, not subject
	// comparison.
	trusted := false
	for _, chain := range chains {
		if len(chain) == 0 {
			continue
		}
		if Thumbprint(chain[len(chain)-1].Raw) == v.rootThumbprint {
			trusted = true
			break
		}
	}
	if !trusted {
		return "", "", vferr.New(vferr.CodeAuthUntrustedChain, "certificate chain does not terminate at the configured root CA")
	}

	if !hasClientAuthUsage(cert) {
		return "", "", vferr.New(vferr.CodeAuthWrongPurpose, "certificate lacks the client-authentication key usage")
	}

	if len(cert.Subject.Organization) == 0 || cert.Subject.Organization[0] == "" {
		return "", "", vferr.New(vferr.CodeAuthUnknownTenant, "certificate subject carries no tenant (O field)")
	}
	if len(cert.Subject.OrganizationalUnit) == 0 || cert.Subject.OrganizationalUnit[0] == "" {
		return "", "", vferr.New(vferr.CodeAuthUnknownTenant, "certificate subject carries no user (OU field)")
	}

	return cert.Subject.Organization[0], cert.Subject.OrganizationalUnit[0], nil
}

// hasClientAuthUsage reports whether the certificate's extended key
// usage includes client authentication.
func hasClientAuthUsage(cert *x509.Certificate) bool {
	for _, usage := range cert.ExtKeyUsage {
		if usage == x509.ExtKeyUsageClientAuth || usage == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}

// fail records the failure on the span and in metrics before returning
// it.
func (v *CertificateValidator) fail(span trace.Span, err *vferr.Error) *vferr.Error {
	finishSpan(span, err)
	if v.metrics != nil {
		v.metrics.Validation("certificate", false)
	}
	return err
}
