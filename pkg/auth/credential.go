package auth

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// Secret is a string type that redacts its value in String(),
// GoString(), and MarshalText() so that raw credentials can never leak
// into logs, JSON output, or fmt verbs. The underlying value is only
// reachable through [Secret.Value].
type Secret string

// secretRedacted is the placeholder printed instead of the value.
const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, covering %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string. Call this only at the point
// the raw value is handed to a cryptographic or lookup function.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler with the redacted
// placeholder, covering JSON and YAML serialization.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Inbound credential and tenant-override carriers.
const (
	// HeaderAuthorization carries "Bearer <jwt>".
	HeaderAuthorization = "Authorization"

	// HeaderClientCert carries a base64-encoded DER client certificate.
	// The certificate arrives as a header rather than TLS-layer
	// negotiation because the gateway terminates TLS at the edge proxy.
	HeaderClientCert = "X-Client-Cert"

	// HeaderTenantID carries an explicit caller-supplied tenant id.
	HeaderTenantID = "X-Tenant-Id"

	// QueryAPIKey is the query parameter consulted for an API key when
	// no Authorization header is present.
	QueryAPIKey = "apikey"

	// QueryTenantID is the query-parameter form of the tenant override.
	QueryTenantID = "tenantId"

	// RouteTenantID is the route-template segment name for the tenant
	// override ({tenantId} in route patterns).
	RouteTenantID = "tenantId"
)

// bearerPrefix is matched case-insensitively per RFC 6750.
const bearerPrefix = "bearer "

// maxCertHeaderSize bounds the base64 certificate header (64 KB encoded).
const maxCertHeaderSize = 64 * 1024

// CredentialKind tags the variant held by a [Credential].
type CredentialKind string

const (
	// KindBearerToken is a JWT from the Authorization header.
	KindBearerToken CredentialKind = "bearer"

	// KindAPIKey is a long-lived key from the apikey query parameter.
	KindAPIKey CredentialKind = "apikey"

	// KindCertificate is a DER client certificate from the certificate
	// header.
	KindCertificate CredentialKind = "certificate"
)

// Credential is the tagged union of raw credential material extracted
// from a request. Exactly one of Bearer, APIKey, or CertDER is set,
// indicated by Kind. Credentials are ephemeral: they exist only for the
// duration of one request and are never persisted.
type Credential struct {
	Kind    CredentialKind
	Bearer  Secret
	APIKey  Secret
	CertDER []byte
}

// ExtractCredential pulls at most one credential out of request headers
// and query parameters, following a fixed precedence:
//
//  1. Authorization: Bearer <token> header
//  2. apikey query parameter (only if the header is absent)
//  3. base64-DER certificate header
//
// No cryptographic or network work happens here; this is pure parsing.
// A missing credential returns (nil, nil); the caller decides whether
// the endpoint requires one. A certificate header that is not valid
// base64 returns a Malformed error so that garbage input is rejected
// with 401, never 500.
func ExtractCredential(headers http.Header, query url.Values) (*Credential, error) {
	if raw := ExtractBearerToken(headers.Get(HeaderAuthorization)); raw != "" {
		return &Credential{Kind: KindBearerToken, Bearer: Secret(raw)}, nil
	}

	if key := query.Get(QueryAPIKey); key != "" {
		return &Credential{Kind: KindAPIKey, APIKey: Secret(key)}, nil
	}

	if encoded := headers.Get(HeaderClientCert); encoded != "" {
		if len(encoded) > maxCertHeaderSize {
			return nil, vferr.New(vferr.CodeAuthMalformed, "certificate header exceeds maximum size")
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			// Edge proxies sometimes URL-escape the header; try the
			// URL-safe alphabet before giving up.
			der, err = base64.URLEncoding.DecodeString(encoded)
		}
		if err != nil {
			return nil, vferr.Wrap(err, vferr.CodeAuthMalformed, "certificate header is not valid base64")
		}
		if len(der) == 0 {
			return nil, vferr.New(vferr.CodeAuthMalformed, "certificate header decodes to zero bytes")
		}
		return &Credential{Kind: KindCertificate, CertDER: der}, nil
	}

	return nil, nil
}

// ExtractBearerToken parses an Authorization header value and returns
// the bearer token, or "" if the header is empty or not a bearer
// scheme. The scheme comparison is case-insensitive.
func ExtractBearerToken(header string) string {
	if len(header) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// TenantOverride returns the caller-supplied tenant id for a request,
// consulting carriers in the fixed priority order: X-Tenant-Id header,
// tenantId query parameter, then the {tenantId} route segment. Returns
// "" when the caller supplied none.
func TenantOverride(r *http.Request) string {
	if v := r.Header.Get(HeaderTenantID); v != "" {
		return v
	}
	if v := r.URL.Query().Get(QueryTenantID); v != "" {
		return v
	}
	return r.PathValue(RouteTenantID)
}
