package auth

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// HeaderIdentity carries the serialized tenant context on calls from
// the gateway to backend services. The raw credential never rides
// along: backends trust the gateway's authentication, not the
// original secret.
const HeaderIdentity = "X-Veriflow-Identity"

// propagatedIdentity is the wire form of a TenantContext for
// gateway-to-backend propagation. The credential is deliberately
// absent from the shape.
type propagatedIdentity struct {
	TenantID            string   `json:"tenant_id"`
	User                string   `json:"user"`
	UserType            string   `json:"user_type"`
	Roles               []string `json:"roles,omitempty"`
	AuthorizedTenantIDs []string `json:"authorized_tenant_ids,omitempty"`
}

// EncodeIdentity serializes a sealed TenantContext into the
// base64url-encoded JSON header value.
func EncodeIdentity(tc *TenantContext) (string, error) {
	if tc == nil || !tc.Sealed() {
		return "", vferr.Contract("identity propagation requires a sealed tenant context")
	}
	payload, err := json.Marshal(propagatedIdentity{
		TenantID:            tc.TenantID,
		User:                tc.LoggedInUser,
		UserType:            string(tc.UserType),
		Roles:               tc.UserRoles.Values(),
		AuthorizedTenantIDs: tc.AuthorizedTenantIDs.Values(),
	})
	if err != nil {
		return "", vferr.Wrap(err, vferr.CodeInternal, "failed to serialize identity")
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeIdentity parses a propagated identity header back into a
// sealed TenantContext. Backends behind the gateway use this instead
// of re-validating the original credential.
func DecodeIdentity(encoded string) (*TenantContext, error) {
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, vferr.Wrap(err, vferr.CodeAuthMalformed, "identity header is not valid base64")
	}
	var p propagatedIdentity
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, vferr.Wrap(err, vferr.CodeAuthMalformed, "identity header is not valid JSON")
	}
	if p.User == "" {
		return nil, vferr.New(vferr.CodeAuthMalformed, "identity header names no user")
	}
	tc := &TenantContext{
		TenantID:            p.TenantID,
		LoggedInUser:        p.User,
		UserType:            UserType(p.UserType),
		UserRoles:           NewStringSet(p.Roles...),
		AuthorizedTenantIDs: NewStringSet(p.AuthorizedTenantIDs...),
	}
	tc.Seal()
	return tc, nil
}

// PropagatingRoundTripper wraps an [http.RoundTripper] to carry the
// request context's tenant identity to backend services as the
// [HeaderIdentity] header. Any Authorization header on the outgoing
// request is stripped: the original credential stops at the gateway.
//
// If no tenant context is present, the request proceeds unmodified
// apart from the credential strip.
type PropagatingRoundTripper struct {
	wrapped http.RoundTripper
	log     *slog.Logger
}

// NewPropagatingRoundTripper wraps the given transport. A nil
// transport uses [http.DefaultTransport]; a nil logger uses
// [slog.Default].
func NewPropagatingRoundTripper(transport http.RoundTripper, log *slog.Logger) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if log == nil {
		log = slog.Default()
	}
	return &PropagatingRoundTripper{wrapped: transport, log: log}
}

// RoundTrip implements [http.RoundTripper].
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	clone.Header.Del(HeaderAuthorization)
	clone.Header.Del(HeaderClientCert)

	tc, ok := TenantFromContext(r.Context())
	if !ok {
		return t.wrapped.RoundTrip(clone)
	}

	encoded, err := EncodeIdentity(tc)
	if err != nil {
		// Propagation failure must not turn an otherwise healthy
		// backend call into an outage; the backend sees an anonymous
		// request and applies its own policy.
		t.log.WarnContext(r.Context(), "failed to serialize identity for propagation", "error", err)
		return t.wrapped.RoundTrip(clone)
	}
	clone.Header.Set(HeaderIdentity, encoded)

	return t.wrapped.RoundTrip(clone)
}
