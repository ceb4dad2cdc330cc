package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SigningKey is an RSA keypair plus key id for minting provider tokens
// in tests.
type SigningKey struct {
	Kid string
	Key *rsa.PrivateKey
}

// NewSigningKey generates a 2048-bit RSA keypair under the given kid.
func NewSigningKey(t testing.TB, kid string) *SigningKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return &SigningKey{Kid: kid, Key: key}
}

// MintToken signs an RS256 JWT with the key. The claims map is used
// as-is; callers set iss, sub, exp, and any provider-specific claims.
func (k *SigningKey) MintToken(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.Kid
	signed, err := token.SignedString(k.Key)
	require.NoError(t, err, "failed to sign token")
	return signed
}

// StandardClaims returns a claims map with issuer, subject, and a
// one-hour expiry; tests merge provider-specific claims on top.
func StandardClaims(issuer, subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

// JWKSServer is an httptest server publishing the JWKS documents for a
// set of signing keys, with a request counter for asserting fetch
// behavior (cache hits, single-flight refresh).
type JWKSServer struct {
	*httptest.Server
	keys     []*SigningKey
	requests atomic.Int64

	// FailNext makes the next requests return 500 while positive,
	// decrementing per request. Used to simulate provider outages.
	FailNext atomic.Int64
}

// NewJWKSServer starts a JWKS endpoint for the keys, stopped
// automatically at test cleanup.
func NewJWKSServer(t testing.TB, keys ...*SigningKey) *JWKSServer {
	t.Helper()
	s := &JWKSServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Requests returns how many times the endpoint has been fetched.
func (s *JWKSServer) Requests() int64 {
	return s.requests.Load()
}

func (s *JWKSServer) serve(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if s.FailNext.Load() > 0 {
		s.FailNext.Add(-1)
		http.Error(w, "upstream outage", http.StatusInternalServerError)
		return
	}

	type jwk struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	doc := struct {
		Keys []jwk `json:"keys"`
	}{}
	for _, k := range s.keys {
		pub := &k.Key.PublicKey
		doc.Keys = append(doc.Keys, jwk{
			Kty: "RSA",
			Kid: k.Kid,
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
