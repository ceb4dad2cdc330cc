package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// HTTPClient abstracts the HTTP client used for JWKS and OIDC discovery
// fetches, so callers can supply custom timeouts, transports, or
// middleware. The standard *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// jwksFetchTimeout bounds a single outbound JWKS fetch. The fetch runs
// detached from the caller's context (see [JWKSCache.Key]), so this is
// its only deadline.
const jwksFetchTimeout = 10 * time.Second

// maxJWKSResponseSize limits a JWKS response body to 1 MB.
const maxJWKSResponseSize = 1 << 20

// JWKSCache fetches and caches each identity provider's signing-key
// set, keyed by JWKS URL. An entry is refreshed when its TTL lapses or
// when a requested key id is missing (key rotation); a per-URL mutex
// serializes the fetch-and-replace sequence so that N concurrent
// requests hitting an expired entry trigger exactly one outbound fetch.
//
// JWKSCache is safe for concurrent use and is shared process-wide
// across all request-handling goroutines.
type JWKSCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksEntry
	ttl     time.Duration
	client  HTTPClient

	// refreshMu hands out one mutex per JWKS URL, guarding the
	// fetch-and-replace sequence for that provider only.
	refreshMu sync.Mutex
	refresh   map[string]*sync.Mutex

	// fetches counts outbound JWKS requests, observable in tests.
	fetches atomic.Int64
}

type jwksEntry struct {
	// keys maps kid to *rsa.PublicKey or *ecdsa.PublicKey.
	keys      map[string]any
	fetchedAt time.Time
}

// NewJWKSCache creates a JWKS cache with the given refresh interval. If
// client is nil, a default http.Client with a 10-second timeout is
// used.
func NewJWKSCache(ttl time.Duration, client HTTPClient) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: jwksFetchTimeout}
	}
	return &JWKSCache{
		entries: make(map[string]*jwksEntry),
		refresh: make(map[string]*sync.Mutex),
		ttl:     ttl,
		client:  client,
	}
}

// Key returns the public key with the given key id from the key set at
// jwksURL. A fresh cached entry is served directly; otherwise the set
// is fetched, with at most one refresh attempted on a key-id miss. A
// key id still absent after refresh yields CodeAuthUnknownKey, and a
// fetch failure yields CodeUnavailableProvider so the transport layer
// can distinguish provider outages from bad credentials.
//
// The outbound fetch is detached from ctx's cancellation: if the
// inbound request is cancelled mid-fetch, the fetch completes anyway
// and populates the cache for subsequent requests, since the work is
// reusable and not tied to the cancelled caller.
func (c *JWKSCache) Key(ctx context.Context, jwksURL, kid string) (any, error) {
	if key, ok := c.cachedKey(jwksURL, kid, time.Time{}); ok {
		return key, nil
	}

	// Serialize refresh per URL so concurrent misses fetch once.
	waitStart := time.Now()
	lock := c.urlLock(jwksURL)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have refreshed while we waited. Accept any
	// entry fetched after we started waiting, whether or not it has the
	// kid: a freshly rotated key set that still lacks the kid means the
	// kid is genuinely unknown, and fetching again would not help.
	c.mu.RLock()
	entry, ok := c.entries[jwksURL]
	c.mu.RUnlock()
	refreshedWhileWaiting := ok && entry.fetchedAt.After(waitStart)
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl

	if !refreshedWhileWaiting && (!fresh || !entryHasKid(entry, kid)) {
		refreshed, err := c.fetch(ctx, jwksURL)
		if err != nil {
			return nil, vferr.Wrapf(err, vferr.CodeUnavailableProvider,
				"failed to fetch JWKS from %s", jwksURL)
		}
		entry = refreshed
	}

	key, ok := entry.keys[kid]
	if !ok {
		return nil, vferr.Newf(vferr.CodeAuthUnknownKey,
			"signing key %q not found in JWKS", kid).WithDetail("jwks_url", jwksURL)
	}
	return key, nil
}

// Fetches returns the number of outbound JWKS fetches performed. Used
// by tests to assert the single-flight refresh behavior.
func (c *JWKSCache) Fetches() int64 {
	return c.fetches.Load()
}

// cachedKey returns the key for kid if a fresh entry holds it.
func (c *JWKSCache) cachedKey(jwksURL, kid string, _ time.Time) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[jwksURL]
	if !ok || time.Since(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	key, ok := entry.keys[kid]
	return key, ok
}

func entryHasKid(entry *jwksEntry, kid string) bool {
	if entry == nil {
		return false
	}
	_, ok := entry.keys[kid]
	return ok
}

// urlLock returns the refresh mutex for a JWKS URL, creating it on
// first use.
func (c *JWKSCache) urlLock(jwksURL string) *sync.Mutex {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	lock, ok := c.refresh[jwksURL]
	if !ok {
		lock = &sync.Mutex{}
		c.refresh[jwksURL] = lock
	}
	return lock
}

// fetch performs the outbound JWKS request and replaces the cache
// entry. The caller must hold the URL's refresh lock.
func (c *JWKSCache) fetch(ctx context.Context, jwksURL string) (*jwksEntry, error) {
	// Detach from the caller's cancellation but keep its values (trace
	// context); bound the fetch with its own deadline.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jwksFetchTimeout)
	defer cancel()

	c.fetches.Add(1)

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKS request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse JWKS JSON: %w", err)
	}

	keys := make(map[string]any, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pub, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue // skip malformed keys
			}
			keys[k.Kid] = pub
		case "EC":
			pub, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
	}

	entry := &jwksEntry{keys: keys, fetchedAt: time.Now()}
	c.mu.Lock()
	c.entries[jwksURL] = entry
	c.mu.Unlock()

	return entry, nil
}

// jwksDocument is the JSON shape of a JWKS endpoint response. Only the
// fields needed to reconstruct RSA and EC public keys are declared.
type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		// RSA fields
		N string `json:"n"`
		E string `json:"e"`
		// EC fields
		Crv string `json:"crv"`
		X   string `json:"x"`
		Y   string `json:"y"`
	} `json:"keys"`
}

// parseRSAPublicKey reconstructs an *rsa.PublicKey from base64url
// modulus and exponent values.
func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode RSA exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECPublicKey reconstructs an *ecdsa.PublicKey from a curve name
// and base64url coordinates.
func parseECPublicKey(crv, xB64, yB64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, fmt.Errorf("decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yB64)
	if err != nil {
		return nil, fmt.Errorf("decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
