package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCA is a throwaway certificate authority minted per test. Client
// certificates issued from it carry the tenant in the subject's O
// field and the user in OU, matching what the gateway's certificate
// validator extracts.
type TestCA struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	PEM  []byte
}

// NewTestCA mints a self-signed root CA valid for one hour.
func NewTestCA(t testing.TB) *TestCA {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate CA key")

	template := &x509.Certificate{
		SerialNumber:          newSerial(t),
		Subject:               pkix.Name{CommonName: "test root ca"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err, "failed to create CA certificate")
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err, "failed to parse CA certificate")

	return &TestCA{
		Cert: cert,
		Key:  key,
		PEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// ClientCertOptions adjusts a minted client certificate.
type ClientCertOptions struct {
	// NotAfter overrides the expiry (default one hour out).
	NotAfter time.Time

	// OmitClientAuth drops the client-authentication extended key
	// usage, producing a wrong-purpose certificate.
	OmitClientAuth bool

	// OmitSubject leaves the O and OU subject fields empty.
	OmitSubject bool
}

// IssueClientCert mints a client certificate for the given tenant and
// user, signed by the CA, and returns its DER bytes.
func (ca *TestCA) IssueClientCert(t testing.TB, tenantID, userID string, opts ClientCertOptions) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate client key")

	notAfter := opts.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(time.Hour)
	}
	template := &x509.Certificate{
		SerialNumber: newSerial(t),
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if !opts.OmitSubject {
		template.Subject = pkix.Name{
			CommonName:         userID,
			Organization:       []string{tenantID},
			OrganizationalUnit: []string{userID},
		}
	}
	if !opts.OmitClientAuth {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, &key.PublicKey, ca.Key)
	require.NoError(t, err, "failed to create client certificate")
	return der
}

func newSerial(t testing.TB) *big.Int {
	t.Helper()
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	require.NoError(t, err, "failed to generate serial number")
	return serial
}
