package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"sync"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// RSA key generation is slow enough to matter across hundreds of
// subtests, so one key per size is shared by the whole test binary.
var (
	rsaKeysMu sync.Mutex
	rsaKeys   = map[int]*rsa.PrivateKey{}
)

// HMACSecret returns a deterministic secret of n bytes.
func HMACSecret(n int) string {
	return strings.Repeat("k", n)
}

// RSAKey returns a shared RSA private key of the given size.
func RSAKey(t testing.TB, bits int) *rsa.PrivateKey {
	t.Helper()
	rsaKeysMu.Lock()
	defer rsaKeysMu.Unlock()
	if k, ok := rsaKeys[bits]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err, "generate rsa key")
	rsaKeys[bits] = k
	return k
}

// RSAKeyPEM returns a shared RSA private key of the given size as a
// PKCS#1 PEM block.
func RSAKeyPEM(t testing.TB, bits int) string {
	t.Helper()
	der := x509.MarshalPKCS1PrivateKey(RSAKey(t, bits))
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
}

// ECKey generates a fresh EC private key on curve.
func ECKey(t testing.TB, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err, "generate ec key")
	return k
}

// ECKeyPEM generates a fresh EC private key on curve as a PKCS#8 PEM block.
func ECKeyPEM(t testing.TB, curve elliptic.Curve) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(ECKey(t, curve))
	require.NoError(t, err, "marshal ec key")
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// PrivateKeyJWK encodes a raw private key as JWK JSON.
func PrivateKeyJWK(t testing.TB, raw any) string {
	t.Helper()
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err, "build jwk")
	out, err := json.Marshal(key)
	require.NoError(t, err, "marshal jwk")
	return string(out)
}
