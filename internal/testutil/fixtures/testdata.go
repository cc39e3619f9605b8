// Package fixtures provides shared test data constants and tenant
// configuration factories for the token engine test suite.
package fixtures

import (
	"crypto/elliptic"
	"testing"

	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// Standard identity values.
const (
	// TenantID is the default tenant for unit tests.
	TenantID = "T1"

	// AltTenantID is a second tenant for isolation tests.
	AltTenantID = "T2"

	// Subject is the default "sub" claim.
	Subject = "alice"

	// AltSubject is a second user.
	AltSubject = "bob"
)

// Default token lifetimes in seconds.
const (
	AccessValidity  int64 = 900
	RefreshValidity int64 = 86400
)

// TenantSeedYAML is a valid seed file holding one signed and one encrypted
// tenant.
const TenantSeedYAML = `tenants:
  - id: T1
    secret: tenant-one-client-secret
    token_shape: jws
    signature_algorithm: HS256
    signature_secret: 0123456789abcdef0123456789abcdef
    access_token_validity: 900
    refresh_token_validity: 86400
  - id: T2
    token_shape: jwe
    signature_algorithm: HS256
    signature_secret: 0123456789abcdef0123456789abcdef
    encryption_algorithm: dir
    encryption_method: A256GCM
    encryption_secret: fedcba9876543210fedcba9876543210
    access_token_validity: 300
    refresh_token_validity: 3600
`

// Tenant returns a valid configuration for shape using HS256 and, when the
// shape needs it, direct A256GCM encryption.
func Tenant(id string, shape tenant.Shape) tenant.Config {
	cfg := tenant.Config{
		ID:                   id,
		Secret:               "client-secret-" + jose.Secret(id),
		SignatureAlgorithm:   jose.HS256,
		SignatureSecret:      jose.Secret(testutil.HMACSecret(32)),
		Shape:                shape,
		AccessTokenValidity:  AccessValidity,
		RefreshTokenValidity: RefreshValidity,
	}
	if shape.RequiresEncryption() {
		cfg.EncryptionAlgorithm = jose.Direct
		cfg.EncryptionMethod = jose.A256GCM
		cfg.EncryptionSecret = jose.Secret(testutil.HMACSecret(32))
	}
	return cfg
}

// TenantWith returns a valid configuration for shape using the given
// algorithms, with keys generated for them. Encryption arguments are
// ignored for shapes without an encryption layer.
func TenantWith(t testing.TB, id string, shape tenant.Shape, sig jose.SignatureAlgorithm,
	enc jose.EncryptionAlgorithm, method jose.EncryptionMethod) tenant.Config {
	t.Helper()
	cfg := Tenant(id, shape)
	cfg.SignatureAlgorithm = sig
	cfg.SignatureSecret = SignatureSecret(t, sig)
	if shape.RequiresEncryption() {
		cfg.EncryptionAlgorithm = enc
		cfg.EncryptionMethod = method
		cfg.EncryptionSecret = EncryptionSecret(t, enc, method)
	}
	return cfg
}

// SignatureSecret returns a freshly generated secret valid for alg.
func SignatureSecret(t testing.TB, alg jose.SignatureAlgorithm) jose.Secret {
	t.Helper()
	switch alg {
	case jose.HS256:
		return jose.Secret(testutil.HMACSecret(32))
	case jose.HS384:
		return jose.Secret(testutil.HMACSecret(48))
	case jose.HS512:
		return jose.Secret(testutil.HMACSecret(64))
	case jose.ES256:
		return jose.Secret(testutil.ECKeyPEM(t, elliptic.P256()))
	case jose.ES384:
		return jose.Secret(testutil.ECKeyPEM(t, elliptic.P384()))
	case jose.ES512:
		return jose.Secret(testutil.ECKeyPEM(t, elliptic.P521()))
	default:
		return jose.Secret(testutil.RSAKeyPEM(t, 2048))
	}
}

// EncryptionSecret returns a freshly generated secret valid for alg with
// method.
func EncryptionSecret(t testing.TB, alg jose.EncryptionAlgorithm, method jose.EncryptionMethod) jose.Secret {
	t.Helper()
	switch alg {
	case jose.Direct:
		return jose.Secret(testutil.HMACSecret(method.KeySize()))
	case jose.ECDHESA128KW, jose.ECDHESA192KW, jose.ECDHESA256KW:
		return jose.Secret(testutil.ECKeyPEM(t, elliptic.P256()))
	default:
		return jose.Secret(testutil.RSAKeyPEM(t, 2048))
	}
}
