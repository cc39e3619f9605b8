package jose

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// minRSABits is the smallest RSA modulus accepted for signing or key
// wrapping.
const minRSABits = 2048

var errEmptySecret = errors.New("secret is empty")

// isJWK reports whether the secret looks like a JSON Web Key rather than a
// PEM block.
func isJWK(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// parseJWKPrivateKey decodes a JWK JSON document into its raw private key.
func parseJWKPrivateKey(data []byte) (any, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("extract jwk key material: %w", err)
	}
	return raw, nil
}

// parseECPrivateKey accepts a SEC1 or PKCS#8 PEM block or an EC JWK and
// checks that the key sits on the expected curve.
func parseECPrivateKey(secret Secret, curve string) (*ecdsa.PrivateKey, error) {
	data := secret.Bytes()
	if len(data) == 0 {
		return nil, errEmptySecret
	}

	var key *ecdsa.PrivateKey
	if isJWK(data) {
		raw, err := parseJWKPrivateKey(data)
		if err != nil {
			return nil, err
		}
		k, ok := raw.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwk holds %T, want an EC private key", raw)
		}
		key = k
	} else {
		k, err := jwt.ParseECPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse ec private key: %w", err)
		}
		key = k
	}

	if curve != "" {
		if got := key.Curve.Params().Name; got != curve {
			return nil, fmt.Errorf("ec key is on curve %s, want %s", got, curve)
		}
	}
	return key, nil
}

// parseRSAPrivateKey accepts a PKCS#1 or PKCS#8 PEM block or an RSA JWK and
// enforces the minimum modulus size.
func parseRSAPrivateKey(secret Secret) (*rsa.PrivateKey, error) {
	data := secret.Bytes()
	if len(data) == 0 {
		return nil, errEmptySecret
	}

	var key *rsa.PrivateKey
	if isJWK(data) {
		raw, err := parseJWKPrivateKey(data)
		if err != nil {
			return nil, err
		}
		k, ok := raw.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwk holds %T, want an RSA private key", raw)
		}
		key = k
	} else {
		k, err := jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
		key = k
	}

	if bits := key.N.BitLen(); bits < minRSABits {
		return nil, fmt.Errorf("rsa key is %d bits, want at least %d", bits, minRSABits)
	}
	return key, nil
}
