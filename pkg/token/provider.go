// Package token issues and verifies tenant tokens.
//
// A tenant's [tenant.Shape] selects one of four providers:
//
//   - jws: a compact JWS over the claims
//   - jws+jwe: a compact JWE whose plaintext is the compact JWS (cty "JWT")
//   - jwe: a compact JWE directly over the claims
//   - jws-then-jwe: like jws+jwe, but the JWE protected header carries its
//     own "exp" (cty "JWS"), checked before the inner signature
//
// Providers are looked up in a [Registry]; [Service] builds the default
// claims for access and refresh tokens and delegates to the provider of the
// tenant's shape.
package token

import (
	"time"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/claims"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// MaxTokenSize is the largest token Parse accepts, in bytes. Larger inputs
// are rejected before any decoding.
const MaxTokenSize = 8 << 10

// Provider generates and parses the tokens of one shape.
//
// Implementations are stateless apart from their clock and are safe for
// concurrent use.
type Provider interface {
	// Shape returns the token shape this provider handles.
	Shape() tenant.Shape

	// Generate stamps a copy of c with "iat" (now) and "exp" (now plus
	// validity seconds) and seals it with cfg's keys. c is not modified.
	//
	// Error codes returned:
	//   - [sserr.CodeTokenTypeMismatch]: cfg declares another shape
	//   - [sserr.CodeValidation]: validity is not positive
	//   - [sserr.CodeCryptoConfig]: a secret does not fit its algorithm
	//   - [sserr.CodeUnsupportedEncryption]: the encryption step failed
	Generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error)

	// Parse opens a token produced by Generate and returns its claims.
	//
	// Error codes returned:
	//   - [sserr.CodeTokenTypeMismatch]: cfg declares another shape
	//   - [sserr.CodeAuthenticationInvalid]: the token is malformed, or its
	//     signature or decryption fails
	//   - [sserr.CodeAuthenticationExpired]: the token is intact but its
	//     expiry has passed
	//   - [sserr.CodeCryptoConfig]: a secret does not fit its algorithm
	Parse(cfg tenant.Config, token string) (*claims.Bundle, error)
}

// StandardProviders returns one provider per [tenant.Shapes] entry, all
// reading time from now. A nil now means time.Now.
func StandardProviders(now func() time.Time) []Provider {
	if now == nil {
		now = time.Now
	}
	return []Provider{
		signedProvider{now: now},
		signedEncryptedProvider{now: now},
		encryptedProvider{now: now},
		signedThenEncryptedProvider{now: now},
	}
}

// checkShape guards both directions of every provider.
func checkShape(cfg tenant.Config, shape tenant.Shape) error {
	if cfg.Shape == shape {
		return nil
	}
	return sserr.Newf(sserr.CodeTokenTypeMismatch,
		"token: tenant %q declares shape %q, provider handles %q", cfg.ID, cfg.Shape, shape).
		WithDetail("tenant_id", cfg.ID).
		WithDetail("token_shape", string(cfg.Shape)).
		WithDetail("provider_shape", string(shape))
}

// stamp returns a copy of c carrying the issued-at and expiry claims.
func stamp(c *claims.Bundle, now time.Time, validity int64) (*claims.Bundle, int64, error) {
	if validity <= 0 {
		return nil, 0, sserr.Validationf("token: validity must be greater than zero, got %d", validity)
	}
	iat := now.Unix()
	exp := iat + validity
	out := c.Clone().
		Set(claims.IssuedAt, claims.Int(iat)).
		Set(claims.Expiry, claims.Int(exp))
	return out, exp, nil
}

func checkSize(token string) error {
	if token == "" {
		return sserr.TokenInvalid("token: empty token", nil)
	}
	if len(token) > MaxTokenSize {
		return sserr.TokenInvalid("token: token exceeds maximum size", nil).
			WithDetail("max_size", MaxTokenSize)
	}
	return nil
}

func decodeClaims(payload []byte) (*claims.Bundle, error) {
	c, err := claims.Parse(payload)
	if err != nil {
		return nil, sserr.TokenInvalid("token: malformed claims", err)
	}
	return c, nil
}

// checkExpiry enforces now > exp as expired, at one-second resolution.
func checkExpiry(exp int64, now time.Time) error {
	if now.Unix() > exp {
		return sserr.TokenExpired("token: token has expired").WithDetail("exp", exp)
	}
	return nil
}

func claimsExpiry(c *claims.Bundle, now time.Time) error {
	exp, ok := c.GetInt64(claims.Expiry)
	if !ok {
		return sserr.TokenInvalid("token: missing or malformed exp claim", nil)
	}
	return checkExpiry(exp, now)
}
