package token

import (
	"time"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/claims"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// ---------------------------------------------------------------------------
// jws
// ---------------------------------------------------------------------------

type signedProvider struct {
	now func() time.Time
}

func (signedProvider) Shape() tenant.Shape { return tenant.ShapeSigned }

func (p signedProvider) Generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error) {
	if err := checkShape(cfg, tenant.ShapeSigned); err != nil {
		return "", err
	}
	stamped, _, err := stamp(c, p.now(), validity)
	if err != nil {
		return "", err
	}
	payload, err := stamped.MarshalJSON()
	if err != nil {
		return "", err
	}
	return sign(cfg, payload)
}

func (p signedProvider) Parse(cfg tenant.Config, token string) (*claims.Bundle, error) {
	if err := checkShape(cfg, tenant.ShapeSigned); err != nil {
		return nil, err
	}
	if err := checkSize(token); err != nil {
		return nil, err
	}
	payload, err := verify(cfg, token)
	if err != nil {
		return nil, err
	}
	c, err := decodeClaims(payload)
	if err != nil {
		return nil, err
	}
	if err := claimsExpiry(c, p.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// jws+jwe
// ---------------------------------------------------------------------------

type signedEncryptedProvider struct {
	now func() time.Time
}

func (signedEncryptedProvider) Shape() tenant.Shape { return tenant.ShapeSignedEncrypted }

func (p signedEncryptedProvider) Generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error) {
	if err := checkShape(cfg, tenant.ShapeSignedEncrypted); err != nil {
		return "", err
	}
	stamped, _, err := stamp(c, p.now(), validity)
	if err != nil {
		return "", err
	}
	payload, err := stamped.MarshalJSON()
	if err != nil {
		return "", err
	}
	inner, err := sign(cfg, payload)
	if err != nil {
		return "", err
	}
	return encrypt(cfg, []byte(inner), map[string]any{
		jose.HeaderContentType: contentTypeJWT,
	})
}

func (p signedEncryptedProvider) Parse(cfg tenant.Config, token string) (*claims.Bundle, error) {
	if err := checkShape(cfg, tenant.ShapeSignedEncrypted); err != nil {
		return nil, err
	}
	if err := checkSize(token); err != nil {
		return nil, err
	}
	opened, err := decrypt(cfg, token, contentTypeJWT)
	if err != nil {
		return nil, err
	}
	payload, err := verify(cfg, string(opened.Payload))
	if err != nil {
		return nil, err
	}
	c, err := decodeClaims(payload)
	if err != nil {
		return nil, err
	}
	if err := claimsExpiry(c, p.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// jwe
// ---------------------------------------------------------------------------

type encryptedProvider struct {
	now func() time.Time
}

func (encryptedProvider) Shape() tenant.Shape { return tenant.ShapeEncrypted }

func (p encryptedProvider) Generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error) {
	if err := checkShape(cfg, tenant.ShapeEncrypted); err != nil {
		return "", err
	}
	stamped, _, err := stamp(c, p.now(), validity)
	if err != nil {
		return "", err
	}
	payload, err := stamped.MarshalJSON()
	if err != nil {
		return "", err
	}
	return encrypt(cfg, payload, nil)
}

func (p encryptedProvider) Parse(cfg tenant.Config, token string) (*claims.Bundle, error) {
	if err := checkShape(cfg, tenant.ShapeEncrypted); err != nil {
		return nil, err
	}
	if err := checkSize(token); err != nil {
		return nil, err
	}
	opened, err := decrypt(cfg, token, "")
	if err != nil {
		return nil, err
	}
	c, err := decodeClaims(opened.Payload)
	if err != nil {
		return nil, err
	}
	if err := claimsExpiry(c, p.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// jws-then-jwe
// ---------------------------------------------------------------------------

// signedThenEncryptedProvider makes the encryption layer authoritative for
// expiry: the outer "exp" header is checked before the inner signature is
// verified, so an expired token costs one decryption and no verification.
type signedThenEncryptedProvider struct {
	now func() time.Time
}

func (signedThenEncryptedProvider) Shape() tenant.Shape { return tenant.ShapeSignedThenEncrypted }

func (p signedThenEncryptedProvider) Generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error) {
	if err := checkShape(cfg, tenant.ShapeSignedThenEncrypted); err != nil {
		return "", err
	}
	stamped, exp, err := stamp(c, p.now(), validity)
	if err != nil {
		return "", err
	}
	payload, err := stamped.MarshalJSON()
	if err != nil {
		return "", err
	}
	inner, err := sign(cfg, payload)
	if err != nil {
		return "", err
	}
	return encrypt(cfg, []byte(inner), map[string]any{
		jose.HeaderContentType: contentTypeJWS,
		jose.HeaderExpiry:      exp,
	})
}

func (p signedThenEncryptedProvider) Parse(cfg tenant.Config, token string) (*claims.Bundle, error) {
	if err := checkShape(cfg, tenant.ShapeSignedThenEncrypted); err != nil {
		return nil, err
	}
	if err := checkSize(token); err != nil {
		return nil, err
	}
	opened, err := decrypt(cfg, token, contentTypeJWS)
	if err != nil {
		return nil, err
	}
	outerExp, ok := opened.Int64Header(jose.HeaderExpiry)
	if !ok {
		return nil, sserr.TokenInvalid("token: missing exp header", nil)
	}
	now := p.now()
	if err := checkExpiry(outerExp, now); err != nil {
		return nil, err
	}

	payload, err := verify(cfg, string(opened.Payload))
	if err != nil {
		return nil, err
	}
	c, err := decodeClaims(payload)
	if err != nil {
		return nil, err
	}
	if err := claimsExpiry(c, now); err != nil {
		return nil, err
	}
	return c, nil
}
