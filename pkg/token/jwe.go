package token

import (
	"errors"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// Content types of the JWE layer. The plain encrypted shape sets none.
const (
	contentTypeJWT = "JWT"
	contentTypeJWS = "JWS"
)

// encrypt seals plaintext as a compact JWE with the tenant's encryption
// settings. Key problems surface as [sserr.CodeCryptoConfig]; a failure of
// the encryption itself as [sserr.CodeUnsupportedEncryption].
func encrypt(cfg tenant.Config, plaintext []byte, headers map[string]any) (string, error) {
	strategy, err := jose.EncryptionStrategyFor(cfg.EncryptionAlgorithm)
	if err != nil {
		return "", err
	}
	enc, err := strategy.Encrypter(cfg.EncryptionSecret, cfg.EncryptionMethod)
	if err != nil {
		return "", err
	}
	out, err := enc.Encrypt(plaintext, headers)
	if err != nil {
		return "", sserr.Wrapf(err, sserr.CodeUnsupportedEncryption,
			"token: %s/%s encryption failed", cfg.EncryptionAlgorithm, cfg.EncryptionMethod).
			WithDetail("tenant_id", cfg.ID).
			WithDetail("algorithm", cfg.EncryptionAlgorithm.String()).
			WithDetail("method", cfg.EncryptionMethod.String())
	}
	return string(out), nil
}

// decrypt opens a compact JWE and checks its content type.
func decrypt(cfg tenant.Config, token, contentType string) (*jose.Decrypted, error) {
	if n := strings.Count(token, ".") + 1; n != 5 {
		return nil, sserr.TokenInvalid("token: encrypted token must have 5 segments", nil).
			WithDetail("segments", n)
	}

	strategy, err := jose.EncryptionStrategyFor(cfg.EncryptionAlgorithm)
	if err != nil {
		return nil, err
	}
	dec, err := strategy.Decrypter(cfg.EncryptionSecret, cfg.EncryptionMethod)
	if err != nil {
		return nil, err
	}
	opened, err := dec.Decrypt([]byte(token))
	if err != nil {
		var mismatch *jose.MethodMismatchError
		if errors.As(err, &mismatch) {
			return nil, sserr.TokenInvalid("token: unexpected encryption method", err).
				WithDetail("method", mismatch.Got)
		}
		return nil, sserr.TokenInvalid("token: decryption failed", err)
	}
	if got := opened.ContentType(); got != contentType {
		return nil, sserr.TokenInvalid("token: unexpected content type", nil).
			WithDetail("content_type", got)
	}
	return opened, nil
}
