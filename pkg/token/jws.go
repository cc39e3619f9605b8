package token

import (
	"errors"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// sign produces a compact JWS over payload with the tenant's signature
// algorithm.
func sign(cfg tenant.Config, payload []byte) (string, error) {
	signer, err := jose.NewSigner(cfg.SignatureAlgorithm, cfg.SignatureSecret)
	if err != nil {
		return "", err
	}
	out, err := signer.Sign(payload)
	if err != nil {
		return "", sserr.CryptoConfig(cfg.SignatureAlgorithm.String(), err)
	}
	return string(out), nil
}

// verify checks a compact JWS against the tenant's signature algorithm and
// returns its payload.
func verify(cfg tenant.Config, token string) ([]byte, error) {
	verifier, err := jose.NewVerifier(cfg.SignatureAlgorithm, cfg.SignatureSecret)
	if err != nil {
		return nil, err
	}
	payload, err := verifier.Verify([]byte(token))
	if err != nil {
		var mismatch *jose.AlgorithmMismatchError
		if errors.As(err, &mismatch) {
			return nil, sserr.TokenInvalid("token: unexpected signing algorithm", err).
				WithDetail("algorithm", mismatch.Got)
		}
		return nil, sserr.TokenInvalid("token: signature verification failed", err)
	}
	return payload, nil
}
