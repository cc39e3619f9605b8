package jose

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// ---------------------------------------------------------------------------
// SignatureAlgorithm
// ---------------------------------------------------------------------------

// SignatureAlgorithm identifies a JWS signing algorithm. The string value is
// the "alg" header value written into signed tokens.
type SignatureAlgorithm string

const (
	// HS256 is HMAC with SHA-256. Secrets must be at least 32 bytes.
	HS256 SignatureAlgorithm = "HS256"
	// HS384 is HMAC with SHA-384. Secrets must be at least 48 bytes.
	HS384 SignatureAlgorithm = "HS384"
	// HS512 is HMAC with SHA-512. Secrets must be at least 64 bytes.
	HS512 SignatureAlgorithm = "HS512"

	// ES256 is ECDSA on P-256 with SHA-256.
	ES256 SignatureAlgorithm = "ES256"
	// ES384 is ECDSA on P-384 with SHA-384.
	ES384 SignatureAlgorithm = "ES384"
	// ES512 is ECDSA on P-521 with SHA-512.
	ES512 SignatureAlgorithm = "ES512"

	// RS256 is RSASSA-PKCS1-v1_5 with SHA-256.
	RS256 SignatureAlgorithm = "RS256"
	// RS384 is RSASSA-PKCS1-v1_5 with SHA-384.
	RS384 SignatureAlgorithm = "RS384"
	// RS512 is RSASSA-PKCS1-v1_5 with SHA-512.
	RS512 SignatureAlgorithm = "RS512"
)

// String returns the algorithm identifier.
func (a SignatureAlgorithm) String() string { return string(a) }

// Valid reports whether a is a supported signature algorithm.
func (a SignatureAlgorithm) Valid() bool {
	_, ok := signatureStrategies[a]
	return ok
}

// SignatureAlgorithms returns every supported signature algorithm.
func SignatureAlgorithms() []SignatureAlgorithm {
	return []SignatureAlgorithm{HS256, HS384, HS512, ES256, ES384, ES512, RS256, RS384, RS512}
}

// ---------------------------------------------------------------------------
// Signer / Verifier
// ---------------------------------------------------------------------------

// Signer seals a payload as a compact JWS whose protected header is
// {"alg":...,"typ":"JWT"}. The payload bytes are signed as given.
type Signer interface {
	Algorithm() SignatureAlgorithm
	Sign(payload []byte) ([]byte, error)
}

// Verifier checks a compact JWS and returns its payload. A token whose
// header names any algorithm other than the verifier's, including "none",
// is rejected before its signature is checked.
type Verifier interface {
	Algorithm() SignatureAlgorithm
	Verify(token []byte) ([]byte, error)
}

// SignatureStrategy builds signers and verifiers for one algorithm.
// Implementations are stateless.
type SignatureStrategy interface {
	Algorithm() SignatureAlgorithm
	Signer(secret Secret) (Signer, error)
	Verifier(secret Secret) (Verifier, error)
}

// SignatureStrategyFor returns the strategy registered for alg. Unknown
// algorithms fail with [sserr.CodeCryptoConfig].
func SignatureStrategyFor(alg SignatureAlgorithm) (SignatureStrategy, error) {
	s, ok := signatureStrategies[alg]
	if !ok {
		return nil, sserr.CryptoConfig(alg.String(), fmt.Errorf("unsupported signature algorithm"))
	}
	return s, nil
}

// NewSigner is shorthand for looking up alg's strategy and building a
// signer from secret.
func NewSigner(alg SignatureAlgorithm, secret Secret) (Signer, error) {
	s, err := SignatureStrategyFor(alg)
	if err != nil {
		return nil, err
	}
	return s.Signer(secret)
}

// NewVerifier is shorthand for looking up alg's strategy and building a
// verifier from secret.
func NewVerifier(alg SignatureAlgorithm, secret Secret) (Verifier, error) {
	s, err := SignatureStrategyFor(alg)
	if err != nil {
		return nil, err
	}
	return s.Verifier(secret)
}

var signatureStrategies = map[SignatureAlgorithm]SignatureStrategy{
	HS256: hmacStrategy{alg: HS256, jwa: jwa.HS256, minKeyLen: 32},
	HS384: hmacStrategy{alg: HS384, jwa: jwa.HS384, minKeyLen: 48},
	HS512: hmacStrategy{alg: HS512, jwa: jwa.HS512, minKeyLen: 64},

	ES256: ecdsaStrategy{alg: ES256, jwa: jwa.ES256, curve: "P-256"},
	ES384: ecdsaStrategy{alg: ES384, jwa: jwa.ES384, curve: "P-384"},
	ES512: ecdsaStrategy{alg: ES512, jwa: jwa.ES512, curve: "P-521"},

	RS256: rsaStrategy{alg: RS256, jwa: jwa.RS256},
	RS384: rsaStrategy{alg: RS384, jwa: jwa.RS384},
	RS512: rsaStrategy{alg: RS512, jwa: jwa.RS512},
}

// jwsSigner and jwsVerifier bind a jwx signature algorithm to a parsed key.
type jwsSigner struct {
	alg SignatureAlgorithm
	jwa jwa.SignatureAlgorithm
	key any
}

func (s jwsSigner) Algorithm() SignatureAlgorithm { return s.alg }

func (s jwsSigner) Sign(payload []byte) ([]byte, error) {
	hdr := jws.NewHeaders()
	if err := hdr.Set(jws.TypeKey, "JWT"); err != nil {
		return nil, fmt.Errorf("jose: set jws header: %w", err)
	}
	return jws.Sign(payload, jws.WithKey(s.jwa, s.key, jws.WithProtectedHeaders(hdr)))
}

type jwsVerifier struct {
	alg SignatureAlgorithm
	jwa jwa.SignatureAlgorithm
	key any
}

func (v jwsVerifier) Algorithm() SignatureAlgorithm { return v.alg }

func (v jwsVerifier) Verify(token []byte) ([]byte, error) {
	msg, err := jws.Parse(token)
	if err != nil {
		return nil, err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, fmt.Errorf("jose: jws carries %d signatures, want 1", len(sigs))
	}
	if got := sigs[0].ProtectedHeaders().Algorithm(); got != v.jwa {
		return nil, &AlgorithmMismatchError{Want: v.alg.String(), Got: got.String()}
	}
	return jws.Verify(token, jws.WithKey(v.jwa, v.key))
}

// AlgorithmMismatchError reports a JWS whose header names an algorithm
// other than the one configured.
type AlgorithmMismatchError struct {
	Want string
	Got  string
}

func (e *AlgorithmMismatchError) Error() string {
	return fmt.Sprintf("jose: jws algorithm is %q, want %q", e.Got, e.Want)
}

// ---------------------------------------------------------------------------
// HMAC
// ---------------------------------------------------------------------------

type hmacStrategy struct {
	alg       SignatureAlgorithm
	jwa       jwa.SignatureAlgorithm
	minKeyLen int
}

func (h hmacStrategy) Algorithm() SignatureAlgorithm { return h.alg }

func (h hmacStrategy) key(secret Secret) ([]byte, error) {
	if n := len(secret); n < h.minKeyLen {
		return nil, sserr.CryptoConfig(h.alg.String(),
			fmt.Errorf("hmac secret is %d bytes, want at least %d", n, h.minKeyLen))
	}
	return secret.Bytes(), nil
}

func (h hmacStrategy) Signer(secret Secret) (Signer, error) {
	key, err := h.key(secret)
	if err != nil {
		return nil, err
	}
	return jwsSigner{alg: h.alg, jwa: h.jwa, key: key}, nil
}

func (h hmacStrategy) Verifier(secret Secret) (Verifier, error) {
	key, err := h.key(secret)
	if err != nil {
		return nil, err
	}
	return jwsVerifier{alg: h.alg, jwa: h.jwa, key: key}, nil
}

// ---------------------------------------------------------------------------
// ECDSA
// ---------------------------------------------------------------------------

type ecdsaStrategy struct {
	alg   SignatureAlgorithm
	jwa   jwa.SignatureAlgorithm
	curve string
}

func (e ecdsaStrategy) Algorithm() SignatureAlgorithm { return e.alg }

func (e ecdsaStrategy) Signer(secret Secret) (Signer, error) {
	key, err := parseECPrivateKey(secret, e.curve)
	if err != nil {
		return nil, sserr.CryptoConfig(e.alg.String(), err)
	}
	return jwsSigner{alg: e.alg, jwa: e.jwa, key: key}, nil
}

// Verifier derives the public key from the configured private key.
func (e ecdsaStrategy) Verifier(secret Secret) (Verifier, error) {
	key, err := parseECPrivateKey(secret, e.curve)
	if err != nil {
		return nil, sserr.CryptoConfig(e.alg.String(), err)
	}
	return jwsVerifier{alg: e.alg, jwa: e.jwa, key: &key.PublicKey}, nil
}

// ---------------------------------------------------------------------------
// RSA
// ---------------------------------------------------------------------------

type rsaStrategy struct {
	alg SignatureAlgorithm
	jwa jwa.SignatureAlgorithm
}

func (r rsaStrategy) Algorithm() SignatureAlgorithm { return r.alg }

func (r rsaStrategy) Signer(secret Secret) (Signer, error) {
	key, err := parseRSAPrivateKey(secret)
	if err != nil {
		return nil, sserr.CryptoConfig(r.alg.String(), err)
	}
	return jwsSigner{alg: r.alg, jwa: r.jwa, key: key}, nil
}

func (r rsaStrategy) Verifier(secret Secret) (Verifier, error) {
	key, err := parseRSAPrivateKey(secret)
	if err != nil {
		return nil, sserr.CryptoConfig(r.alg.String(), err)
	}
	return jwsVerifier{alg: r.alg, jwa: r.jwa, key: &key.PublicKey}, nil
}
