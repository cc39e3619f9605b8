package jose

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// ---------------------------------------------------------------------------
// EncryptionAlgorithm and EncryptionMethod
// ---------------------------------------------------------------------------

// EncryptionAlgorithm identifies a JWE key management algorithm ("alg").
type EncryptionAlgorithm string

const (
	// Direct uses the secret itself as the content encryption key.
	Direct EncryptionAlgorithm = "dir"

	// ECDHESA128KW is ECDH-ES key agreement with AES-128 key wrap.
	ECDHESA128KW EncryptionAlgorithm = "ECDH-ES+A128KW"
	// ECDHESA192KW is ECDH-ES key agreement with AES-192 key wrap.
	ECDHESA192KW EncryptionAlgorithm = "ECDH-ES+A192KW"
	// ECDHESA256KW is ECDH-ES key agreement with AES-256 key wrap.
	ECDHESA256KW EncryptionAlgorithm = "ECDH-ES+A256KW"

	// RSA15 is RSAES-PKCS1-v1_5 key wrapping.
	RSA15 EncryptionAlgorithm = "RSA1_5"
	// RSAOAEP is RSAES-OAEP with SHA-1 key wrapping.
	RSAOAEP EncryptionAlgorithm = "RSA-OAEP"
	// RSAOAEP256 is RSAES-OAEP with SHA-256 key wrapping.
	RSAOAEP256 EncryptionAlgorithm = "RSA-OAEP-256"
)

// String returns the algorithm identifier.
func (a EncryptionAlgorithm) String() string { return string(a) }

// Valid reports whether a is a supported key management algorithm.
func (a EncryptionAlgorithm) Valid() bool {
	_, ok := encryptionStrategies[a]
	return ok
}

// EncryptionAlgorithms returns every supported key management algorithm.
func EncryptionAlgorithms() []EncryptionAlgorithm {
	return []EncryptionAlgorithm{Direct, ECDHESA128KW, ECDHESA192KW, ECDHESA256KW, RSA15, RSAOAEP, RSAOAEP256}
}

// EncryptionMethod identifies a JWE content encryption algorithm ("enc").
type EncryptionMethod string

const (
	A128GCM      EncryptionMethod = "A128GCM"
	A192GCM      EncryptionMethod = "A192GCM"
	A256GCM      EncryptionMethod = "A256GCM"
	A128CBCHS256 EncryptionMethod = "A128CBC-HS256"
	A192CBCHS384 EncryptionMethod = "A192CBC-HS384"
	A256CBCHS512 EncryptionMethod = "A256CBC-HS512"
)

type methodInfo struct {
	jwa     jwa.ContentEncryptionAlgorithm
	keySize int
}

var encryptionMethods = map[EncryptionMethod]methodInfo{
	A128GCM:      {jwa: jwa.A128GCM, keySize: 16},
	A192GCM:      {jwa: jwa.A192GCM, keySize: 24},
	A256GCM:      {jwa: jwa.A256GCM, keySize: 32},
	A128CBCHS256: {jwa: jwa.A128CBC_HS256, keySize: 32},
	A192CBCHS384: {jwa: jwa.A192CBC_HS384, keySize: 48},
	A256CBCHS512: {jwa: jwa.A256CBC_HS512, keySize: 64},
}

// String returns the method identifier.
func (m EncryptionMethod) String() string { return string(m) }

// Valid reports whether m is a supported content encryption method.
func (m EncryptionMethod) Valid() bool {
	_, ok := encryptionMethods[m]
	return ok
}

// KeySize returns the content encryption key length in bytes, or 0 for an
// unknown method.
func (m EncryptionMethod) KeySize() int {
	return encryptionMethods[m].keySize
}

// EncryptionMethods returns every supported content encryption method.
func EncryptionMethods() []EncryptionMethod {
	return []EncryptionMethod{A128GCM, A192GCM, A256GCM, A128CBCHS256, A192CBCHS384, A256CBCHS512}
}

// ---------------------------------------------------------------------------
// Encrypter / Decrypter
// ---------------------------------------------------------------------------

// Header names set on the JWE protected header.
const (
	HeaderContentType = "cty"
	HeaderExpiry      = "exp"
)

// Encrypter produces a compact JWE. headers are added to the protected
// header next to "alg" and "enc"; they are integrity protected but not
// encrypted.
type Encrypter interface {
	Algorithm() EncryptionAlgorithm
	Method() EncryptionMethod
	Encrypt(plaintext []byte, headers map[string]any) ([]byte, error)
}

// Decrypter opens a compact JWE produced by an [Encrypter] for the same
// secret and method. A token whose "enc" header names another method is
// rejected with [*MethodMismatchError].
type Decrypter interface {
	Algorithm() EncryptionAlgorithm
	Method() EncryptionMethod
	Decrypt(token []byte) (*Decrypted, error)
}

// MethodMismatchError reports a JWE sealed with a content encryption
// method other than the one configured.
type MethodMismatchError struct {
	Want EncryptionMethod
	Got  string
}

func (e *MethodMismatchError) Error() string {
	return fmt.Sprintf("jose: jwe method is %q, want %q", e.Got, e.Want)
}

// Decrypted is an opened JWE: the plaintext and its authenticated protected
// header.
type Decrypted struct {
	Payload []byte
	headers map[string]any
}

// ContentType returns the "cty" protected header, or "" when absent.
func (d *Decrypted) ContentType() string {
	s, _ := d.headers[HeaderContentType].(string)
	return s
}

// Header returns a protected header value.
func (d *Decrypted) Header(name string) (any, bool) {
	v, ok := d.headers[name]
	return v, ok
}

// Int64Header returns a numeric protected header value as an integer.
func (d *Decrypted) Int64Header(name string) (int64, bool) {
	switch v := d.headers[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// EncryptionStrategy builds encrypters and decrypters for one key
// management algorithm. Implementations are stateless.
type EncryptionStrategy interface {
	Algorithm() EncryptionAlgorithm
	Encrypter(secret Secret, method EncryptionMethod) (Encrypter, error)
	Decrypter(secret Secret, method EncryptionMethod) (Decrypter, error)
}

// EncryptionStrategyFor returns the strategy registered for alg. Unknown
// algorithms fail with [sserr.CodeCryptoConfig].
func EncryptionStrategyFor(alg EncryptionAlgorithm) (EncryptionStrategy, error) {
	s, ok := encryptionStrategies[alg]
	if !ok {
		return nil, sserr.CryptoConfig(alg.String(), fmt.Errorf("unsupported encryption algorithm"))
	}
	return s, nil
}

var encryptionStrategies = map[EncryptionAlgorithm]EncryptionStrategy{
	Direct: directStrategy{},

	ECDHESA128KW: ecdhStrategy{alg: ECDHESA128KW, jwa: jwa.ECDH_ES_A128KW},
	ECDHESA192KW: ecdhStrategy{alg: ECDHESA192KW, jwa: jwa.ECDH_ES_A192KW},
	ECDHESA256KW: ecdhStrategy{alg: ECDHESA256KW, jwa: jwa.ECDH_ES_A256KW},

	RSA15:      rsaWrapStrategy{alg: RSA15, jwa: jwa.RSA1_5},
	RSAOAEP:    rsaWrapStrategy{alg: RSAOAEP, jwa: jwa.RSA_OAEP},
	RSAOAEP256: rsaWrapStrategy{alg: RSAOAEP256, jwa: jwa.RSA_OAEP_256},
}

// keyEncrypter binds a jwx key management algorithm and content method to
// the key used for encryption.
type keyEncrypter struct {
	alg    EncryptionAlgorithm
	method EncryptionMethod
	kwa    jwa.KeyEncryptionAlgorithm
	key    any
}

func (e keyEncrypter) Algorithm() EncryptionAlgorithm { return e.alg }
func (e keyEncrypter) Method() EncryptionMethod       { return e.method }

func (e keyEncrypter) Encrypt(plaintext []byte, headers map[string]any) ([]byte, error) {
	hdr := jwe.NewHeaders()
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		if err := hdr.Set(name, headers[name]); err != nil {
			return nil, fmt.Errorf("jose: set jwe header %q: %w", name, err)
		}
	}
	return jwe.Encrypt(plaintext,
		jwe.WithKey(e.kwa, e.key),
		jwe.WithContentEncryption(encryptionMethods[e.method].jwa),
		jwe.WithProtectedHeaders(hdr),
	)
}

type keyDecrypter struct {
	alg    EncryptionAlgorithm
	method EncryptionMethod
	kwa    jwa.KeyEncryptionAlgorithm
	key    any
}

func (d keyDecrypter) Algorithm() EncryptionAlgorithm { return d.alg }
func (d keyDecrypter) Method() EncryptionMethod       { return d.method }

func (d keyDecrypter) Decrypt(token []byte) (*Decrypted, error) {
	parsed, err := jwe.Parse(token)
	if err != nil {
		return nil, err
	}
	if got := parsed.ProtectedHeaders().ContentEncryption(); got != encryptionMethods[d.method].jwa {
		return nil, &MethodMismatchError{Want: d.method, Got: got.String()}
	}

	msg := jwe.NewMessage()
	payload, err := jwe.Decrypt(token, jwe.WithKey(d.kwa, d.key), jwe.WithMessage(msg))
	if err != nil {
		return nil, err
	}
	headers, err := msg.ProtectedHeaders().AsMap(context.Background())
	if err != nil {
		return nil, fmt.Errorf("jose: read jwe headers: %w", err)
	}
	return &Decrypted{Payload: payload, headers: maps.Clone(headers)}, nil
}

func methodFor(alg EncryptionAlgorithm, method EncryptionMethod) error {
	if !method.Valid() {
		return sserr.CryptoConfig(alg.String(), fmt.Errorf("unsupported encryption method %q", method))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Direct
// ---------------------------------------------------------------------------

type directStrategy struct{}

func (directStrategy) Algorithm() EncryptionAlgorithm { return Direct }

// Encrypter requires the secret to be exactly the method's key size.
func (directStrategy) Encrypter(secret Secret, method EncryptionMethod) (Encrypter, error) {
	if err := methodFor(Direct, method); err != nil {
		return nil, err
	}
	if n, want := len(secret), method.KeySize(); n != want {
		return nil, sserr.CryptoConfig(Direct.String(),
			fmt.Errorf("direct key is %d bytes, %s requires %d", n, method, want))
	}
	return keyEncrypter{alg: Direct, method: method, kwa: jwa.DIRECT, key: secret.Bytes()}, nil
}

func (directStrategy) Decrypter(secret Secret, method EncryptionMethod) (Decrypter, error) {
	if err := methodFor(Direct, method); err != nil {
		return nil, err
	}
	if n, want := len(secret), method.KeySize(); n != want {
		return nil, sserr.CryptoConfig(Direct.String(),
			fmt.Errorf("direct key is %d bytes, %s requires %d", n, method, want))
	}
	return keyDecrypter{alg: Direct, method: method, kwa: jwa.DIRECT, key: secret.Bytes()}, nil
}

// ---------------------------------------------------------------------------
// ECDH-ES key agreement
// ---------------------------------------------------------------------------

type ecdhStrategy struct {
	alg EncryptionAlgorithm
	jwa jwa.KeyEncryptionAlgorithm
}

func (e ecdhStrategy) Algorithm() EncryptionAlgorithm { return e.alg }

// Encrypter performs key agreement against the public half of the
// configured private key.
func (e ecdhStrategy) Encrypter(secret Secret, method EncryptionMethod) (Encrypter, error) {
	if err := methodFor(e.alg, method); err != nil {
		return nil, err
	}
	key, err := e.key(secret)
	if err != nil {
		return nil, err
	}
	return keyEncrypter{alg: e.alg, method: method, kwa: e.jwa, key: &key.PublicKey}, nil
}

func (e ecdhStrategy) Decrypter(secret Secret, method EncryptionMethod) (Decrypter, error) {
	if err := methodFor(e.alg, method); err != nil {
		return nil, err
	}
	key, err := e.key(secret)
	if err != nil {
		return nil, err
	}
	return keyDecrypter{alg: e.alg, method: method, kwa: e.jwa, key: key}, nil
}

func (e ecdhStrategy) key(secret Secret) (*ecdsa.PrivateKey, error) {
	key, err := parseECPrivateKey(secret, "")
	if err != nil {
		return nil, sserr.CryptoConfig(e.alg.String(), err)
	}
	return key, nil
}

// ---------------------------------------------------------------------------
// RSA key wrapping
// ---------------------------------------------------------------------------

type rsaWrapStrategy struct {
	alg EncryptionAlgorithm
	jwa jwa.KeyEncryptionAlgorithm
}

func (r rsaWrapStrategy) Algorithm() EncryptionAlgorithm { return r.alg }

func (r rsaWrapStrategy) Encrypter(secret Secret, method EncryptionMethod) (Encrypter, error) {
	if err := methodFor(r.alg, method); err != nil {
		return nil, err
	}
	key, err := r.key(secret)
	if err != nil {
		return nil, err
	}
	return keyEncrypter{alg: r.alg, method: method, kwa: r.jwa, key: &key.PublicKey}, nil
}

func (r rsaWrapStrategy) Decrypter(secret Secret, method EncryptionMethod) (Decrypter, error) {
	if err := methodFor(r.alg, method); err != nil {
		return nil, err
	}
	key, err := r.key(secret)
	if err != nil {
		return nil, err
	}
	return keyDecrypter{alg: r.alg, method: method, kwa: r.jwa, key: key}, nil
}

func (r rsaWrapStrategy) key(secret Secret) (*rsa.PrivateKey, error) {
	key, err := parseRSAPrivateKey(secret)
	if err != nil {
		return nil, sserr.CryptoConfig(r.alg.String(), err)
	}
	return key, nil
}
