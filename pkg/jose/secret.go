// Package jose provides the crypto strategy registries used to sign,
// verify, encrypt and decrypt tenant tokens.
//
// Two closed enumerations select the strategies: [SignatureAlgorithm]
// (HMAC, ECDSA and RSA in three strength tiers each) and
// [EncryptionAlgorithm] (direct key use, ECDH-ES key agreement and RSA key
// wrapping). Each algorithm maps to exactly one strategy through a table
// built at package initialization; the tables are never modified afterwards
// and are safe for concurrent use without locking.
//
// Signature strategies are built on github.com/lestrrat-go/jwx/v2/jws and
// produce compact JWS serializations with the header "alg" pinned on
// verification. Encryption strategies are built on github.com/lestrrat-go/jwx/v2/jwe and
// produce compact JWE serializations.
//
// Strategy construction validates the secret against the algorithm and
// fails with a [sserr.CodeCryptoConfig] error naming the algorithm. Secret
// material never appears in errors or logs.
package jose

// ---------------------------------------------------------------------------
// Secret
// ---------------------------------------------------------------------------

// Secret holds key material: raw bytes for HMAC and direct encryption, or a
// PEM / JWK JSON encoded private key for the asymmetric families.
//
// Secret redacts its value in String(), GoString(), and MarshalText() so a
// tenant configuration can be logged or serialized without exposing keys.
// The raw value is only accessible via [Secret.Value] and [Secret.Bytes].
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, covering fmt's %#v verb.
func (s Secret) GoString() string { return secretRedacted }

// MarshalText implements [encoding.TextMarshaler], returning the redacted
// placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// Bytes returns the raw secret as a byte slice.
func (s Secret) Bytes() []byte { return []byte(s) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s == "" }
