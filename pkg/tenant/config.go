// Package tenant holds per-tenant token configuration: which token shape a
// tenant uses, which signature and encryption algorithms apply, and how
// long issued tokens stay valid.
//
// Configurations are loaded through a [Lookup] (an in-memory seed or the
// Postgres store), validated with [Validate], and served from the
// tenant-config cache by [Service]. A Config is immutable once built;
// updates replace the cached value wholesale.
package tenant

import (
	"fmt"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
)

// ---------------------------------------------------------------------------
// Shape
// ---------------------------------------------------------------------------

// Shape identifies how a tenant's tokens are assembled.
type Shape string

const (
	// ShapeSigned is a compact JWS over the claims.
	ShapeSigned Shape = "jws"

	// ShapeSignedEncrypted is a compact JWE whose plaintext is the signed
	// token. Expiry is enforced from the inner signed claims.
	ShapeSignedEncrypted Shape = "jws+jwe"

	// ShapeEncrypted is a compact JWE directly over the claims, with no
	// signature layer.
	ShapeEncrypted Shape = "jwe"

	// ShapeSignedThenEncrypted layers like ShapeSignedEncrypted, but the
	// encryption layer carries its own expiry, checked before the inner
	// signature is verified.
	ShapeSignedThenEncrypted Shape = "jws-then-jwe"
)

// Shapes returns every supported shape.
func Shapes() []Shape {
	return []Shape{ShapeSigned, ShapeSignedEncrypted, ShapeEncrypted, ShapeSignedThenEncrypted}
}

// String returns the shape identifier.
func (s Shape) String() string { return string(s) }

// Valid reports whether s is a supported shape.
func (s Shape) Valid() bool {
	switch s {
	case ShapeSigned, ShapeSignedEncrypted, ShapeEncrypted, ShapeSignedThenEncrypted:
		return true
	default:
		return false
	}
}

// RequiresEncryption reports whether tokens of shape s have an encryption
// layer, and so whether the encryption fields of a Config must be set.
func (s Shape) RequiresEncryption() bool {
	switch s {
	case ShapeSignedEncrypted, ShapeEncrypted, ShapeSignedThenEncrypted:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config is one tenant's token configuration.
//
// Secrets are [jose.Secret] values, so printing or marshaling a Config
// shows "[REDACTED]" in their place. Decoding from JSON or YAML reads the
// raw values.
type Config struct {
	// ID uniquely identifies the tenant. It becomes the "aud" claim of
	// every token issued for the tenant.
	ID string `json:"id" yaml:"id"`

	// Secret authenticates the tenant itself. The token engine does not
	// use it.
	Secret jose.Secret `json:"secret,omitempty" yaml:"secret"`

	// SignatureAlgorithm and SignatureSecret configure the JWS layer.
	SignatureAlgorithm jose.SignatureAlgorithm `json:"signature_algorithm" yaml:"signature_algorithm"`
	SignatureSecret    jose.Secret             `json:"signature_secret" yaml:"signature_secret"`

	// The encryption fields are set if and only if Shape requires
	// encryption.
	EncryptionAlgorithm jose.EncryptionAlgorithm `json:"encryption_algorithm,omitempty" yaml:"encryption_algorithm,omitempty"`
	EncryptionMethod    jose.EncryptionMethod    `json:"encryption_method,omitempty" yaml:"encryption_method,omitempty"`
	EncryptionSecret    jose.Secret              `json:"encryption_secret,omitempty" yaml:"encryption_secret,omitempty"`

	// Shape selects the token provider.
	Shape Shape `json:"token_shape" yaml:"token_shape"`

	// AccessTokenValidity and RefreshTokenValidity are token lifetimes in
	// seconds.
	AccessTokenValidity  int64 `json:"access_token_validity" yaml:"access_token_validity"`
	RefreshTokenValidity int64 `json:"refresh_token_validity" yaml:"refresh_token_validity"`
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenValidity) * time.Second
}

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenValidity) * time.Second
}

// Validate runs [Validate] and converts any violations into a
// [sserr.CodeTenantConfigInvalid] error whose "violations" detail lists
// them. The cause is the [ValidationErrors] value.
func (c Config) Validate() error {
	violations := Validate(c)
	if len(violations) == 0 {
		return nil
	}
	return sserr.Wrap(violations, sserr.CodeTenantConfigInvalid,
		fmt.Sprintf("tenant %q: invalid configuration", c.ID)).
		WithDetail("tenant_id", c.ID).
		WithDetail("violations", violations.Fields())
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Violation is one failed validation rule.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// ValidationErrors collects every violation found in a Config.
type ValidationErrors []Violation

// Error joins the violations into one message.
func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, violation := range v {
		parts[i] = violation.String()
	}
	return "tenant config: " + strings.Join(parts, "; ")
}

// Fields returns the offending field names in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, len(v))
	for i, violation := range v {
		fields[i] = violation.Field
	}
	return fields
}

// Validate checks cfg for internal consistency and returns every
// violation, or nil when cfg is valid. It never stops at the first
// problem.
//
// Encryption fields are checked one by one: an encryption shape missing
// all three yields three violations, and a non-encryption shape with all
// three set yields three violations as well.
func Validate(cfg Config) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if blank(cfg.ID) {
		add("id", "is required")
	} else if strings.Contains(cfg.ID, ":") {
		add("id", "must not contain %q", ":")
	}

	switch {
	case cfg.Shape == "":
		add("token_shape", "is required")
	case !cfg.Shape.Valid():
		add("token_shape", "unknown shape %q", cfg.Shape)
	}

	switch {
	case cfg.SignatureAlgorithm == "":
		add("signature_algorithm", "is required")
	case !cfg.SignatureAlgorithm.Valid():
		add("signature_algorithm", "unknown algorithm %q", cfg.SignatureAlgorithm)
	}
	if blank(cfg.SignatureSecret.Value()) {
		add("signature_secret", "is required")
	}

	encryption := []struct {
		field string
		value string
		known func() bool
	}{
		{"encryption_algorithm", string(cfg.EncryptionAlgorithm), cfg.EncryptionAlgorithm.Valid},
		{"encryption_method", string(cfg.EncryptionMethod), cfg.EncryptionMethod.Valid},
		{"encryption_secret", cfg.EncryptionSecret.Value(), func() bool { return true }},
	}
	if cfg.Shape.RequiresEncryption() {
		for _, f := range encryption {
			switch {
			case blank(f.value):
				add(f.field, "is required for token shape %q", cfg.Shape)
			case !f.known():
				add(f.field, "unknown value %q", f.value)
			}
		}
	} else if cfg.Shape.Valid() {
		for _, f := range encryption {
			if f.value != "" {
				add(f.field, "must not be set for token shape %q", cfg.Shape)
			}
		}
	}

	if cfg.AccessTokenValidity <= 0 {
		add("access_token_validity", "must be positive, got %d", cfg.AccessTokenValidity)
	}
	if cfg.RefreshTokenValidity <= 0 {
		add("refresh_token_validity", "must be positive, got %d", cfg.RefreshTokenValidity)
	}

	return errs
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
