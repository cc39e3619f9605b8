// Package pkce holds the server side of the RFC 7636 Proof Key for Code
// Exchange handshake.
//
// [Service.BeginChallenge] stores the client's code challenge in the PKCE
// cache under a fresh authorization code. [Service.CompleteChallenge]
// checks the code verifier presented at token exchange against it. Codes
// are single-use: the stored state is removed on success and on any
// tenant or challenge mismatch, and expires with the cache TTL otherwise.
package pkce

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"hash"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/pkce"

// Challenge length bounds for hashed methods. A base64url SHA-256 digest
// is 43 characters; verifiers themselves are 43 to 128 characters.
const (
	MinChallengeLength = 43
	MaxChallengeLength = 128
)

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

// Method is a code challenge method: how the verifier is transformed
// before it is compared with the stored challenge.
type Method string

const (
	// S256 is BASE64URL(SHA-256(verifier)) without padding.
	S256 Method = "S256"

	// S384 is BASE64URL(SHA-384(verifier)) without padding.
	S384 Method = "S384"

	// S512 is BASE64URL(SHA-512(verifier)) without padding.
	S512 Method = "S512"

	// Plain compares the verifier itself.
	Plain Method = "plain"
)

var hashes = map[Method]func() hash.Hash{
	S256: sha256.New,
	S384: sha512.New384,
	S512: sha512.New,
}

// Methods returns every supported method.
func Methods() []Method {
	return []Method{S256, S384, S512, Plain}
}

// String returns the method name.
func (m Method) String() string { return string(m) }

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	_, hashed := hashes[m]
	return hashed || m == Plain
}

// Challenge derives the code challenge for verifier under m. It returns ""
// for an unsupported method.
func (m Method) Challenge(verifier string) string {
	if m == Plain {
		return verifier
	}
	newHash, ok := hashes[m]
	if !ok {
		return ""
	}
	h := newHash()
	h.Write([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// ---------------------------------------------------------------------------
// AuthenticationRequestState
// ---------------------------------------------------------------------------

// AuthenticationRequestState is the handshake state stored between the
// authorization request and the token exchange.
type AuthenticationRequestState struct {
	Code      string
	TenantID  string
	Challenge string
	Algorithm Method
	CreatedAt time.Time
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Option configures a [Service].
type Option func(*Service)

// WithClock sets the time source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator replaces the random UUID authorization codes.
func WithCodeGenerator(newCode func() string) Option {
	return func(s *Service) {
		if newCode != nil {
			s.newCode = newCode
		}
	}
}

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Service runs PKCE handshakes over one cache of a [cache.Manager].
// It is safe for concurrent use.
type Service struct {
	states  cache.Typed[AuthenticationRequestState]
	now     func() time.Time
	newCode func() string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService returns a Service storing state in mgr's [cache.PKCECache].
func NewService(mgr *cache.Manager, opts ...Option) *Service {
	return NewServiceWithCache(mgr, cache.PKCECache, opts...)
}

// NewServiceWithCache returns a Service storing state in the named cache.
// A name mgr does not hold makes every BeginChallenge fail with
// [sserr.CodeStateNotSaved].
func NewServiceWithCache(mgr *cache.Manager, cacheName string, opts ...Option) *Service {
	s := &Service{
		states:  cache.For[AuthenticationRequestState](mgr, cacheName),
		now:     time.Now,
		newCode: uuid.NewString,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginChallenge stores challenge for tenantID and returns a fresh
// authorization code.
//
// Error codes returned:
//   - [sserr.CodeValidation]: empty tenant, unknown method, or a hashed
//     challenge outside 43..128 characters
//   - [sserr.CodeStateNotSaved]: the cache rejected the write
func (s *Service) BeginChallenge(ctx context.Context, tenantID, challenge string, method Method) (code string, err error) {
	ctx, span := s.tracer.Start(ctx, "pkce.BeginChallenge", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("pkce.method", string(method)),
	))
	defer func() { finishSpan(span, err) }()

	if err := validateChallenge(tenantID, challenge, method); err != nil {
		return "", err
	}

	code = s.newCode()
	state := AuthenticationRequestState{
		Code:      code,
		TenantID:  tenantID,
		Challenge: challenge,
		Algorithm: method,
		CreatedAt: s.now(),
	}
	if !s.states.Put(code, state) {
		s.logger.ErrorContext(ctx, "pkce: state not saved",
			"tenant_id", tenantID,
			"cache", s.states.Name(),
		)
		return "", sserr.Newf(sserr.CodeStateNotSaved,
			"pkce: cache %q rejected the request state", s.states.Name()).
			WithDetail("cache", s.states.Name())
	}
	return code, nil
}

// CompleteChallenge checks verifier against the state stored under code.
// On success the state is removed, so a code completes at most once.
//
// Error codes returned:
//   - [sserr.CodeStateNotFound]: no live state for code
//   - [sserr.CodeTenantMismatch]: tenantID differs from the stored tenant
//   - [sserr.CodeChallengeMismatch]: the verifier does not produce the
//     stored challenge
//
// A mismatch also removes the state; the client has to start over.
func (s *Service) CompleteChallenge(ctx context.Context, code, tenantID, verifier string) (err error) {
	ctx, span := s.tracer.Start(ctx, "pkce.CompleteChallenge", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
	))
	defer func() { finishSpan(span, err) }()

	// Taken, not read: the code is spent whatever the outcome.
	state, ok := s.states.Take(code)
	if !ok {
		return sserr.New(sserr.CodeStateNotFound, "pkce: no pending request for code")
	}

	if subtle.ConstantTimeCompare([]byte(state.TenantID), []byte(tenantID)) != 1 {
		s.logger.WarnContext(ctx, "pkce: tenant mismatch",
			"tenant_id", tenantID,
			"expected_tenant_id", state.TenantID,
		)
		return sserr.New(sserr.CodeTenantMismatch, "pkce: code was issued to another tenant").
			WithDetail("tenant_id", tenantID)
	}

	derived := state.Algorithm.Challenge(verifier)
	if derived == "" || subtle.ConstantTimeCompare([]byte(derived), []byte(state.Challenge)) != 1 {
		s.logger.WarnContext(ctx, "pkce: challenge mismatch",
			"tenant_id", tenantID,
			"method", state.Algorithm,
		)
		return sserr.New(sserr.CodeChallengeMismatch, "pkce: verifier does not match challenge").
			WithDetail("tenant_id", tenantID).
			WithDetail("method", string(state.Algorithm))
	}

	span.SetAttributes(attribute.String("pkce.method", string(state.Algorithm)))
	return nil
}

func validateChallenge(tenantID, challenge string, method Method) error {
	if tenantID == "" {
		return sserr.Validation("pkce: tenant id must not be empty")
	}
	if !method.Valid() {
		return sserr.Validationf("pkce: unsupported challenge method %q", method)
	}
	if method == Plain {
		if challenge == "" {
			return sserr.Validation("pkce: challenge must not be empty")
		}
		return nil
	}
	if n := len(challenge); n < MinChallengeLength || n > MaxChallengeLength {
		return sserr.Validationf("pkce: challenge must be %d to %d characters, got %d",
			MinChallengeLength, MaxChallengeLength, n)
	}
	return nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
