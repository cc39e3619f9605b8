package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/claims"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/token"

// ---------------------------------------------------------------------------
// AuthBundle
// ---------------------------------------------------------------------------

// AuthBundle holds the claim bundles produced by one authentication event.
//
// Access and Refresh are merged over the default claims of their tokens.
// Additional carries public claims for the caller (for example an
// authorization response body); the token service does not embed it.
// A refresh token always carries [claims.RefreshID]; an access token never
// does.
type AuthBundle struct {
	Access     *claims.Bundle
	Refresh    *claims.Bundle
	Additional *claims.Bundle
}

// TokenPair is an access and a refresh token sharing one token id.
type TokenPair struct {
	TokenID string
	Access  string
	Refresh string
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Option configures a [Service].
type Option func(*Service)

// WithClock sets the time source of the standard providers. It has no
// effect when [WithRegistry] supplies the providers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRegistry replaces the standard provider registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithIDGenerator replaces [NewIdentifier] as the source of token ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
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

// Service issues access and refresh tokens and reads them back.
//
// Every operation takes the tenant's [tenant.Config] explicitly; resolve it
// with [tenant.Service.Get] first. Service holds no per-tenant state and is
// safe for concurrent use. Spans carry the tenant id and token shape, never
// claims or secrets.
type Service struct {
	registry *Registry
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService returns a Service over the standard providers.
func NewService(opts ...Option) *Service {
	s := &Service{
		now:    time.Now,
		newID:  NewIdentifier,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(StandardProviders(s.now)...)
	}
	return s
}

// NewIdentifier returns a random (version 4) UUID string.
func NewIdentifier() string {
	return uuid.NewString()
}

// NewIdentifier returns a fresh token id from the service's generator.
func (s *Service) NewIdentifier() string {
	return s.newID()
}

// CreateAccessToken issues an access token for cfg's tenant. The default
// claims are {"aud": tenant id, "jti": tokenID}; bundle.Access is merged
// over them, so caller claims win. An empty tokenID is replaced by a fresh
// identifier. The token lives cfg.AccessTokenValidity seconds.
func (s *Service) CreateAccessToken(ctx context.Context, cfg tenant.Config, bundle AuthBundle, tokenID string) (token string, err error) {
	ctx, span := s.startSpan(ctx, "token.CreateAccessToken", cfg)
	defer func() { finishSpan(span, err) }()

	if tokenID == "" {
		tokenID = s.newID()
	}
	token, err = s.generate(cfg, s.accessClaims(cfg, bundle, tokenID), cfg.AccessTokenValidity)
	if err != nil {
		return "", err
	}
	s.logger.DebugContext(ctx, "token: access token issued",
		"tenant_id", cfg.ID,
		"token_shape", cfg.Shape,
		"token_id", tokenID,
	)
	return token, nil
}

// CreateRefreshToken is like [Service.CreateAccessToken] but merges
// bundle.Refresh, sets "refresh_id" to the token id, and uses
// cfg.RefreshTokenValidity.
func (s *Service) CreateRefreshToken(ctx context.Context, cfg tenant.Config, bundle AuthBundle, tokenID string) (token string, err error) {
	ctx, span := s.startSpan(ctx, "token.CreateRefreshToken", cfg)
	defer func() { finishSpan(span, err) }()

	if tokenID == "" {
		tokenID = s.newID()
	}
	token, err = s.generate(cfg, s.refreshClaims(cfg, bundle, tokenID), cfg.RefreshTokenValidity)
	if err != nil {
		return "", err
	}
	s.logger.DebugContext(ctx, "token: refresh token issued",
		"tenant_id", cfg.ID,
		"token_shape", cfg.Shape,
		"token_id", tokenID,
	)
	return token, nil
}

// CreateTokenPair issues an access and a refresh token with one fresh
// token id. Refreshing a session means calling it again; tokens are never
// extended.
func (s *Service) CreateTokenPair(ctx context.Context, cfg tenant.Config, bundle AuthBundle) (pair TokenPair, err error) {
	ctx, span := s.startSpan(ctx, "token.CreateTokenPair", cfg)
	defer func() { finishSpan(span, err) }()

	pair.TokenID = s.newID()
	span.SetAttributes(attribute.String("token.id", pair.TokenID))

	if pair.Access, err = s.CreateAccessToken(ctx, cfg, bundle, pair.TokenID); err != nil {
		return TokenPair{}, err
	}
	if pair.Refresh, err = s.CreateRefreshToken(ctx, cfg, bundle, pair.TokenID); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// GetPayload parses token with the provider of cfg's shape and returns its
// claims. Invalid and expired tokens are returned as
// [sserr.CodeAuthenticationInvalid] and [sserr.CodeAuthenticationExpired].
func (s *Service) GetPayload(ctx context.Context, cfg tenant.Config, token string) (c *claims.Bundle, err error) {
	ctx, span := s.startSpan(ctx, "token.GetPayload", cfg)
	defer func() { finishSpan(span, err) }()

	p, err := s.registry.Provider(cfg.Shape)
	if err != nil {
		return nil, err
	}
	c, err = p.Parse(cfg, token)
	if err != nil {
		s.logger.DebugContext(ctx, "token: payload rejected",
			"tenant_id", cfg.ID,
			"token_shape", cfg.Shape,
			"code", sserr.GetCode(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("token.access", IsAccessPayload(c)))
	return c, nil
}

// IsAccessPayload reports whether c is an access token payload. See the
// package-level [IsAccessPayload].
func (s *Service) IsAccessPayload(c *claims.Bundle) bool {
	return IsAccessPayload(c)
}

// IsAccessPayload reports whether c lacks the "refresh_id" claim. A nil or
// empty bundle counts as an access payload, so a caller holding no payload
// is never mistaken for a refresh token.
func IsAccessPayload(c *claims.Bundle) bool {
	return !c.Has(claims.RefreshID)
}

func (s *Service) generate(cfg tenant.Config, c *claims.Bundle, validity int64) (string, error) {
	p, err := s.registry.Provider(cfg.Shape)
	if err != nil {
		return "", err
	}
	return p.Generate(cfg, c, validity)
}

func defaultClaims(cfg tenant.Config, tokenID string) *claims.Bundle {
	return claims.New().
		Set(claims.Audience, claims.String(cfg.ID)).
		Set(claims.TokenID, claims.String(tokenID))
}

func (s *Service) accessClaims(cfg tenant.Config, bundle AuthBundle, tokenID string) *claims.Bundle {
	c := defaultClaims(cfg, tokenID).Merge(bundle.Access)
	c.Delete(claims.RefreshID)
	return c
}

func (s *Service) refreshClaims(cfg tenant.Config, bundle AuthBundle, tokenID string) *claims.Bundle {
	return defaultClaims(cfg, tokenID).
		Merge(bundle.Refresh).
		Set(claims.RefreshID, claims.String(tokenID))
}

func (s *Service) startSpan(ctx context.Context, name string, cfg tenant.Config) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tenant.id", cfg.ID),
			attribute.String("token.shape", string(cfg.Shape)),
		),
	)
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
