// Package blacklist tracks users blocked per tenant.
//
// Entries live in the blacklist cache under "tenantID:username" with the
// marker value true. An optional [Source] (for example the Redis set store
// in [RedisSource]) is the shared record: Block and Unblock write through
// to it, and IsBlocked consults it on a cache miss, caching positive
// answers only so an unblock elsewhere is seen once the entry expires.
package blacklist

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/blacklist"

// Source is the backing record of blocked users.
type Source interface {
	IsBlocked(ctx context.Context, tenantID, username string) (bool, error)
	Block(ctx context.Context, tenantID, username string) error
	Unblock(ctx context.Context, tenantID, username string) error
}

// KeySeparator joins tenant id and username in cache keys. Tenant ids
// must not contain it; usernames may.
const KeySeparator = ":"

// Key returns the cache key of a tenant's user.
func Key(tenantID, username string) string {
	return tenantID + KeySeparator + username
}

// Option configures a [Service].
type Option func(*Service)

// WithSource sets the backing source. Without one the cache is the only
// record and blocks last as long as the cache TTL.
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
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

// Service answers whether a tenant's user is blocked. It is safe for
// concurrent use.
type Service struct {
	entries cache.Typed[bool]
	source  Source
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService returns a Service over mgr's [cache.BlacklistCache].
func NewService(mgr *cache.Manager, opts ...Option) *Service {
	s := &Service{
		entries: cache.For[bool](mgr, cache.BlacklistCache),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Block marks username blocked for tenantID. With a source, the source is
// written first; if that fails nothing is cached.
func (s *Service) Block(ctx context.Context, tenantID, username string) (err error) {
	ctx, span := s.startSpan(ctx, "blacklist.Block", tenantID)
	defer func() { finishSpan(span, err) }()

	if err := validate(tenantID, username); err != nil {
		return err
	}
	if s.source != nil {
		if err := s.source.Block(ctx, tenantID, username); err != nil {
			return err
		}
	}
	if !s.entries.Put(Key(tenantID, username), true) {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"blacklist: cache %q is not configured", s.entries.Name())
	}
	s.logger.InfoContext(ctx, "blacklist: user blocked", "tenant_id", tenantID)
	return nil
}

// Unblock removes the block on username for tenantID.
func (s *Service) Unblock(ctx context.Context, tenantID, username string) (err error) {
	ctx, span := s.startSpan(ctx, "blacklist.Unblock", tenantID)
	defer func() { finishSpan(span, err) }()

	if err := validate(tenantID, username); err != nil {
		return err
	}
	if s.source != nil {
		if err := s.source.Unblock(ctx, tenantID, username); err != nil {
			return err
		}
	}
	s.entries.Remove(Key(tenantID, username))
	s.logger.InfoContext(ctx, "blacklist: user unblocked", "tenant_id", tenantID)
	return nil
}

// IsBlocked reports whether username is blocked for tenantID. A source
// error is returned with false; callers decide whether to fail closed.
func (s *Service) IsBlocked(ctx context.Context, tenantID, username string) (blocked bool, err error) {
	ctx, span := s.startSpan(ctx, "blacklist.IsBlocked", tenantID)
	defer func() {
		span.SetAttributes(attribute.Bool("blacklist.blocked", blocked))
		finishSpan(span, err)
	}()

	if err := validate(tenantID, username); err != nil {
		return false, err
	}
	key := Key(tenantID, username)
	if v, ok := s.entries.Get(key); ok && v {
		return true, nil
	}
	if s.source == nil {
		return false, nil
	}

	blocked, err = s.source.IsBlocked(ctx, tenantID, username)
	if err != nil {
		s.logger.WarnContext(ctx, "blacklist: source lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return false, err
	}
	if blocked {
		s.entries.Put(key, true)
	}
	return blocked, nil
}

func validate(tenantID, username string) error {
	if tenantID == "" {
		return sserr.Validation("blacklist: tenant id must not be empty")
	}
	if strings.Contains(tenantID, KeySeparator) {
		return sserr.Validationf("blacklist: tenant id must not contain %q", KeySeparator).
			WithDetail("tenant_id", tenantID)
	}
	if username == "" {
		return sserr.Validation("blacklist: username must not be empty")
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
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
