package tenant

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Service serves tenant configurations through the tenant-config cache,
// falling back to a [Lookup] on a miss. Configurations are validated
// before they are cached, so a cached Config is always consistent.
//
// Service is safe for concurrent use. Two goroutines missing on the same
// tenant may both hit the Lookup; the later Put wins, and both values are
// equivalent.
type Service struct {
	lookup Lookup
	cache  cache.Typed[Config]
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService returns a Service that caches in mgr's [cache.TenantConfigCache].
func NewService(lookup Lookup, mgr *cache.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		lookup: lookup,
		cache:  cache.For[Config](mgr, cache.TenantConfigCache),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the configuration of tenantID.
//
// Error codes returned:
//   - [sserr.CodeValidation]: tenantID is empty
//   - [sserr.CodeNotFoundTenant]: the Lookup has no such tenant
//   - [sserr.CodeTenantConfigInvalid]: the stored configuration is inconsistent
//   - whatever the Lookup returns for store failures
func (s *Service) Get(ctx context.Context, tenantID string) (cfg Config, err error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Get",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer func() { finishSpan(span, err) }()

	if tenantID == "" {
		return Config{}, sserr.Validation("tenant: id must not be empty")
	}

	if cached, ok := s.cache.Get(tenantID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	cfg, found, err := s.lookup.Lookup(ctx, tenantID)
	if err != nil {
		s.logger.ErrorContext(ctx, "tenant: lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return Config{}, err
	}
	if !found {
		return Config{}, sserr.Newf(sserr.CodeNotFoundTenant,
			"tenant: %q not found", tenantID).WithDetail("tenant_id", tenantID)
	}
	if err := cfg.Validate(); err != nil {
		s.logger.WarnContext(ctx, "tenant: stored configuration is invalid",
			"tenant_id", tenantID,
			"error", err,
		)
		return Config{}, err
	}

	if !s.cache.Put(tenantID, cfg) {
		s.logger.WarnContext(ctx, "tenant: config cache rejected entry",
			"tenant_id", tenantID,
			"cache", s.cache.Name(),
		)
	}
	s.logger.DebugContext(ctx, "tenant: configuration loaded",
		"tenant_id", tenantID,
		"token_shape", cfg.Shape,
	)
	return cfg, nil
}

// Put validates cfg and replaces the cached entry for its tenant. Use it
// after writing an update to the backing store.
func (s *Service) Put(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cache.Put(cfg.ID, cfg)
	return nil
}

// Invalidate drops tenantID from the cache so the next Get reloads it.
func (s *Service) Invalidate(tenantID string) bool {
	return s.cache.Remove(tenantID)
}

// Clear drops every cached configuration.
func (s *Service) Clear() bool {
	return s.cache.Clear()
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
