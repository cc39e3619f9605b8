// Package engine assembles the token engine for a process: the cache
// manager, the tenant, token, PKCE and blacklist services, and the stores
// behind them. It owns their lifecycle.
//
// An Engine is built with [New], started with [Engine.Start] and torn down
// with [Engine.Stop]. While running it drops expired cache entries on a
// ticker. Stop closes the cache manager so cached tenant secrets become
// unreachable, then closes the Postgres and Redis connections it opened.
//
// # OpenTelemetry Integration
//
// Lifecycle operations create spans under the tracer scope
// "github.com/StricklySoft/stricklysoft-tokens/pkg/engine".
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/blacklist"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/claims"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/pkce"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/token"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/engine"

// Option configures an [Engine].
type Option func(*options)

type options struct {
	lookup    tenant.Lookup
	source    blacklist.Source
	now       func() time.Time
	logger    *slog.Logger
	tp        trace.TracerProvider
	onPurge   func(removed int)
	sourceSet bool
}

// HealthChecker is a store that can report whether it is reachable. A
// lookup or blacklist source passed as an option is checked by Start and
// Health when it implements it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// WithLookup supplies the tenant lookup, bypassing TenantStore.
func WithLookup(l tenant.Lookup) Option {
	return func(o *options) { o.lookup = l }
}

// WithBlacklistSource supplies the blacklist source, bypassing
// BlacklistSource. A nil source means cache-only.
func WithBlacklistSource(src blacklist.Source) Option {
	return func(o *options) {
		o.source = src
		o.sourceSet = true
	}
}

// WithClock sets the time source of the caches, tokens and PKCE state.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger shared by all services.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracerProvider sets the tracer provider shared by all services.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithPurgeHook registers fn to run after every purge with the number of
// entries removed.
func WithPurgeHook(fn func(removed int)) Option {
	return func(o *options) { o.onPurge = fn }
}

// Engine is a running token engine. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	cache  *cache.Manager
	logger *slog.Logger
	tracer trace.Tracer

	tenants   *tenant.Service
	tokens    *token.Service
	pkce      *pkce.Service
	blacklist *blacklist.Service

	pg      *postgres.Client
	rdb     *redis.Client
	checks  []HealthChecker
	onPurge func(int)
	release func()

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	stopPurge context.CancelFunc
	purgeDone chan struct{}
}

// New validates cfg, connects the configured stores and builds the
// services. The returned engine is in [StateUnknown]; call Start.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "engine: invalid configuration")
	}

	o := options{now: time.Now, logger: slog.Default(), tp: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	mgr, err := cache.NewStandardManager(cfg.Cache, cache.WithClock(o.now), cache.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		cache:   mgr,
		logger:  o.logger,
		tracer:  o.tp.Tracer(tracerName),
		onPurge: o.onPurge,
		state:   StateUnknown,
	}

	e.release = sync.OnceFunc(func() {
		e.cache.Close()
		e.closeClients()
	})

	lookup := o.lookup
	if hc, ok := lookup.(HealthChecker); ok {
		e.checks = append(e.checks, hc)
	}
	if hc, ok := o.source.(HealthChecker); ok && o.sourceSet {
		e.checks = append(e.checks, hc)
	}
	if lookup == nil {
		if lookup, err = e.openTenantStore(ctx, o); err != nil {
			e.closeClients()
			return nil, err
		}
	}

	source := o.source
	if !o.sourceSet && cfg.BlacklistSource == BlacklistSourceRedis {
		rdb, err := redis.NewClient(ctx, cfg.Redis,
			redis.WithTracerProvider(o.tp), redis.WithLogger(o.logger))
		if err != nil {
			e.closeClients()
			return nil, err
		}
		e.rdb = rdb
		e.checks = append(e.checks, rdb)
		source = blacklist.NewRedisSource(rdb, "")
	}

	e.tenants = tenant.NewService(lookup, mgr,
		tenant.WithLogger(o.logger), tenant.WithTracerProvider(o.tp))
	e.tokens = token.NewService(
		token.WithClock(o.now), token.WithLogger(o.logger), token.WithTracerProvider(o.tp))
	e.pkce = pkce.NewService(mgr,
		pkce.WithClock(o.now), pkce.WithLogger(o.logger), pkce.WithTracerProvider(o.tp))

	blOpts := []blacklist.Option{blacklist.WithLogger(o.logger), blacklist.WithTracerProvider(o.tp)}
	if source != nil {
		blOpts = append(blOpts, blacklist.WithSource(source))
	}
	e.blacklist = blacklist.NewService(mgr, blOpts...)
	return e, nil
}

func (e *Engine) openTenantStore(ctx context.Context, o options) (tenant.Lookup, error) {
	switch e.cfg.TenantStore {
	case TenantStorePostgres:
		pg, err := postgres.NewClient(ctx, e.cfg.Postgres,
			postgres.WithTracerProvider(o.tp), postgres.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		e.pg = pg
		e.checks = append(e.checks, pg)
		store := tenant.NewPostgresLookup(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		if e.cfg.TenantSeedFile == "" {
			e.logger.WarnContext(ctx, "engine: no tenant seed file, starting with no tenants")
			return tenant.NewMemoryLookup(), nil
		}
		mem, err := tenant.LoadMemoryLookup(e.cfg.TenantSeedFile)
		if err != nil {
			return nil, err
		}
		e.logger.InfoContext(ctx, "engine: loaded tenant seed file",
			"path", e.cfg.TenantSeedFile, "tenants", mem.Len())
		return mem, nil
	}
}

// Cache returns the engine's cache manager.
func (e *Engine) Cache() *cache.Manager { return e.cache }

// Tenants returns the tenant configuration service.
func (e *Engine) Tenants() *tenant.Service { return e.tenants }

// Tokens returns the token service.
func (e *Engine) Tokens() *token.Service { return e.tokens }

// PKCE returns the PKCE handshake service.
func (e *Engine) PKCE() *pkce.Service { return e.pkce }

// Blacklist returns the blacklist service.
func (e *Engine) Blacklist() *blacklist.Service { return e.blacklist }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Uptime returns the time since the engine entered [StateRunning], or zero
// if it is not running.
func (e *Engine) Uptime() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateRunning {
		return 0
	}
	return time.Since(e.startedAt)
}

func (e *Engine) setState(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	from := e.state
	if !ValidTransition(from, to) {
		return sserr.Newf(sserr.CodeInternal,
			"engine: invalid state transition from %q to %q", from, to)
	}
	e.state = to
	e.logger.Debug("engine: state changed", "from", string(from), "to", string(to))
	return nil
}

// Start checks the connected stores and starts the purge loop.
//
// If a store is unhealthy the engine moves to [StateFailed], releases its
// caches and connections, and returns the error.
func (e *Engine) Start(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Start", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "engine: start canceled before execution")
	}
	if err := e.setState(StateStarting); err != nil {
		return err
	}

	if err := e.checkStores(ctx); err != nil {
		e.logger.ErrorContext(ctx, "engine: dependency check failed", "error", err)
		_ = e.setState(StateFailed)
		e.release()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go e.purgeLoop(loopCtx, done)

	e.mu.Lock()
	e.stopPurge, e.purgeDone = cancel, done
	e.mu.Unlock()

	if err := e.setState(StateRunning); err != nil {
		cancel()
		<-done
		return err
	}
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine: started",
		"tenant_store", e.cfg.TenantStore,
		"blacklist_source", e.cfg.BlacklistSource,
		"purge_interval", e.cfg.PurgeInterval,
	)
	return nil
}

// Stop ends the purge loop, closes the caches and closes the store
// connections. Stopping a stopped engine is a no-op; stopping one that
// never started or has failed releases its resources without a
// transition.
func (e *Engine) Stop(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Stop", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() { finishSpan(span, err) }()

	switch e.State() {
	case StateStopped:
		return nil
	case StateUnknown, StateFailed:
		e.release()
		return nil
	}

	if err := e.setState(StateStopping); err != nil {
		return err
	}

	e.mu.Lock()
	cancel, done := e.stopPurge, e.purgeDone
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			_ = e.setState(StateFailed)
			e.release()
			return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "engine: purge loop did not stop in time")
		}
	}

	e.release()
	if err := e.setState(StateStopped); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "engine: stopped")
	return nil
}

func (e *Engine) closeClients() {
	if e.pg != nil {
		e.pg.Close()
	}
	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			e.logger.Warn("engine: closing redis failed", "error", err)
		}
	}
}

// Health returns nil when the engine is running and its stores answer.
func (e *Engine) Health(ctx context.Context) error {
	if state := e.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"engine: not running, current state is %q", state)
	}
	return e.checkStores(ctx)
}

func (e *Engine) checkStores(ctx context.Context) error {
	var errs []error
	for _, hc := range e.checks {
		if err := hc.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return sserr.Wrap(errors.Join(errs...), sserr.CodeUnavailableDependency, "engine: store unavailable")
}

func (e *Engine) purgeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := e.cache.Purge()
			if removed > 0 {
				e.logger.Debug("engine: purged expired cache entries", "removed", removed)
			}
			for _, name := range e.cache.Names() {
				if st, ok := e.cache.Stats(name); ok {
					e.logger.Debug("engine: cache stats",
						"cache", name,
						"entries", st.Entries,
						"hits", st.Hits,
						"misses", st.Misses,
						"evictions", st.Evictions,
						"expirations", st.Expirations,
					)
				}
			}
			if e.onPurge != nil {
				e.onPurge(removed)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Tenant-scoped operations
// ---------------------------------------------------------------------------

// IssueTokens resolves tenantID, refuses blocked users, and issues an
// access and refresh token pair for username. The "sub" claim of both
// bundles defaults to username.
//
// Error codes returned, besides those of the tenant and token services:
//   - [sserr.CodeAuthentication]: username is blocked for the tenant
func (e *Engine) IssueTokens(ctx context.Context, tenantID, username string, bundle token.AuthBundle) (pair token.TokenPair, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.IssueTokens",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer func() { finishSpan(span, err) }()

	cfg, err := e.tenants.Get(ctx, tenantID)
	if err != nil {
		return token.TokenPair{}, err
	}
	blocked, err := e.blacklist.IsBlocked(ctx, tenantID, username)
	if err != nil {
		return token.TokenPair{}, err
	}
	if blocked {
		return token.TokenPair{}, sserr.New(sserr.CodeAuthentication, "engine: user is blocked").
			WithDetail("tenant_id", tenantID)
	}

	sub := claims.New().Set(claims.Subject, claims.String(username))
	bundle.Access = sub.Clone().Merge(bundle.Access)
	bundle.Refresh = sub.Merge(bundle.Refresh)
	return e.tokens.CreateTokenPair(ctx, cfg, bundle)
}

// ReadToken resolves tenantID and returns the claims of tok.
func (e *Engine) ReadToken(ctx context.Context, tenantID, tok string) (*claims.Bundle, error) {
	cfg, err := e.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.tokens.GetPayload(ctx, cfg, tok)
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
