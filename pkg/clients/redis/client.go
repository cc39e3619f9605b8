// Package redis is the go-redis client behind the shared blacklist store.
// It wraps the set commands the blacklist needs with a client span and
// platform error codes.
//
// Use [NewClient] for a real server or [NewFromClient] to inject a mock
// [Cmdable] in tests.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/clients/redis"

// Cmdable is the part of [*redis.Client] the client needs.
type Cmdable interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client runs set commands against a [Cmdable]. It is safe for concurrent
// use.
type Client struct {
	cmdable Cmdable
	db      int
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClient validates cfg, connects and pings the server.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: the server cannot be reached
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: invalid configuration")
	}
	ropts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: server unreachable")
	}

	c := newClient(rdb, ropts.DB, opts)
	c.logger.InfoContext(ctx, "redis: connected", "addr", ropts.Addr, "db", ropts.DB)
	return c, nil
}

// NewFromClient wraps an existing [Cmdable]. cfg is only used for span
// attributes and may be nil.
func NewFromClient(cmdable Cmdable, cfg *Config, opts ...Option) *Client {
	db := 0
	if cfg != nil {
		db = cfg.DB
	}
	return newClient(cmdable, db, opts)
}

func newClient(cmdable Cmdable, db int, opts []Option) *Client {
	c := &Client{
		cmdable: cmdable,
		db:      db,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// options turns cfg into go-redis options. A URI wins over the structured
// fields; pool settings apply either way.
func (cfg *Config) options() (*redis.Options, error) {
	if cfg.URI != "" {
		o, err := redis.ParseURL(cfg.URI)
		if err != nil {
			// The parse error can echo the URL, password included.
			return nil, sserr.New(sserr.CodeValidation, "redis: malformed connection URI")
		}
		o.PoolSize = cfg.PoolSize
		o.MaxRetries = cfg.MaxRetries
		o.DialTimeout = cfg.DialTimeout
		return o, nil
	}
	o := &redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password.Value(),
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return o, nil
}

// run executes one command inside a span named "redis."+op.
func run[T any](ctx context.Context, c *Client, op, statement string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.database_index", c.db),
			attribute.String("db.statement", truncateStatement(statement)),
		),
	)
	val, err := fn(ctx)
	if err != nil {
		err = classify(err, "redis: "+op+" failed")
	}
	finishSpan(span, err)
	return val, err
}

// SAdd adds members to the set at key and returns how many were new.
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) (int64, error) {
	return run(ctx, c, "sadd", "SADD "+key, func(ctx context.Context) (int64, error) {
		return c.cmdable.SAdd(ctx, key, members...).Result()
	})
}

// SRem removes members from the set at key and returns how many were
// present.
func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) (int64, error) {
	return run(ctx, c, "srem", "SREM "+key, func(ctx context.Context) (int64, error) {
		return c.cmdable.SRem(ctx, key, members...).Result()
	})
}

// SIsMember reports whether member is in the set at key.
func (c *Client) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	return run(ctx, c, "sismember", "SISMEMBER "+key, func(ctx context.Context) (bool, error) {
		return c.cmdable.SIsMember(ctx, key, member).Result()
	})
}

// SMembers returns every member of the set at key, in no particular order.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return run(ctx, c, "smembers", "SMEMBERS "+key, func(ctx context.Context) ([]string, error) {
		return c.cmdable.SMembers(ctx, key).Result()
	})
}

// Del deletes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return run(ctx, c, "del", fmt.Sprintf("DEL %d keys", len(keys)), func(ctx context.Context) (int64, error) {
		return c.cmdable.Del(ctx, keys...).Result()
	})
}

// Health pings the server, bounded by [DefaultHealthTimeout] when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	_, err := run(ctx, c, "ping", "PING", func(ctx context.Context) (string, error) {
		return c.cmdable.Ping(ctx).Result()
	})
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: health check failed")
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.cmdable.Close(); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "redis: close failed")
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

// classify marks deadlines as retryable. Cancellation means the caller
// gave up and is not retryable.
func classify(err error, message string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	case errors.Is(err, redis.ErrClosed):
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
