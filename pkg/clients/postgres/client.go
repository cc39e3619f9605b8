// Package postgres is the pgx client behind the Postgres tenant store. It
// adds connection pooling, error classification and a client span per
// statement.
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = jose.Secret(os.Getenv("POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Tests inject a pgxmock pool with [NewFromPool].
//
// Spans carry db.system, db.name and a truncated db.statement. Bind
// parameters are never recorded, so tenant secrets written through Exec
// stay out of telemetry.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-tokens/pkg/clients/postgres"

// SQLSTATE codes the client classifies.
const (
	sqlStateUndefinedTable = "42P01"
	sqlStateCheckViolation = "23514"
	sqlStateNotNull        = "23502"
)

// Pool is the part of [*pgxpool.Pool] the client needs; pgxmock pools
// satisfy it.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

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

// Client runs statements against a [Pool]. It is safe for concurrent use.
type Client struct {
	pool   Pool
	dbName string
	tracer trace.Tracer
	logger *slog.Logger
}

// NewClient validates cfg, opens a pool and pings the server.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: the server cannot be reached
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		// The parse error can echo the URL, password included.
		return nil, sserr.New(sserr.CodeValidation, "postgres: malformed connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: database unreachable")
	}

	c := newClient(pool, databaseName(cfg), opts)
	c.logger.InfoContext(ctx, "postgres: connected",
		"host", poolCfg.ConnConfig.Host,
		"database", c.dbName,
		"max_conns", cfg.MaxConns,
	)
	return c, nil
}

// NewFromPool wraps an existing pool. cfg is only used for span
// attributes and may be nil.
func NewFromPool(pool Pool, cfg *Config, opts ...Option) *Client {
	name := ""
	if cfg != nil {
		name = databaseName(*cfg)
	}
	return newClient(pool, name, opts)
}

func newClient(pool Pool, dbName string, opts []Option) *Client {
	c := &Client{
		pool:   pool,
		dbName: dbName,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func databaseName(cfg Config) string {
	if cfg.URI == "" {
		return cfg.Database
	}
	if u, err := url.Parse(cfg.URI); err == nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

// Query runs a statement that returns rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		err = classify(err, "postgres: query failed")
	}
	finishSpan(span, err)
	return rows, err
}

// QueryRow runs a statement that returns at most one row. The span ends
// when the row is scanned. [pgx.ErrNoRows] is returned unwrapped.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	return &row{row: c.pool.QueryRow(ctx, sql, args...), span: span}
}

type row struct {
	row  pgx.Row
	span trace.Span
}

func (r *row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		r.span.SetAttributes(attribute.Bool("db.no_rows", true))
		r.span.SetStatus(codes.Ok, "")
		r.span.End()
		return err
	default:
		err = classify(err, "postgres: query failed")
	}
	finishSpan(r.span, err)
	return err
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		err = classify(err, "postgres: exec failed")
	}
	finishSpan(span, err)
	return tag, err
}

// Health pings the server, bounded by [DefaultHealthTimeout] when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	var err error
	if pingErr := c.pool.Ping(ctx); pingErr != nil {
		err = sserr.Wrap(pingErr, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	finishSpan(span, err)
	return err
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
	c.logger.Debug("postgres: pool closed", "database", c.dbName)
}

func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.name", c.dbName),
			attribute.String("db.statement", truncateSQL(sql)),
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

// classify maps driver errors onto platform codes. Cancellation becomes a
// timeout so callers can use [sserr.IsRetryable]; a missing table points
// at an unapplied schema rather than a broken database.
func classify(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateUndefinedTable:
			return sserr.Wrap(err, sserr.CodeInternalConfiguration, message+": schema not applied").
				WithDetail("sqlstate", pgErr.Code)
		case pgErr.Code == sqlStateCheckViolation, pgErr.Code == sqlStateNotNull:
			return sserr.Wrap(err, sserr.CodeValidation, message+": constraint violated").
				WithDetail("sqlstate", pgErr.Code).
				WithDetail("constraint", pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"):
			return sserr.Wrap(err, sserr.CodeUnavailableDependency, message+": connection lost").
				WithDetail("sqlstate", pgErr.Code)
		}
		return sserr.Wrap(err, sserr.CodeInternalDatabase, message).WithDetail("sqlstate", pgErr.Code)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
