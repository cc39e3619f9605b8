//go:build integration

// Package containers starts throwaway PostgreSQL and Redis containers for
// integration tests of the tenant store and the blacklist source.
//
// The package carries the "integration" build tag so unit test builds
// never pull in Docker. Test files using it need the same tag:
//
//	//go:build integration
//
// Each Start function returns the container and a connection URI; the
// Must variants register termination with t.Cleanup:
//
//	pg := containers.MustStartPostgres(t)
//	client, err := postgres.NewClient(ctx, postgres.Config{URI: pg.ConnString})
package containers

import (
	"context"
	"fmt"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

// Container settings for the tenant store.
const (
	DefaultPostgresImage    = "docker.io/postgres:16-alpine"
	DefaultPostgresDatabase = "tokens_test"
	DefaultPostgresUser     = "tokens"
	DefaultPostgresPassword = "tokens-test-password"
)

// PostgresResult is a running PostgreSQL container. ConnString has
// sslmode=disable and can be used as [postgres.Config.URI].
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL container and waits until it accepts
// connections. The caller terminates it.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: start postgres: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: postgres connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: connStr}, nil
}

// MustStartPostgres starts PostgreSQL or fails the test, and terminates
// the container when the test ends.
func MustStartPostgres(t testing.TB) *PostgresResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() { _ = result.Container.Terminate(ctx) })
	return result
}

// ===========================================================================
// Redis
// ===========================================================================

// DefaultRedisImage is the image backing the blacklist source tests.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult is a running Redis container. ConnString is a redis:// URI
// usable as [redis.Config.URI].
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts an unauthenticated Redis container. The caller
// terminates it.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: start redis: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: connStr}, nil
}

// MustStartRedis starts Redis or fails the test, and terminates the
// container when the test ends.
func MustStartRedis(t testing.TB) *RedisResult {
	t.Helper()
	ctx := context.Background()
	result, err := StartRedis(ctx)
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() { _ = result.Container.Terminate(ctx) })
	return result
}
