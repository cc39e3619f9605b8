package engine

import (
	"fmt"
	"time"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/cache"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/clients/redis"
)

// Tenant stores.
const (
	TenantStoreMemory   = "memory"
	TenantStorePostgres = "postgres"
)

// Blacklist sources.
const (
	BlacklistSourceNone  = "none"
	BlacklistSourceRedis = "redis"
)

// MinPurgeInterval is the shortest accepted PurgeInterval.
const MinPurgeInterval = 10 * time.Millisecond

// Config selects the engine's stores and sizes its caches. Load it with
// pkg/config on top of [DefaultConfig]:
//
//	cfg := engine.DefaultConfig()
//	err := config.New().WithEnvPrefix("TOKENS").WithFile(path).Load(&cfg)
type Config struct {
	Cache cache.Config `json:"cache" yaml:"cache"`

	// TenantStore is "memory" (seeded from TenantSeedFile) or "postgres".
	TenantStore    string `json:"tenant_store" yaml:"tenant_store" env:"TENANT_STORE" envDefault:"memory"`
	TenantSeedFile string `json:"tenant_seed_file,omitempty" yaml:"tenant_seed_file" env:"TENANT_SEED_FILE"`

	// BlacklistSource is "none" (cache only) or "redis".
	BlacklistSource string `json:"blacklist_source" yaml:"blacklist_source" env:"BLACKLIST_SOURCE" envDefault:"none"`

	Postgres postgres.Config `json:"postgres" yaml:"postgres"`
	Redis    redis.Config    `json:"redis" yaml:"redis"`

	// PurgeInterval is how often expired cache entries are dropped.
	PurgeInterval time.Duration `json:"purge_interval" yaml:"purge_interval" env:"PURGE_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns a memory-backed configuration with the standard
// cache sizes.
func DefaultConfig() Config {
	return Config{
		Cache:           cache.DefaultConfig(),
		TenantStore:     TenantStoreMemory,
		BlacklistSource: BlacklistSourceNone,
		PurgeInterval:   time.Minute,
	}
}

// Validate checks the cache sizes, the store selections and the settings
// of the selected backends.
func (c *Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	switch c.TenantStore {
	case TenantStoreMemory:
	case TenantStorePostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("engine: unknown tenant store %q", c.TenantStore)
	}
	switch c.BlacklistSource {
	case BlacklistSourceNone:
	case BlacklistSourceRedis:
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("engine: unknown blacklist source %q", c.BlacklistSource)
	}
	if c.PurgeInterval < MinPurgeInterval {
		return fmt.Errorf("engine: purge interval must be at least %s, got %s", MinPurgeInterval, c.PurgeInterval)
	}
	return nil
}
