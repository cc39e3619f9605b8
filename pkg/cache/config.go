package cache

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// Default sizes for the standard caches.
const (
	DefaultTenantConfigMaxEntries = 1000
	DefaultTenantConfigTTL        = 5 * time.Minute

	DefaultPKCEMaxEntries = 10000
	DefaultPKCETTL        = 2 * time.Minute

	DefaultBlacklistMaxEntries = 10000
	DefaultBlacklistTTL        = time.Hour
)

// SegmentConfig is the (maxEntries, ttl) pair of one named cache.
type SegmentConfig struct {
	MaxEntries int           `json:"max_entries" yaml:"max_entries" env:"MAX_ENTRIES"`
	TTL        time.Duration `json:"ttl" yaml:"ttl" env:"TTL"`
}

// Config sizes the three standard caches. Load it with pkg/config on top
// of [DefaultConfig] so unset values keep their defaults:
//
//	cfg := cache.DefaultConfig()
//	err := config.New().WithEnvPrefix("TOKENS").Load(&cfg)
//
// Environment variables: CACHE_TENANT_CONFIG_MAX_ENTRIES,
// CACHE_TENANT_CONFIG_TTL, CACHE_PKCE_MAX_ENTRIES, CACHE_PKCE_TTL,
// CACHE_BLACKLIST_MAX_ENTRIES, CACHE_BLACKLIST_TTL (plus any loader prefix).
type Config struct {
	TenantConfig SegmentConfig `json:"tenant_config" yaml:"tenant_config" env:"CACHE_TENANT_CONFIG"`
	PKCE         SegmentConfig `json:"pkce" yaml:"pkce" env:"CACHE_PKCE"`
	Blacklist    SegmentConfig `json:"blacklist" yaml:"blacklist" env:"CACHE_BLACKLIST"`
}

// DefaultConfig returns the default sizes for the standard caches.
func DefaultConfig() Config {
	return Config{
		TenantConfig: SegmentConfig{MaxEntries: DefaultTenantConfigMaxEntries, TTL: DefaultTenantConfigTTL},
		PKCE:         SegmentConfig{MaxEntries: DefaultPKCEMaxEntries, TTL: DefaultPKCETTL},
		Blacklist:    SegmentConfig{MaxEntries: DefaultBlacklistMaxEntries, TTL: DefaultBlacklistTTL},
	}
}

// Validate checks that every cache has a positive size and TTL.
func (c *Config) Validate() error {
	for _, s := range c.Specs() {
		if s.MaxEntries <= 0 {
			return sserr.Validationf("cache: %s max entries must be greater than zero, got %d", s.Name, s.MaxEntries)
		}
		if s.TTL < time.Second {
			return sserr.Validationf("cache: %s TTL must be at least one second, got %s", s.Name, s.TTL)
		}
	}
	return nil
}

// Specs returns the cache specs for [NewManager].
func (c *Config) Specs() []Spec {
	return []Spec{
		{Name: TenantConfigCache, MaxEntries: c.TenantConfig.MaxEntries, TTL: c.TenantConfig.TTL},
		{Name: PKCECache, MaxEntries: c.PKCE.MaxEntries, TTL: c.PKCE.TTL},
		{Name: BlacklistCache, MaxEntries: c.Blacklist.MaxEntries, TTL: c.Blacklist.TTL},
	}
}

// NewStandardManager validates cfg and builds a Manager holding the three
// standard caches.
func NewStandardManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewManager(cfg.Specs(), opts...)
}
