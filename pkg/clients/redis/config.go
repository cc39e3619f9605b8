package redis

import (
	"fmt"
	"net/url"
	"time"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
)

const maxStatementLen = 100

// Defaults applied by [DefaultConfig] and [Config.Validate].
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds the connection settings. When URI is set it takes
// precedence over Host, Port, DB and Password.
type Config struct {
	URI         string        `json:"uri,omitempty" yaml:"uri" env:"REDIS_URI"`
	Host        string        `json:"host,omitempty" yaml:"host" env:"REDIS_HOST"`
	Port        int           `json:"port,omitempty" yaml:"port" env:"REDIS_PORT"`
	DB          int           `json:"db" yaml:"db" env:"REDIS_DB"`
	Password    jose.Secret   `json:"-" yaml:"password" env:"REDIS_PASSWORD"`
	PoolSize    int           `json:"pool_size,omitempty" yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	MaxRetries  int           `json:"max_retries,omitempty" yaml:"max_retries" env:"REDIS_MAX_RETRIES"`
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	TLSEnabled  bool          `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
}

// DefaultConfig returns a Config for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		PoolSize:    DefaultPoolSize,
		MaxRetries:  DefaultMaxRetries,
		DialTimeout: DefaultDialTimeout,
	}
}

// Validate applies defaults to zero-valued fields and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: config db must be non-negative, got %d", c.DB)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("redis: config pool_size must be positive, got %d", c.PoolSize)
	}
	return nil
}

func truncateStatement(s string) string {
	if len(s) <= maxStatementLen {
		return s
	}
	return s[:maxStatementLen] + "..."
}
