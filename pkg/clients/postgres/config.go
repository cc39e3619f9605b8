package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/StricklySoft/stricklysoft-tokens/pkg/jose"
)

// maxSQLTruncateLen bounds the SQL text recorded in spans.
const maxSQLTruncateLen = 100

// Defaults applied by [DefaultConfig] and [Config.Validate].
const (
	DefaultHost                  = "localhost"
	DefaultPort                  = 5432
	DefaultDatabase              = "tokens"
	DefaultUser                  = "postgres"
	DefaultMaxConns        int32 = 10
	DefaultMinConns        int32 = 1
	DefaultMaxConnLifetime       = time.Hour
	DefaultMaxConnIdleTime       = 30 * time.Minute
	DefaultConnectTimeout        = 10 * time.Second
	DefaultHealthTimeout         = 5 * time.Second
)

// SSL modes accepted in [Config.SSLMode]; they map to libpq's sslmode.
const (
	SSLModeDisable    = "disable"
	SSLModeAllow      = "allow"
	SSLModePrefer     = "prefer"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Config holds the connection settings. When URI is set it takes
// precedence over the structured fields. Load it with pkg/config; the env
// tags give the variable names.
type Config struct {
	URI      string      `json:"uri,omitempty" yaml:"uri" env:"POSTGRES_URI"`
	Host     string      `json:"host,omitempty" yaml:"host" env:"POSTGRES_HOST"`
	Port     int         `json:"port,omitempty" yaml:"port" env:"POSTGRES_PORT"`
	Database string      `json:"database" yaml:"database" env:"POSTGRES_DATABASE"`
	User     string      `json:"user" yaml:"user" env:"POSTGRES_USER"`
	Password jose.Secret `json:"-" yaml:"password" env:"POSTGRES_PASSWORD"`
	SSLMode  string      `json:"ssl_mode,omitempty" yaml:"ssl_mode" env:"POSTGRES_SSLMODE"`

	MaxConns        int32         `json:"max_conns,omitempty" yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
	MinConns        int32         `json:"min_conns,omitempty" yaml:"min_conns" env:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime,omitempty" yaml:"max_conn_lifetime" env:"POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time,omitempty" yaml:"max_conn_idle_time" env:"POSTGRES_MAX_CONN_IDLE_TIME"`
	ConnectTimeout  time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout" env:"POSTGRES_CONNECT_TIMEOUT"`
}

// DefaultConfig returns a Config for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Database:        DefaultDatabase,
		User:            DefaultUser,
		SSLMode:         SSLModePrefer,
		MaxConns:        DefaultMaxConns,
		MinConns:        DefaultMinConns,
		MaxConnLifetime: DefaultMaxConnLifetime,
		MaxConnIdleTime: DefaultMaxConnIdleTime,
		ConnectTimeout:  DefaultConnectTimeout,
	}
}

// Validate applies defaults to zero-valued fields and returns the first
// problem found. Structured fields are not checked when URI is set.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return fmt.Errorf("postgres: config URI is invalid: %w", err)
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
		return fmt.Errorf("postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return errors.New("postgres: config database must not be empty")
	}
	if c.User == "" {
		return errors.New("postgres: config user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModePrefer
	}
	switch c.SSLMode {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
	default:
		return fmt.Errorf("postgres: config ssl_mode %q is not valid", c.SSLMode)
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString returns URI, or builds a postgres:// URL from the
// structured fields. The result contains the password in cleartext.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
