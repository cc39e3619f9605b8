package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

type redactedString string

func (s redactedString) String() string { return "[REDACTED]" }

type cacheSection struct {
	MaxEntries int           `env:"MAX_ENTRIES" envDefault:"100" yaml:"max_entries" json:"max_entries"`
	TTL        time.Duration `env:"TTL" envDefault:"5m" yaml:"ttl" json:"ttl"`
}

type serviceConfig struct {
	Issuer  string         `env:"ISSUER" envDefault:"tokens" yaml:"issuer" json:"issuer"`
	Debug   bool           `env:"DEBUG" yaml:"debug" json:"debug"`
	Workers uint16         `env:"WORKERS" envDefault:"4" yaml:"workers" json:"workers"`
	Tags    []string       `env:"TAGS" envDefault:"a, b" yaml:"tags" json:"tags"`
	Secret  redactedString `env:"SECRET" yaml:"-" json:"-"`
	Tenants cacheSection   `env:"TENANTS" yaml:"tenants" json:"tenants"`
}

type requiredConfig struct {
	Name  string `env:"NAME" required:"true"`
	Inner struct {
		DSN string `env:"DSN" required:"true"`
	} `env:"INNER"`
}

type checkedConfig struct {
	Port int `env:"PORT" envDefault:"0"`
}

func (c *checkedConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	var cfg serviceConfig
	err := New().WithLookupEnv(envMap(nil)).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "tokens", cfg.Issuer)
	assert.Equal(t, uint16(4), cfg.Workers)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.Equal(t, 100, cfg.Tenants.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Tenants.TTL)
}

func TestLoad_FileOverridesDefaults_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "svc.yaml", `
issuer: from-file
tenants:
  max_entries: 7
  ttl: 30s
`)
	env := envMap(map[string]string{
		"APP_TENANTS_MAX_ENTRIES": "9",
		"APP_SECRET":              "s3cr3t",
		"APP_DEBUG":               "true",
	})

	var cfg serviceConfig
	err := New().WithEnvPrefix("app").WithFile(path).WithLookupEnv(env).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Issuer)
	assert.Equal(t, 9, cfg.Tenants.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Tenants.TTL)
	assert.Equal(t, redactedString("s3cr3t"), cfg.Secret)
	assert.True(t, cfg.Debug)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "svc.json", `{"issuer":"json-issuer","workers":2}`)

	var cfg serviceConfig
	require.NoError(t, New().WithFile(path).WithLookupEnv(envMap(nil)).Load(&cfg))
	assert.Equal(t, "json-issuer", cfg.Issuer)
	assert.Equal(t, uint16(2), cfg.Workers)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	var cfg serviceConfig
	err := New().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).WithLookupEnv(envMap(nil)).Load(&cfg)
	assert.NoError(t, err)
}

func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"traversal", func(t *testing.T) string { return "../etc/passwd.yaml" }},
		{"unknown extension", func(t *testing.T) string { return writeFile(t, "svc.toml", "x=1") }},
		{"bad yaml", func(t *testing.T) string { return writeFile(t, "svc.yaml", "issuer: [unclosed") }},
		{"bad json", func(t *testing.T) string { return writeFile(t, "svc.json", "{") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg serviceConfig
			err := New().WithFile(tt.path(t)).WithLookupEnv(envMap(nil)).Load(&cfg)
			assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration), "got %v", err)
		})
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	var cfg serviceConfig
	err := New().WithLookupEnv(envMap(map[string]string{"TENANTS_TTL": "soon"})).Load(&cfg)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration))
}

func TestLoad_RequiresStructPointer(t *testing.T) {
	var cfg serviceConfig
	assert.True(t, sserr.HasCode(New().Load(nil), sserr.CodeInternalConfiguration))
	assert.True(t, sserr.HasCode(New().Load(cfg), sserr.CodeInternalConfiguration))
	n := 3
	assert.True(t, sserr.HasCode(New().Load(&n), sserr.CodeInternalConfiguration))
}

func TestLoad_RequiredFields(t *testing.T) {
	var cfg requiredConfig
	err := New().WithLookupEnv(envMap(map[string]string{"NAME": "x"})).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
	assert.Contains(t, err.Error(), "Inner.DSN")

	cfg = requiredConfig{}
	err = New().WithLookupEnv(envMap(map[string]string{"NAME": "x", "INNER_DSN": "postgres://"})).Load(&cfg)
	assert.NoError(t, err)
}

func TestLoad_RequiredFieldsAllReported(t *testing.T) {
	var cfg requiredConfig
	err := New().WithLookupEnv(envMap(nil)).Load(&cfg)
	require.Error(t, err)

	e, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, sserr.CodeValidationRequired, e.Code)
	assert.Equal(t, []string{"Name", "Inner.DSN"}, e.Details["fields"])
}

func TestLoad_CustomValidatorIsWrapped(t *testing.T) {
	var cfg checkedConfig
	err := New().WithLookupEnv(envMap(nil)).Load(&cfg)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))

	cfg = checkedConfig{}
	assert.NoError(t, New().WithLookupEnv(envMap(map[string]string{"PORT": "80"})).Load(&cfg))
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad[requiredConfig](New().WithLookupEnv(envMap(nil)))
	})
}
