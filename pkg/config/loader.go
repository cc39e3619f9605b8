// Package config loads service configuration from struct tag defaults, an
// optional YAML or JSON file, and environment variables, in that order of
// increasing priority:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file   (medium priority)
//	Environment variables   (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"`: maps the field to an environment variable; on a
//     nested struct the tag becomes a prefix for its fields
//   - `envDefault:"value"`: applied when the field is still zero-valued
//   - `required:"true"`: fails validation if the field is zero after loading
//
// Fields also need `yaml` or `json` tags for file-based loading.
//
// # Usage
//
//	type ServerConfig struct {
//	    Cache cache.Config `env:"CACHE" yaml:"cache"`
//	    Issuer string      `env:"ISSUER" envDefault:"tokens" yaml:"issuer"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("TOKENS").WithFile("tokens.yaml"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// durationType distinguishes time.Duration fields from plain int64 ones.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration into a struct. Use [New] and the With*
// methods to configure it, then call [Loader.Load].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New creates a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix sets a prefix joined with "_" to every environment variable
// name. The prefix is uppercased; an empty prefix disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to load. A
// missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookupEnv replaces the environment lookup function. Tests use it to
// supply variables without touching the process environment.
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookupEnv = fn
	}
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, then
// validates `required` tags and, if cfg implements [Validator], calls its
// Validate method.
//
// Loading failures return [sserr.CodeInternalConfiguration]; validation
// failures return [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := walkFields(rv, "", applyDefault); err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	if err := walkFields(rv, l.envPrefix, l.applyEnv); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Intended for process startup.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}

// fieldFunc is called for every settable leaf field. envKey is the fully
// prefixed environment variable name, or "" if the field has no env tag.
type fieldFunc func(field reflect.Value, sf reflect.StructField, envKey string) error

// walkFields visits the leaf fields of rv, descending into nested structs
// (other than time.Duration). A nested struct's env tag is appended to the
// prefix of its children.
func walkFields(rv reflect.Value, prefix string, fn fieldFunc) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")
		key := envTag
		if envTag != "" && prefix != "" {
			key = prefix + "_" + envTag
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			nested := prefix
			if envTag != "" {
				nested = key
			}
			if err := walkFields(field, nested, fn); err != nil {
				return err
			}
			continue
		}

		if envTag == "" {
			key = ""
		}
		if err := fn(field, sf, key); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(field reflect.Value, sf reflect.StructField, _ string) error {
	tag := sf.Tag.Get("envDefault")
	if tag == "" || !field.IsZero() {
		return nil
	}
	if err := setField(field, tag); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to apply default for field %q", sf.Name)
	}
	return nil
}

func (l *Loader) applyEnv(field reflect.Value, sf reflect.StructField, envKey string) error {
	if envKey == "" {
		return nil
	}
	val, ok := l.lookupEnv(envKey)
	if !ok {
		return nil
	}
	if err := setField(field, val); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to set field %q from env var %q", sf.Name, envKey)
	}
	return nil
}

// setField parses value into field. Supported kinds: strings (including
// named string types such as jose.Secret), bool, signed and unsigned
// integers, time.Duration, and []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
