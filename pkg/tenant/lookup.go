package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// Lookup loads tenant configurations from their backing store. It is
// consulted on a tenant-config cache miss.
//
// Lookup returns ok=false with a nil error when the tenant does not exist.
// Errors are reserved for store failures.
type Lookup interface {
	Lookup(ctx context.Context, tenantID string) (cfg Config, ok bool, err error)
}

// ---------------------------------------------------------------------------
// MemoryLookup
// ---------------------------------------------------------------------------

// MemoryLookup serves configurations from a map. It suits tests and
// deployments that ship tenant configuration as a file.
//
// MemoryLookup is safe for concurrent use.
type MemoryLookup struct {
	mu      sync.RWMutex
	configs map[string]Config
}

var _ Lookup = (*MemoryLookup)(nil)

// NewMemoryLookup returns a MemoryLookup holding configs. Later entries
// replace earlier ones with the same ID.
func NewMemoryLookup(configs ...Config) *MemoryLookup {
	m := &MemoryLookup{configs: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		m.configs[cfg.ID] = cfg
	}
	return m
}

// seedFile is the layout of a tenant seed file.
type seedFile struct {
	Tenants []Config `json:"tenants" yaml:"tenants"`
}

// LoadMemoryLookup reads a YAML (.yaml, .yml) or JSON (.json) seed file:
//
//	tenants:
//	  - id: t1
//	    token_shape: jws
//	    signature_algorithm: HS256
//	    signature_secret: ...
//	    access_token_validity: 900
//	    refresh_token_validity: 86400
//
// Every entry is validated; the first invalid tenant fails the load with a
// [sserr.CodeTenantConfigInvalid] error.
func LoadMemoryLookup(path string) (*MemoryLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"tenant: failed to read seed file %q", path)
	}

	var seed seedFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &seed)
	case ".json":
		err = json.Unmarshal(data, &seed)
	default:
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"tenant: unsupported seed file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"tenant: failed to parse seed file %q", path)
	}

	seen := make(map[string]bool, len(seed.Tenants))
	for _, cfg := range seed.Tenants {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if seen[cfg.ID] {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration,
				"tenant: seed file %q lists tenant %q twice", path, cfg.ID)
		}
		seen[cfg.ID] = true
	}
	return NewMemoryLookup(seed.Tenants...), nil
}

// Lookup implements [Lookup].
func (m *MemoryLookup) Lookup(_ context.Context, tenantID string) (Config, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[tenantID]
	return cfg, ok, nil
}

// Put adds or replaces a configuration.
func (m *MemoryLookup) Put(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID] = cfg
}

// Delete removes a configuration and reports whether it existed.
func (m *MemoryLookup) Delete(tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.configs[tenantID]
	delete(m.configs, tenantID)
	return ok
}

// Len returns the number of configurations held.
func (m *MemoryLookup) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configs)
}

// String implements fmt.Stringer without exposing configurations.
func (m *MemoryLookup) String() string {
	return fmt.Sprintf("MemoryLookup(%d tenants)", m.Len())
}
