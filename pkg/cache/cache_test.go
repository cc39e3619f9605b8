package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-tokens/internal/testutil"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, max int, ttl time.Duration) (*Manager, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(epoch)
	m, err := NewManager([]Spec{{Name: "c", MaxEntries: max, TTL: ttl}}, WithClock(clock.Now))
	require.NoError(t, err)
	return m, clock
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewManager_RejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{"empty name", []Spec{{Name: "", MaxEntries: 1, TTL: time.Second}}},
		{"zero entries", []Spec{{Name: "a", MaxEntries: 0, TTL: time.Second}}},
		{"zero ttl", []Spec{{Name: "a", MaxEntries: 1}}},
		{"duplicate", []Spec{
			{Name: "a", MaxEntries: 1, TTL: time.Second},
			{Name: "a", MaxEntries: 2, TTL: time.Second},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.specs)
			testutil.AssertErrorCode(t, err, sserr.CodeValidation)
		})
	}
}

// ---------------------------------------------------------------------------
// Basic operations
// ---------------------------------------------------------------------------

func TestManager_PutGet(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Minute)

	require.True(t, m.Put("c", "k", "v"))
	v, ok := m.Get("c", "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.True(t, m.Put("c", "k", "v2"))
	v, _ = m.Get("c", "k")
	assert.Equal(t, "v2", v, "last write wins")
}

func TestManager_UnknownCacheAndEmptyKey(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Minute)

	assert.False(t, m.Put("missing", "k", 1))
	assert.False(t, m.Put("c", "", 1))

	_, ok := m.Get("missing", "k")
	assert.False(t, ok)
	_, ok = m.Get("c", "")
	assert.False(t, ok)

	assert.False(t, m.Contains("missing", "k"))
	assert.False(t, m.Contains("c", ""))
	assert.False(t, m.Remove("missing", "k"))
	assert.False(t, m.Remove("c", ""))
	assert.False(t, m.Clear("missing"))
	assert.True(t, m.Clear("c"))

	_, ok = m.Stats("missing")
	assert.False(t, ok)
}

func TestManager_RemoveAndClear(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Minute)
	m.Put("c", "a", 1)
	m.Put("c", "b", 2)

	assert.True(t, m.Remove("c", "a"))
	assert.False(t, m.Remove("c", "a"))
	assert.False(t, m.Contains("c", "a"))

	assert.True(t, m.Clear("c"))
	assert.False(t, m.Contains("c", "b"))

	stats, _ := m.Stats("c")
	assert.Equal(t, 0, stats.Entries)
}

// ---------------------------------------------------------------------------
// LRU eviction
// ---------------------------------------------------------------------------

func TestManager_LRU_EvictsLeastRecentlyInserted(t *testing.T) {
	m, _ := newTestManager(t, 3, time.Minute)

	for i := 0; i < 4; i++ {
		m.Put("c", fmt.Sprintf("k%d", i), i)
	}

	assert.False(t, m.Contains("c", "k0"), "oldest entry must be evicted")
	for i := 1; i < 4; i++ {
		assert.True(t, m.Contains("c", fmt.Sprintf("k%d", i)))
	}
	stats, _ := m.Stats("c")
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 3, stats.Entries)
}

func TestManager_LRU_GetPromotes(t *testing.T) {
	m, _ := newTestManager(t, 3, time.Minute)
	m.Put("c", "a", 1)
	m.Put("c", "b", 2)
	m.Put("c", "c", 3)

	_, ok := m.Get("c", "a")
	require.True(t, ok)

	m.Put("c", "d", 4)

	assert.True(t, m.Contains("c", "a"), "promoted entry survives")
	assert.False(t, m.Contains("c", "b"), "least recently used entry is evicted")
}

func TestManager_LRU_ContainsDoesNotPromote(t *testing.T) {
	m, _ := newTestManager(t, 2, time.Minute)
	m.Put("c", "a", 1)
	m.Put("c", "b", 2)

	assert.True(t, m.Contains("c", "a"))
	m.Put("c", "c", 3)

	assert.False(t, m.Contains("c", "a"))
}

func TestManager_LRU_OverwritePromotes(t *testing.T) {
	m, _ := newTestManager(t, 2, time.Minute)
	m.Put("c", "a", 1)
	m.Put("c", "b", 2)
	m.Put("c", "a", 10)
	m.Put("c", "c", 3)

	assert.True(t, m.Contains("c", "a"))
	assert.False(t, m.Contains("c", "b"))
}

// ---------------------------------------------------------------------------
// TTL
// ---------------------------------------------------------------------------

func TestManager_TTL_Absolute(t *testing.T) {
	m, clock := newTestManager(t, 10, 10*time.Second)
	m.Put("c", "k", "v")

	clock.Advance(9 * time.Second)
	_, ok := m.Get("c", "k")
	assert.True(t, ok, "present at T-1")

	// Reads do not extend the lifetime.
	clock.Advance(2 * time.Second)
	_, ok = m.Get("c", "k")
	assert.False(t, ok, "absent at T+1")

	stats, _ := m.Stats("c")
	assert.Equal(t, 0, stats.Entries, "expired entry is removed on access")
	assert.Equal(t, uint64(1), stats.Expirations)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestManager_TTL_ExpiresExactlyAtDeadline(t *testing.T) {
	m, clock := newTestManager(t, 10, 10*time.Second)
	m.Put("c", "k", "v")

	clock.Advance(10 * time.Second)
	assert.False(t, m.Contains("c", "k"))
}

func TestManager_TTL_OverwriteResets(t *testing.T) {
	m, clock := newTestManager(t, 10, 10*time.Second)
	m.Put("c", "k", "v")
	clock.Advance(8 * time.Second)
	m.Put("c", "k", "v2")
	clock.Advance(8 * time.Second)

	v, ok := m.Get("c", "k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestManager_RemoveExpiredReturnsFalse(t *testing.T) {
	m, clock := newTestManager(t, 10, time.Second)
	m.Put("c", "k", "v")
	clock.Advance(2 * time.Second)

	assert.False(t, m.Remove("c", "k"))
}

func TestManager_Purge(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	m, err := NewManager([]Spec{
		{Name: "short", MaxEntries: 10, TTL: time.Second},
		{Name: "long", MaxEntries: 10, TTL: time.Hour},
	}, WithClock(clock.Now))
	require.NoError(t, err)

	m.Put("short", "a", 1)
	m.Put("short", "b", 2)
	m.Put("long", "c", 3)
	clock.Advance(time.Minute)

	assert.Equal(t, 2, m.Purge())
	assert.True(t, m.Contains("long", "c"))
	assert.ElementsMatch(t, []string{"short", "long"}, m.Names())

	m.Close()
	assert.False(t, m.Contains("long", "c"))
}

func TestManager_Take(t *testing.T) {
	m, clock := newTestManager(t, 10, time.Minute)
	m.Put("c", "k", "v")

	v, ok := m.Take("c", "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.False(t, m.Contains("c", "k"))

	_, ok = m.Take("c", "k")
	assert.False(t, ok)
	_, ok = m.Take("missing", "k")
	assert.False(t, ok)

	m.Put("c", "old", "v")
	clock.Advance(time.Minute)
	_, ok = m.Take("c", "old")
	assert.False(t, ok, "expired entries cannot be taken")
}

func TestManager_TakeConcurrentSingleWinner(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Minute)
	m.Put("c", "k", "v")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Take("c", "k"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m, err := NewManager([]Spec{
		{Name: "a", MaxEntries: 50, TTL: time.Minute},
		{Name: "b", MaxEntries: 50, TTL: time.Minute},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := "a"
			if w%2 == 1 {
				name = "b"
			}
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%100)
				m.Put(name, key, i)
				m.Get(name, key)
				m.Contains(name, key)
				if i%7 == 0 {
					m.Remove(name, key)
				}
			}
		}(w)
	}
	wg.Wait()

	for _, name := range []string{"a", "b"} {
		stats, _ := m.Stats(name)
		assert.LessOrEqual(t, stats.Entries, 50)
	}
}

// ---------------------------------------------------------------------------
// Typed view
// ---------------------------------------------------------------------------

func TestTyped(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Minute)
	ints := For[int](m, "c")
	assert.Equal(t, "c", ints.Name())

	require.True(t, ints.Put("n", 42))
	n, ok := ints.Get("n")
	require.True(t, ok)
	assert.Equal(t, 42, n)
	assert.True(t, ints.Contains("n"))

	m.Put("c", "s", "not an int")
	_, ok = ints.Get("s")
	assert.False(t, ok, "wrong type reads as absent")

	m.Put("c", "s2", "still not an int")
	_, ok = ints.Take("s2")
	assert.False(t, ok)
	assert.False(t, m.Contains("c", "s2"), "Take removes mistyped values too")

	assert.True(t, ints.Remove("n"))
	assert.True(t, ints.Clear())

	missing := For[int](m, "missing")
	assert.False(t, missing.Put("n", 1))
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestNewStandardManager_Defaults(t *testing.T) {
	m, err := NewStandardManager(DefaultConfig())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{TenantConfigCache, PKCECache, BlacklistCache}, m.Names())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PKCE.TTL = 500 * time.Millisecond
	_, err := NewStandardManager(cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)

	cfg = DefaultConfig()
	cfg.Blacklist.MaxEntries = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_LoadFromEnvAndFile(t *testing.T) {
	path := testutil.TempConfigFile(t, "pkce:\n  max_entries: 5\n  ttl: 30s\n", ".yaml")
	env := map[string]string{"TOKENS_CACHE_BLACKLIST_TTL": "10m"}

	cfg := DefaultConfig()
	err := config.New().
		WithEnvPrefix("TOKENS").
		WithFile(path).
		WithLookupEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.PKCE.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.PKCE.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Blacklist.TTL)
	assert.Equal(t, DefaultTenantConfigMaxEntries, cfg.TenantConfig.MaxEntries)
}
