// Package cache provides the bounded, expiring in-memory caches that back
// tenant configuration lookups, PKCE handshake state, and the user/tenant
// blacklist.
//
// A [Manager] owns a fixed set of named caches, each configured with a
// maximum entry count and an absolute per-entry TTL. When an insertion
// would exceed the maximum, the least-recently-used entry is evicted. A
// successful Get promotes an entry to most-recently-used; Contains does
// not. Expiry is absolute: reads never extend an entry's lifetime.
//
// Each named cache has its own lock, so callers working on different caches
// never contend. Operations on the same key are linearizable; the last Put
// wins and is visible to every later call.
//
// Consumers normally work through a [Typed] view bound to one cache name:
//
//	tenants := cache.For[tenant.Config](mgr, cache.TenantConfigCache)
//	tenants.Put(cfg.ID, cfg)
//	cfg, ok := tenants.Get("t1")
package cache

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
)

// Standard cache names used by the token engine.
const (
	TenantConfigCache = "tenant-config"
	PKCECache         = "pkce-request"
	BlacklistCache    = "blacklist"
)

// Spec configures one named cache.
type Spec struct {
	Name       string
	MaxEntries int
	TTL        time.Duration
}

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Entries     int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock sets the time source. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for eviction and purge diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager holds a fixed set of named caches. The set is decided at
// construction; Put on an unknown name fails rather than creating a cache.
//
// Manager is safe for concurrent use.
type Manager struct {
	segments map[string]*segment
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager creates a Manager with one cache per spec. It returns a
// validation error if a spec is malformed or a name is repeated.
func NewManager(specs []Spec, opts ...Option) (*Manager, error) {
	m := &Manager{
		segments: make(map[string]*segment, len(specs)),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, s := range specs {
		if s.Name == "" {
			return nil, sserr.Validation("cache: name must not be empty")
		}
		if s.MaxEntries <= 0 {
			return nil, sserr.Validationf("cache: %q max entries must be greater than zero", s.Name)
		}
		if s.TTL <= 0 {
			return nil, sserr.Validationf("cache: %q TTL must be greater than zero", s.Name)
		}
		if _, dup := m.segments[s.Name]; dup {
			return nil, sserr.Validationf("cache: duplicate cache name %q", s.Name)
		}
		m.segments[s.Name] = newSegment(s)
	}
	return m, nil
}

// Get returns the value stored under key and promotes it to
// most-recently-used. Absent, expired, unknown-cache and empty-key lookups
// all return (nil, false); an expired entry is removed.
func (m *Manager) Get(cacheName, key string) (any, bool) {
	seg, ok := m.segment(cacheName, key)
	if !ok {
		return nil, false
	}
	return seg.get(key, m.now())
}

// Put stores value under key with the cache's TTL, replacing any previous
// value. It returns false if the cache name is unknown. An empty key is
// never stored and also reports false.
func (m *Manager) Put(cacheName, key string, value any) bool {
	seg, ok := m.segment(cacheName, key)
	if !ok {
		return false
	}
	if evicted, did := seg.put(key, value, m.now()); did {
		m.logger.Debug("cache: evicted least recently used entry",
			"cache", cacheName,
			"key", evicted,
		)
	}
	return true
}

// Contains reports whether a live entry exists for key. It does not change
// the entry's recency.
func (m *Manager) Contains(cacheName, key string) bool {
	seg, ok := m.segment(cacheName, key)
	if !ok {
		return false
	}
	return seg.contains(key, m.now())
}

// Remove deletes key and reports whether a live entry was removed.
func (m *Manager) Remove(cacheName, key string) bool {
	seg, ok := m.segment(cacheName, key)
	if !ok {
		return false
	}
	return seg.remove(key, m.now())
}

// Take removes key and returns the live value it held, in one step. Of
// several concurrent Takes on the same key, at most one succeeds.
func (m *Manager) Take(cacheName, key string) (any, bool) {
	seg, ok := m.segment(cacheName, key)
	if !ok {
		return nil, false
	}
	return seg.take(key, m.now())
}

// Clear empties the named cache. It returns false if the name is unknown.
func (m *Manager) Clear(cacheName string) bool {
	seg, ok := m.segments[cacheName]
	if !ok {
		return false
	}
	seg.clear()
	return true
}

// Stats returns the named cache's counters.
func (m *Manager) Stats(cacheName string) (Stats, bool) {
	seg, ok := m.segments[cacheName]
	if !ok {
		return Stats{}, false
	}
	return seg.stats(), true
}

// Names returns the configured cache names in no particular order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.segments))
	for name := range m.segments {
		names = append(names, name)
	}
	return names
}

// Purge removes expired entries from every cache and returns how many were
// dropped. Expired entries are already invisible; purging only releases
// their memory (and any secrets they hold) early.
func (m *Manager) Purge() int {
	now := m.now()
	total := 0
	for name, seg := range m.segments {
		if n := seg.purge(now); n > 0 {
			total += n
			m.logger.Debug("cache: purged expired entries", "cache", name, "count", n)
		}
	}
	return total
}

// Close clears every cache. The Manager stays usable, but callers should
// treat it as shut down.
func (m *Manager) Close() {
	for _, seg := range m.segments {
		seg.clear()
	}
}

func (m *Manager) segment(cacheName, key string) (*segment, bool) {
	if key == "" {
		return nil, false
	}
	seg, ok := m.segments[cacheName]
	return seg, ok
}

// ---------------------------------------------------------------------------
// segment: one named LRU cache with absolute TTL
// ---------------------------------------------------------------------------

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// segment keeps entries in a doubly linked list ordered from most to least
// recently used. An overwrite counts as a use, so insertion order only
// decides between entries that have not been touched since they were added,
// and those are already ordered oldest-last.
type segment struct {
	mu    sync.Mutex
	spec  Spec
	items map[string]*list.Element
	order *list.List

	hits, misses, evictions, expirations uint64
}

func newSegment(spec Spec) *segment {
	return &segment{
		spec:  spec,
		items: make(map[string]*list.Element, spec.MaxEntries),
		order: list.New(),
	}
}

func (s *segment) get(key string, now time.Time) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.liveLocked(key, now)
	if !ok {
		s.misses++
		return nil, false
	}
	s.hits++
	s.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (s *segment) put(key string, value any, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := now.Add(s.spec.TTL)
	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		s.order.MoveToFront(el)
		return "", false
	}

	s.items[key] = s.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	if s.order.Len() <= s.spec.MaxEntries {
		return "", false
	}

	oldest := s.order.Back()
	victim := oldest.Value.(*entry).key
	s.removeLocked(oldest)
	s.evictions++
	return victim, true
}

func (s *segment) contains(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveLocked(key, now)
	return ok
}

func (s *segment) remove(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.liveLocked(key, now)
	if !ok {
		return false
	}
	s.removeLocked(el)
	return true
}

func (s *segment) take(key string, now time.Time) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.liveLocked(key, now)
	if !ok {
		s.misses++
		return nil, false
	}
	s.hits++
	v := el.Value.(*entry).value
	s.removeLocked(el)
	return v, true
}

func (s *segment) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element, s.spec.MaxEntries)
	s.order.Init()
}

func (s *segment) purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry).expiresAt) {
			s.removeLocked(el)
			s.expirations++
			n++
		}
		el = prev
	}
	return n
}

func (s *segment) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:     s.order.Len(),
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
}

// liveLocked returns the element for key if it exists and has not expired.
// An expired element is removed. Caller must hold s.mu.
func (s *segment) liveLocked(key string, now time.Time) (*list.Element, bool) {
	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if !now.Before(el.Value.(*entry).expiresAt) {
		s.removeLocked(el)
		s.expirations++
		return nil, false
	}
	return el, true
}

func (s *segment) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.items, e.key)
	s.order.Remove(el)
	// Values may hold tenant secrets.
	e.value = nil
}

// String implements fmt.Stringer for diagnostics.
func (s Spec) String() string {
	return fmt.Sprintf("%s(max=%d, ttl=%s)", s.Name, s.MaxEntries, s.TTL)
}
