package cache

// Typed is a view of one named cache that stores values of type V. A
// value of any other type found under a key (for example, written through
// the untyped [Manager] API) reads as absent.
type Typed[V any] struct {
	m    *Manager
	name string
}

// For returns a typed view of the named cache. The name is not checked
// here; operations on an unknown name fail the same way they do on
// [Manager].
func For[V any](m *Manager, name string) Typed[V] {
	return Typed[V]{m: m, name: name}
}

// Name returns the cache name the view is bound to.
func (t Typed[V]) Name() string { return t.name }

// Get returns the value stored under key.
func (t Typed[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := t.m.Get(t.name, key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Take removes key and returns its value. A value of another type is
// still removed but reads as absent.
func (t Typed[V]) Take(key string) (V, bool) {
	var zero V
	raw, ok := t.m.Take(t.name, key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Put stores value under key.
func (t Typed[V]) Put(key string, value V) bool { return t.m.Put(t.name, key, value) }

// Contains reports whether a live entry exists for key.
func (t Typed[V]) Contains(key string) bool { return t.m.Contains(t.name, key) }

// Remove deletes key.
func (t Typed[V]) Remove(key string) bool { return t.m.Remove(t.name, key) }

// Clear empties the cache.
func (t Typed[V]) Clear() bool { return t.m.Clear(t.name) }
