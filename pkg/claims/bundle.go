// Package claims provides the claims bundle carried inside tokens: an
// insertion-ordered map from claim name to a [Value] that is a string, a
// number, a boolean, a list of strings, or a nested bundle.
//
// Keeping insertion order makes serialization deterministic: the same
// bundle always produces the same JSON bytes, and decoding a token's
// payload reproduces the issuer's order.
package claims

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
)

// Registered and engine-specific claim names.
const (
	Audience  = "aud"
	Subject   = "sub"
	TokenID   = "jti"
	IssuedAt  = "iat"
	Expiry    = "exp"
	RefreshID = "refresh_id"
)

// maxDepth bounds nesting when decoding untrusted payloads.
const maxDepth = 32

// Bundle is an ordered claims map. The zero value is not usable; create
// bundles with [New] or [FromMap]. A nil *Bundle behaves as an empty,
// read-only bundle.
//
// Bundle is not safe for concurrent mutation. Token code never mutates a
// caller's bundle; it works on a [Bundle.Clone].
type Bundle struct {
	keys   []string
	values map[string]Value
}

// New returns an empty bundle.
func New() *Bundle {
	return &Bundle{values: make(map[string]Value)}
}

// Set stores v under name. An existing claim keeps its position; a new
// claim is appended. Set returns b for chaining.
func (b *Bundle) Set(name string, v Value) *Bundle {
	if _, ok := b.values[name]; !ok {
		b.keys = append(b.keys, name)
	}
	b.values[name] = v
	return b
}

// Get returns the value stored under name.
func (b *Bundle) Get(name string) (Value, bool) {
	if b == nil {
		return Value{}, false
	}
	v, ok := b.values[name]
	return v, ok
}

// Has reports whether name is present.
func (b *Bundle) Has(name string) bool {
	_, ok := b.Get(name)
	return ok
}

// GetString returns the claim under name if it is a string.
func (b *Bundle) GetString(name string) (string, bool) {
	v, ok := b.Get(name)
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetInt64 returns the claim under name if it is an integer.
func (b *Bundle) GetInt64(name string) (int64, bool) {
	v, ok := b.Get(name)
	if !ok {
		return 0, false
	}
	return v.AsInt64()
}

// Delete removes name and reports whether it was present.
func (b *Bundle) Delete(name string) bool {
	if b == nil {
		return false
	}
	if _, ok := b.values[name]; !ok {
		return false
	}
	delete(b.values, name)
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == name })
	return true
}

// Len returns the number of claims.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys returns the claim names in order.
func (b *Bundle) Keys() []string {
	if b == nil {
		return nil
	}
	return slices.Clone(b.keys)
}

// Clone returns a deep copy. Cloning a nil bundle returns an empty one.
func (b *Bundle) Clone() *Bundle {
	out := New()
	if b == nil {
		return out
	}
	out.keys = slices.Clone(b.keys)
	for k, v := range b.values {
		if v.kind == KindMap {
			v.m = v.m.Clone()
		} else if v.kind == KindStringList {
			v.list = slices.Clone(v.list)
		}
		out.values[k] = v
	}
	return out
}

// Merge copies every claim of other into b; on a name collision other's
// value wins. Merge returns b for chaining.
func (b *Bundle) Merge(other *Bundle) *Bundle {
	if other == nil {
		return b
	}
	for _, k := range other.keys {
		v := other.values[k]
		if v.kind == KindMap {
			v.m = v.m.Clone()
		}
		b.Set(k, v)
	}
	return b
}

// Equal reports whether b and o hold the same claims in the same order.
// A nil bundle equals an empty one.
func (b *Bundle) Equal(o *Bundle) bool {
	if b.Len() != o.Len() {
		return false
	}
	for i, k := range b.Keys() {
		if o.keys[i] != k || !b.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// ToMap converts b into plain Go values (see [Value.Interface]).
func (b *Bundle) ToMap() map[string]any {
	out := make(map[string]any, b.Len())
	if b == nil {
		return out
	}
	for k, v := range b.values {
		out[k] = v.Interface()
	}
	return out
}

// FromMap builds a bundle from plain Go values. Keys are added in sorted
// order since Go maps are unordered. Supported value types: string, bool,
// all integer and float types, json.Number, []string, []any of strings,
// map[string]any, *Bundle and Value.
func FromMap(m map[string]any) (*Bundle, error) {
	return fromMap(m, 0)
}

func fromMap(m map[string]any, depth int) (*Bundle, error) {
	if depth > maxDepth {
		return nil, errors.New("claims: nesting too deep")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := New()
	for _, k := range keys {
		v, err := valueOf(m[k], depth)
		if err != nil {
			return nil, fmt.Errorf("claims: claim %q: %w", k, err)
		}
		b.Set(k, v)
	}
	return b, nil
}

func valueOf(raw any, depth int) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case *Bundle:
		return Map(x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case json.Number:
		if _, err := x.Float64(); err != nil {
			return Value{}, fmt.Errorf("invalid number %q", x)
		}
		return Value{kind: KindNumber, num: x}, nil
	case []string:
		return StringList(x...), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("list element of type %T is not supported", item)
			}
			items = append(items, s)
		}
		return StringList(items...), nil
	case map[string]any:
		nested, err := fromMap(x, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: nested}, nil
	default:
		return Value{}, fmt.Errorf("value of type %T is not supported", raw)
	}
}

// MarshalJSON encodes b as a JSON object in claim order.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return b.appendJSON(nil)
}

func (b *Bundle) appendJSON(buf []byte) ([]byte, error) {
	buf = append(buf, '{')
	for i, k := range b.Keys() {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		if buf, err = appendJSONString(buf, k); err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		if buf, err = b.values[k].appendJSON(buf); err != nil {
			return nil, err
		}
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes a JSON object into b, replacing its contents and
// preserving the object's key order. Duplicate keys keep the first
// position and the last value. null values and lists containing anything
// other than strings are rejected.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("claims: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("claims: payload is not a JSON object")
	}
	decoded, err := decodeObject(dec, 0)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("claims: trailing data after JSON object")
	}

	b.keys = decoded.keys
	b.values = decoded.values
	return nil
}

// Parse decodes a JSON object into a new bundle.
func Parse(data []byte) (*Bundle, error) {
	b := New()
	if err := b.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return b, nil
}

// decodeObject reads members until the closing '}'. The opening '{' has
// already been consumed.
func decodeObject(dec *json.Decoder, depth int) (*Bundle, error) {
	if depth > maxDepth {
		return nil, errors.New("claims: nesting too deep")
	}
	b := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("claims: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("claims: object key is not a string")
		}
		v, err := decodeValue(dec, depth)
		if err != nil {
			return nil, fmt.Errorf("claims: claim %q: %w", key, err)
		}
		b.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("claims: %w", err)
	}
	return b, nil
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case bool:
		return Bool(t), nil
	case nil:
		return Value{}, errors.New("null is not a supported claim value")
	case json.Delim:
		switch t {
		case '{':
			nested, err := decodeObject(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindMap, m: nested}, nil
		case '[':
			items := []string{}
			for dec.More() {
				el, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				s, ok := el.(string)
				if !ok {
					return Value{}, errors.New("only lists of strings are supported")
				}
				items = append(items, s)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindStringList, list: items}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
