package claims

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

const (
	// KindInvalid is the zero Value's kind.
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindStringList
	KindMap
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string-list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a claim value: a string, a number, a boolean, a list of
// strings, or a nested [Bundle]. Numbers keep their decimal text so that
// integers such as "exp" survive a round trip exactly.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	list []string
	m    *Bundle
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns a number Value holding an integer.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(n, 10))}
}

// Float returns a number Value. NaN and infinities cannot be represented
// in JSON and are stored as 0.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// StringList returns a list Value. The slice is copied.
func StringList(items ...string) Value {
	return Value{kind: KindStringList, list: slices.Clone(items)}
}

// Map returns a nested-map Value. The bundle is copied.
func Map(b *Bundle) Value { return Value{kind: KindMap, m: b.Clone()} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt64 returns the number held by v if it is an integer.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := v.num.Int64()
	return n, err == nil
}

// AsFloat64 returns the number held by v.
func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsStringList returns a copy of the list held by v.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// AsMap returns a copy of the nested bundle held by v.
func (v Value) AsMap() (*Bundle, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m.Clone(), true
}

// Equal reports whether v and o hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindStringList:
		return slices.Equal(v.list, o.list)
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return true
	}
}

// Interface converts v to the plain Go value encoding/json would produce
// with UseNumber: string, json.Number, bool, []string or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindStringList:
		return slices.Clone(v.list)
	case KindMap:
		return v.m.ToMap()
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindString:
		return appendJSONString(buf, v.str)
	case KindNumber:
		return append(buf, v.num...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindStringList:
		buf = append(buf, '[')
		for i, s := range v.list {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendJSONString(buf, s); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindMap:
		return v.m.appendJSON(buf)
	default:
		return append(buf, "null"...), nil
	}
}

func appendJSONString(buf []byte, s string) ([]byte, error) {
	enc, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(buf, enc...), nil
}
