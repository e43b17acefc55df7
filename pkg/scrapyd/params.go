package scrapyd

import (
	"net/url"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindMap
)

// Value is a parameter value: a string, a boolean or a nested ordered map.
type Value struct {
	kind Kind
	str  string
	b    bool
	m    *Params
}

// String wraps s as a Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool wraps b as a Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map wraps p as a nested Value. A nil p is treated as an empty map.
func Map(p *Params) Value {
	if p == nil {
		p = NewParams()
	}
	return Value{kind: KindMap, m: p}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string variant.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// BoolValue returns the boolean variant.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// Params returns the nested map variant.
func (v Value) Params() (*Params, bool) { return v.m, v.kind == KindMap }

// Equal reports whether v and o hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	default:
		return v.m.Equal(o.m)
	}
}

// scalar renders a non-map value the way the form encoder writes it.
func (v Value) scalar() string {
	if v.kind == KindBool {
		if v.b {
			return "1"
		}
		return "0"
	}
	return v.str
}

// Params is an insertion-ordered parameter bag. The zero value is not usable; call NewParams.
// A nil *Params behaves as an empty, read-only bag.
type Params struct {
	keys []string
	vals map[string]Value
}

// NewParams returns an empty bag.
func NewParams() *Params {
	return &Params{vals: make(map[string]Value)}
}

// Set stores v under key. Replacing an existing key keeps its original position.
func (p *Params) Set(key string, v Value) *Params {
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
	return p
}

// SetString is shorthand for Set(key, String(s)).
func (p *Params) SetString(key, s string) *Params { return p.Set(key, String(s)) }

// SetBool is shorthand for Set(key, Bool(b)).
func (p *Params) SetBool(key string, b bool) *Params { return p.Set(key, Bool(b)) }

// SetMap is shorthand for Set(key, Map(m)).
func (p *Params) SetMap(key string, m *Params) *Params { return p.Set(key, Map(m)) }

// Get returns the value stored under key.
func (p *Params) Get(key string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	v, ok := p.vals[key]
	return v, ok
}

// Len returns the number of entries.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Each calls fn for every entry in insertion order.
func (p *Params) Each(fn func(key string, v Value)) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		fn(k, p.vals[k])
	}
}

// Merge copies every entry of other into p; entries of other win on collision.
func (p *Params) Merge(other *Params) *Params {
	other.Each(func(k string, v Value) { p.Set(k, v) })
	return p
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	out := NewParams()
	p.Each(func(k string, v Value) {
		if m, ok := v.Params(); ok {
			v = Map(m.Clone())
		}
		out.Set(k, v)
	})
	return out
}

// Equal reports whether p and o hold the same entries in the same order.
func (p *Params) Equal(o *Params) bool {
	if p.Len() != o.Len() {
		return false
	}
	for i, k := range p.Keys() {
		if o.keys[i] != k {
			return false
		}
		if !p.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// StringifyBooleans returns a copy of p where every boolean, at any depth, is replaced
// by the literal string "True" or "False". Key order is preserved and p is not modified.
func StringifyBooleans(p *Params) *Params {
	out := NewParams()
	p.Each(func(k string, v Value) {
		switch v.kind {
		case KindBool:
			if v.b {
				v = String("True")
			} else {
				v = String("False")
			}
		case KindMap:
			v = Map(StringifyBooleans(v.m))
		}
		out.Set(k, v)
	})
	return out
}

// Encode renders p as an application/x-www-form-urlencoded string in insertion order.
// Nested maps flatten to key[sub] pairs.
func (p *Params) Encode() string {
	var buf strings.Builder
	p.encodeInto(&buf, "")
	return buf.String()
}

func (p *Params) encodeInto(buf *strings.Builder, prefix string) {
	p.Each(func(k string, v Value) {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}
		if m, ok := v.Params(); ok {
			m.encodeInto(buf, name)
			return
		}
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(name))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(v.scalar()))
	})
}

// Values flattens p into url.Values. Order is lost; use Encode where it matters.
func (p *Params) Values() url.Values {
	out := url.Values{}
	p.flattenInto(func(name, val string) { out.Add(name, val) }, "")
	return out
}

func (p *Params) flattenInto(emit func(name, val string), prefix string) {
	p.Each(func(k string, v Value) {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}
		if m, ok := v.Params(); ok {
			m.flattenInto(emit, name)
			return
		}
		emit(name, v.scalar())
	})
}

// appendSettings writes one "&setting=name=value" segment per leaf of settings.
// Names and values are written raw.
func appendSettings(body string, settings *Params) string {
	var buf strings.Builder
	buf.WriteString(body)
	settings.flattenInto(func(name, val string) {
		buf.WriteString("&setting=")
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(val)
	}, "")
	return buf.String()
}
