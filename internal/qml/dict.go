package qml

import (
	"bytes"
	"encoding/json"
)

// Dict is an insertion-ordered mapping from element or attribute names to
// values. Values are *Dict, []any, nil, or scalars (string, bool, integers,
// floats, time.Time). Keys beginning with the attribute marker ("@" by
// default) become XML attributes; "#text" becomes element text.
type Dict struct {
	keys   []string
	values map[string]any
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{values: make(map[string]any)}
}

// Set stores v under key. A key keeps the position of its first insertion.
// Set returns the receiver so builders can chain calls.
func (d *Dict) Set(key string, v any) *Dict {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// SetIf stores v only when ok is true.
func (d *Dict) SetIf(ok bool, key string, v any) *Dict {
	if ok {
		d.Set(key, v)
	}
	return d
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Dict) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of keys.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Dict returns the nested Dict under key, or nil.
func (d *Dict) Dict(key string) *Dict {
	v, _ := d.Get(key)
	child, _ := v.(*Dict)
	return child
}

// List returns the sequence under key, or nil.
func (d *Dict) List(key string) []any {
	v, _ := d.Get(key)
	list, _ := v.([]any)
	return list
}

// String returns the string under key, or "".
func (d *Dict) String(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)
	return s
}

// Field returns the raw value stored under key, or nil.
func (d *Dict) Field(key string) any {
	v, _ := d.Get(key)
	return v
}

// Value returns the "value" member of the quantity stored under key, which is
// the QuakeML convention for RealQuantity, TimeQuantity and friends.
func (d *Dict) Value(key string) any {
	v, _ := d.Dict(key).Get("value")
	return v
}

// MarshalJSON encodes the Dict as a JSON object preserving key order.
func (d *Dict) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Quantity builds the {"value": v} element used for QuakeML quantities. It
// returns nil when v is nil so absent optional values stay absent.
func Quantity(v any) any {
	if v == nil {
		return nil
	}
	switch p := v.(type) {
	case *float64:
		if p == nil {
			return nil
		}
		return NewDict().Set("value", *p)
	case *int:
		if p == nil {
			return nil
		}
		return NewDict().Set("value", *p)
	}
	return NewDict().Set("value", v)
}

// Seq converts a typed slice of Dicts into a generic sequence. The result is
// never nil, so an empty input still yields an empty (present) container.
func Seq(items ...*Dict) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	return out
}
