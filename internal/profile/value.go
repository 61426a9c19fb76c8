package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrMissingKey is returned when a map lacks a required key.
	ErrMissingKey = errors.New("missing key")
	// ErrWrongKind is returned when a node is not the variant the caller asked for.
	ErrWrongKind = errors.New("unexpected kind")
)

// PathError reports where in the document an accessor failed.
type PathError struct {
	Path string
	Want Kind
	Got  Kind
	Err  error
}

func (e *PathError) Error() string {
	if errors.Is(e.Err, ErrWrongKind) {
		return fmt.Sprintf("%s: want %s, got %s", e.Path, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Value is a node of the raw profile document. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	list []Value
	keys []string
	m    map[string]Value
	path string
}

// Parse decodes a JSON document into a Value tree. Object key order is kept.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec, "$")
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("trailing data after document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, path string) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{kind: KindNull, path: path}, nil
	case bool:
		return Value{kind: KindBool, b: t, path: path}, nil
	case json.Number:
		return Value{kind: KindNumber, num: t, path: path}, nil
	case string:
		return Value{kind: KindString, str: t, path: path}, nil
	case json.Delim:
		switch t {
		case '[':
			v := Value{kind: KindList, path: path}
			for dec.More() {
				item, err := decodeValue(dec, fmt.Sprintf("%s[%d]", path, len(v.list)))
				if err != nil {
					return Value{}, err
				}
				v.list = append(v.list, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		case '{':
			v := Value{kind: KindMap, path: path, m: make(map[string]Value)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("%s: object key is %T", path, keyTok)
				}
				item, err := decodeValue(dec, path+"."+key)
				if err != nil {
					return Value{}, err
				}
				if _, dup := v.m[key]; !dup {
					v.keys = append(v.keys, key)
				}
				v.m[key] = item
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	}
	return Value{}, fmt.Errorf("%s: unexpected token %v", path, tok)
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Path returns the document path of v, e.g. "$.commander.rank".
func (v Value) Path() string {
	if v.path == "" {
		return "$"
	}
	return v.path
}

// IsNull reports whether v is JSON null (or absent).
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) wrongKind(want Kind) error {
	return &PathError{Path: v.Path(), Want: want, Got: v.kind, Err: ErrWrongKind}
}

// Get returns the child under key. It reports false for non-maps.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Has reports whether v is a map containing key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Field returns the child under key, failing if v is not a map or lacks it.
func (v Value) Field(key string) (Value, error) {
	if v.kind != KindMap {
		return Value{}, v.wrongKind(KindMap)
	}
	child, ok := v.m[key]
	if !ok {
		return Value{}, &PathError{Path: v.Path() + "." + key, Err: ErrMissingKey}
	}
	return child, nil
}

// At walks a chain of map keys.
func (v Value) At(keys ...string) (Value, error) {
	cur := v
	for _, k := range keys {
		next, err := cur.Field(k)
		if err != nil {
			return Value{}, err
		}
		cur = next
	}
	return cur, nil
}

// HasPath reports whether every key in the chain exists.
func (v Value) HasPath(keys ...string) bool {
	_, err := v.At(keys...)
	return err == nil
}

// Keys returns map keys in document order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Items returns list elements.
func (v Value) Items() ([]Value, error) {
	if v.kind != KindList {
		return nil, v.wrongKind(KindList)
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, nil
}

// Len returns the number of entries in a list or map, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Str returns the string payload.
func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", v.wrongKind(KindString)
	}
	return v.str, nil
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, v.wrongKind(KindBool)
	}
	return v.b, nil
}

// Int returns an integral number. Floats with a fractional part are rejected.
func (v Value) Int() (int64, error) {
	if v.kind != KindNumber {
		return 0, v.wrongKind(KindNumber)
	}
	if i, err := v.num.Int64(); err == nil {
		return i, nil
	}
	f, err := v.num.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, &PathError{Path: v.Path(), Err: fmt.Errorf("not an integer: %s", v.num)}
	}
	return int64(f), nil
}

// Float returns a number as float64.
func (v Value) Float() (float64, error) {
	if v.kind != KindNumber {
		return 0, v.wrongKind(KindNumber)
	}
	f, err := v.num.Float64()
	if err != nil {
		return 0, &PathError{Path: v.Path(), Err: err}
	}
	return f, nil
}

// Scalar renders strings and numbers as text. Ship ids arrive as either.
func (v Value) Scalar() (string, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return v.num.String(), nil
	}
	return "", &PathError{Path: v.Path(), Want: KindString, Got: v.kind, Err: ErrWrongKind}
}

// StrAt is At followed by Str.
func (v Value) StrAt(keys ...string) (string, error) {
	n, err := v.At(keys...)
	if err != nil {
		return "", err
	}
	return n.Str()
}

// IntAt is At followed by Int.
func (v Value) IntAt(keys ...string) (int64, error) {
	n, err := v.At(keys...)
	if err != nil {
		return 0, err
	}
	return n.Int()
}

// BoolAt is At followed by Bool.
func (v Value) BoolAt(keys ...string) (bool, error) {
	n, err := v.At(keys...)
	if err != nil {
		return false, err
	}
	return n.Bool()
}

// Interface converts v back into plain Go values (map[string]interface{},
// []interface{}, json.Number, ...) for re-encoding.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// GoString is used by %#v; keeps test failure output short.
func (v Value) GoString() string {
	switch v.kind {
	case KindMap:
		return fmt.Sprintf("profile.Value{map %s}", strings.Join(v.keys, ","))
	case KindList:
		return fmt.Sprintf("profile.Value{list len=%d}", len(v.list))
	}
	return fmt.Sprintf("profile.Value{%s %v}", v.kind, v.Interface())
}
