// Package variant implements the semi-structured value engine: an immutable
// tagged tree of null/boolean/number/string/array/object values with total
// path extraction and widest-lossless casts.
package variant

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the type tag of a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind name used in error messages and casts
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable semi-structured value. The zero value is the null
// variant. Extraction and casts never mutate the receiver.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	str     string
	arr     []Value
	obj     map[string]Value
}

// Null returns the null variant
func Null() Value {
	return Value{kind: KindNull}
}

// Bool constructs a boolean value
func Bool(b bool) Value {
	return Value{kind: KindBoolean, boolean: b}
}

// Number constructs a number value
func Number(n float64) Value {
	return Value{kind: KindNumber, number: n}
}

// String constructs a string value
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Array constructs an array value; the input slice is copied
func Array(items []Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Object constructs an object value; the input map is copied
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind returns the type tag
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is the null variant
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// BoolValue returns the boolean payload; false unless Kind is boolean
func (v Value) BoolValue() bool {
	return v.boolean
}

// NumberValue returns the number payload; zero unless Kind is number
func (v Value) NumberValue() float64 {
	return v.number
}

// StringValue returns the string payload; empty unless Kind is string
func (v Value) StringValue() string {
	return v.str
}

// ArrayLen returns the element count for arrays, zero otherwise
func (v Value) ArrayLen() int {
	return len(v.arr)
}

// Index returns element i of an array. Out-of-bounds indexes and non-array
// receivers yield the null variant, never an error.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Field returns the named field of an object. Absent fields and non-object
// receivers yield the null variant, never an error.
func (v Value) Field(name string) Value {
	if v.kind != KindObject {
		return Null()
	}
	f, ok := v.obj[name]
	if !ok {
		return Null()
	}
	return f
}

// FieldNames returns the sorted field names of an object, nil otherwise
func (v Value) FieldNames() []string {
	if v.kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(v.obj))
	for name := range v.obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports deep equality of two values
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, f := range v.obj {
			of, ok := other.obj[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the value as canonical JSON. Object keys are sorted by
// encoding/json, which keeps segment content hashing deterministic.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBoolean:
		return json.Marshal(v.boolean)
	case KindNumber:
		return json.Marshal(v.number)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("unknown variant kind %d", v.kind)
	}
}

// UnmarshalJSON decodes JSON into the tagged tree
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

// fromInterface converts a decoded encoding/json value into the tagged tree
func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []interface{}:
		arr := make([]Value, len(t))
		for i, item := range t {
			arr[i] = fromInterface(item)
		}
		return Value{kind: KindArray, arr: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			obj[k] = fromInterface(item)
		}
		return Value{kind: KindObject, obj: obj}
	default:
		return Null()
	}
}

// SafeParse parses JSON text into a value. Malformed input yields the null
// variant instead of an error.
func SafeParse(text string) Value {
	var v Value
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Null()
	}
	return v
}
