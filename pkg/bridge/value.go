package bridge

import (
	"fmt"
	"slices"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueString ValueKind = iota
	// ValueObject is an object identifier; adapters turn it into a path.
	ValueObject
	ValueInt32
	ValueInt64
	ValueUint32
	ValueBool
	ValueStringList
)

// Value is a typed property value.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	list []string
}

func String(s string) Value { return Value{kind: ValueString, str: s} }
func Object(id string) Value { return Value{kind: ValueObject, str: id} }
func Int32(v int32) Value { return Value{kind: ValueInt32, num: int64(v)} }
func Int64(v int64) Value { return Value{kind: ValueInt64, num: v} }
func Uint32(v uint32) Value { return Value{kind: ValueUint32, num: int64(v)} }
func StringList(v ...string) Value { return Value{kind: ValueStringList, list: v} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) AsString() string { return v.str }
func (v Value) AsInt() int64 { return v.num }
func (v Value) AsStringList() []string { return slices.Clone(v.list) }

func Bool(b bool) Value {
	var n int64
	if b {
		n = 1
	}
	return Value{kind: ValueBool, num: n}
}

func (v Value) AsBool() bool {
	return v.num != 0
}

// Interface returns the value as a plain Go value of its natural type.
func (v Value) Interface() any {
	switch v.kind {
	case ValueInt32:
		return int32(v.num)
	case ValueInt64:
		return v.num
	case ValueUint32:
		return uint32(v.num)
	case ValueBool:
		return v.num != 0
	case ValueStringList:
		return slices.Clone(v.list)
	default:
		return v.str
	}
}

func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.str == o.str && v.num == o.num && slices.Equal(v.list, o.list)
}

func (v Value) String() string {
	switch v.kind {
	case ValueString, ValueObject:
		return v.str
	case ValueStringList:
		return "[" + strings.Join(v.list, ", ") + "]"
	case ValueBool:
		return fmt.Sprint(v.AsBool())
	default:
		return fmt.Sprint(v.num)
	}
}

// PropertyMap is the projection of one node.
type PropertyMap map[Property]Value

// Values returns the map's values in the order of props.
func (m PropertyMap) Values(props []Property) []Value {
	out := make([]Value, len(props))
	for i, p := range props {
		out[i] = m[p]
	}
	return out
}
