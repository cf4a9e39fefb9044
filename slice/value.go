// Package slice implements the columnar value model: tagged-union element
// values, opaque item identifiers, the DataBag triple store backing
// structured data, and the DataSlice/DataItem types that all operators
// consume and produce.
package slice

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/slicelab/jagged/schema"
)

// ItemID is an opaque 128-bit identifier for entities, objects, lists and
// dicts. Identifiers are meaningless without a bag to resolve them against,
// except under the ITEMID schema.
type ItemID struct {
	Hi, Lo uint64
}

// IsZero reports whether the id is the zero (invalid) identifier.
func (id ItemID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

func (id ItemID) String() string {
	return fmt.Sprintf("$%016x%016x", id.Hi, id.Lo)
}

// idSeed makes identifiers process-unique: allocations from two runs do not
// collide in merged bags.
var idSeed = rand.Uint64() | 1

var idCounter atomic.Uint64

// AllocateIDs returns n fresh identifiers from one contiguous allocation.
// Every call returns identifiers disjoint from all prior calls in this
// process.
func AllocateIDs(n int) []ItemID {
	if n < 0 {
		panic(fmt.Sprintf("AllocateIDs(%d)", n))
	}
	base := idCounter.Add(uint64(n)) - uint64(n)
	out := make([]ItemID, n)
	for i := range out {
		out[i] = ItemID{Hi: idSeed, Lo: base + uint64(i) + 1}
	}
	return out
}

// AllocateID returns one fresh identifier.
func AllocateID() ItemID {
	return AllocateIDs(1)[0]
}

// ValueKind classifies element values.
type ValueKind uint8

const (
	KindAbsent ValueKind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindText
	KindBytes
	KindBool
	KindMask // the present unit value
	KindID
	KindSchema
)

// Value is one element of a slice: a primitive, an identifier, a schema, or
// the absent sentinel. Absent is distinct from zero and empty string and
// propagates through arithmetic and aggregation.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    []byte
	id   ItemID
	sch  *schema.Schema
}

// Constructors.

func Absent() Value              { return Value{} }
func Int32Val(v int32) Value     { return Value{kind: KindInt32, i: int64(v)} }
func Int64Val(v int64) Value     { return Value{kind: KindInt64, i: v} }
func Float32Val(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }
func Float64Val(v float64) Value { return Value{kind: KindFloat64, f: v} }
func TextVal(v string) Value     { return Value{kind: KindText, s: v} }
func BytesVal(v []byte) Value    { return Value{kind: KindBytes, b: v} }
func BoolVal(v bool) Value {
	i := int64(0)
	if v {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}
func Present() Value                     { return Value{kind: KindMask} }
func IDVal(id ItemID) Value              { return Value{kind: KindID, id: id} }
func SchemaVal(s *schema.Schema) Value   { return Value{kind: KindSchema, sch: s} }

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports whether the value is the absent sentinel.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// DType returns the primitive dtype of the value, or InvalidDType for
// absent, identifiers and schemas.
func (v Value) DType() schema.DType {
	switch v.kind {
	case KindInt32:
		return schema.Int32
	case KindInt64:
		return schema.Int64
	case KindFloat32:
		return schema.Float32
	case KindFloat64:
		return schema.Float64
	case KindText:
		return schema.Text
	case KindBytes:
		return schema.Bytes
	case KindBool:
		return schema.Bool
	case KindMask:
		return schema.Mask
	default:
		return schema.InvalidDType
	}
}

// Accessors. Each returns the payload and whether the kind matched.

func (v Value) AsInt64() (int64, bool) {
	if v.kind == KindInt32 || v.kind == KindInt64 {
		return v.i, true
	}
	return 0, false
}

func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat32, KindFloat64:
		return v.f, true
	case KindInt32, KindInt64:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsText() (string, bool) {
	if v.kind == KindText {
		return v.s, true
	}
	return "", false
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind == KindBytes {
		return v.b, true
	}
	return nil, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.i != 0, true
	}
	return false, false
}

func (v Value) AsID() (ItemID, bool) {
	if v.kind == KindID {
		return v.id, true
	}
	return ItemID{}, false
}

func (v Value) AsSchema() (*schema.Schema, bool) {
	if v.kind == KindSchema {
		return v.sch, true
	}
	return nil, false
}

// Equal is exact elementwise equality, including kind and absent-ness.
// Floats compare exactly; approximate comparison lives in slicetest.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindAbsent, KindMask:
		return true
	case KindInt32, KindInt64, KindBool:
		return v.i == o.i
	case KindFloat32, KindFloat64:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBytes:
		return string(v.b) == string(o.b)
	case KindID:
		return v.id == o.id
	case KindSchema:
		return v.sch.Equal(o.sch)
	default:
		return false
	}
}

// token renders a canonical string for use as a dict key. Only hashable
// kinds have tokens; absent has none.
func (v Value) token() (string, bool) {
	switch v.kind {
	case KindInt32, KindInt64:
		return fmt.Sprintf("i:%d", v.i), true
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("f:%v", v.f), true
	case KindText:
		return "s:" + v.s, true
	case KindBytes:
		return "b:" + string(v.b), true
	case KindBool:
		return fmt.Sprintf("o:%d", v.i), true
	case KindMask:
		return "m:", true
	case KindID:
		return "d:" + v.id.String(), true
	default:
		return "", false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "None"
	case KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("%v", v.f)
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("b%q", v.b)
	case KindBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case KindMask:
		return "present"
	case KindID:
		return v.id.String()
	case KindSchema:
		return v.sch.String()
	default:
		return "invalid"
	}
}
