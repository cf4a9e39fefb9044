// Package schema implements the type system for slice elements: primitive
// dtypes, the special OBJECT/ANY/ITEMID/SCHEMA markers, and structured
// entity, list and dict schemas. Entity schemas are identified by an
// explicit allocated id unless built as uu-schemas, which are interned by
// structural fingerprint so equal attribute sets share one identity.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// DType enumerates the primitive element types.
type DType uint8

const (
	InvalidDType DType = iota
	Int32
	Int64
	Float32
	Float64
	Text
	Bytes
	Bool
	Mask
)

func (d DType) String() string {
	switch d {
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case Text:
		return "TEXT"
	case Bytes:
		return "BYTES"
	case Bool:
		return "BOOLEAN"
	case Mask:
		return "MASK"
	default:
		return "INVALID"
	}
}

// IsNumeric reports whether the dtype participates in the numeric widening
// lattice INT32 < INT64 < FLOAT32 < FLOAT64.
func (d DType) IsNumeric() bool {
	switch d {
	case Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// numericRank orders the widening lattice.
func numericRank(d DType) int {
	switch d {
	case Int32:
		return 0
	case Int64:
		return 1
	case Float32:
		return 2
	case Float64:
		return 3
	}
	return -1
}

// Kind classifies schema variants.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindObject
	KindAny
	KindItemID
	KindSchema // schema-of-schema
	KindEntity
	KindList
	KindDict
)

// Attr is one named attribute of an entity schema. Order is significant.
type Attr struct {
	Name   string
	Schema *Schema
}

// Schema describes the type of slice elements. Schemas are immutable once
// built; entity/list/dict instances carry an id so they are addressable as
// items inside a bag.
type Schema struct {
	kind  Kind
	dtype DType
	name  string // entity display name, may be empty
	id    uint64 // nonzero for entity/list/dict
	attrs []Attr
	item  *Schema // list item schema
	key   *Schema // dict key schema
	value *Schema // dict value schema
}

// Shared singletons for primitives and special markers.
var (
	objectSchema = &Schema{kind: KindObject}
	anySchema    = &Schema{kind: KindAny}
	itemIDSchema = &Schema{kind: KindItemID}
	schemaSchema = &Schema{kind: KindSchema}

	primitives = map[DType]*Schema{
		Int32:   {kind: KindPrimitive, dtype: Int32},
		Int64:   {kind: KindPrimitive, dtype: Int64},
		Float32: {kind: KindPrimitive, dtype: Float32},
		Float64: {kind: KindPrimitive, dtype: Float64},
		Text:    {kind: KindPrimitive, dtype: Text},
		Bytes:   {kind: KindPrimitive, dtype: Bytes},
		Bool:    {kind: KindPrimitive, dtype: Bool},
		Mask:    {kind: KindPrimitive, dtype: Mask},
	}
)

// Object returns the OBJECT schema: per-element runtime typing.
func Object() *Schema { return objectSchema }

// Any returns the ANY schema: type-erased, never validated.
func Any() *Schema { return anySchema }

// ItemID returns the ITEMID schema for opaque identifiers.
func ItemID() *Schema { return itemIDSchema }

// SchemaSchema returns the schema used to type schema values themselves.
func SchemaSchema() *Schema { return schemaSchema }

// Primitive returns the shared schema instance for a primitive dtype.
func Primitive(d DType) *Schema {
	s, ok := primitives[d]
	if !ok {
		panic(fmt.Sprintf("no primitive schema for dtype %d", d))
	}
	return s
}

// nextID allocates identities for explicitly created entity schemas.
// Structural ids from the interner live in a disjoint range (high bit set).
var nextID atomic.Uint64

const structuralIDBit = uint64(1) << 63

func allocSchemaID() uint64 {
	return nextID.Add(1)
}

// interner dedups structurally identified schemas (uu-entities, lists,
// dicts) by canonical fingerprint, the same shape as the teacher-style
// fingerprint cache: RWMutex around a string-keyed map.
type interner struct {
	mu    sync.RWMutex
	cache map[string]*Schema
	next  uint64
}

var interned = &interner{cache: make(map[string]*Schema, 64)}

func (in *interner) get(key string) (*Schema, bool) {
	in.mu.RLock()
	s, ok := in.cache[key]
	in.mu.RUnlock()
	return s, ok
}

func (in *interner) put(key string, build func(id uint64) *Schema) *Schema {
	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.cache[key]; ok {
		return s
	}
	in.next++
	s := build(in.next | structuralIDBit)
	in.cache[key] = s
	return s
}

// NewEntity creates an entity schema with a fresh identity. Two calls with
// identical attributes produce distinct, non-interchangeable schemas.
func NewEntity(name string, attrs ...Attr) *Schema {
	return &Schema{
		kind:  KindEntity,
		name:  name,
		id:    allocSchemaID(),
		attrs: append([]Attr(nil), attrs...),
	}
}

// UUEntity creates a structurally identified entity schema: the same
// attribute names and types always intern to the same instance.
func UUEntity(attrs ...Attr) *Schema {
	key := structuralKey("uu", attrs, nil, nil, nil)
	if s, ok := interned.get(key); ok {
		return s
	}
	return interned.put(key, func(id uint64) *Schema {
		return &Schema{kind: KindEntity, id: id, attrs: append([]Attr(nil), attrs...)}
	})
}

// NewList returns the (interned) list schema wrapping the given item schema.
func NewList(item *Schema) *Schema {
	key := structuralKey("list", nil, item, nil, nil)
	if s, ok := interned.get(key); ok {
		return s
	}
	return interned.put(key, func(id uint64) *Schema {
		return &Schema{kind: KindList, id: id, item: item}
	})
}

// NewDict returns the (interned) dict schema for the given key/value pair.
func NewDict(k, v *Schema) *Schema {
	key := structuralKey("dict", nil, nil, k, v)
	if s, ok := interned.get(key); ok {
		return s
	}
	return interned.put(key, func(id uint64) *Schema {
		return &Schema{kind: KindDict, id: id, key: k, value: v}
	})
}

// structuralKey builds a canonical string for interning. Attribute order is
// not significant for uu identity, so attrs are key-sorted.
func structuralKey(tag string, attrs []Attr, item, k, v *Schema) string {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteByte('{')
	if len(attrs) > 0 {
		names := make([]string, 0, len(attrs))
		byName := make(map[string]*Schema, len(attrs))
		for _, a := range attrs {
			names = append(names, a.Name)
			byName[a.Name] = a.Schema
		}
		sort.Strings(names)
		for i, n := range names {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:%s", n, byName[n].fingerprint())
		}
	}
	if item != nil {
		b.WriteString(item.fingerprint())
	}
	if k != nil {
		b.WriteString(k.fingerprint())
		b.WriteByte('>')
		b.WriteString(v.fingerprint())
	}
	b.WriteByte('}')
	return b.String()
}

// fingerprint identifies a schema for interning keys. Entity/list/dict
// schemas already have stable ids, so those collapse to the id.
func (s *Schema) fingerprint() string {
	if s == nil {
		return "none"
	}
	switch s.kind {
	case KindPrimitive:
		return s.dtype.String()
	case KindObject:
		return "OBJECT"
	case KindAny:
		return "ANY"
	case KindItemID:
		return "ITEMID"
	case KindSchema:
		return "SCHEMA"
	default:
		return fmt.Sprintf("#%d", s.id)
	}
}

// Kind returns the schema variant.
func (s *Schema) Kind() Kind { return s.kind }

// DType returns the primitive dtype, or InvalidDType for non-primitives.
func (s *Schema) DType() DType { return s.dtype }

// ID returns the identity of an entity/list/dict schema, 0 otherwise.
func (s *Schema) ID() uint64 { return s.id }

// Name returns the entity display name, if any.
func (s *Schema) Name() string { return s.name }

// IsPrimitive reports whether s is one of the fixed primitive types.
func (s *Schema) IsPrimitive() bool { return s.kind == KindPrimitive }

// IsStructured reports whether s is an entity, list, or dict schema.
func (s *Schema) IsStructured() bool {
	return s.kind == KindEntity || s.kind == KindList || s.kind == KindDict
}

// Attrs returns the ordered attributes of an entity schema.
func (s *Schema) Attrs() []Attr { return s.attrs }

// Attr looks up an attribute schema by name.
func (s *Schema) Attr(name string) (*Schema, bool) {
	for _, a := range s.attrs {
		if a.Name == name {
			return a.Schema, true
		}
	}
	return nil, false
}

// ItemSchema returns a list schema's item schema.
func (s *Schema) ItemSchema() *Schema { return s.item }

// KeySchema returns a dict schema's key schema.
func (s *Schema) KeySchema() *Schema { return s.key }

// ValueSchema returns a dict schema's value schema.
func (s *Schema) ValueSchema() *Schema { return s.value }

// Equal reports schema identity. Entity/list/dict compare by id; primitives
// and markers by kind/dtype.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	if s.kind != o.kind {
		return false
	}
	switch s.kind {
	case KindPrimitive:
		return s.dtype == o.dtype
	case KindEntity, KindList, KindDict:
		return s.id == o.id
	default:
		return true
	}
}

func (s *Schema) String() string {
	if s == nil {
		return "NONE"
	}
	switch s.kind {
	case KindPrimitive:
		return s.dtype.String()
	case KindObject:
		return "OBJECT"
	case KindAny:
		return "ANY"
	case KindItemID:
		return "ITEMID"
	case KindSchema:
		return "SCHEMA"
	case KindList:
		return fmt.Sprintf("LIST[%s]", s.item)
	case KindDict:
		return fmt.Sprintf("DICT{%s, %s}", s.key, s.value)
	case KindEntity:
		var b strings.Builder
		if s.name != "" {
			b.WriteString(s.name)
		}
		b.WriteString("ENTITY(")
		for i, a := range s.attrs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", a.Name, a.Schema)
		}
		b.WriteByte(')')
		return b.String()
	default:
		return "INVALID"
	}
}
