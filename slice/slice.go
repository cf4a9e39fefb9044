package slice

import (
	"fmt"

	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/shape"
)

// DataSlice is a shaped, schema-tagged array of values, optionally bound to
// a DataBag. Slices are immutable: operators produce new slices, only
// explicit attribute/list/dict writes mutate the attached bag. A rank-0
// slice is a DataItem and holds exactly one value.
type DataSlice struct {
	sh     shape.Shape
	sch    *schema.Schema
	values []Value
	bag    *DataBag
}

// New builds a slice, validating that the value count matches the shape and
// that every element's runtime type is compatible with the schema. A slice
// with OBJECT schema allows per-element heterogeneity; any other schema
// requires every element to carry exactly that type.
func New(sh shape.Shape, sch *schema.Schema, values []Value, bag *DataBag) (*DataSlice, error) {
	if sch == nil {
		sch = schema.Object()
	}
	if len(values) != sh.NumElements() {
		return nil, fmt.Errorf("shape %s implies %d elements, got %d values", sh, sh.NumElements(), len(values))
	}
	for i, v := range values {
		if err := checkValue(sch, v); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return &DataSlice{sh: sh, sch: sch, values: values, bag: bag}, nil
}

// MustNew is New that panics on error, for constructing known-good slices.
func MustNew(sh shape.Shape, sch *schema.Schema, values []Value, bag *DataBag) *DataSlice {
	ds, err := New(sh, sch, values, bag)
	if err != nil {
		panic(err)
	}
	return ds
}

// Item builds a rank-0 slice (DataItem) holding one value.
func Item(v Value, sch *schema.Schema) (*DataSlice, error) {
	return New(shape.Scalar(), sch, []Value{v}, nil)
}

// checkValue verifies one element against a slice schema.
func checkValue(sch *schema.Schema, v Value) error {
	if v.IsAbsent() {
		return nil
	}
	switch sch.Kind() {
	case schema.KindObject, schema.KindAny:
		return nil
	case schema.KindPrimitive:
		if v.DType() != sch.DType() {
			return &TypeMismatchError{Detail: fmt.Sprintf("expected %s, got %s", sch, v)}
		}
		return nil
	case schema.KindItemID, schema.KindEntity, schema.KindList, schema.KindDict:
		if v.Kind() != KindID {
			return &TypeMismatchError{Detail: fmt.Sprintf("expected an item id for schema %s, got %s", sch, v)}
		}
		return nil
	case schema.KindSchema:
		if v.Kind() != KindSchema {
			return &TypeMismatchError{Detail: fmt.Sprintf("expected a schema value, got %s", v)}
		}
		return nil
	default:
		return fmt.Errorf("unsupported schema %s", sch)
	}
}

// Shape returns the slice's jagged shape.
func (ds *DataSlice) Shape() shape.Shape { return ds.sh }

// Schema returns the slice's schema.
func (ds *DataSlice) Schema() *schema.Schema { return ds.sch }

// Bag returns the attached bag, or nil.
func (ds *DataSlice) Bag() *DataBag { return ds.bag }

// Rank returns the shape's rank.
func (ds *DataSlice) Rank() int { return ds.sh.Rank() }

// IsItem reports whether the slice is rank-0.
func (ds *DataSlice) IsItem() bool { return ds.sh.IsScalar() }

// Item returns the single value of a rank-0 slice.
func (ds *DataSlice) Item() Value {
	if !ds.sh.IsScalar() {
		panic("Item() on a non-scalar slice")
	}
	return ds.values[0]
}

// Values returns the flat element array in leaf order. The returned slice
// must not be mutated.
func (ds *DataSlice) Values() []Value { return ds.values }

// Get returns the element at flat index i.
func (ds *DataSlice) Get(i int) Value { return ds.values[i] }

// WithBag rebinds the attached bag: a pure metadata change, no content is
// copied. Pass nil to detach.
func (ds *DataSlice) WithBag(b *DataBag) *DataSlice {
	return &DataSlice{sh: ds.sh, sch: ds.sch, values: ds.values, bag: b}
}

// NoBag detaches the bag.
func (ds *DataSlice) NoBag() *DataSlice {
	return ds.WithBag(nil)
}

// WithSchema re-tags the slice with a new schema without moving data. Every
// element must be compatible with the new schema.
func (ds *DataSlice) WithSchema(sch *schema.Schema) (*DataSlice, error) {
	for i, v := range ds.values {
		if err := checkValue(sch, v); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return &DataSlice{sh: ds.sh, sch: sch, values: ds.values, bag: ds.bag}, nil
}

// IsPrimitive reports whether the slice's schema is a primitive type.
func (ds *DataSlice) IsPrimitive() bool { return ds.sch.IsPrimitive() }

// BroadcastTo expands the slice to the target shape by repeating each
// element over the added trailing levels. The slice's shape must be a
// prefix of the target.
func (ds *DataSlice) BroadcastTo(target shape.Shape) (*DataSlice, error) {
	if ds.sh.Equal(target) {
		return ds, nil
	}
	if !ds.sh.IsPrefixOf(target) {
		return nil, &shape.MismatchError{A: ds.sh, B: target}
	}
	counts := target.GroupSizes(ds.sh.Rank())
	out := make([]Value, 0, target.NumElements())
	for i, v := range ds.values {
		for j := 0; j < counts[i]; j++ {
			out = append(out, v)
		}
	}
	return &DataSlice{sh: target, sch: ds.sch, values: out, bag: ds.bag}, nil
}

// ----------------------------------------------------------------------------
// Attribute access
// ----------------------------------------------------------------------------

// GetAttr reads the named attribute of every element. A declared attribute
// with no stored value reads as absent; an attribute the schema does not
// declare at all is AttributeNotFound. OBJECT slices consult each element's
// per-item schema; ANY slices skip schema checks entirely.
func (ds *DataSlice) GetAttr(name string) (*DataSlice, error) {
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot fetch attribute '%s' without a DataBag", name)
	}
	switch ds.sch.Kind() {
	case schema.KindEntity:
		attrSchema, ok := ds.sch.Attr(name)
		if !ok {
			return nil, &AttributeNotFoundError{Attr: name, Schema: ds.sch.String()}
		}
		out := make([]Value, len(ds.values))
		for i, v := range ds.values {
			if id, ok := v.AsID(); ok {
				out[i], _ = ds.bag.GetAttr(id, name)
			}
		}
		return &DataSlice{sh: ds.sh, sch: attrSchema, values: out, bag: ds.bag}, nil

	case schema.KindObject:
		out := make([]Value, len(ds.values))
		var resultSchema *schema.Schema
		for i, v := range ds.values {
			id, ok := v.AsID()
			if !ok {
				continue
			}
			itemSchema, recorded := ds.bag.ItemSchema(id)
			if recorded {
				attrSchema, ok := itemSchema.Attr(name)
				if !ok {
					return nil, &AttributeNotFoundError{Attr: name, Schema: itemSchema.String()}
				}
				merged, err := schema.CommonSchema(resultSchema, attrSchema)
				if err != nil {
					return nil, fmt.Errorf("attribute '%s': %w", name, err)
				}
				resultSchema = merged
			}
			out[i], _ = ds.bag.GetAttr(id, name)
		}
		if resultSchema == nil {
			resultSchema = schema.Object()
		}
		return &DataSlice{sh: ds.sh, sch: resultSchema, values: out, bag: ds.bag}, nil

	case schema.KindAny:
		out := make([]Value, len(ds.values))
		for i, v := range ds.values {
			if id, ok := v.AsID(); ok {
				out[i], _ = ds.bag.GetAttr(id, name)
			}
		}
		return &DataSlice{sh: ds.sh, sch: schema.Any(), values: out, bag: ds.bag}, nil

	default:
		return nil, &AttributeNotFoundError{Attr: name, Schema: ds.sch.String()}
	}
}

// SetAttr writes the named attribute on every element, broadcasting the
// value slice to the holder shape first. The write is all-or-nothing:
// validation happens before the first mutation. Values carrying their own
// bag are adopted into the holder's bag.
func (ds *DataSlice) SetAttr(name string, val *DataSlice) error {
	if ds.bag == nil {
		return fmt.Errorf("cannot set attribute '%s' without a DataBag", name)
	}
	val, err := val.BroadcastTo(ds.sh)
	if err != nil {
		return err
	}
	switch ds.sch.Kind() {
	case schema.KindEntity:
		attrSchema, ok := ds.sch.Attr(name)
		if !ok {
			return &AttributeNotFoundError{Attr: name, Schema: ds.sch.String()}
		}
		if err := schema.ValidateAssignment(attrSchema, val.sch, name, schema.AssignOptions{}); err != nil {
			return err
		}
		ds.adoptFrom(val)
		for i, holder := range ds.values {
			if id, ok := holder.AsID(); ok {
				ds.bag.SetAttr(id, name, val.values[i])
			}
		}
		return nil

	case schema.KindObject:
		// Per-item schemas get the attribute added (or replaced); compute
		// every updated schema before the first write.
		updated := make([]*schema.Schema, len(ds.values))
		for i, holder := range ds.values {
			id, ok := holder.AsID()
			if !ok {
				continue
			}
			itemSchema, recorded := ds.bag.ItemSchema(id)
			if recorded && itemSchema.Kind() == schema.KindEntity {
				attrs := make([]schema.Attr, 0, len(itemSchema.Attrs())+1)
				replaced := false
				for _, a := range itemSchema.Attrs() {
					if a.Name == name {
						attrs = append(attrs, schema.Attr{Name: name, Schema: elementSchema(val, i)})
						replaced = true
					} else {
						attrs = append(attrs, a)
					}
				}
				if !replaced {
					attrs = append(attrs, schema.Attr{Name: name, Schema: elementSchema(val, i)})
				}
				updated[i] = schema.UUEntity(attrs...)
			}
		}
		ds.adoptFrom(val)
		for i, holder := range ds.values {
			if id, ok := holder.AsID(); ok {
				if updated[i] != nil {
					ds.bag.SetAttr(id, SchemaAttr, SchemaVal(updated[i]))
				}
				ds.bag.SetAttr(id, name, val.values[i])
			}
		}
		return nil

	case schema.KindAny:
		ds.adoptFrom(val)
		for i, holder := range ds.values {
			if id, ok := holder.AsID(); ok {
				ds.bag.SetAttr(id, name, val.values[i])
			}
		}
		return nil

	default:
		return &AttributeNotFoundError{Attr: name, Schema: ds.sch.String()}
	}
}

// elementSchema resolves the schema of one element of a value slice: the
// slice schema, refined per-element for OBJECT slices.
func elementSchema(ds *DataSlice, i int) *schema.Schema {
	if ds.sch.Kind() != schema.KindObject {
		return ds.sch
	}
	v := ds.values[i]
	if d := v.DType(); d != schema.InvalidDType {
		return schema.Primitive(d)
	}
	if id, ok := v.AsID(); ok && ds.bag != nil {
		if s, recorded := ds.bag.ItemSchema(id); recorded {
			return s
		}
	}
	return schema.Object()
}

// adoptFrom pulls the value slice's reachable structure into the holder's
// bag when the two differ.
func (ds *DataSlice) adoptFrom(val *DataSlice) {
	if val.bag != nil && val.bag != ds.bag {
		ds.bag.Adopt(val.bag, val.values)
	}
}
