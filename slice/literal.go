package slice

import (
	"fmt"
	"sort"

	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/shape"
)

// KV is an ordered key/value pair for dict and object literals. Go maps
// cannot hold every key type the data model supports (byte strings,
// DataItems), so []KV is the fully general literal form; map[string]any and
// map[any]any are accepted conveniences.
type KV struct {
	Key   any
	Value any
}

// LiteralOptions configure FromLiteral.
type LiteralOptions struct {
	// Schema validates/coerces every element instead of inferring.
	Schema *schema.Schema
	// DictAsObj reinterprets key-value mappings as objects with one
	// attribute per key rather than as dict containers. Keys must be valid
	// text values.
	DictAsObj bool
	// Bag receives structured content (entities, lists, dicts). Created on
	// demand when nil and the literal needs one.
	Bag *DataBag
	// ItemID is reserved; supplying it fails with NotImplemented.
	ItemID *ItemID
	// FromDim is reserved; a nonzero value fails with NotImplemented.
	FromDim int
}

// FromLiteral builds a slice from a nested literal. Nesting depth of []any
// sequences becomes shape rank; mappings and sequences nested inside a
// mapping become dict/list containers in the bag. Without an explicit
// schema the element schema is inferred from the leaves, widening mixed
// numerics and rejecting any other mixture with TypeMismatch.
func FromLiteral(v any, opts *LiteralOptions) (*DataSlice, error) {
	if opts == nil {
		opts = &LiteralOptions{}
	}
	if opts.ItemID != nil {
		return nil, &NotImplementedError{What: "the itemid parameter"}
	}
	if opts.FromDim != 0 {
		return nil, &NotImplementedError{What: "the from_dim parameter"}
	}
	c := &literalCtx{opts: opts, bag: opts.Bag}

	levels := [][]int{}
	var values []Value
	var inferred *schema.Schema
	leafDepth := -1

	var walk func(v any, depth int, path string) error
	walk = func(v any, depth int, path string) error {
		if seq, ok := asSequence(v); ok {
			for len(levels) <= depth {
				levels = append(levels, nil)
			}
			levels[depth] = append(levels[depth], len(seq))
			for i, child := range seq {
				if err := walk(child, depth+1, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
			return nil
		}
		if leafDepth == -1 {
			leafDepth = depth
		} else if leafDepth != depth {
			return &TypeMismatchError{Detail: fmt.Sprintf("element %s at nesting depth %d, expected depth %d", path, depth, leafDepth)}
		}
		val, valSchema, err := c.convertDeep(v, opts.Schema, path)
		if err != nil {
			return err
		}
		if opts.Schema == nil {
			merged, err := schema.CommonSchema(inferred, valSchema)
			if err != nil {
				return &TypeMismatchError{Detail: fmt.Sprintf("element %s has type %s, incompatible with %s", path, valSchema, inferred)}
			}
			inferred = merged
		}
		values = append(values, val)
		return nil
	}
	if err := walk(v, 0, "x"); err != nil {
		return nil, err
	}

	sh, err := shape.FromSizes(levels...)
	if err != nil {
		return nil, err
	}

	sch := opts.Schema
	if sch == nil {
		if inferred == nil {
			inferred = schema.Object()
		}
		sch = inferred
		// Widen mixed numerics to the common dtype so the slice is uniform.
		if sch.IsPrimitive() && sch.DType().IsNumeric() {
			for i, val := range values {
				values[i] = coerceNumeric(val, sch.DType())
			}
		}
	}
	return New(sh, sch, values, c.bag)
}

// FromVals is FromLiteral with default options.
func FromVals(v any) (*DataSlice, error) {
	return FromLiteral(v, nil)
}

// MustFromVals is FromVals that panics on error. Test helper.
func MustFromVals(v any) *DataSlice {
	ds, err := FromVals(v)
	if err != nil {
		panic(err)
	}
	return ds
}

// asSequence recognizes the literal forms that contribute a shape
// dimension.
func asSequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []int:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

// literalCtx threads the destination bag through conversion.
type literalCtx struct {
	opts *LiteralOptions
	bag  *DataBag
}

func (c *literalCtx) ensureBag() *DataBag {
	if c.bag == nil {
		c.bag = NewBag()
	}
	return c.bag
}

// convertDeep converts a leaf literal to one element value. Mappings become
// dicts or objects, sequences below a mapping become list containers.
// expected is the schema the element must satisfy, or nil to infer.
func (c *literalCtx) convertDeep(v any, expected *schema.Schema, path string) (Value, *schema.Schema, error) {
	switch t := v.(type) {
	case nil:
		return Absent(), nil, nil
	case map[string]any:
		pairs := make([]KV, 0, len(t))
		for _, k := range sortedKeys(t) {
			pairs = append(pairs, KV{Key: k, Value: t[k]})
		}
		return c.convertMapping(pairs, expected, path)
	case map[any]any:
		pairs := make([]KV, 0, len(t))
		for k, val := range t {
			pairs = append(pairs, KV{Key: k, Value: val})
		}
		return c.convertMapping(pairs, expected, path)
	case []KV:
		return c.convertMapping(t, expected, path)
	}
	if seq, ok := asSequence(v); ok {
		return c.convertList(seq, expected, path)
	}
	val, valSchema, err := convertScalar(v)
	if err != nil {
		return Absent(), nil, fmt.Errorf("element %s: %w", path, err)
	}
	if expected != nil {
		val, err = coerceTo(val, valSchema, expected, path)
		if err != nil {
			return Absent(), nil, err
		}
		valSchema = expected
	}
	return val, valSchema, nil
}

// convertScalar maps one Go scalar to a Value and its natural schema.
func convertScalar(v any) (Value, *schema.Schema, error) {
	switch t := v.(type) {
	case bool:
		return BoolVal(t), schema.Primitive(schema.Bool), nil
	case int:
		return Int32Val(int32(t)), schema.Primitive(schema.Int32), nil
	case int32:
		return Int32Val(t), schema.Primitive(schema.Int32), nil
	case int64:
		return Int64Val(t), schema.Primitive(schema.Int64), nil
	case float32:
		return Float32Val(t), schema.Primitive(schema.Float32), nil
	case float64:
		return Float64Val(t), schema.Primitive(schema.Float64), nil
	case string:
		return TextVal(t), schema.Primitive(schema.Text), nil
	case []byte:
		return BytesVal(t), schema.Primitive(schema.Bytes), nil
	case ItemID:
		return IDVal(t), schema.ItemID(), nil
	case *schema.Schema:
		return SchemaVal(t), schema.SchemaSchema(), nil
	case Value:
		if d := t.DType(); d != schema.InvalidDType {
			return t, schema.Primitive(d), nil
		}
		if t.IsAbsent() {
			return t, nil, nil
		}
		if _, ok := t.AsID(); ok {
			return t, schema.ItemID(), nil
		}
		if s, ok := t.AsSchema(); ok {
			_ = s
			return t, schema.SchemaSchema(), nil
		}
		return Absent(), nil, fmt.Errorf("unsupported value kind %d", t.Kind())
	default:
		return Absent(), nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

// coerceTo validates a scalar against an expected schema, casting numerics
// when both sides are numeric.
func coerceTo(val Value, valSchema, expected *schema.Schema, path string) (Value, error) {
	switch expected.Kind() {
	case schema.KindObject, schema.KindAny:
		return val, nil
	}
	if valSchema == nil {
		return val, nil // absent satisfies any slot
	}
	if expected.Equal(valSchema) {
		return val, nil
	}
	if expected.IsPrimitive() && valSchema.IsPrimitive() &&
		expected.DType().IsNumeric() && valSchema.DType().IsNumeric() {
		return coerceNumeric(val, expected.DType()), nil
	}
	return Absent(), &schema.IncompatibleError{AttrPath: path, Target: expected, Value: valSchema}
}

// coerceNumeric casts a numeric value to the target dtype.
func coerceNumeric(val Value, d schema.DType) Value {
	if val.IsAbsent() {
		return val
	}
	switch d {
	case schema.Int32:
		i, _ := val.AsInt64()
		return Int32Val(int32(i))
	case schema.Int64:
		if i, ok := val.AsInt64(); ok {
			return Int64Val(i)
		}
		f, _ := val.AsFloat64()
		return Int64Val(int64(f))
	case schema.Float32:
		f, _ := val.AsFloat64()
		return Float32Val(float32(f))
	case schema.Float64:
		f, _ := val.AsFloat64()
		return Float64Val(f)
	}
	return val
}

// convertList builds a list container from a sequence nested below a
// mapping (sequences at the top level become shape dimensions instead).
func (c *literalCtx) convertList(seq []any, expected *schema.Schema, path string) (Value, *schema.Schema, error) {
	var itemExpected *schema.Schema
	if expected != nil {
		if expected.Kind() != schema.KindList && expected.Kind() != schema.KindObject && expected.Kind() != schema.KindAny {
			return Absent(), nil, &schema.IncompatibleError{AttrPath: path, Target: expected, Value: schema.NewList(schema.Object())}
		}
		if expected.Kind() == schema.KindList {
			itemExpected = expected.ItemSchema()
		}
	}
	bag := c.ensureBag()
	id := AllocateID()
	bag.ListCreate(id)
	var itemSchema *schema.Schema
	for i, item := range seq {
		val, valSchema, err := c.convertDeep(item, itemExpected, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return Absent(), nil, err
		}
		if itemExpected == nil {
			merged, err := schema.CommonSchema(itemSchema, valSchema)
			if err != nil {
				return Absent(), nil, &TypeMismatchError{Detail: fmt.Sprintf("list %s mixes %s and %s", path, itemSchema, valSchema)}
			}
			itemSchema = merged
		}
		bag.ListAppend(id, val)
	}
	if itemExpected != nil {
		itemSchema = itemExpected
	} else if itemSchema == nil {
		itemSchema = schema.Object()
	}
	listSchema := schema.NewList(itemSchema)
	if expected != nil && expected.Kind() == schema.KindList {
		listSchema = expected
	}
	return IDVal(id), listSchema, nil
}

// convertMapping builds either a dict container or, under DictAsObj, an
// object/entity with one attribute per key.
func (c *literalCtx) convertMapping(pairs []KV, expected *schema.Schema, path string) (Value, *schema.Schema, error) {
	if c.opts.DictAsObj {
		return c.convertObject(pairs, expected, path)
	}
	bag := c.ensureBag()
	id := AllocateID()
	bag.DictCreate(id)
	var keySchema, valueSchema *schema.Schema
	var keyExpected, valueExpected *schema.Schema
	if expected != nil && expected.Kind() == schema.KindDict {
		keyExpected = expected.KeySchema()
		valueExpected = expected.ValueSchema()
	}
	for _, kv := range pairs {
		key, ks, err := c.convertDictKey(kv.Key, path)
		if err != nil {
			return Absent(), nil, err
		}
		if keyExpected == nil {
			merged, err := schema.CommonSchema(keySchema, ks)
			if err != nil {
				return Absent(), nil, &TypeMismatchError{Detail: fmt.Sprintf("dict %s mixes key types %s and %s", path, keySchema, ks)}
			}
			keySchema = merged
		}
		val, vs, err := c.convertDeep(kv.Value, valueExpected, fmt.Sprintf("%s[%s]", path, key))
		if err != nil {
			return Absent(), nil, err
		}
		if valueExpected == nil {
			merged, err := schema.CommonSchema(valueSchema, vs)
			if err != nil {
				return Absent(), nil, &TypeMismatchError{Detail: fmt.Sprintf("dict %s mixes value types %s and %s", path, valueSchema, vs)}
			}
			valueSchema = merged
		}
		if err := bag.DictSet(id, key, val); err != nil {
			return Absent(), nil, err
		}
	}
	if keyExpected != nil {
		keySchema = keyExpected
	} else if keySchema == nil {
		keySchema = schema.Object()
	}
	if valueExpected != nil {
		valueSchema = valueExpected
	} else if valueSchema == nil {
		valueSchema = schema.Object()
	}
	dictSchema := schema.NewDict(keySchema, valueSchema)
	if expected != nil && expected.Kind() == schema.KindDict {
		dictSchema = expected
	}
	return IDVal(id), dictSchema, nil
}

// convertDictKey converts a dict-container key. Keys must be hashable
// single values.
func (c *literalCtx) convertDictKey(k any, path string) (Value, *schema.Schema, error) {
	if ds, ok := k.(*DataSlice); ok {
		if !ds.IsItem() {
			return Absent(), nil, &DictKeyError{Detail: "unhashable: a multi-element DataSlice cannot be used as a dict key"}
		}
		k = ds.Item()
	}
	key, ks, err := convertScalar(k)
	if err != nil {
		return Absent(), nil, fmt.Errorf("dict key in %s: %w", path, err)
	}
	if key.IsAbsent() {
		return Absent(), nil, &DictKeyError{Detail: "dict keys cannot be absent"}
	}
	return key, ks, nil
}

// convertObject implements dict_as_obj: one attribute per key. Keys must be
// valid unicode text; with an explicit entity schema each attribute is
// validated against its declared schema, otherwise the object gets a
// structural per-item schema and the element reads as OBJECT.
func (c *literalCtx) convertObject(pairs []KV, expected *schema.Schema, path string) (Value, *schema.Schema, error) {
	if expected != nil && expected.Kind() != schema.KindEntity &&
		expected.Kind() != schema.KindObject && expected.Kind() != schema.KindAny {
		return Absent(), nil, &schema.IncompatibleError{AttrPath: path, Target: expected, Value: schema.Object()}
	}
	var entity *schema.Schema
	if expected != nil && expected.Kind() == schema.KindEntity {
		entity = expected
	}
	bag := c.ensureBag()
	id := AllocateID()
	attrs := make([]schema.Attr, 0, len(pairs))
	for _, kv := range pairs {
		name, err := objectAttrName(kv.Key)
		if err != nil {
			return Absent(), nil, err
		}
		var attrExpected *schema.Schema
		if entity != nil {
			s, ok := entity.Attr(name)
			if !ok {
				return Absent(), nil, &AttributeNotFoundError{Attr: name, Schema: entity.String()}
			}
			attrExpected = s
		}
		val, valSchema, err := c.convertDeep(kv.Value, attrExpected, name)
		if err != nil {
			return Absent(), nil, err
		}
		if entity == nil {
			if valSchema == nil {
				valSchema = schema.Object()
			}
			attrs = append(attrs, schema.Attr{Name: name, Schema: valSchema})
		}
		bag.SetAttr(id, name, val)
	}
	if entity != nil {
		return IDVal(id), entity, nil
	}
	itemSchema := schema.UUEntity(attrs...)
	bag.SetAttr(id, SchemaAttr, SchemaVal(itemSchema))
	return IDVal(id), schema.Object(), nil
}

// objectAttrName validates a dict_as_obj key: it must be a valid unicode
// text value.
func objectAttrName(k any) (string, error) {
	if ds, ok := k.(*DataSlice); ok {
		if !ds.IsItem() {
			return "", &DictKeyError{Detail: "unhashable: a multi-element DataSlice cannot be used as a dict key"}
		}
		if ds.Schema().Kind() != schema.KindPrimitive || ds.Schema().DType() != schema.Text {
			return "", &DictKeyError{Detail: fmt.Sprintf("cannot use a non-TEXT DataItem (schema %s) as a key with dict_as_obj", ds.Schema())}
		}
		s, _ := ds.Item().AsText()
		return s, nil
	}
	switch t := k.(type) {
	case string:
		return t, nil
	case []byte:
		return "", &DictKeyError{Detail: "dict_as_obj requires keys to be valid unicode objects"}
	case Value:
		if s, ok := t.AsText(); ok {
			return s, nil
		}
		return "", &DictKeyError{Detail: fmt.Sprintf("cannot use a non-TEXT DataItem (%s) as a key with dict_as_obj", t)}
	default:
		return "", &TypeMismatchError{Detail: fmt.Sprintf("dict_as_obj requires text keys, got %T", k)}
	}
}

// sortedKeys orders map[string]any keys: insertion order is not observable
// for Go maps, so deterministic key order comes from sorting.
func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ----------------------------------------------------------------------------
// Nested expansion
// ----------------------------------------------------------------------------

// ToNested converts the slice back to nested literal form: shape levels
// become []any nesting, containers expand recursively through the bag.
// For primitive-only slices this is the exact inverse of FromLiteral.
func (ds *DataSlice) ToNested() any {
	leaves := make([]any, len(ds.values))
	seen := make(map[ItemID]bool)
	for i, v := range ds.values {
		leaves[i] = expandValue(v, ds.bag, seen)
	}
	return nestAll(leaves, ds.sh)
}

// nestAll folds the flat leaf array into the shape's nesting, bottom-up.
func nestAll(leaves []any, sh shape.Shape) any {
	if sh.IsScalar() {
		return leaves[0]
	}
	// Start with the leaf row and fold upward level by level.
	current := leaves
	for level := sh.Rank() - 1; level >= 1; level-- {
		sizes := sh.Sizes(level)
		folded := make([]any, len(sizes))
		idx := 0
		for i, n := range sizes {
			row := make([]any, n)
			copy(row, current[idx:idx+n])
			folded[i] = row
			idx += n
		}
		current = folded
	}
	out := make([]any, len(current))
	copy(out, current)
	return out
}

// expandValue renders one element as a literal, expanding containers
// through the bag. Cycles surface as the bare ItemID.
func expandValue(v Value, bag *DataBag, seen map[ItemID]bool) any {
	switch v.Kind() {
	case KindAbsent:
		return nil
	case KindInt32:
		i, _ := v.AsInt64()
		return int(i)
	case KindInt64:
		i, _ := v.AsInt64()
		return i
	case KindFloat32:
		f, _ := v.AsFloat64()
		return float32(f)
	case KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case KindText:
		s, _ := v.AsText()
		return s
	case KindBytes:
		b, _ := v.AsBytes()
		return b
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindMask:
		return Present()
	case KindSchema:
		s, _ := v.AsSchema()
		return s
	case KindID:
		id, _ := v.AsID()
		if bag == nil || seen[id] {
			return id
		}
		seen[id] = true
		defer delete(seen, id)
		if items, ok := bag.lists[id]; ok {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = expandValue(item, bag, seen)
			}
			return out
		}
		if d, ok := bag.dicts[id]; ok {
			out := make([]KV, len(d.keys))
			for i, k := range d.keys {
				out[i] = KV{
					Key:   expandValue(k, bag, seen),
					Value: expandValue(bag.DictGet(id, k), bag, seen),
				}
			}
			return out
		}
		if m, ok := bag.attrs[id]; ok {
			out := make(map[string]any, len(m))
			for attr, val := range m {
				if attr == SchemaAttr {
					continue
				}
				out[attr] = expandValue(val, bag, seen)
			}
			return out
		}
		return id
	default:
		return nil
	}
}
