package slice

import (
	"fmt"

	"github.com/slicelab/jagged/schema"
)

// listItemSchema resolves the child schema for list access: the declared item
// schema for LIST slices, ANY for ANY/ITEMID slices.
func (ds *DataSlice) listItemSchema() (*schema.Schema, error) {
	switch ds.sch.Kind() {
	case schema.KindList:
		return ds.sch.ItemSchema(), nil
	case schema.KindAny, schema.KindItemID, schema.KindObject:
		return schema.Any(), nil
	default:
		return nil, fmt.Errorf("the slice with schema %s does not contain lists", ds.sch)
	}
}

// Explode expands each list element into its items, producing a slice one
// dimension deeper (the x[:] operation). Absent elements explode into empty
// rows.
func (ds *DataSlice) Explode() (*DataSlice, error) {
	itemSchema, err := ds.listItemSchema()
	if err != nil {
		return nil, err
	}
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot explode lists without a DataBag")
	}
	sizes := make([]int, len(ds.values))
	total := 0
	for i, v := range ds.values {
		if id, ok := v.AsID(); ok {
			sizes[i] = ds.bag.ListSize(id)
			total += sizes[i]
		}
	}
	out := make([]Value, 0, total)
	for _, v := range ds.values {
		if id, ok := v.AsID(); ok {
			out = append(out, ds.bag.ListItems(id)...)
		}
	}
	sh, err := ds.sh.AddDim(sizes)
	if err != nil {
		return nil, err
	}
	return &DataSlice{sh: sh, sch: itemSchema, values: out, bag: ds.bag}, nil
}

// ListSize returns the per-element list size as an INT64 slice. The size of
// an absent-initialized list is 0, not absent.
func (ds *DataSlice) ListSize() (*DataSlice, error) {
	if _, err := ds.listItemSchema(); err != nil {
		return nil, err
	}
	out := make([]Value, len(ds.values))
	for i, v := range ds.values {
		n := 0
		if id, ok := v.AsID(); ok && ds.bag != nil {
			n = ds.bag.ListSize(id)
		}
		out[i] = Int64Val(int64(n))
	}
	return &DataSlice{sh: ds.sh, sch: schema.Primitive(schema.Int64), values: out, bag: nil}, nil
}

// ListGet returns the item at the given index of each list. Negative
// indices count from the end; out-of-range reads are absent.
func (ds *DataSlice) ListGet(idx int) (*DataSlice, error) {
	itemSchema, err := ds.listItemSchema()
	if err != nil {
		return nil, err
	}
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot read lists without a DataBag")
	}
	out := make([]Value, len(ds.values))
	for i, v := range ds.values {
		if id, ok := v.AsID(); ok {
			out[i] = ds.bag.ListAt(id, idx)
		}
	}
	return &DataSlice{sh: ds.sh, sch: itemSchema, values: out, bag: ds.bag}, nil
}

// Append appends one value per list element, broadcasting the value slice
// to the list slice's shape. Validation precedes the first write.
func (ds *DataSlice) Append(val *DataSlice) error {
	itemSchema, err := ds.listItemSchema()
	if err != nil {
		return err
	}
	if ds.bag == nil {
		return fmt.Errorf("cannot append to lists without a DataBag")
	}
	val, err = val.BroadcastTo(ds.sh)
	if err != nil {
		return err
	}
	if err := schema.ValidateAssignment(itemSchema, val.sch, "__items__", schema.AssignOptions{}); err != nil {
		return err
	}
	ds.adoptFrom(val)
	for i, v := range ds.values {
		if id, ok := v.AsID(); ok {
			ds.bag.ListAppend(id, val.values[i])
		}
	}
	return nil
}

// dictSchemas resolves key/value schemas for dict access.
func (ds *DataSlice) dictSchemas() (key, value *schema.Schema, err error) {
	switch ds.sch.Kind() {
	case schema.KindDict:
		return ds.sch.KeySchema(), ds.sch.ValueSchema(), nil
	case schema.KindAny, schema.KindItemID, schema.KindObject:
		return schema.Any(), schema.Any(), nil
	default:
		return nil, nil, fmt.Errorf("the slice with schema %s does not contain dicts", ds.sch)
	}
}

// GetKeys returns each dict's keys in insertion order, one dimension
// deeper than the dict slice.
func (ds *DataSlice) GetKeys() (*DataSlice, error) {
	keySchema, _, err := ds.dictSchemas()
	if err != nil {
		return nil, err
	}
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot read dict keys without a DataBag")
	}
	sizes := make([]int, len(ds.values))
	out := make([]Value, 0)
	for i, v := range ds.values {
		if id, ok := v.AsID(); ok {
			keys := ds.bag.DictKeys(id)
			sizes[i] = len(keys)
			out = append(out, keys...)
		}
	}
	sh, err := ds.sh.AddDim(sizes)
	if err != nil {
		return nil, err
	}
	return &DataSlice{sh: sh, sch: keySchema, values: out, bag: ds.bag}, nil
}

// GetItem looks up one key per dict element, broadcasting the key slice to
// the dict slice's shape. Missing keys read as absent.
func (ds *DataSlice) GetItem(keys *DataSlice) (*DataSlice, error) {
	_, valueSchema, err := ds.dictSchemas()
	if err != nil {
		return nil, err
	}
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot read dicts without a DataBag")
	}
	keys, err = keys.BroadcastTo(ds.sh)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(ds.values))
	for i, v := range ds.values {
		if id, ok := v.AsID(); ok {
			out[i] = ds.bag.DictGet(id, keys.values[i])
		}
	}
	return &DataSlice{sh: ds.sh, sch: valueSchema, values: out, bag: ds.bag}, nil
}

// SetItem stores one key/value pair per dict element. Keys and values are
// broadcast to the dict slice's shape; validation precedes the first write.
func (ds *DataSlice) SetItem(keys, values *DataSlice) error {
	keySchema, valueSchema, err := ds.dictSchemas()
	if err != nil {
		return err
	}
	if ds.bag == nil {
		return fmt.Errorf("cannot write dicts without a DataBag")
	}
	keys, err = keys.BroadcastTo(ds.sh)
	if err != nil {
		return err
	}
	values, err = values.BroadcastTo(ds.sh)
	if err != nil {
		return err
	}
	if err := schema.ValidateAssignment(keySchema, keys.sch, "__keys__", schema.AssignOptions{}); err != nil {
		return err
	}
	if err := schema.ValidateAssignment(valueSchema, values.sch, "__values__", schema.AssignOptions{}); err != nil {
		return err
	}
	for _, k := range keys.values {
		if _, ok := k.token(); !ok && !k.IsAbsent() {
			return &DictKeyError{Detail: fmt.Sprintf("unsupported dict key %s", k)}
		}
	}
	ds.adoptFrom(keys)
	ds.adoptFrom(values)
	for i, v := range ds.values {
		id, ok := v.AsID()
		if !ok || keys.values[i].IsAbsent() {
			continue
		}
		if err := ds.bag.DictSet(id, keys.values[i], values.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// SelectKeys returns, per dict element, its keys when the mask entry is
// present and an empty row otherwise. The mask must be MASK-typed and
// broadcastable to the dict slice's shape (one level shallower than the
// returned key lists); key order is preserved.
func (ds *DataSlice) SelectKeys(mask *DataSlice) (*DataSlice, error) {
	keySchema, _, err := ds.dictSchemas()
	if err != nil {
		return nil, err
	}
	if ds.bag == nil {
		return nil, fmt.Errorf("cannot read dict keys without a DataBag")
	}
	if mask.sch.Kind() == schema.KindPrimitive && mask.sch.DType() != schema.Mask {
		return nil, &TypeMismatchError{Detail: fmt.Sprintf("expected a MASK filter, got %s", mask.sch)}
	}
	mask, err = mask.BroadcastTo(ds.sh)
	if err != nil {
		return nil, err
	}
	sizes := make([]int, len(ds.values))
	out := make([]Value, 0)
	for i, v := range ds.values {
		if mask.values[i].IsAbsent() {
			continue
		}
		if id, ok := v.AsID(); ok {
			keys := ds.bag.DictKeys(id)
			sizes[i] = len(keys)
			out = append(out, keys...)
		}
	}
	sh, err := ds.sh.AddDim(sizes)
	if err != nil {
		return nil, err
	}
	return &DataSlice{sh: sh, sch: keySchema, values: out, bag: ds.bag}, nil
}
