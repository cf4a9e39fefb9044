package slice

import (
	"fmt"
	"sort"

	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/shape"
)

// NewEntities allocates one entity per element of sh and writes the given
// attribute slices, broadcasting each to sh. With a nil schema a structural
// (uu) entity schema is derived from the attribute slices; an explicit
// schema validates every attribute against its declaration.
func NewEntities(sh shape.Shape, sch *schema.Schema, bag *DataBag, attrs map[string]*DataSlice) (*DataSlice, error) {
	if bag == nil {
		bag = NewBag()
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	if sch == nil {
		declared := make([]schema.Attr, 0, len(names))
		for _, name := range names {
			declared = append(declared, schema.Attr{Name: name, Schema: attrs[name].Schema()})
		}
		sch = schema.UUEntity(declared...)
	}
	if sch.Kind() != schema.KindEntity {
		return nil, fmt.Errorf("entity creation requires an entity schema, got %s", sch)
	}

	ids := AllocateIDs(sh.NumElements())
	values := make([]Value, len(ids))
	for i, id := range ids {
		values[i] = IDVal(id)
	}
	ds := &DataSlice{sh: sh, sch: sch, values: values, bag: bag}
	for _, name := range names {
		if err := ds.SetAttr(name, attrs[name]); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// Implode folds the last dimension of items into list containers, the
// inverse of Explode: the result is one level shallower, each element a
// fresh list holding its group's items.
func Implode(items *DataSlice, bag *DataBag) (*DataSlice, error) {
	if items.Rank() == 0 {
		return nil, fmt.Errorf("cannot implode a rank-0 slice")
	}
	if bag == nil {
		bag = NewBag()
	}
	if items.bag != nil && items.bag != bag {
		bag.Adopt(items.bag, items.values)
	}
	outShape := items.sh.DropLast(1)
	groups := items.sh.GroupSizes(items.Rank() - 1)
	ids := AllocateIDs(len(groups))
	values := make([]Value, len(ids))
	start := 0
	for g, n := range groups {
		bag.ListCreate(ids[g])
		for _, v := range items.values[start : start+n] {
			bag.ListAppend(ids[g], v)
		}
		values[g] = IDVal(ids[g])
		start += n
	}
	return &DataSlice{sh: outShape, sch: schema.NewList(items.sch), values: values, bag: bag}, nil
}

// NewDicts builds one dict per group of the keys slice's last dimension,
// pairing keys with values broadcast to the keys shape.
func NewDicts(keys, values *DataSlice, bag *DataBag) (*DataSlice, error) {
	if keys.Rank() == 0 {
		return nil, fmt.Errorf("cannot build dicts from a rank-0 key slice")
	}
	if bag == nil {
		bag = NewBag()
	}
	values, err := values.BroadcastTo(keys.sh)
	if err != nil {
		return nil, err
	}
	if keys.bag != nil && keys.bag != bag {
		bag.Adopt(keys.bag, keys.values)
	}
	if values.bag != nil && values.bag != bag {
		bag.Adopt(values.bag, values.values)
	}
	outShape := keys.sh.DropLast(1)
	groups := keys.sh.GroupSizes(keys.Rank() - 1)
	ids := AllocateIDs(len(groups))
	out := make([]Value, len(ids))
	start := 0
	for g, n := range groups {
		bag.DictCreate(ids[g])
		for i := start; i < start+n; i++ {
			if keys.values[i].IsAbsent() {
				continue
			}
			if err := bag.DictSet(ids[g], keys.values[i], values.values[i]); err != nil {
				return nil, err
			}
		}
		out[g] = IDVal(ids[g])
		start += n
	}
	return &DataSlice{sh: outShape, sch: schema.NewDict(keys.sch, values.sch), values: out, bag: bag}, nil
}
