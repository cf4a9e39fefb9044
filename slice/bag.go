package slice

import (
	"fmt"

	"github.com/slicelab/jagged/schema"
)

// SchemaAttr is the reserved attribute carrying the per-item schema of
// OBJECT values.
const SchemaAttr = "__schema__"

// DataBag is the mutable store backing all structured values: a map of
// (holder, attribute) pairs for entities and objects, ordered item lists
// for list containers, and insertion-ordered key/value tables for dicts.
// Bags are freely shared by reference between slices; mutation assumes a
// single writer at a time, readers need no synchronization against other
// readers.
type DataBag struct {
	attrs map[ItemID]map[string]Value
	lists map[ItemID][]Value
	dicts map[ItemID]*dictContent
}

// dictContent keeps keys in insertion order next to a token index for
// constant-time lookup.
type dictContent struct {
	keys   []Value
	values []Value
	index  map[string]int
}

// NewBag creates an empty bag.
func NewBag() *DataBag {
	return &DataBag{
		attrs: make(map[ItemID]map[string]Value),
		lists: make(map[ItemID][]Value),
		dicts: make(map[ItemID]*dictContent),
	}
}

// SetAttr writes one (holder, attribute) value. Last write wins.
func (b *DataBag) SetAttr(holder ItemID, attr string, v Value) {
	m, ok := b.attrs[holder]
	if !ok {
		m = make(map[string]Value, 4)
		b.attrs[holder] = m
	}
	m[attr] = v
}

// GetAttr reads one (holder, attribute) value. A missing pair reads as
// absent, not an error.
func (b *DataBag) GetAttr(holder ItemID, attr string) (Value, bool) {
	if m, ok := b.attrs[holder]; ok {
		if v, ok := m[attr]; ok {
			return v, true
		}
	}
	return Absent(), false
}

// ItemSchema returns the per-item schema stored under the reserved
// __schema__ attribute, and whether one is recorded.
func (b *DataBag) ItemSchema(holder ItemID) (*schema.Schema, bool) {
	if v, ok := b.GetAttr(holder, SchemaAttr); ok {
		if s, ok := v.AsSchema(); ok {
			return s, true
		}
	}
	return nil, false
}

// ListCreate records an empty list container under id, so that expansion
// can tell an empty list apart from a missing one. Existing contents are
// kept.
func (b *DataBag) ListCreate(id ItemID) {
	if _, ok := b.lists[id]; !ok {
		b.lists[id] = []Value{}
	}
}

// ListAppend appends one value to the list container, creating it if
// needed.
func (b *DataBag) ListAppend(id ItemID, v Value) {
	b.lists[id] = append(b.lists[id], v)
}

// ListSize returns the number of items in the list. An absent-initialized
// list has size 0, not absent.
func (b *DataBag) ListSize(id ItemID) int {
	return len(b.lists[id])
}

// ListAt returns the item at index. Negative indices count from the end.
// Out-of-range reads return absent.
func (b *DataBag) ListAt(id ItemID, idx int) Value {
	items := b.lists[id]
	if idx < 0 {
		idx += len(items)
	}
	if idx < 0 || idx >= len(items) {
		return Absent()
	}
	return items[idx]
}

// ListItems returns the full contents of the list in order. The returned
// slice must not be mutated.
func (b *DataBag) ListItems(id ItemID) []Value {
	return b.lists[id]
}

// DictCreate records an empty dict container under id. Existing contents
// are kept.
func (b *DataBag) DictCreate(id ItemID) {
	if b.dicts[id] == nil {
		b.dicts[id] = &dictContent{index: make(map[string]int, 4)}
	}
}

// DictSet stores key→value in the dict container, creating it if needed.
// The key must be hashable (not absent).
func (b *DataBag) DictSet(id ItemID, key, value Value) error {
	tok, ok := key.token()
	if !ok {
		return &DictKeyError{Detail: fmt.Sprintf("unsupported dict key %s", key)}
	}
	d := b.dicts[id]
	if d == nil {
		d = &dictContent{index: make(map[string]int, 4)}
		b.dicts[id] = d
	}
	if i, ok := d.index[tok]; ok {
		d.values[i] = value
		return nil
	}
	d.index[tok] = len(d.keys)
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
	return nil
}

// DictGet looks up one key. Missing keys and missing dicts read as absent.
func (b *DataBag) DictGet(id ItemID, key Value) Value {
	d := b.dicts[id]
	if d == nil {
		return Absent()
	}
	tok, ok := key.token()
	if !ok {
		return Absent()
	}
	if i, ok := d.index[tok]; ok {
		return d.values[i]
	}
	return Absent()
}

// DictKeys returns the keys in insertion order. The returned slice must not
// be mutated.
func (b *DataBag) DictKeys(id ItemID) []Value {
	d := b.dicts[id]
	if d == nil {
		return nil
	}
	return d.keys
}

// DictSize returns the number of entries. An absent dict has size 0.
func (b *DataBag) DictSize(id ItemID) int {
	d := b.dicts[id]
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Merge unions other's triples into b and returns b. On conflicting
// (holder, attribute) pairs the receiver's value wins unless overwrite is
// requested. List and dict containers present on both sides follow the same
// rule wholesale. The source bag is never mutated.
func (b *DataBag) Merge(other *DataBag, overwrite bool) *DataBag {
	if other == nil || other == b {
		return b
	}
	for holder, m := range other.attrs {
		dst, ok := b.attrs[holder]
		if !ok {
			dst = make(map[string]Value, len(m))
			b.attrs[holder] = dst
		}
		for attr, v := range m {
			if _, exists := dst[attr]; exists && !overwrite {
				continue
			}
			dst[attr] = v
		}
	}
	for id, items := range other.lists {
		if _, exists := b.lists[id]; exists && !overwrite {
			continue
		}
		b.lists[id] = append([]Value(nil), items...)
	}
	for id, d := range other.dicts {
		if _, exists := b.dicts[id]; exists && !overwrite {
			continue
		}
		cp := &dictContent{
			keys:   append([]Value(nil), d.keys...),
			values: append([]Value(nil), d.values...),
			index:  make(map[string]int, len(d.index)),
		}
		for k, v := range d.index {
			cp.index[k] = v
		}
		b.dicts[id] = cp
	}
	return b
}

// Adopt copies the transitive closure of structure reachable from roots out
// of src into b. Existing destination triples win over adopted ones. The
// source bag is never mutated, so concurrent readers of src are unaffected.
func (b *DataBag) Adopt(src *DataBag, roots []Value) {
	if src == nil || src == b {
		return
	}
	seen := make(map[ItemID]bool)
	var work []ItemID
	enqueue := func(v Value) {
		if id, ok := v.AsID(); ok && !seen[id] {
			seen[id] = true
			work = append(work, id)
		}
	}
	for _, v := range roots {
		enqueue(v)
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if m, ok := src.attrs[id]; ok {
			dst, ok := b.attrs[id]
			if !ok {
				dst = make(map[string]Value, len(m))
				b.attrs[id] = dst
			}
			for attr, v := range m {
				if _, exists := dst[attr]; !exists {
					dst[attr] = v
				}
				enqueue(v)
			}
		}
		if items, ok := src.lists[id]; ok {
			if _, exists := b.lists[id]; !exists {
				b.lists[id] = append([]Value(nil), items...)
			}
			for _, v := range items {
				enqueue(v)
			}
		}
		if d, ok := src.dicts[id]; ok {
			if _, exists := b.dicts[id]; !exists {
				cp := &dictContent{
					keys:   append([]Value(nil), d.keys...),
					values: append([]Value(nil), d.values...),
					index:  make(map[string]int, len(d.index)),
				}
				for k, v := range d.index {
					cp.index[k] = v
				}
				b.dicts[id] = cp
			}
			for _, v := range d.keys {
				enqueue(v)
			}
			for _, v := range d.values {
				enqueue(v)
			}
		}
	}
}
