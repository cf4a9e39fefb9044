package eval

import (
	"fmt"
	"time"

	timefmt "github.com/itchyny/timefmt-go"

	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/slice"
)

// The closed operator table. Every canonical "ns.op" name is also reachable
// as the bare "op" alias; both spellings share memoization keys.
func init() {
	register(
		&Operator{Name: "math.add", Arity: 2, fn: addKernel},
		&Operator{Name: "math.subtract", Arity: 2, fn: numericKernel("subtract",
			func(a, b int64) int64 { return a - b },
			func(a, b float64) float64 { return a - b })},
		&Operator{Name: "math.multiply", Arity: 2, fn: numericKernel("multiply",
			func(a, b int64) int64 { return a * b },
			func(a, b float64) float64 { return a * b })},

		&Operator{Name: "math.agg_min", Arity: 1, KwArgs: []string{"ndim"},
			fn: aggKernel("agg_min", reduceMin)},
		&Operator{Name: "math.agg_max", Arity: 1, KwArgs: []string{"ndim"},
			fn: aggKernel("agg_max", reduceMax)},
		&Operator{Name: "math.agg_sum", Arity: 1, KwArgs: []string{"ndim"},
			fn: aggKernel("agg_sum", reduceSum)},
		&Operator{Name: "core.agg_count", Arity: 1, KwArgs: []string{"ndim"}, fn: aggCountKernel},

		&Operator{Name: "core.get_attr", Arity: 2, fn: getAttrKernel},
		&Operator{Name: "core.get_item", Arity: 2, fn: getItemKernel},
		&Operator{Name: "core.get_keys", Arity: 1, fn: getKeysKernel},
		&Operator{Name: "core.select_keys", Arity: 2, fn: selectKeysKernel},
		&Operator{Name: "core.list_size", Arity: 1, fn: listSizeKernel},
		&Operator{Name: "core.explode", Arity: 1, fn: explodeKernel},
		&Operator{Name: "core.is_primitive", Arity: 1, fn: isPrimitiveKernel},

		&Operator{Name: "allocation.new_itemid_shaped_as", Arity: 1, Memoized: true, fn: allocKernel},
		&Operator{Name: "allocation.new_listid_shaped_as", Arity: 1, Memoized: true, fn: allocKernel},
		&Operator{Name: "allocation.new_dictid_shaped_as", Arity: 1, Memoized: true, fn: allocKernel},

		&Operator{Name: "strings.format_time", Arity: 2, fn: formatTimeKernel},
	)
}

// ----------------------------------------------------------------------------
// Elementwise arithmetic
// ----------------------------------------------------------------------------

func addKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	args, err := alignArgs(c.Args)
	if err != nil {
		return nil, err
	}
	x, y := args[0], args[1]
	dx, okx, err := primitivePayload(x)
	if err != nil {
		return nil, err
	}
	dy, oky, err := primitivePayload(y)
	if err != nil {
		return nil, err
	}
	// Concatenation for uniform text/byte operands.
	if okx && oky && dx == dy && (dx == schema.Text || dx == schema.Bytes) {
		out := make([]slice.Value, len(x.Values()))
		for i := range out {
			a, b := x.Get(i), y.Get(i)
			if a.IsAbsent() || b.IsAbsent() {
				continue
			}
			if dx == schema.Text {
				as, _ := a.AsText()
				bs, _ := b.AsText()
				out[i] = slice.TextVal(as + bs)
			} else {
				ab, _ := a.AsBytes()
				bb, _ := b.AsBytes()
				out[i] = slice.BytesVal(append(append([]byte(nil), ab...), bb...))
			}
		}
		return slice.New(x.Shape(), schema.Primitive(dx), out, nil)
	}
	return numericApply("add", x, y, dx, okx, dy, oky,
		func(a, b int64) int64 { return a + b },
		func(a, b float64) float64 { return a + b })
}

func numericKernel(name string, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) kernel {
	return func(e *env, c *Invocation) (*slice.DataSlice, error) {
		args, err := alignArgs(c.Args)
		if err != nil {
			return nil, err
		}
		x, y := args[0], args[1]
		dx, okx, err := primitivePayload(x)
		if err != nil {
			return nil, err
		}
		dy, oky, err := primitivePayload(y)
		if err != nil {
			return nil, err
		}
		return numericApply(name, x, y, dx, okx, dy, oky, intOp, floatOp)
	}
}

// numericApply runs one elementwise binary numeric operation over aligned
// slices, propagating absent operands and widening to the common dtype.
func numericApply(name string, x, y *slice.DataSlice, dx schema.DType, okx bool, dy schema.DType, oky bool,
	intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (*slice.DataSlice, error) {

	// With no observable payload on either side every output is absent.
	if !okx && !oky {
		out := make([]slice.Value, len(x.Values()))
		return slice.New(x.Shape(), schema.Object(), out, nil)
	}
	if !okx {
		dx = dy
	}
	if !oky {
		dy = dx
	}
	// A fully absent operand against text/bytes propagates absence; the
	// elementwise loop below never runs a present pair, so the output is
	// all-absent with the observable dtype.
	if (!okx || !oky) && dx == dy && (dx == schema.Text || dx == schema.Bytes) {
		out := make([]slice.Value, len(x.Values()))
		return slice.New(x.Shape(), schema.Primitive(dx), out, nil)
	}
	common, err := schema.CommonSchema(schema.Primitive(dx), schema.Primitive(dy))
	if err != nil || !common.DType().IsNumeric() {
		return nil, &slice.TypeMismatchError{Detail: fmt.Sprintf("%s does not accept %s and %s", name, schema.Primitive(dx), schema.Primitive(dy))}
	}
	d := common.DType()
	out := make([]slice.Value, len(x.Values()))
	for i := range out {
		a, b := x.Get(i), y.Get(i)
		if a.IsAbsent() || b.IsAbsent() {
			continue
		}
		switch d {
		case schema.Int32, schema.Int64:
			ai, _ := a.AsInt64()
			bi, _ := b.AsInt64()
			out[i] = numericValue(d, intOp(ai, bi), 0)
		default:
			af, _ := a.AsFloat64()
			bf, _ := b.AsFloat64()
			out[i] = numericValue(d, 0, floatOp(af, bf))
		}
	}
	return slice.New(x.Shape(), common, out, nil)
}

// numericValue packs a computed number into a value of the given dtype.
func numericValue(d schema.DType, i int64, f float64) slice.Value {
	switch d {
	case schema.Int32:
		return slice.Int32Val(int32(i))
	case schema.Int64:
		return slice.Int64Val(i)
	case schema.Float32:
		return slice.Float32Val(float32(f))
	default:
		return slice.Float64Val(f)
	}
}

// ----------------------------------------------------------------------------
// Aggregation
// ----------------------------------------------------------------------------

// reducer folds one group of present values into a single value of dtype d.
type reducer func(group []slice.Value, d schema.DType) slice.Value

func aggKernel(name string, reduce reducer) kernel {
	return func(e *env, c *Invocation) (*slice.DataSlice, error) {
		x := c.Args[0]
		ndim, err := resolveNdim(c, x)
		if err != nil {
			return nil, err
		}
		if ndim == 0 {
			return x, nil
		}
		d, known, err := primitivePayload(x)
		if err != nil {
			return nil, err
		}
		if known && !d.IsNumeric() {
			return nil, &slice.TypeMismatchError{Detail: fmt.Sprintf("%s does not accept %s", name, schema.Primitive(d))}
		}
		outShape := x.Shape().DropLast(ndim)
		groups := x.Shape().GroupSizes(x.Rank() - ndim)
		vals := x.Values()
		out := make([]slice.Value, len(groups))
		start := 0
		for g, n := range groups {
			out[g] = reduce(vals[start:start+n], d)
			start += n
		}
		outSchema := schema.Object()
		if known {
			outSchema = schema.Primitive(d)
		}
		return slice.New(outShape, outSchema, out, nil)
	}
}

func reduceMin(group []slice.Value, d schema.DType) slice.Value {
	return reduceCompare(group, d, func(cand, best int64) bool { return cand < best },
		func(cand, best float64) bool { return cand < best })
}

func reduceMax(group []slice.Value, d schema.DType) slice.Value {
	return reduceCompare(group, d, func(cand, best int64) bool { return cand > best },
		func(cand, best float64) bool { return cand > best })
}

func reduceCompare(group []slice.Value, d schema.DType,
	intBetter func(cand, best int64) bool, floatBetter func(cand, best float64) bool) slice.Value {

	found := false
	var bestI int64
	var bestF float64
	for _, v := range group {
		if v.IsAbsent() {
			continue
		}
		switch d {
		case schema.Int32, schema.Int64:
			i, _ := v.AsInt64()
			if !found || intBetter(i, bestI) {
				bestI = i
			}
		default:
			f, _ := v.AsFloat64()
			if !found || floatBetter(f, bestF) {
				bestF = f
			}
		}
		found = true
	}
	if !found {
		return slice.Absent()
	}
	return numericValue(d, bestI, bestF)
}

func reduceSum(group []slice.Value, d schema.DType) slice.Value {
	found := false
	var sumI int64
	var sumF float64
	for _, v := range group {
		if v.IsAbsent() {
			continue
		}
		found = true
		switch d {
		case schema.Int32, schema.Int64:
			i, _ := v.AsInt64()
			sumI += i
		default:
			f, _ := v.AsFloat64()
			sumF += f
		}
	}
	if !found {
		return slice.Absent()
	}
	return numericValue(d, sumI, sumF)
}

// aggCountKernel counts present elements per group. Unlike the numeric
// aggregations it accepts any schema, and an empty group counts as 0 rather
// than absent.
func aggCountKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	x := c.Args[0]
	ndim, err := resolveNdim(c, x)
	if err != nil {
		return nil, err
	}
	if ndim == 0 {
		return x, nil
	}
	outShape := x.Shape().DropLast(ndim)
	groups := x.Shape().GroupSizes(x.Rank() - ndim)
	vals := x.Values()
	out := make([]slice.Value, len(groups))
	start := 0
	for g, n := range groups {
		count := int64(0)
		for _, v := range vals[start : start+n] {
			if !v.IsAbsent() {
				count++
			}
		}
		out[g] = slice.Int64Val(count)
		start += n
	}
	return slice.New(outShape, schema.Primitive(schema.Int64), out, nil)
}

// ----------------------------------------------------------------------------
// Structure access
// ----------------------------------------------------------------------------

func getAttrKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	name, err := textArg(c.Args[1], "attribute name")
	if err != nil {
		return nil, err
	}
	return c.Args[0].GetAttr(name)
}

// getItemKernel dispatches on the container schema: integer indexing for
// lists, key lookup for dicts.
func getItemKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	x, key := c.Args[0], c.Args[1]
	if x.Schema().Kind() == schema.KindList {
		if !key.IsItem() {
			return nil, fmt.Errorf("list index must be an integer item")
		}
		idx, ok := key.Item().AsInt64()
		if !ok {
			return nil, fmt.Errorf("list index must be an integer item, got %s", key.Item())
		}
		return x.ListGet(int(idx))
	}
	return x.GetItem(key)
}

func getKeysKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	return c.Args[0].GetKeys()
}

func selectKeysKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	return c.Args[0].SelectKeys(c.Args[1])
}

func listSizeKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	return c.Args[0].ListSize()
}

func explodeKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	return c.Args[0].Explode()
}

func isPrimitiveKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	return slice.Item(slice.BoolVal(c.Args[0].IsPrimitive()), schema.Primitive(schema.Bool))
}

// ----------------------------------------------------------------------------
// Allocation
// ----------------------------------------------------------------------------

// allocKernel produces one fresh process-unique identifier per element of
// the argument's shape. Identifier stability across re-evaluation comes from
// session memoization, not from the kernel.
func allocKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	sh := c.Args[0].Shape()
	ids := slice.AllocateIDs(sh.NumElements())
	out := make([]slice.Value, len(ids))
	for i, id := range ids {
		out[i] = slice.IDVal(id)
	}
	return slice.New(sh, schema.ItemID(), out, nil)
}

// ----------------------------------------------------------------------------
// Strings
// ----------------------------------------------------------------------------

// formatTimeKernel renders integer epoch seconds as text using strftime
// conversion specifications.
func formatTimeKernel(e *env, c *Invocation) (*slice.DataSlice, error) {
	x := c.Args[0]
	layout, err := textArg(c.Args[1], "format")
	if err != nil {
		return nil, err
	}
	d, known, err := primitivePayload(x)
	if err != nil {
		return nil, err
	}
	if known && d != schema.Int32 && d != schema.Int64 {
		return nil, fmt.Errorf("format_time expects integer epoch seconds, got %s", schema.Primitive(d))
	}
	out := make([]slice.Value, len(x.Values()))
	for i, v := range x.Values() {
		if v.IsAbsent() {
			continue
		}
		sec, _ := v.AsInt64()
		out[i] = slice.TextVal(timefmt.Format(time.Unix(sec, 0).UTC(), layout))
	}
	return slice.New(x.Shape(), schema.Primitive(schema.Text), out, nil)
}

// textArg extracts a required rank-0 TEXT argument.
func textArg(ds *slice.DataSlice, what string) (string, error) {
	if ds == nil || !ds.IsItem() {
		return "", fmt.Errorf("%s must be a TEXT item", what)
	}
	s, ok := ds.Item().AsText()
	if !ok {
		return "", fmt.Errorf("%s must be a TEXT item, got %s", what, ds.Item())
	}
	return s, nil
}
