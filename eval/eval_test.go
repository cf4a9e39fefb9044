package eval_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/slicelab/jagged/eval"
	"github.com/slicelab/jagged/schema"
	"github.com/slicelab/jagged/slice"
	"github.com/slicelab/jagged/slicetest"
)

func bind(name string, ds *slice.DataSlice) map[string]*slice.DataSlice {
	return map[string]*slice.DataSlice{name: ds}
}

func TestAggMin_NullPropagation(t *testing.T) {
	x := slice.MustFromVals([]any{1, nil, 3})
	got, err := eval.Eval(eval.Call("math.agg_min", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("agg_min failed: %v", err)
	}
	if v, _ := got.Item().AsInt64(); v != 1 {
		t.Errorf("agg_min = %s, want 1", got.Item())
	}

	allAbsent := slice.MustFromVals([]any{nil, nil})
	got, err = eval.Eval(eval.Call("math.agg_min", eval.Input("x")), bind("x", allAbsent))
	if err != nil {
		t.Fatalf("agg_min over all-absent failed: %v", err)
	}
	if !got.Item().IsAbsent() {
		t.Errorf("agg_min over all-absent = %s, want absent", got.Item())
	}
}

func TestAggMin_GroupsAndEmptyRows(t *testing.T) {
	x := slice.MustFromVals([]any{
		[]any{1, nil},
		[]any{3, 4},
		[]any{nil, nil},
		[]any{},
	})
	got, err := eval.Eval(eval.Call("math.agg_min", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("agg_min failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{1, 3, nil, nil}))
}

func TestAgg_NdimVariants(t *testing.T) {
	x := slice.MustFromVals([]any{[]any{1, 5}, []any{3, 4}, []any{2}})

	identity, err := eval.Eval(
		eval.Call("math.agg_min", eval.Input("x")).Kw("ndim", eval.Lit(0)), bind("x", x))
	if err != nil {
		t.Fatalf("ndim=0 failed: %v", err)
	}
	slicetest.AssertEqual(t, identity, x)

	full, err := eval.Eval(
		eval.Call("math.agg_max", eval.Input("x")).Kw("ndim", eval.Lit(2)), bind("x", x))
	if err != nil {
		t.Fatalf("ndim=2 failed: %v", err)
	}
	if v, _ := full.Item().AsInt64(); v != 5 || full.Rank() != 0 {
		t.Errorf("agg_max ndim=2 = %s rank %d, want item 5", full.Item(), full.Rank())
	}
}

func TestAgg_NdimBounds(t *testing.T) {
	x := slice.MustFromVals([]any{[]any{1, 2}, []any{3}})

	var be *slice.BoundsError
	_, err := eval.Eval(
		eval.Call("math.agg_min", eval.Input("x")).Kw("ndim", eval.Lit(-1)), bind("x", x))
	if !errors.As(err, &be) {
		t.Fatalf("ndim=-1: error is %T (%v), want *BoundsError", err, err)
	}
	if !strings.Contains(err.Error(), "0 <= ndim <= rank") {
		t.Errorf("bounds error must name the valid range, got %q", err)
	}

	_, err = eval.Eval(
		eval.Call("math.agg_min", eval.Input("x")).Kw("ndim", eval.Lit(3)), bind("x", x))
	if !errors.As(err, &be) {
		t.Fatalf("ndim=rank+1: error is %T (%v), want *BoundsError", err, err)
	}

	scalar := slice.MustFromVals(7)
	_, err = eval.Eval(eval.Call("math.agg_min", eval.Input("x")), bind("x", scalar))
	if err == nil || !strings.Contains(err.Error(), "expected rank(x) > 0") {
		t.Fatalf("agg over item: error %v, want expected rank(x) > 0", err)
	}
}

func TestAggSumAndCount(t *testing.T) {
	x := slice.MustFromVals([]any{[]any{1, nil, 3}, []any{}, []any{nil}})

	sum, err := eval.Eval(eval.Call("math.agg_sum", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("agg_sum failed: %v", err)
	}
	slicetest.AssertEqual(t, sum, slice.MustFromVals([]any{4, nil, nil}))

	count, err := eval.Eval(eval.Call("core.agg_count", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("agg_count failed: %v", err)
	}
	slicetest.AssertEqual(t, count, slice.MustFromVals([]any{int64(2), int64(0), int64(0)}))
}

func TestArithmetic_BroadcastAndWiden(t *testing.T) {
	x := slice.MustFromVals([]any{[]any{1, 2}, []any{3}})

	got, err := eval.Eval(eval.Call("math.add", eval.Input("x"), eval.Lit(1)), bind("x", x))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{[]any{2, 3}, []any{4}}))

	got, err = eval.Eval(eval.Call("math.multiply", eval.Input("x"), eval.Lit(1.5)), bind("x", x))
	if err != nil {
		t.Fatalf("multiply failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{[]any{1.5, 3.0}, []any{4.5}}))
}

func TestArithmetic_NullPropagation(t *testing.T) {
	x := slice.MustFromVals([]any{1, nil, 3})
	got, err := eval.Eval(eval.Call("math.subtract", eval.Input("x"), eval.Lit(1)), bind("x", x))
	if err != nil {
		t.Fatalf("subtract failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{0, nil, 2}))
}

func TestAdd_TextConcat(t *testing.T) {
	x := slice.MustFromVals([]any{"a", "b"})
	got, err := eval.Eval(eval.Call("math.add", eval.Input("x"), eval.Lit("!")), bind("x", x))
	if err != nil {
		t.Fatalf("text add failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{"a!", "b!"}))
}

func TestAdd_TextAbsentPropagation(t *testing.T) {
	// A fully absent operand against text yields absent output, not a
	// mixed-types error. Both argument orders behave the same.
	blank := slice.MustFromVals([]any{nil, nil})
	x := slice.MustFromVals([]any{"a", "b"})
	want, err := slice.FromLiteral([]any{nil, nil},
		&slice.LiteralOptions{Schema: schema.Primitive(schema.Text)})
	if err != nil {
		t.Fatalf("literal failed: %v", err)
	}

	in := map[string]*slice.DataSlice{"blank": blank, "x": x}
	got, err := eval.Eval(eval.Call("math.add", eval.Input("blank"), eval.Input("x")), in)
	if err != nil {
		t.Fatalf("add(absent, text) failed: %v", err)
	}
	slicetest.AssertEqual(t, got, want)

	got, err = eval.Eval(eval.Call("math.add", eval.Input("x"), eval.Input("blank")), in)
	if err != nil {
		t.Fatalf("add(text, absent) failed: %v", err)
	}
	slicetest.AssertEqual(t, got, want)
}

func TestArithmetic_SchemaDispatchErrors(t *testing.T) {
	// TEXT plus INT32 is not a numeric operation.
	_, err := eval.Eval(eval.Call("math.add", eval.Lit([]any{1}), eval.Lit("a")), nil)
	var tm *slice.TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("int+text: error is %T (%v), want *TypeMismatchError", err, err)
	}

	// A dict slice has no primitive payload.
	d := slice.MustFromVals(map[any]any{1: 2})
	_, err = eval.Eval(eval.Call("math.add", eval.Input("d"), eval.Lit(1)), bind("d", d))
	if err == nil || !strings.Contains(err.Error(), "has no primitive schema") {
		t.Fatalf("dict add: error %v, want no primitive schema", err)
	}

	// Heterogeneous payload under OBJECT is a mixed-types error.
	obj, err := slice.FromLiteral([]any{1, "a"}, &slice.LiteralOptions{Schema: schema.Object()})
	if err != nil {
		t.Fatalf("object literal failed: %v", err)
	}
	_, err = eval.Eval(eval.Call("math.agg_sum", eval.Input("x")), bind("x", obj))
	if !errors.As(err, &tm) {
		t.Fatalf("mixed object agg: error is %T (%v), want *TypeMismatchError", err, err)
	}
	if !strings.Contains(err.Error(), "mixed types is not supported") {
		t.Errorf("error = %q, want mixed types message", err)
	}
}

func TestAliasEquivalence(t *testing.T) {
	x := slice.MustFromVals([]any{[]any{2, 1}, []any{4}})
	canonical, err := eval.Eval(eval.Call("math.agg_min", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("canonical call failed: %v", err)
	}
	bare, err := eval.Eval(eval.Call("agg_min", eval.Input("x")), bind("x", x))
	if err != nil {
		t.Fatalf("alias call failed: %v", err)
	}
	slicetest.AssertEqual(t, canonical, bare)
}

func TestAllocation_EpochSemantics(t *testing.T) {
	sess := eval.NewSession()
	x := slice.MustFromVals([]any{[]any{1, 2}, []any{3}})
	e := eval.Call("allocation.new_listid_shaped_as", eval.Input("x"))
	in := bind("x", x)

	first, err := sess.Eval(e, in)
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if !first.Schema().Equal(schema.ItemID()) {
		t.Fatalf("allocation schema = %s, want ITEMID", first.Schema())
	}
	if !first.Shape().Equal(x.Shape()) {
		t.Fatalf("allocation shape = %s, want %s", first.Shape(), x.Shape())
	}

	second, err := sess.Eval(e, in)
	if err != nil {
		t.Fatalf("re-evaluation failed: %v", err)
	}
	slicetest.AssertEqual(t, first, second)

	sess.ClearCache()
	third, err := sess.Eval(e, in)
	if err != nil {
		t.Fatalf("post-clear evaluation failed: %v", err)
	}
	for i := range first.Values() {
		if first.Get(i).Equal(third.Get(i)) {
			t.Fatalf("identifier %d survived the cache clear", i)
		}
	}
}

func TestAllocation_DistinctExpressionsDistinctIDs(t *testing.T) {
	sess := eval.NewSession()
	x := slice.MustFromVals([]any{1, 2})
	in := bind("x", x)

	lists, err := sess.Eval(eval.Call("allocation.new_listid_shaped_as", eval.Input("x")), in)
	if err != nil {
		t.Fatalf("list allocation failed: %v", err)
	}
	items, err := sess.Eval(eval.Call("allocation.new_itemid_shaped_as", eval.Input("x")), in)
	if err != nil {
		t.Fatalf("item allocation failed: %v", err)
	}
	for i := range lists.Values() {
		if lists.Get(i).Equal(items.Get(i)) {
			t.Fatalf("distinct allocation expressions shared identifier %d", i)
		}
	}
}

func TestAllocation_AliasSharesMemo(t *testing.T) {
	sess := eval.NewSession()
	x := slice.MustFromVals([]any{1})
	in := bind("x", x)

	canonical, err := sess.Eval(eval.Call("allocation.new_listid_shaped_as", eval.Input("x")), in)
	if err != nil {
		t.Fatalf("canonical allocation failed: %v", err)
	}
	bare, err := sess.Eval(eval.Call("new_listid_shaped_as", eval.Input("x")), in)
	if err != nil {
		t.Fatalf("alias allocation failed: %v", err)
	}
	slicetest.AssertEqual(t, canonical, bare)
}

func TestMemo_PureIdempotence(t *testing.T) {
	sess := eval.NewSession()
	x := slice.MustFromVals([]any{3, 1, 2})
	e := eval.Call("math.agg_min", eval.Input("x"))
	first, err := sess.Eval(e, bind("x", x))
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	second, err := sess.Eval(e, bind("x", x))
	if err != nil {
		t.Fatalf("re-eval failed: %v", err)
	}
	if first != second {
		t.Error("memoized re-evaluation must return the cached slice")
	}
}

func TestMemo_BagMutationBoundary(t *testing.T) {
	sess := eval.NewSession()
	docs, err := slice.NewEntities(
		slice.MustFromVals([]any{0, 0}).Shape(), nil, nil,
		map[string]*slice.DataSlice{"score": slice.MustFromVals([]any{10, 20})})
	if err != nil {
		t.Fatalf("NewEntities failed: %v", err)
	}
	e := eval.Call("core.get_attr", eval.Input("docs"), eval.Lit("score"))
	first, err := sess.Eval(e, bind("docs", docs))
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	slicetest.AssertEqual(t, first.NoBag(), slice.MustFromVals([]any{10, 20}))

	// Memo keys cover shape, schema and values, not bag contents: mutating
	// the bag leaves the cached result standing until ClearCache.
	if err := docs.SetAttr("score", slice.MustFromVals([]any{30, 40})); err != nil {
		t.Fatalf("SetAttr failed: %v", err)
	}
	stale, err := sess.Eval(e, bind("docs", docs))
	if err != nil {
		t.Fatalf("re-eval failed: %v", err)
	}
	if stale != first {
		t.Error("bag mutation must not replace the memoized result before ClearCache")
	}

	sess.ClearCache()
	fresh, err := sess.Eval(e, bind("docs", docs))
	if err != nil {
		t.Fatalf("eval after ClearCache failed: %v", err)
	}
	slicetest.AssertEqual(t, fresh.NoBag(), slice.MustFromVals([]any{30, 40}))
}

func TestGetAttr_KeepsBag(t *testing.T) {
	docs, err := slice.NewEntities(
		slice.MustFromVals([]any{0, 0}).Shape(), nil, nil,
		map[string]*slice.DataSlice{"score": slice.MustFromVals([]any{10, 20})})
	if err != nil {
		t.Fatalf("NewEntities failed: %v", err)
	}
	got, err := eval.Eval(
		eval.Call("core.get_attr", eval.Input("docs"), eval.Lit("score")), bind("docs", docs))
	if err != nil {
		t.Fatalf("get_attr failed: %v", err)
	}
	slicetest.AssertEqual(t, got.NoBag(), slice.MustFromVals([]any{10, 20}))
	if got.Bag() != docs.Bag() {
		t.Error("get_attr must carry the holder's bag")
	}
}

func TestListAndDictOps(t *testing.T) {
	items := slice.MustFromVals([]any{[]any{10, 20}, []any{30}})
	lists, err := slice.Implode(items, nil)
	if err != nil {
		t.Fatalf("Implode failed: %v", err)
	}
	in := bind("l", lists)

	size, err := eval.Eval(eval.Call("core.list_size", eval.Input("l")), in)
	if err != nil {
		t.Fatalf("list_size failed: %v", err)
	}
	slicetest.AssertEqual(t, size, slice.MustFromVals([]any{int64(2), int64(1)}))

	exploded, err := eval.Eval(eval.Call("core.explode", eval.Input("l")), in)
	if err != nil {
		t.Fatalf("explode failed: %v", err)
	}
	slicetest.AssertEqual(t, exploded.NoBag(), items)

	head, err := eval.Eval(eval.Call("core.get_item", eval.Input("l"), eval.Lit(0)), in)
	if err != nil {
		t.Fatalf("list get_item failed: %v", err)
	}
	slicetest.AssertEqual(t, head.NoBag(), slice.MustFromVals([]any{10, 30}))

	d := slice.MustFromVals(map[any]any{1: "one", 2: "two"})
	val, err := eval.Eval(eval.Call("core.get_item", eval.Input("d"), eval.Lit(2)), bind("d", d))
	if err != nil {
		t.Fatalf("dict get_item failed: %v", err)
	}
	if s, _ := val.Item().AsText(); s != "two" {
		t.Errorf("d[2] = %s, want two", val.Item())
	}

	keys, err := eval.Eval(eval.Call("core.get_keys", eval.Input("d")), bind("d", d))
	if err != nil {
		t.Fatalf("get_keys failed: %v", err)
	}
	slicetest.AssertKeysEqual(t, keys.NoBag(), slice.MustFromVals([]any{1, 2}))
}

func TestIsPrimitive(t *testing.T) {
	got, err := eval.Eval(eval.Call("core.is_primitive", eval.Lit([]any{1, 2})), nil)
	if err != nil {
		t.Fatalf("is_primitive failed: %v", err)
	}
	if b, _ := got.Item().AsBool(); !b {
		t.Error("INT32 slice must report primitive")
	}
	d := slice.MustFromVals(map[any]any{1: 2})
	got, err = eval.Eval(eval.Call("core.is_primitive", eval.Input("d")), bind("d", d))
	if err != nil {
		t.Fatalf("is_primitive failed: %v", err)
	}
	if b, _ := got.Item().AsBool(); b {
		t.Error("a dict slice must not report primitive")
	}
}

func TestFormatTime(t *testing.T) {
	x := slice.MustFromVals([]any{0, 86400, nil})
	got, err := eval.Eval(
		eval.Call("strings.format_time", eval.Input("x"), eval.Lit("%Y-%m-%d")), bind("x", x))
	if err != nil {
		t.Fatalf("format_time failed: %v", err)
	}
	slicetest.AssertEqual(t, got, slice.MustFromVals([]any{"1970-01-01", "1970-01-02", nil}))
}

func TestEval_Errors(t *testing.T) {
	if _, err := eval.Eval(eval.Call("nope", eval.Lit(1)), nil); err == nil ||
		!strings.Contains(err.Error(), "unknown operator") {
		t.Errorf("unknown operator: error %v", err)
	}
	if _, err := eval.Eval(eval.Input("missing"), nil); err == nil ||
		!strings.Contains(err.Error(), "unbound input 'missing'") {
		t.Errorf("unbound input: error %v", err)
	}
	if _, err := eval.Eval(eval.Call("math.add", eval.Lit(1)), nil); err == nil ||
		!strings.Contains(err.Error(), "expects 2 arguments") {
		t.Errorf("arity: error %v", err)
	}
	if _, err := eval.Eval(
		eval.Call("math.add", eval.Lit(1), eval.Lit(2)).Kw("bogus", eval.Lit(3)), nil); err == nil ||
		!strings.Contains(err.Error(), "unexpected keyword argument") {
		t.Errorf("keyword: error %v", err)
	}
}

func TestEval_ShapeMismatch(t *testing.T) {
	a := slice.MustFromVals([]any{[]any{1, 2}, []any{3}})
	b := slice.MustFromVals([]any{[]any{1}, []any{2, 3}})
	_, err := eval.Eval(eval.Call("math.add", eval.Input("a"), eval.Input("b")),
		map[string]*slice.DataSlice{"a": a, "b": b})
	if err == nil || !strings.Contains(err.Error(), "not compatible") {
		t.Fatalf("ragged siblings must not broadcast, got %v", err)
	}
}
