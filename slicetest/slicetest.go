// Package slicetest provides the equality assertions used throughout the
// test suites: exact slice equality, approximate float comparison, and
// order-insensitive dict-key comparison.
package slicetest

import (
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/slicelab/jagged/slice"
)

// AssertEqual fails the test unless got and want have identical shape,
// identical schema, and elementwise-identical content including
// absent-ness. Bag identity is ignored: slices compare in their no-bag
// form.
func AssertEqual(t testing.TB, got, want *slice.DataSlice) {
	t.Helper()
	if got == nil || want == nil {
		if got != want {
			t.Fatalf("AssertEqual: got %v, want %v", got, want)
		}
		return
	}
	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("shapes differ: got %s, want %s", got.Shape(), want.Shape())
	}
	if !got.Schema().Equal(want.Schema()) {
		t.Fatalf("schemas differ: got %s, want %s", got.Schema(), want.Schema())
	}
	gv, wv := got.Values(), want.Values()
	for i := range gv {
		if !gv[i].Equal(wv[i]) {
			t.Fatalf("element %d differs: got %s, want %s\ndiff:\n%s",
				i, gv[i], wv[i], cmp.Diff(want.Repr(), got.Repr()))
		}
	}
}

// AssertAllClose is AssertEqual with float elements compared within an
// absolute tolerance. Non-float elements still compare exactly.
func AssertAllClose(t testing.TB, got, want *slice.DataSlice, tol float64) {
	t.Helper()
	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("shapes differ: got %s, want %s", got.Shape(), want.Shape())
	}
	if !got.Schema().Equal(want.Schema()) {
		t.Fatalf("schemas differ: got %s, want %s", got.Schema(), want.Schema())
	}
	gv, wv := got.Values(), want.Values()
	for i := range gv {
		if gv[i].IsAbsent() != wv[i].IsAbsent() {
			t.Fatalf("element %d differs in presence: got %s, want %s", i, gv[i], wv[i])
		}
		gf, gok := gv[i].AsFloat64()
		wf, wok := wv[i].AsFloat64()
		if gok && wok {
			if math.Abs(gf-wf) > tol {
				t.Fatalf("element %d differs: |%v - %v| > %v", i, gf, wf, tol)
			}
			continue
		}
		if !gv[i].Equal(wv[i]) {
			t.Fatalf("element %d differs: got %s, want %s", i, gv[i], wv[i])
		}
	}
}

// AssertKeysEqual compares two key slices (as returned by get_keys or
// select_keys) group by group, treating key order within each group as
// insignificant. Shapes must still match exactly.
func AssertKeysEqual(t testing.TB, got, want *slice.DataSlice) {
	t.Helper()
	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("shapes differ: got %s, want %s", got.Shape(), want.Shape())
	}
	if !got.Schema().Equal(want.Schema()) {
		t.Fatalf("schemas differ: got %s, want %s", got.Schema(), want.Schema())
	}
	sh := got.Shape()
	if sh.Rank() == 0 {
		AssertEqual(t, got, want)
		return
	}
	sizes := sh.Sizes(sh.Rank() - 1)
	gv, wv := got.Values(), want.Values()
	start := 0
	for g, n := range sizes {
		gs := renderSorted(gv[start : start+n])
		ws := renderSorted(wv[start : start+n])
		if cmp.Diff(ws, gs) != "" {
			t.Fatalf("key group %d differs:\n%s", g, cmp.Diff(ws, gs))
		}
		start += n
	}
}

func renderSorted(vals []slice.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	sort.Strings(out)
	return out
}
