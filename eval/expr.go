// Package eval implements deferred expression evaluation over data slices:
// an expression graph with named inputs, a closed operator registry with
// alias resolution, and an evaluation session owning the memoization table
// that bounds allocation identity.
package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slicelab/jagged/slice"
)

type exprKind int

const (
	exprLiteral exprKind = iota
	exprInput
	exprCall
)

// Expr is one node of an expression graph: a literal slice, a named input
// bound at evaluation time, or an operator call. Expressions are immutable
// once built and may be shared between graphs.
type Expr struct {
	kind exprKind
	lit  *slice.DataSlice
	name string // input name, or operator name for calls
	args []*Expr
	kw   map[string]*Expr
}

// Literal wraps a slice as a constant expression node.
func Literal(ds *slice.DataSlice) *Expr {
	return &Expr{kind: exprLiteral, lit: ds}
}

// Lit builds a literal node from a nested Go literal, panicking on invalid
// input. Convenience for tests and the REPL.
func Lit(v any) *Expr {
	return Literal(slice.MustFromVals(v))
}

// Input references a free variable bound by name at evaluation time.
func Input(name string) *Expr {
	return &Expr{kind: exprInput, name: name}
}

// Call builds an operator call node. The operator name may be canonical
// ("math.agg_min") or a bare alias ("agg_min"); resolution happens at
// evaluation time so unknown names surface as evaluation errors.
func Call(name string, args ...*Expr) *Expr {
	return &Expr{kind: exprCall, name: name, args: args}
}

// Kw returns a copy of the call with one keyword argument added. Panics on
// non-call nodes.
func (e *Expr) Kw(name string, val *Expr) *Expr {
	if e.kind != exprCall {
		panic("Kw on a non-call expression")
	}
	kw := make(map[string]*Expr, len(e.kw)+1)
	for k, v := range e.kw {
		kw[k] = v
	}
	kw[name] = val
	return &Expr{kind: exprCall, name: e.name, args: e.args, kw: kw}
}

// Inputs returns the sorted set of free variable names the expression
// references.
func (e *Expr) Inputs() []string {
	seen := make(map[string]bool)
	var walk func(*Expr)
	walk = func(n *Expr) {
		switch n.kind {
		case exprInput:
			seen[n.name] = true
		case exprCall:
			for _, a := range n.args {
				walk(a)
			}
			for _, v := range n.kw {
				walk(v)
			}
		}
	}
	walk(e)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Expr) String() string {
	switch e.kind {
	case exprLiteral:
		return e.lit.Repr()
	case exprInput:
		return e.name
	case exprCall:
		parts := make([]string, 0, len(e.args)+len(e.kw))
		for _, a := range e.args {
			parts = append(parts, a.String())
		}
		kwNames := make([]string, 0, len(e.kw))
		for k := range e.kw {
			kwNames = append(kwNames, k)
		}
		sort.Strings(kwNames)
		for _, k := range kwNames {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.kw[k].String()))
		}
		return fmt.Sprintf("%s(%s)", e.name, strings.Join(parts, ", "))
	default:
		return "<invalid>"
	}
}
