package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slicelab/jagged/slice"
)

// Invocation carries one operator invocation's evaluated arguments into a
// kernel.
type Invocation struct {
	Op   *Operator
	Args []*slice.DataSlice
	Kw   map[string]*slice.DataSlice
}

type kernel func(e *env, c *Invocation) (*slice.DataSlice, error)

// Operator is one entry of the closed registry. The canonical name is
// namespaced ("math.agg_min"); the bare name after the last dot is
// registered as an alias and behaves identically.
type Operator struct {
	Name   string   // canonical "ns.op" name
	Arity  int      // required positional arguments
	KwArgs []string // accepted keyword arguments

	// Memoized operators cache their result in the session regardless of
	// Options.EnableMemo. Allocation operators rely on this for identifier
	// stability within an epoch.
	Memoized bool

	fn kernel
}

var registry = map[string]*Operator{}

func register(ops ...*Operator) {
	for _, op := range ops {
		if _, dup := registry[op.Name]; dup {
			panic(fmt.Sprintf("duplicate operator %s", op.Name))
		}
		registry[op.Name] = op
		alias := op.Name
		if i := strings.LastIndexByte(alias, '.'); i >= 0 {
			alias = alias[i+1:]
		}
		if prev, dup := registry[alias]; dup && prev != op {
			panic(fmt.Sprintf("alias %s of %s collides with %s", alias, op.Name, prev.Name))
		}
		registry[alias] = op
	}
}

// Lookup resolves an operator by canonical name or bare alias.
func Lookup(name string) (*Operator, bool) {
	op, ok := registry[name]
	return op, ok
}

// Operators returns the canonical operator names in sorted order.
func Operators() []string {
	out := make([]string, 0, len(registry))
	for name, op := range registry {
		if name == op.Name {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// checkCall validates argument counts and keyword names before dispatch.
func checkCall(op *Operator, c *Invocation) error {
	if len(c.Args) != op.Arity {
		return fmt.Errorf("operator %s expects %d arguments, got %d", op.Name, op.Arity, len(c.Args))
	}
	for name := range c.Kw {
		known := false
		for _, k := range op.KwArgs {
			if k == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("operator %s got an unexpected keyword argument '%s'", op.Name, name)
		}
	}
	return nil
}
