// Package shape implements jagged shapes: per-level size arrays describing
// nested, ragged array structure. A shape of rank N has N levels; level d
// holds one size per element of level d-1, so rows of different lengths are
// representable at every nesting depth. Shapes are immutable and compared
// structurally.
package shape

import (
	"fmt"
	"strings"
)

// Shape describes the jagged structure of a slice. The zero value is the
// scalar (rank-0) shape, which holds exactly one element.
type Shape struct {
	levels [][]int
}

// MismatchError reports a failed broadcast between two incompatible shapes.
type MismatchError struct {
	A, B Shape
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("shapes are not compatible: %s vs %s", e.A, e.B)
}

// Scalar returns the rank-0 shape.
func Scalar() Shape {
	return Shape{}
}

// Flat returns the rank-1 shape with n elements.
func Flat(n int) Shape {
	return Shape{levels: [][]int{{n}}}
}

// FromSizes builds a shape from per-level size arrays. Level 0 must contain
// exactly one size (the top-level element count); every deeper level must
// contain one size per element implied by the level above it. Sizes must be
// non-negative.
func FromSizes(levels ...[]int) (Shape, error) {
	want := 1
	out := make([][]int, len(levels))
	for d, sizes := range levels {
		if len(sizes) != want {
			return Shape{}, fmt.Errorf("level %d has %d sizes, want %d", d, len(sizes), want)
		}
		total := 0
		for i, n := range sizes {
			if n < 0 {
				return Shape{}, fmt.Errorf("level %d size %d is negative", d, i)
			}
			total += n
		}
		out[d] = append([]int(nil), sizes...)
		want = total
	}
	return Shape{levels: out}, nil
}

// MustFromSizes is FromSizes that panics on invalid input. Test helper.
func MustFromSizes(levels ...[]int) Shape {
	sh, err := FromSizes(levels...)
	if err != nil {
		panic(err)
	}
	return sh
}

// Rank returns the number of levels.
func (s Shape) Rank() int {
	return len(s.levels)
}

// IsScalar reports whether the shape is rank-0.
func (s Shape) IsScalar() bool {
	return len(s.levels) == 0
}

// NumElements returns the number of leaf elements the shape describes.
// A rank-0 shape holds exactly one element.
func (s Shape) NumElements() int {
	if len(s.levels) == 0 {
		return 1
	}
	total := 0
	for _, n := range s.levels[len(s.levels)-1] {
		total += n
	}
	return total
}

// Sizes returns the size array at the given level. The returned slice must
// not be mutated.
func (s Shape) Sizes(level int) []int {
	return s.levels[level]
}

// Equal reports structural equality: same rank and identical sizes at every
// level.
func (s Shape) Equal(o Shape) bool {
	if len(s.levels) != len(o.levels) {
		return false
	}
	for d := range s.levels {
		if len(s.levels[d]) != len(o.levels[d]) {
			return false
		}
		for i := range s.levels[d] {
			if s.levels[d][i] != o.levels[d][i] {
				return false
			}
		}
	}
	return true
}

// IsPrefixOf reports whether s's levels are a leading subsequence of o's
// levels, i.e. a value shaped s can be expanded to o by repeating each
// element over the trailing levels. Rank-0 is a prefix of every shape.
func (s Shape) IsPrefixOf(o Shape) bool {
	if len(s.levels) > len(o.levels) {
		return false
	}
	for d := range s.levels {
		if len(s.levels[d]) != len(o.levels[d]) {
			return false
		}
		for i := range s.levels[d] {
			if s.levels[d][i] != o.levels[d][i] {
				return false
			}
		}
	}
	return true
}

// Broadcast computes the common shape both a and b expand into. One shape
// must be a prefix of the other (rank-0 is a prefix of everything); ragged
// sibling sizes must match size-for-size, there is no dense-style
// 1-replication at inner levels.
func Broadcast(a, b Shape) (Shape, error) {
	if a.IsPrefixOf(b) {
		return b, nil
	}
	if b.IsPrefixOf(a) {
		return a, nil
	}
	return Shape{}, &MismatchError{A: a, B: b}
}

// DropLast returns the shape with the trailing ndim levels removed.
// Aggregation over ndim trailing dimensions produces this shape.
func (s Shape) DropLast(ndim int) Shape {
	if ndim < 0 || ndim > len(s.levels) {
		panic(fmt.Sprintf("DropLast(%d) out of range for rank %d", ndim, len(s.levels)))
	}
	return Shape{levels: s.levels[:len(s.levels)-ndim]}
}

// FlattenTo collapses trailing levels so the result has the given rank,
// merging everything below into a single level. FlattenTo(s.Rank()) is the
// identity; FlattenTo(0) is only valid when the shape holds one element
// chain, so callers reduce to DropLast in that case instead.
func (s Shape) FlattenTo(rank int) Shape {
	if rank < 0 || rank >= len(s.levels) {
		return s
	}
	counts := s.GroupSizes(rank)
	levels := make([][]int, rank+1)
	copy(levels, s.levels[:rank])
	levels[rank] = counts
	return Shape{levels: levels}
}

// AddDim returns a shape one level deeper, where sizes holds the child count
// of each current leaf element. len(sizes) must equal NumElements().
func (s Shape) AddDim(sizes []int) (Shape, error) {
	if len(sizes) != s.NumElements() {
		return Shape{}, fmt.Errorf("AddDim: got %d sizes for %d elements", len(sizes), s.NumElements())
	}
	levels := make([][]int, len(s.levels)+1)
	copy(levels, s.levels)
	levels[len(s.levels)] = append([]int(nil), sizes...)
	return Shape{levels: levels}, nil
}

// GroupSizes returns, for each element at the given rank, the number of leaf
// elements beneath it. GroupSizes(Rank()) is all ones; GroupSizes(0) has a
// single entry equal to NumElements().
func (s Shape) GroupSizes(rank int) []int {
	if rank < 0 || rank > len(s.levels) {
		panic(fmt.Sprintf("GroupSizes(%d) out of range for rank %d", rank, len(s.levels)))
	}
	counts := make([]int, s.NumElements())
	for i := range counts {
		counts[i] = 1
	}
	// Fold leaf counts upward one level at a time until the requested rank.
	for d := len(s.levels) - 1; d >= rank; d-- {
		sizes := s.levels[d]
		next := make([]int, len(sizes))
		idx := 0
		for i, c := range sizes {
			total := 0
			for j := 0; j < c; j++ {
				total += counts[idx]
				idx++
			}
			next[i] = total
		}
		counts = next
	}
	return counts
}

// String renders the shape as its per-level size arrays, e.g.
// "[2][2, 1]" for two rows of 2 and 1 elements. Rank-0 renders as "[]".
func (s Shape) String() string {
	if len(s.levels) == 0 {
		return "[]"
	}
	var b strings.Builder
	for _, sizes := range s.levels {
		b.WriteByte('[')
		for i, n := range sizes {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d", n)
		}
		b.WriteByte(']')
	}
	return b.String()
}
