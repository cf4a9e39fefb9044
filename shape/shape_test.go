package shape

import (
	"errors"
	"testing"
)

func TestFromSizes_Valid(t *testing.T) {
	sh, err := FromSizes([]int{3}, []int{2, 0, 1})
	if err != nil {
		t.Fatalf("FromSizes failed: %v", err)
	}
	if sh.Rank() != 2 {
		t.Errorf("Rank = %d, want 2", sh.Rank())
	}
	if sh.NumElements() != 3 {
		t.Errorf("NumElements = %d, want 3", sh.NumElements())
	}
	if got := sh.String(); got != "[3][2, 0, 1]" {
		t.Errorf("String = %q", got)
	}
}

func TestFromSizes_InconsistentLevels(t *testing.T) {
	if _, err := FromSizes([]int{2}, []int{1, 1, 1}); err == nil {
		t.Fatal("expected error for inconsistent level sizes")
	}
	if _, err := FromSizes([]int{2}, []int{1, -1}); err == nil {
		t.Fatal("expected error for negative size")
	}
	if _, err := FromSizes([]int{1, 2}); err == nil {
		t.Fatal("expected error for multi-entry top level")
	}
}

func TestScalar(t *testing.T) {
	sh := Scalar()
	if !sh.IsScalar() || sh.Rank() != 0 || sh.NumElements() != 1 {
		t.Fatalf("scalar shape malformed: %s", sh)
	}
}

func TestEqual(t *testing.T) {
	a := MustFromSizes([]int{2}, []int{1, 2})
	b := MustFromSizes([]int{2}, []int{1, 2})
	c := MustFromSizes([]int{2}, []int{2, 1})
	if !a.Equal(b) {
		t.Error("equal shapes reported unequal")
	}
	if a.Equal(c) {
		t.Error("unequal shapes reported equal")
	}
	if a.Equal(Scalar()) {
		t.Error("rank-2 shape equal to scalar")
	}
}

func TestBroadcast_Commutative(t *testing.T) {
	a := MustFromSizes([]int{2})
	b := MustFromSizes([]int{2}, []int{1, 2})
	ab, err := Broadcast(a, b)
	if err != nil {
		t.Fatalf("Broadcast(a, b) failed: %v", err)
	}
	ba, err := Broadcast(b, a)
	if err != nil {
		t.Fatalf("Broadcast(b, a) failed: %v", err)
	}
	if !ab.Equal(ba) || !ab.Equal(b) {
		t.Errorf("Broadcast not commutative: %s vs %s", ab, ba)
	}
}

func TestBroadcast_ScalarPromotes(t *testing.T) {
	b := MustFromSizes([]int{3})
	got, err := Broadcast(Scalar(), b)
	if err != nil {
		t.Fatalf("Broadcast(scalar, b) failed: %v", err)
	}
	if !got.Equal(b) {
		t.Errorf("Broadcast(scalar, b) = %s, want %s", got, b)
	}
}

func TestBroadcast_SelfIsNoop(t *testing.T) {
	a := MustFromSizes([]int{2}, []int{2, 0})
	got, err := Broadcast(a, a)
	if err != nil {
		t.Fatalf("Broadcast(a, a) failed: %v", err)
	}
	if !got.Equal(a) {
		t.Errorf("Broadcast(a, a) = %s, want %s", got, a)
	}
}

func TestBroadcast_Mismatch(t *testing.T) {
	a := MustFromSizes([]int{2})
	b := MustFromSizes([]int{3})
	_, err := Broadcast(a, b)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Errorf("error is %T, want *MismatchError", err)
	}
}

func TestBroadcast_RaggedSiblingsMustMatch(t *testing.T) {
	// Same rank, same top size, but differing inner row lengths: not
	// broadcastable in either direction.
	a := MustFromSizes([]int{2}, []int{1, 2})
	b := MustFromSizes([]int{2}, []int{2, 1})
	if _, err := Broadcast(a, b); err == nil {
		t.Fatal("expected mismatch for ragged sibling sizes")
	}
}

func TestGroupSizes(t *testing.T) {
	sh := MustFromSizes([]int{3}, []int{3, 2, 2}, []int{1, 1, 1, 2, 2, 0, 3})
	tests := []struct {
		rank int
		want []int
	}{
		{0, []int{10}},
		{1, []int{3, 4, 3}},
		{2, []int{1, 1, 1, 2, 2, 0, 3}},
		{3, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
	}
	for _, tt := range tests {
		got := sh.GroupSizes(tt.rank)
		if len(got) != len(tt.want) {
			t.Fatalf("GroupSizes(%d) = %v, want %v", tt.rank, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("GroupSizes(%d) = %v, want %v", tt.rank, got, tt.want)
				break
			}
		}
	}
}

func TestDropLast(t *testing.T) {
	sh := MustFromSizes([]int{2}, []int{2, 1})
	got := sh.DropLast(1)
	if !got.Equal(MustFromSizes([]int{2})) {
		t.Errorf("DropLast(1) = %s", got)
	}
	if !sh.DropLast(0).Equal(sh) {
		t.Error("DropLast(0) is not the identity")
	}
	if !sh.DropLast(2).Equal(Scalar()) {
		t.Error("DropLast(rank) is not scalar")
	}
}

func TestFlattenTo(t *testing.T) {
	sh := MustFromSizes([]int{2}, []int{2, 1}, []int{1, 2, 3})
	got := sh.FlattenTo(1)
	want := MustFromSizes([]int{2}, []int{3, 3})
	if !got.Equal(want) {
		t.Errorf("FlattenTo(1) = %s, want %s", got, want)
	}
	if !sh.FlattenTo(3).Equal(sh) {
		t.Error("FlattenTo(rank) is not the identity")
	}
}

func TestAddDim(t *testing.T) {
	sh := MustFromSizes([]int{2})
	got, err := sh.AddDim([]int{1, 3})
	if err != nil {
		t.Fatalf("AddDim failed: %v", err)
	}
	if !got.Equal(MustFromSizes([]int{2}, []int{1, 3})) {
		t.Errorf("AddDim = %s", got)
	}
	if _, err := sh.AddDim([]int{1}); err == nil {
		t.Fatal("expected error for wrong sizes length")
	}
}

func TestIsPrefixOf(t *testing.T) {
	a := MustFromSizes([]int{2})
	b := MustFromSizes([]int{2}, []int{1, 2})
	if !a.IsPrefixOf(b) {
		t.Error("a should be a prefix of b")
	}
	if b.IsPrefixOf(a) {
		t.Error("b should not be a prefix of a")
	}
	if !Scalar().IsPrefixOf(b) {
		t.Error("scalar should be a prefix of everything")
	}
}
