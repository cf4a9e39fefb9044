package schema

import (
	"errors"
	"testing"
)

func TestPrimitiveSingletons(t *testing.T) {
	if Primitive(Int32) != Primitive(Int32) {
		t.Error("Primitive(Int32) is not a singleton")
	}
	if !Primitive(Float64).IsPrimitive() {
		t.Error("FLOAT64 should be primitive")
	}
	if Object().IsPrimitive() || Any().IsPrimitive() || ItemID().IsPrimitive() {
		t.Error("markers must not be primitive")
	}
}

func TestDTypeString(t *testing.T) {
	cases := map[DType]string{
		Int32: "INT32", Int64: "INT64", Float32: "FLOAT32", Float64: "FLOAT64",
		Text: "TEXT", Bytes: "BYTES", Bool: "BOOLEAN", Mask: "MASK",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", d, got, want)
		}
	}
}

func TestNewEntity_DistinctIdentity(t *testing.T) {
	a := NewEntity("Point", Attr{"x", Primitive(Float32)})
	b := NewEntity("Point", Attr{"x", Primitive(Float32)})
	if a.Equal(b) {
		t.Error("explicitly created entity schemas must have distinct identity")
	}
	if !a.Equal(a) {
		t.Error("schema not equal to itself")
	}
}

func TestUUEntity_StructuralIdentity(t *testing.T) {
	a := UUEntity(Attr{"x", Primitive(Int32)}, Attr{"y", Primitive(Text)})
	b := UUEntity(Attr{"y", Primitive(Text)}, Attr{"x", Primitive(Int32)})
	if a != b {
		t.Error("uu-entities with the same attribute set must intern to one instance")
	}
	c := UUEntity(Attr{"x", Primitive(Int64)}, Attr{"y", Primitive(Text)})
	if a == c {
		t.Error("uu-entities with different attribute types must differ")
	}
}

func TestListDictInterning(t *testing.T) {
	if NewList(Primitive(Int32)) != NewList(Primitive(Int32)) {
		t.Error("list schemas with equal item schema must intern")
	}
	if NewList(Primitive(Int32)) == NewList(Primitive(Int64)) {
		t.Error("list schemas with different item schemas must differ")
	}
	if NewDict(Primitive(Text), Primitive(Int64)) != NewDict(Primitive(Text), Primitive(Int64)) {
		t.Error("dict schemas must intern")
	}
}

func TestAttrLookup(t *testing.T) {
	e := NewEntity("", Attr{"a", Primitive(Int64)}, Attr{"b", Primitive(Text)})
	if s, ok := e.Attr("a"); !ok || !s.Equal(Primitive(Int64)) {
		t.Errorf("Attr(a) = %v, %v", s, ok)
	}
	if _, ok := e.Attr("missing"); ok {
		t.Error("Attr(missing) should not be found")
	}
}

func TestCommonSchema(t *testing.T) {
	tests := []struct {
		a, b, want *Schema
	}{
		{Primitive(Int32), Primitive(Int32), Primitive(Int32)},
		{Primitive(Int32), Primitive(Int64), Primitive(Int64)},
		{Primitive(Int64), Primitive(Float32), Primitive(Float32)},
		{Primitive(Float32), Primitive(Float64), Primitive(Float64)},
		{Primitive(Int32), Object(), Object()},
		{Object(), Any(), Any()},
		{Primitive(Text), Any(), Any()},
		{nil, Primitive(Text), Primitive(Text)},
	}
	for _, tt := range tests {
		got, err := CommonSchema(tt.a, tt.b)
		if err != nil {
			t.Errorf("CommonSchema(%s, %s) failed: %v", tt.a, tt.b, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("CommonSchema(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		// LUB must be symmetric.
		rev, err := CommonSchema(tt.b, tt.a)
		if err != nil || !rev.Equal(tt.want) {
			t.Errorf("CommonSchema(%s, %s) = %s, %v; want %s", tt.b, tt.a, rev, err, tt.want)
		}
	}
}

func TestCommonSchema_Incompatible(t *testing.T) {
	if _, err := CommonSchema(Primitive(Text), Primitive(Int32)); err == nil {
		t.Fatal("TEXT and INT32 must not have a common schema")
	}
	e1 := NewEntity("A", Attr{"x", Primitive(Int32)})
	e2 := NewEntity("A", Attr{"x", Primitive(Int32)})
	if _, err := CommonSchema(e1, e2); err == nil {
		t.Fatal("distinct entity schemas must not unify")
	}
}

func TestValidateAssignment(t *testing.T) {
	if err := ValidateAssignment(Primitive(Int64), Primitive(Int64), "a", AssignOptions{}); err != nil {
		t.Errorf("exact match should be assignable: %v", err)
	}
	if err := ValidateAssignment(Object(), Primitive(Text), "a", AssignOptions{}); err != nil {
		t.Errorf("OBJECT target accepts anything: %v", err)
	}
	if err := ValidateAssignment(Any(), NewList(Primitive(Int32)), "a", AssignOptions{}); err != nil {
		t.Errorf("ANY target accepts anything: %v", err)
	}
	if err := ValidateAssignment(Primitive(Int64), Primitive(Int32), "a", AssignOptions{}); err == nil {
		t.Error("widening requires an explicit request")
	}
	if err := ValidateAssignment(Primitive(Int64), Primitive(Int32), "a", AssignOptions{AllowWiden: true}); err != nil {
		t.Errorf("explicit widening should pass: %v", err)
	}
	if err := ValidateAssignment(Primitive(Int32), Primitive(Int64), "a", AssignOptions{AllowWiden: true}); err == nil {
		t.Error("narrowing must fail even with AllowWiden")
	}
}

func TestValidateAssignment_ErrorNamesAttr(t *testing.T) {
	err := ValidateAssignment(Primitive(Float32), Primitive(Text), "x", AssignOptions{})
	if err == nil {
		t.Fatal("expected incompatibility")
	}
	var inc *IncompatibleError
	if !errors.As(err, &inc) {
		t.Fatalf("error is %T, want *IncompatibleError", err)
	}
	if inc.AttrPath != "x" {
		t.Errorf("AttrPath = %q, want x", inc.AttrPath)
	}
}

func TestSchemaString(t *testing.T) {
	l := NewList(Primitive(Int32))
	if got := l.String(); got != "LIST[INT32]" {
		t.Errorf("list String = %q", got)
	}
	d := NewDict(Primitive(Text), Primitive(Int64))
	if got := d.String(); got != "DICT{TEXT, INT64}" {
		t.Errorf("dict String = %q", got)
	}
}

func TestExportJSONSchema(t *testing.T) {
	e := NewEntity("Point",
		Attr{"x", Primitive(Float32)},
		Attr{"tags", NewList(Primitive(Text))},
	)
	out := ExportJSONSchema(e)
	if out.Type == nil {
		t.Fatal("exported entity schema has no type")
	}
	if out.Properties == nil {
		t.Fatal("exported entity schema has no properties")
	}
	if _, ok := out.Properties.Get("x"); !ok {
		t.Error("property x missing from export")
	}
	tags, ok := out.Properties.Get("tags")
	if !ok {
		t.Fatal("property tags missing from export")
	}
	if tags.Left == nil || tags.Left.Items == nil {
		t.Error("tags should export as an array with items")
	}
	if len(out.Required) != 2 {
		t.Errorf("Required = %v, want both attrs", out.Required)
	}
	if out.Title == nil || *out.Title != "Point" {
		t.Error("entity name should export as title")
	}
}
