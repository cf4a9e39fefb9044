package schema

import "fmt"

// IncompatibleError reports a value schema that cannot satisfy a target
// schema. AttrPath names the offending attribute when the failure happened
// inside an entity assignment; it is empty for top-level failures.
type IncompatibleError struct {
	AttrPath string
	Target   *Schema
	Value    *Schema
}

func (e *IncompatibleError) Error() string {
	if e.AttrPath != "" {
		return fmt.Sprintf("the schema for attribute '%s' is incompatible: expected %s, assigned %s",
			e.AttrPath, e.Target, e.Value)
	}
	return fmt.Sprintf("schemas are incompatible: expected %s, assigned %s", e.Target, e.Value)
}

// CommonSchema returns the least upper bound of two schemas. Equal schemas
// are their own bound; numeric primitives widen along
// INT32 < INT64 < FLOAT32 < FLOAT64; OBJECT absorbs anything except ANY;
// ANY absorbs everything. A nil input stands for "no data yet" and yields
// the other side. Anything else has no common schema.
func CommonSchema(a, b *Schema) (*Schema, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.Equal(b) {
		return a, nil
	}
	if a.kind == KindAny || b.kind == KindAny {
		return Any(), nil
	}
	if a.kind == KindObject || b.kind == KindObject {
		return Object(), nil
	}
	if a.IsPrimitive() && b.IsPrimitive() && a.dtype.IsNumeric() && b.dtype.IsNumeric() {
		if numericRank(a.dtype) >= numericRank(b.dtype) {
			return a, nil
		}
		return b, nil
	}
	return nil, &IncompatibleError{Target: a, Value: b}
}

// AssignOptions configure ValidateAssignment.
type AssignOptions struct {
	// AllowWiden permits assigning a narrower numeric value into a wider
	// numeric slot. Off by default: assignment requires exact equality
	// unless the target is OBJECT or ANY.
	AllowWiden bool
}

// ValidateAssignment checks that a value of schema value may be stored into
// a slot typed target. attrPath is carried into the error to pinpoint the
// faulty attribute without re-scanning.
func ValidateAssignment(target, value *Schema, attrPath string, opts AssignOptions) error {
	if target == nil || value == nil {
		// Absent data satisfies every slot; an untyped slot accepts nothing
		// but absent data.
		if value == nil {
			return nil
		}
		return &IncompatibleError{AttrPath: attrPath, Target: target, Value: value}
	}
	switch target.kind {
	case KindObject, KindAny:
		return nil
	}
	if target.Equal(value) {
		return nil
	}
	if opts.AllowWiden && target.IsPrimitive() && value.IsPrimitive() &&
		target.dtype.IsNumeric() && value.dtype.IsNumeric() &&
		numericRank(target.dtype) >= numericRank(value.dtype) {
		return nil
	}
	return &IncompatibleError{AttrPath: attrPath, Target: target, Value: value}
}
