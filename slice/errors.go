package slice

import "fmt"

// AttributeNotFoundError reports access to an attribute the schema itself
// does not declare. A declared attribute with no value for some element is
// not an error; it reads as absent.
type AttributeNotFoundError struct {
	Attr   string
	Schema string
}

func (e *AttributeNotFoundError) Error() string {
	return fmt.Sprintf("the attribute '%s' is missing on the schema %s", e.Attr, e.Schema)
}

// TypeMismatchError reports heterogeneous primitive types where a single
// one is required, e.g. mixed leaves in a numeric aggregation or slice
// construction without an OBJECT schema.
type TypeMismatchError struct {
	Detail string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("mixed types is not supported: %s", e.Detail)
}

// BoundsError reports an out-of-range ndim or a rank-0 argument where a
// positive rank is required.
type BoundsError struct {
	Detail string
}

func (e *BoundsError) Error() string {
	return e.Detail
}

// DictKeyError reports an invalid dict key: wrong schema, invalid unicode,
// or an unhashable multi-element slice.
type DictKeyError struct {
	Detail string
}

func (e *DictKeyError) Error() string {
	return e.Detail
}

// NotImplementedError marks a deliberate, stable gap: a parameter that is
// accepted but whose behavior is reserved.
type NotImplementedError struct {
	What string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s is not yet implemented", e.What)
}
