package schema

import (
	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"github.com/speakeasy-api/openapi/sequencedmap"
)

// ExportJSONSchema renders a schema as a JSON Schema document, for handing
// slice type information to tooling that speaks OpenAPI. The mapping is
// lossy in one direction only: OBJECT and ANY export as the unconstrained
// schema, MASK exports as boolean, ITEMID as an opaque string.
func ExportJSONSchema(s *Schema) *oas3.Schema {
	return exportJSONSchema(s, make(map[uint64]bool))
}

func exportJSONSchema(s *Schema, seen map[uint64]bool) *oas3.Schema {
	if s == nil {
		return &oas3.Schema{}
	}
	switch s.kind {
	case KindPrimitive:
		return exportPrimitive(s.dtype)
	case KindObject, KindAny:
		// Unconstrained: matches any value.
		return &oas3.Schema{}
	case KindItemID:
		return stringSchema("itemid")
	case KindSchema:
		return stringSchema("schema")
	case KindList:
		if seen[s.id] {
			return &oas3.Schema{}
		}
		seen[s.id] = true
		out := &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeArray)}
		out.Items = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](exportJSONSchema(s.item, seen))
		return out
	case KindDict:
		if seen[s.id] {
			return &oas3.Schema{}
		}
		seen[s.id] = true
		out := &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeObject)}
		out.AdditionalProperties = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](exportJSONSchema(s.value, seen))
		return out
	case KindEntity:
		if seen[s.id] {
			return &oas3.Schema{}
		}
		seen[s.id] = true
		props := sequencedmap.New[string, *oas3.JSONSchema[oas3.Referenceable]]()
		required := make([]string, 0, len(s.attrs))
		for _, a := range s.attrs {
			props.Set(a.Name, oas3.NewJSONSchemaFromSchema[oas3.Referenceable](exportJSONSchema(a.Schema, seen)))
			required = append(required, a.Name)
		}
		out := &oas3.Schema{
			Type:       oas3.NewTypeFromString(oas3.SchemaTypeObject),
			Properties: props,
			Required:   required,
		}
		if s.name != "" {
			title := s.name
			out.Title = &title
		}
		return out
	default:
		return &oas3.Schema{}
	}
}

func exportPrimitive(d DType) *oas3.Schema {
	switch d {
	case Int32, Int64:
		out := &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeInteger)}
		format := "int32"
		if d == Int64 {
			format = "int64"
		}
		out.Format = &format
		return out
	case Float32, Float64:
		out := &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeNumber)}
		format := "float"
		if d == Float64 {
			format = "double"
		}
		out.Format = &format
		return out
	case Text:
		return &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeString)}
	case Bytes:
		return stringSchema("byte")
	case Bool, Mask:
		return &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeBoolean)}
	default:
		return &oas3.Schema{}
	}
}

func stringSchema(format string) *oas3.Schema {
	out := &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeString)}
	out.Format = &format
	return out
}
