// SPDX-License-Identifier: Apache-2.0

package datalayer

// ParentLink declares a parent/child relation for a resource: documents
// carry the parent identity in Field and are routed alongside it.
type ParentLink struct {
	Type  string
	Field string
}

// DeriveMapping derives the engine mapping from a resource schema. The audit
// timestamps are always injected at the top level and the synthetic identity
// field is always stripped, identity is engine native. When a parent link is
// configured the parent relation declaration is attached alongside the
// properties.
func DeriveMapping(schema Schema, parent *ParentLink) map[string]any {
	mapping := deriveProperties(schema)

	properties := mapping["properties"].(map[string]any)
	properties[FieldCreated] = map[string]any{"type": "date"}
	properties[FieldUpdated] = map[string]any{"type": "date"}
	delete(properties, FieldID)

	if parent != nil {
		mapping["_parent"] = map[string]any{"type": parent.Type}
	}

	return mapping
}

func deriveProperties(schema Schema) map[string]any {
	properties := map[string]any{}
	for field, fieldSchema := range schema {
		if fieldMapping := fieldMapping(fieldSchema); fieldMapping != nil {
			properties[field] = fieldMapping
		}
	}
	return map[string]any{"properties": properties}
}

// fieldMapping resolves the engine mapping for a single field descriptor.
// A nil return means the field carries no engine mapping at all.
func fieldMapping(field Field) map[string]any {
	if field.Mapping != nil {
		return fixLegacyMapping(field.Mapping)
	}

	switch field.Type {
	case TypeDict:
		if field.Schema != nil {
			return deriveProperties(field.Schema)
		}
	case TypeList:
		if field.Schema != nil {
			return deriveProperties(field.Schema)
		}
	case TypeDateTime:
		return map[string]any{"type": "date"}
	case TypeString:
		if field.Unique {
			return map[string]any{"type": "keyword"}
		}
		return map[string]any{"type": "text"}
	case TypeInteger, TypeNumber, TypeBoolean:
		// untyped at the engine level
	}
	return nil
}

// fixLegacyMapping rewrites pre 5.x string mappings into their modern
// equivalents: an exact match string becomes a keyword, any other string
// becomes analyzed text.
func fixLegacyMapping(mapping map[string]any) map[string]any {
	fixed := make(map[string]any, len(mapping))
	for k, v := range mapping {
		fixed[k] = v
	}

	if fixed["type"] == "string" {
		if fixed["index"] == "not_analyzed" {
			fixed["type"] = "keyword"
			delete(fixed, "index")
		} else {
			fixed["type"] = "text"
		}
	}
	return fixed
}
