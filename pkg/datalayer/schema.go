// SPDX-License-Identifier: Apache-2.0

package datalayer

// FieldType is the closed set of resource field kinds the layer understands.
type FieldType uint

const (
	TypeString FieldType = iota
	TypeDateTime
	TypeInteger
	TypeNumber
	TypeBoolean
	TypeDict
	TypeList
)

// Field describes a single resource schema field. Exactly one engine mapping
// is resolvable per field; fields with no resolvable mapping are left
// untyped at the engine level.
type Field struct {
	Type   FieldType
	Unique bool

	// Mapping is an explicit engine mapping override, used verbatim after
	// legacy fix-up. It takes precedence over the type derivation.
	Mapping map[string]any

	// Schema is the nested sub-schema for TypeDict fields, or the item
	// sub-schema for TypeList fields.
	Schema Schema
}

// Schema maps field names to their descriptors.
type Schema map[string]Field

// DateFields returns the set of date typed fields for the schema: the audit
// timestamps plus every top level datetime field.
func DateFields(schema Schema) []string {
	dates := []string{FieldUpdated, FieldCreated}
	for field, fieldSchema := range schema {
		if fieldSchema.Type == TypeDateTime {
			dates = append(dates, field)
		}
	}
	return dates
}
