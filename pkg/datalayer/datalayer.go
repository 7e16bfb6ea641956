// SPDX-License-Identifier: Apache-2.0

// Package datalayer implements a resource oriented data access layer on top
// of an Elasticsearch or OpenSearch cluster. It compiles backend agnostic
// find parameters into engine query bodies, derives index mappings from
// resource schemas, manages index and alias lifecycle, and normalizes raw
// search responses into engine agnostic documents.
package datalayer

// Document is a normalized engine document. It always carries the identity
// and type fields, and date typed values are parsed into *time.Time.
type Document map[string]any

// Reserved document fields. Identity and the audit timestamps are engine
// managed, they are not part of the user facing resource schema.
const (
	FieldID      = "_id"
	FieldTypeTag = "_type"
	FieldCreated = "_created"
	FieldUpdated = "_updated"

	// FieldHighlight carries the highlight payload of a hit.
	FieldHighlight = "es_highlight"
	// FieldInnerHits carries flattened nested inner hit documents.
	FieldInnerHits = "_inner_hits"

	// response envelope side channels
	FieldFacets       = "_facets"
	FieldAggregations = "_aggregations"
)

func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}
