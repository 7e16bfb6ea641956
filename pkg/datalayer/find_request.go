// SPDX-License-Identifier: Apache-2.0

package datalayer

// SortField is one (field, direction) pair of a sort spec. A positive
// direction sorts ascending, anything else descending.
type SortField struct {
	Field     string
	Direction int
}

// SortSpec is an ordered sort specification. Order is preserved in the
// compiled query.
type SortSpec []SortField

// FindRequest carries the per call find parameters. The zero value is a
// valid request: no free text clause, no filters, no sort, no pagination.
type FindRequest struct {
	// Search is the free text search term. A phrase quoted term ("...")
	// combined with SearchField compiles to a phrase match, anything else
	// to a lenient query_string clause.
	Search string
	// SearchField is the default field for the free text clause.
	SearchField string
	// DefaultOperator is the boolean operator of the query_string clause.
	// Defaults to OR.
	DefaultOperator string

	// Source is a raw pre-built query body (JSON). It is adopted as the
	// query root; top level query clauses other than bool are re-flattened
	// into an explicit must list so later filters can be appended safely.
	Source string

	// Filter is a single caller supplied filter clause (JSON).
	Filter string
	// Filters is a caller supplied list of filter clauses.
	Filters []map[string]any
	// Where is a legacy filter: literal JSON term matches, or the
	// structured comparison grammar as a fallback.
	Where string

	Sort SortSpec

	Page       int
	MaxResults int

	// Aggregations authorizes attaching the resource aggregations, on top
	// of the process wide auto aggregations default.
	Aggregations bool
	// Highlight authorizes attaching the resource highlight configuration.
	Highlight bool

	// Projections restricts returned source fields.
	Projections []string
}

func (r *FindRequest) defaultOperator() string {
	if r.DefaultOperator == "" {
		return "OR"
	}
	return r.DefaultOperator
}
