// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"sort"
	"strings"

	"searchdal/internal/json"
)

// compileQuery translates the find parameters into one engine query body.
// The compiled must list order is deterministic: free text clause first, then
// filters in their fixed composition order.
func (s *Store) compileQuery(res *Resource, req *FindRequest, subLookup map[string]any) (map[string]any, error) {
	query, err := adoptQuerySource(req.Source)
	if err != nil {
		return nil, err
	}

	if req.Search != "" {
		appendMust(query, buildQueryString(req.Search, req.SearchField, req.defaultOperator()))
	}

	if _, ok := query["sort"]; !ok {
		switch {
		case len(req.Sort) > 0:
			setSort(query, req.Sort)
		case len(res.DefaultSort) > 0 && !hasEmbeddedSort(query):
			// the default sort is declared in engine form already
			query["sort"] = res.DefaultSort
		}
	}

	if req.MaxResults > 0 {
		if _, ok := query["size"]; !ok {
			query["size"] = req.MaxResults
		}
		if req.Page > 1 {
			if _, ok := query["from"]; !ok {
				query["from"] = (req.Page - 1) * req.MaxResults
			}
		}
	}

	filters, err := s.collectFilters(res, req, subLookup)
	if err != nil {
		return nil, err
	}
	setFilters(query, filters)

	if res.Facets != nil {
		query["facets"] = res.Facets
	}

	if res.Aggregations != nil && s.shouldAggregate(res, req) {
		query["aggs"] = res.Aggregations
	}

	if res.HighlightCallback != nil && req.Highlight {
		setHighlight(query, res.HighlightCallback)
	}

	return query, nil
}

// adoptQuerySource parses a raw caller supplied query body and re-flattens
// any top level query clause other than bool into an explicit must list, so
// filter injection can append to it later. Without a raw source an empty
// bool query is returned.
func adoptQuerySource(source string) (map[string]any, error) {
	if source == "" {
		return map[string]any{"query": map[string]any{"bool": map[string]any{}}}, nil
	}

	query := map[string]any{}
	if err := json.UnmarshalString(source, &query); err != nil {
		return nil, ErrMalformedFilter{Where: source}
	}

	inner, ok := query["query"].(map[string]any)
	if !ok {
		inner = map[string]any{}
		query["query"] = inner
	}

	for _, key := range sortedKeys(inner) {
		// bool stays where it is, and sort inside the query body is not a
		// query clause
		if key == "bool" || key == "sort" {
			continue
		}
		clause := map[string]any{key: inner[key]}
		delete(inner, key)
		appendMust(query, clause)
	}
	return query, nil
}

// buildQueryString builds the free text clause. Phrase quoted input with a
// default field compiles to a phrase match on that field, anything else to a
// lenient query_string clause.
func buildQueryString(q, defaultField, defaultOperator string) map[string]any {
	if isPhraseSearch(q) && defaultField != "" {
		return map[string]any{
			"match_phrase": map[string]any{defaultField: phrase(q)},
		}
	}

	queryString := map[string]any{
		"query":            q,
		"default_operator": defaultOperator,
		"lenient":          true,
	}
	if defaultField != "" {
		queryString["default_field"] = defaultField
	}
	return map[string]any{"query_string": queryString}
}

func isPhraseSearch(q string) bool {
	clean := strings.TrimSpace(q)
	return len(clean) > 1 && strings.HasPrefix(clean, `"`) && strings.HasSuffix(clean, `"`)
}

func phrase(q string) string {
	return strings.Trim(strings.TrimSpace(q), `"`)
}

// collectFilters gathers all filters in their fixed precedence order: the
// resource static filter, the resource filter callback, the sub resource
// lookup terms, the caller single filter and the caller filter list, then
// the legacy where clause. Nil entries are kept in place and skipped when
// setting them on the query.
func (s *Store) collectFilters(res *Resource, req *FindRequest, subLookup map[string]any) ([]map[string]any, error) {
	filters := []map[string]any{}

	filters = append(filters, res.Filter)
	if res.FilterCallback != nil {
		filters = append(filters, res.FilterCallback())
	}

	if len(subLookup) > 0 {
		filters = append(filters, map[string]any{
			"bool": map[string]any{"must": lookupFilter(subLookup)},
		})
	} else {
		filters = append(filters, nil)
	}

	if req.Filter != "" {
		filter := map[string]any{}
		if err := json.UnmarshalString(req.Filter, &filter); err != nil {
			return nil, ErrMalformedFilter{Where: req.Filter}
		}
		filters = append(filters, filter)
	}
	filters = append(filters, req.Filters...)

	if req.Where != "" {
		terms, err := parseWhere(req.Where)
		if err != nil {
			return nil, err
		}
		filters = append(filters, map[string]any{"term": terms})
	}

	return filters, nil
}

// lookupFilter turns each lookup key/value into one term clause, in
// deterministic key order.
func lookupFilter(lookup map[string]any) []any {
	terms := make([]any, 0, len(lookup))
	for _, key := range sortedKeys(lookup) {
		terms = append(terms, map[string]any{"term": map[string]any{key: lookup[key]}})
	}
	return terms
}

// setFilters appends every non nil filter to the query's top level must
// list, preserving order.
func setFilters(query map[string]any, filters []map[string]any) {
	boolQuery := queryBool(query)
	for _, f := range filters {
		if f != nil {
			appendBoolMust(boolQuery, f)
		}
	}
}

func setSort(query map[string]any, spec SortSpec) {
	compiled := make([]any, 0, len(spec))
	for _, sf := range spec {
		dir := "asc"
		if sf.Direction <= 0 {
			dir = "desc"
		}
		compiled = append(compiled, map[string]any{sf.Field: dir})
	}
	query["sort"] = compiled
}

// setHighlight derives the highlight section from a query_string clause
// found in must. When several free text clauses are present the last one
// wins; multiple clause highlighting is not supported. If no query_string
// clause is present, no highlight section is attached.
func setHighlight(query map[string]any, callback func(queryString map[string]any) map[string]any) {
	var queryString map[string]any
	for _, clause := range mustList(query) {
		m, ok := clause.(map[string]any)
		if !ok {
			continue
		}
		if qs, ok := m["query_string"].(map[string]any); ok {
			queryString = qs
		}
	}
	if queryString == nil {
		return
	}

	highlight := callback(queryString)
	if highlight == nil {
		return
	}
	if _, ok := highlight["require_field_match"]; !ok {
		highlight["require_field_match"] = false
	}
	query["highlight"] = highlight
}

func (s *Store) shouldAggregate(res *Resource, req *FindRequest) bool {
	return s.cfg.engine(res.Prefix).AutoAggregations || req.Aggregations
}

// queryBool returns the bool clause of the query, creating it when absent.
func queryBool(query map[string]any) map[string]any {
	inner, ok := query["query"].(map[string]any)
	if !ok {
		inner = map[string]any{}
		query["query"] = inner
	}
	boolQuery, ok := inner["bool"].(map[string]any)
	if !ok {
		boolQuery = map[string]any{}
		inner["bool"] = boolQuery
	}
	return boolQuery
}

func appendMust(query map[string]any, clause map[string]any) {
	appendBoolMust(queryBool(query), clause)
}

func appendBoolMust(boolQuery, clause map[string]any) {
	must, _ := boolQuery["must"].([]any)
	boolQuery["must"] = append(must, clause)
}

func mustList(query map[string]any) []any {
	inner, ok := query["query"].(map[string]any)
	if !ok {
		return nil
	}
	boolQuery, ok := inner["bool"].(map[string]any)
	if !ok {
		return nil
	}
	must, _ := boolQuery["must"].([]any)
	return must
}

// hasEmbeddedSort reports whether a raw query source carries its own sort
// inside the query body.
func hasEmbeddedSort(query map[string]any) bool {
	inner, ok := query["query"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = inner["sort"]
	return ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
