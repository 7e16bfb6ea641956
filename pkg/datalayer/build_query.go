// SPDX-License-Identifier: Apache-2.0

package datalayer

// BuildQuery turns a flat lookup into one bool query body. The reserved key
// "q" compiles to a lenient free text query_string clause requiring all
// terms, a list value to a terms clause and any other value to a term
// clause. Clause order follows the sorted key order so the output is
// deterministic.
func BuildQuery(lookup map[string]any) map[string]any {
	must := []any{}
	for _, key := range sortedKeys(lookup) {
		value := lookup[key]
		switch {
		case key == "q":
			q, _ := value.(string)
			must = append(must, buildQueryString(q, "", "AND"))
		case isList(value):
			must = append(must, map[string]any{"terms": map[string]any{key: value}})
		default:
			must = append(must, map[string]any{"term": map[string]any{key: value}})
		}
	}

	return map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": must}},
	}
}

func isList(value any) bool {
	switch value.(type) {
	case []any, []string, []int, []float64:
		return true
	}
	return false
}
