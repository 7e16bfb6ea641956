// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"time"

	"searchdal/internal/searchstore"
)

// Cursor owns a raw search response and its derived ordered documents.
type Cursor struct {
	response *searchstore.SearchResponse
	docs     []Document
}

// newCursor normalizes a raw response. A nil response yields an empty zero
// total cursor.
func newCursor(response *searchstore.SearchResponse, dateFields []string) *Cursor {
	if response == nil {
		response = &searchstore.SearchResponse{}
	}

	docs := make([]Document, 0, len(response.Hits.Hits))
	for i := range response.Hits.Hits {
		docs = append(docs, formatHit(&response.Hits.Hits[i], dateFields))
	}

	return &Cursor{response: response, docs: docs}
}

// Count returns the total hit count reported by the engine, zero when the
// response carries none.
func (c *Cursor) Count() int {
	return c.response.Hits.Total.Value
}

func (c *Cursor) Len() int {
	return len(c.docs)
}

func (c *Cursor) At(i int) Document {
	return c.docs[i]
}

// First returns the first document, or nil when the cursor is empty.
func (c *Cursor) First() Document {
	if len(c.docs) == 0 {
		return nil
	}
	return c.docs[0]
}

func (c *Cursor) All() []Document {
	return c.docs
}

// Extra merges the facet and aggregation side channels of the raw response
// into the outer response envelope, without duplicating them per document.
func (c *Cursor) Extra(response map[string]any) {
	if c.response.Facets != nil {
		response[FieldFacets] = c.response.Facets
	}
	if c.response.Aggregations != nil {
		response[FieldAggregations] = c.response.Aggregations
	}
}

// formatHit builds a normalized document from a hit. Identity and type are
// populated from the envelope when the source lacks them, the highlight
// payload is attached when present, and nested inner hits are flattened to
// their source bodies.
func formatHit(hit *searchstore.Hit, dateFields []string) Document {
	doc := make(Document, len(hit.Source)+2)
	for k, v := range hit.Source {
		doc[k] = v
	}

	if _, ok := doc[FieldID]; !ok {
		doc[FieldID] = hit.ID
	}
	if _, ok := doc[FieldTypeTag]; !ok {
		doc[FieldTypeTag] = hit.Type
	}

	if len(hit.Highlight) > 0 {
		doc[FieldHighlight] = hit.Highlight
	}

	if len(hit.InnerHits) > 0 {
		inner := make(map[string][]map[string]any, len(hit.InnerHits))
		for name, group := range hit.InnerHits {
			items := make([]map[string]any, 0, len(group.Hits.Hits))
			for _, innerHit := range group.Hits.Hits {
				source := innerHit.Source
				if source == nil {
					source = map[string]any{}
				}
				items = append(items, source)
			}
			inner[name] = items
		}
		doc[FieldInnerHits] = inner
	}

	for _, key := range dateFields {
		if _, ok := doc[key]; ok {
			doc[key] = ParseDate(doc[key])
		}
	}

	return doc
}

// engine date representations, longest first
var dateFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the engine's date representation into a *time.Time. It
// tolerates a bare timestamp string and a single element list wrapping one.
// Empty or absent values yield nil rather than an error.
func ParseDate(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return parseDateString(v)
	case []any:
		if len(v) == 0 {
			return nil
		}
		if s, ok := v[0].(string); ok {
			return parseDateString(s)
		}
	case []string:
		if len(v) == 0 {
			return nil
		}
		return parseDateString(v[0])
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func parseDateString(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return &t
		}
	}
	return nil
}
