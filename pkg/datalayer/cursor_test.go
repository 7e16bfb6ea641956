// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"searchdal/internal/searchstore"
)

func TestNewCursor(t *testing.T) {
	t.Parallel()

	t.Run("nil response yields an empty zero total cursor", func(t *testing.T) {
		t.Parallel()

		cursor := newCursor(nil, nil)
		require.Equal(t, 0, cursor.Count())
		require.Equal(t, 0, cursor.Len())
		require.Nil(t, cursor.First())
	})

	t.Run("documents keep engine order and total count", func(t *testing.T) {
		t.Parallel()

		cursor := newCursor(&searchstore.SearchResponse{
			Hits: searchstore.Hits{
				Total: searchstore.TotalHits{Value: 7},
				Hits: []searchstore.Hit{
					{ID: "1", Source: map[string]any{"headline": "first"}},
					{ID: "2", Source: map[string]any{"headline": "second"}},
				},
			},
		}, nil)

		require.Equal(t, 7, cursor.Count())
		require.Equal(t, 2, cursor.Len())
		require.Equal(t, "first", cursor.First()["headline"])
		require.Equal(t, "second", cursor.At(1)["headline"])
	})
}

func TestFormatHit(t *testing.T) {
	t.Parallel()

	parsed, err := time.Parse("2006-01-02T15:04:05", "2023-01-01T00:00:00")
	require.NoError(t, err)

	tests := []struct {
		name       string
		hit        searchstore.Hit
		dateFields []string

		wantDoc Document
	}{
		{
			name: "identity and type come from the envelope when the source lacks them",
			hit:  searchstore.Hit{ID: "abc", Type: "items", Source: map[string]any{"headline": "tools"}},
			wantDoc: Document{
				"_id":      "abc",
				"_type":    "items",
				"headline": "tools",
			},
		},
		{
			name: "source identity is kept",
			hit: searchstore.Hit{ID: "abc", Type: "items", Source: map[string]any{
				"_id": "custom", "_type": "archive",
			}},
			wantDoc: Document{"_id": "custom", "_type": "archive"},
		},
		{
			name: "missing source still yields identity and type",
			hit:  searchstore.Hit{ID: "abc", Type: "items"},
			wantDoc: Document{
				"_id":   "abc",
				"_type": "items",
			},
		},
		{
			name: "highlight payload is attached",
			hit: searchstore.Hit{
				ID:        "abc",
				Type:      "items",
				Source:    map[string]any{},
				Highlight: map[string]any{"headline": []any{"<em>tools</em>"}},
			},
			wantDoc: Document{
				"_id":          "abc",
				"_type":        "items",
				"es_highlight": map[string]any{"headline": []any{"<em>tools</em>"}},
			},
		},
		{
			name: "date fields are coerced from string and single element list",
			hit: searchstore.Hit{ID: "abc", Type: "items", Source: map[string]any{
				"_created": "2023-01-01T00:00:00",
				"_updated": []any{"2023-01-01T00:00:00"},
			}},
			dateFields: []string{"_created", "_updated"},
			wantDoc: Document{
				"_id":      "abc",
				"_type":    "items",
				"_created": &parsed,
				"_updated": &parsed,
			},
		},
		{
			name: "empty date values coerce to nil",
			hit: searchstore.Hit{ID: "abc", Type: "items", Source: map[string]any{
				"_created": "",
				"_updated": []any{},
			}},
			dateFields: []string{"_created", "_updated", "published"},
			wantDoc: Document{
				"_id":      "abc",
				"_type":    "items",
				"_created": (*time.Time)(nil),
				"_updated": (*time.Time)(nil),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.wantDoc, formatHit(&tc.hit, tc.dateFields))
		})
	}
}

func TestFormatHit_InnerHits(t *testing.T) {
	t.Parallel()

	group := searchstore.InnerHitGroup{}
	group.Hits.Hits = []searchstore.Hit{
		{ID: "nested-1", Source: map[string]any{"state": "assigned"}},
		{ID: "nested-2"},
	}

	hit := searchstore.Hit{
		ID:        "abc",
		Type:      "items",
		Source:    map[string]any{},
		InnerHits: map[string]searchstore.InnerHitGroup{"assignments": group},
	}

	doc := formatHit(&hit, nil)
	require.Equal(t, map[string][]map[string]any{
		"assignments": {
			{"state": "assigned"},
			{},
		},
	}, doc["_inner_hits"])
}

func TestCursor_Extra(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response *searchstore.SearchResponse

		wantEnvelope map[string]any
	}{
		{
			name: "facets and aggregations merge into the envelope",
			response: &searchstore.SearchResponse{
				Facets:       map[string]any{"desk": map[string]any{}},
				Aggregations: map[string]any{"desk": map[string]any{}},
			},
			wantEnvelope: map[string]any{
				"_facets":       map[string]any{"desk": map[string]any{}},
				"_aggregations": map[string]any{"desk": map[string]any{}},
			},
		},
		{
			name:         "no side channels leave the envelope untouched",
			response:     &searchstore.SearchResponse{},
			wantEnvelope: map[string]any{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			envelope := map[string]any{}
			newCursor(tc.response, nil).Extra(envelope)
			require.Equal(t, tc.wantEnvelope, envelope)
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	parsed, err := time.Parse("2006-01-02T15:04:05", "2023-01-01T00:00:00")
	require.NoError(t, err)

	stringValue := ParseDate("2023-01-01T00:00:00")
	listValue := ParseDate([]any{"2023-01-01T00:00:00"})

	require.NotNil(t, stringValue)
	require.NotNil(t, listValue)
	require.Equal(t, parsed, *stringValue)
	require.Equal(t, *stringValue, *listValue)

	require.Nil(t, ParseDate(nil))
	require.Nil(t, ParseDate(""))
	require.Nil(t, ParseDate([]any{}))
	require.Nil(t, ParseDate("not a date"))

	withZone := ParseDate("2023-01-01T00:00:00+01:00")
	require.NotNil(t, withZone)
	require.Equal(t, 2023, withZone.Year())
}
