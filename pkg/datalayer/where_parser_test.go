// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWhere(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		where string

		wantTerms map[string]any
		wantErr   error
	}{
		{
			name:      "json terms are taken literally",
			where:     `{"state":"published","urgency":3}`,
			wantTerms: map[string]any{"state": "published", "urgency": float64(3)},
		},
		{
			name:      "single comparison",
			where:     `state == "published"`,
			wantTerms: map[string]any{"state": "published"},
		},
		{
			name:      "conjunction of comparisons",
			where:     `state == "published" and urgency == 3`,
			wantTerms: map[string]any{"state": "published", "urgency": int64(3)},
		},
		{
			name:      "single quoted strings",
			where:     `desk == 'sports'`,
			wantTerms: map[string]any{"desk": "sports"},
		},
		{
			name:      "boolean and float literals",
			where:     `active == true and score == 1.5`,
			wantTerms: map[string]any{"active": true, "score": 1.5},
		},
		{
			name:      "dotted field names",
			where:     `task.desk == "sports"`,
			wantTerms: map[string]any{"task.desk": "sports"},
		},
		{
			name:    "unsupported operator fails both stages",
			where:   `urgency >= 3`,
			wantErr: ErrMalformedFilter{Where: `urgency >= 3`},
		},
		{
			name:    "unterminated string",
			where:   `state == "published`,
			wantErr: ErrMalformedFilter{Where: `state == "published`},
		},
		{
			name:    "trailing garbage",
			where:   `state == "published" or urgency == 3`,
			wantErr: ErrMalformedFilter{Where: `state == "published" or urgency == 3`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			terms, err := parseWhere(tc.where)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantTerms, terms)
		})
	}
}
