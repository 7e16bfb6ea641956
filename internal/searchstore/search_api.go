// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type SearchRequest struct {
	Index          []string
	Size           *int
	From           *int
	Routing        *string
	SourceIncludes *string
	Query          io.Reader
}

type GetRequest struct {
	Index   string
	ID      string
	Routing *string
}

type MGetRequest struct {
	Index string
	IDs   []string
}

type IndexRequest struct {
	Index   string
	ID      string
	Body    []byte
	Routing *string
	Refresh string
}

type UpdateRequest struct {
	Index           string
	ID              string
	Doc             []byte
	Routing         *string
	Refresh         string
	RetryOnConflict *int
}

type DeleteRequest struct {
	Index   string
	ID      string
	Routing *string
	Refresh string
}

type BulkItem struct {
	Index  *BulkIndex      `json:"index,omitempty"`
	Delete *BulkIndex      `json:"delete,omitempty"`
	Doc    map[string]any  `json:"-"`
	Status int             `json:"-"`
	Error  json.RawMessage `json:"-"`
}

type BulkIndex struct {
	Index   string  `json:"_index"`
	ID      string  `json:"_id,omitempty"`
	Routing *string `json:"routing,omitempty"`
}

type BulkResponseItem struct {
	Index struct {
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error"`
	} `json:"index"`
	Delete struct {
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error"`
	} `json:"delete"`
}

type BulkResponse struct {
	Errors bool               `json:"errors"`
	Items  []BulkResponseItem `json:"items"`
}

type Hit struct {
	ID        string                   `json:"_id"`
	Index     string                   `json:"_index"`
	Type      string                   `json:"_type"`
	Source    map[string]any           `json:"_source"`
	Score     float64                  `json:"_score"`
	Highlight map[string]any           `json:"highlight"`
	InnerHits map[string]InnerHitGroup `json:"inner_hits"`
	Found     *bool                    `json:"found"`
}

type InnerHitGroup struct {
	Hits struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// TotalHits tolerates both response shapes the engines emit: a bare integer
// total (older versions) and an envelope carrying a value field.
type TotalHits struct {
	Value    int    `json:"value"`
	Relation string `json:"relation"`
}

func (t *TotalHits) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return json.Unmarshal(trimmed, &t.Value)
	}

	var envelope struct {
		Value    int    `json:"value"`
		Relation string `json:"relation"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	t.Value = envelope.Value
	t.Relation = envelope.Relation
	return nil
}

type Hits struct {
	Total TotalHits `json:"total"`
	Hits  []Hit     `json:"hits"`
}

type SearchResponse struct {
	Hits         Hits           `json:"hits"`
	Facets       map[string]any `json:"facets"`
	Aggregations map[string]any `json:"aggregations"`
}

type MGetResponse struct {
	Docs []Hit `json:"docs"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type IndexDocResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

func EncodeBulkItems(buffer *bytes.Buffer, items []BulkItem) error {
	encoder := json.NewEncoder(buffer)

	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("bulk item [%v]: encode item action %w", item, err)
		}

		if item.Delete != nil {
			continue
		}

		if item.Doc == nil {
			buffer.WriteString("{}\n")
			continue
		}

		if err := encoder.Encode(item.Doc); err != nil {
			return fmt.Errorf("bulk item [%v]: encode item document action %w", item, err)
		}
	}

	return nil
}
