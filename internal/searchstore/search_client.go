// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"bytes"
	"context"
	"fmt"

	"searchdal/internal/json"
)

// Client abstracts the search engine transport. Both the elasticsearch and
// the opensearch backends implement it, so the data layer above never touches
// engine specific request types.
type Client interface {
	CloseIndex(ctx context.Context, index string) error
	OpenIndex(ctx context.Context, index string) error
	Count(ctx context.Context, index string, body map[string]any) (int, error)
	CreateIndex(ctx context.Context, index string, body map[string]any) error
	DeleteIndex(ctx context.Context, index []string) error
	DeleteDoc(ctx context.Context, req *DeleteRequest) error
	Get(ctx context.Context, req *GetRequest) (*Hit, error)
	GetIndexAlias(ctx context.Context, name string) (map[string]any, error)
	GetIndexMappings(ctx context.Context, index string) (map[string]any, error)
	GetIndexSettings(ctx context.Context, index string) (map[string]any, error)
	IndexDoc(ctx context.Context, req *IndexRequest) error
	IndexExists(ctx context.Context, index string) (bool, error)
	MGet(ctx context.Context, req *MGetRequest) ([]Hit, error)
	PutIndexAlias(ctx context.Context, index []string, name string) error
	PutIndexMappings(ctx context.Context, index string, body map[string]any) error
	PutIndexSettings(ctx context.Context, index string, body map[string]any) error
	RefreshIndex(ctx context.Context, index string) error
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	SendBulkRequest(ctx context.Context, items []BulkItem) ([]BulkItem, error)
	Update(ctx context.Context, req *UpdateRequest) error
}

func Ptr[T any](i T) *T { return &i }

// CreateReader returns a reader on the JSON representation of the given value.
func CreateReader(value any) (*bytes.Reader, error) {
	bytesValue, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("unexpected marshaling error: %w", err)
	}
	return bytes.NewReader(bytesValue), nil
}

// VerifyResponse matches a bulk response against the items that were sent and
// returns the ones that failed, with their status and raw engine error
// attached. Bulk errors are per item, the request itself succeeds.
func VerifyResponse(bodyBytes []byte, items []BulkItem) (failed []BulkItem, err error) {
	var response BulkResponse

	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, fmt.Errorf("error unmarshaling response from search store: %w (%s)", err, bodyBytes)
	}

	if !response.Errors {
		return []BulkItem{}, nil
	}

	failed = []BulkItem{}
	for i, respItem := range response.Items {
		if items[i].Index != nil {
			if respItem.Index.Status > 299 {
				items[i].Status = respItem.Index.Status
				items[i].Error = respItem.Index.Error
				failed = append(failed, items[i])
			}
		} else if items[i].Delete != nil {
			if respItem.Delete.Status > 299 {
				items[i].Status = respItem.Delete.Status
				items[i].Error = respItem.Delete.Error
				failed = append(failed, items[i])
			}
		}
	}

	return failed, nil
}
