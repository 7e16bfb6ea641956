// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"searchdal/internal/backoff"
	backoffmocks "searchdal/internal/backoff/mocks"
	"searchdal/internal/json"
	"searchdal/internal/searchstore"
	"searchdal/internal/searchstore/mocks"
)

func decodeQuery(t *testing.T, reader io.Reader) map[string]any {
	t.Helper()

	bytes, err := io.ReadAll(reader)
	require.NoError(t, err)

	query := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes, &query))
	return query
}

func TestStore_Find(t *testing.T) {
	t.Parallel()

	errTest := errors.New("oh noes")

	tests := []struct {
		name      string
		req       *FindRequest
		searchErr error

		wantIndex      []string
		wantIncludes   *string
		wantCount      int
		wantErr        error
		wantEmptyShape bool
	}{
		{
			name:      "ok",
			req:       &FindRequest{Search: "tools"},
			wantIndex: []string{"sd_items"},
			wantCount: 7,
		},
		{
			name:         "projections become the source filter",
			req:          &FindRequest{Projections: []string{"headline", "state"}},
			wantIndex:    []string{"sd_items"},
			wantIncludes: searchstore.Ptr("headline,state"),
			wantCount:    7,
		},
		{
			name:           "missing index is an empty result",
			req:            &FindRequest{},
			searchErr:      searchstore.ErrResourceNotFound,
			wantIndex:      []string{"sd_items"},
			wantEmptyShape: true,
		},
		{
			name:           "missing field mapping is an empty result",
			req:            &FindRequest{Search: "tools"},
			searchErr:      fmt.Errorf("%w: No mapping found for [headline]", searchstore.ErrMappingNotFound),
			wantIndex:      []string{"sd_items"},
			wantEmptyShape: true,
		},
		{
			name:      "engine parse failure surfaces as invalid search string",
			req:       &FindRequest{Search: "AND tools"},
			searchErr: fmt.Errorf("%w: parse failure", searchstore.ErrQueryStringInvalid),
			wantIndex: []string{"sd_items"},
			wantErr:   ErrInvalidSearchString,
		},
		{
			name:      "transport errors propagate",
			req:       &FindRequest{},
			searchErr: errTest,
			wantIndex: []string{"sd_items"},
			wantErr:   errTest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &mocks.Client{
				SearchFn: func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
					require.Equal(t, tc.wantIndex, req.Index)
					require.Equal(t, tc.wantIncludes, req.SourceIncludes)
					if tc.searchErr != nil {
						return nil, tc.searchErr
					}
					return &searchstore.SearchResponse{
						Hits: searchstore.Hits{
							Total: searchstore.TotalHits{Value: 7},
							Hits:  []searchstore.Hit{{ID: "1", Source: map[string]any{"headline": "tools"}}},
						},
					}, nil
				},
			}
			s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
				&Resource{Name: "items", Schema: Schema{"headline": {Type: TypeString}}})

			cursor, err := s.Find(context.Background(), "items", tc.req)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			if tc.wantEmptyShape {
				require.Equal(t, 0, cursor.Count())
				require.Equal(t, 0, cursor.Len())
				return
			}
			require.Equal(t, tc.wantCount, cursor.Count())
			require.Equal(t, "1", cursor.First().ID())
		})
	}
}

func TestStore_Find_UnknownResource(t *testing.T) {
	t.Parallel()

	s := newMockStore(t, &Config{}, &mocks.Client{})
	_, err := s.Find(context.Background(), "nope", &FindRequest{})
	require.ErrorIs(t, err, ErrResourceNotConfigured{Resource: "nope"})
}

func TestStore_FindOne(t *testing.T) {
	t.Parallel()

	t.Run("lookup terms become individual term clauses", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SearchFn: func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
				query := decodeQuery(t, req.Query)
				require.Equal(t, float64(1), query["size"])
				require.Equal(t, []any{
					map[string]any{"bool": map[string]any{"must": []any{
						map[string]any{"term": map[string]any{"desk": "sports"}},
						map[string]any{"term": map[string]any{"state": "draft"}},
					}}},
				}, mustList(query))
				return &searchstore.SearchResponse{
					Hits: searchstore.Hits{
						Total: searchstore.TotalHits{Value: 1},
						Hits:  []searchstore.Hit{{ID: "1", Source: map[string]any{"state": "draft"}}},
					},
				}, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		doc, err := s.FindOne(context.Background(), "items", map[string]any{"state": "draft", "desk": "sports"})
		require.NoError(t, err)
		require.Equal(t, "1", doc.ID())
	})

	t.Run("identity lookup resolves through a direct get", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			GetFn: func(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
				require.Equal(t, "sd_items", req.Index)
				require.Equal(t, "abc", req.ID)
				return &searchstore.Hit{ID: "abc", Source: map[string]any{"headline": "tools"}}, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		doc, err := s.FindOne(context.Background(), "items", map[string]any{"_id": "abc"})
		require.NoError(t, err)
		require.Equal(t, "abc", doc.ID())
	})
}

func TestStore_FindByID(t *testing.T) {
	t.Parallel()

	fallbackResponse := &searchstore.SearchResponse{
		Hits: searchstore.Hits{
			Total: searchstore.TotalHits{Value: 1},
			Hits:  []searchstore.Hit{{ID: "abc", Source: map[string]any{"headline": "tools"}}},
		},
	}

	t.Run("missing document is nil without error", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			GetFn: func(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
				return nil, fmt.Errorf("%w: no such doc", searchstore.ErrResourceNotFound)
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		doc, err := s.FindByID(context.Background(), "items", "abc")
		require.NoError(t, err)
		require.Nil(t, doc)
	})

	t.Run("routing missing falls back to a term search by identity", func(t *testing.T) {
		t.Parallel()

		var searched bool
		client := &mocks.Client{
			GetFn: func(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
				return nil, fmt.Errorf("%w: routing is required", searchstore.ErrRoutingMissing)
			},
			SearchFn: func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
				searched = true
				query := decodeQuery(t, req.Query)
				require.Equal(t, []any{
					map[string]any{"bool": map[string]any{"must": []any{
						map[string]any{"term": map[string]any{"_id": "abc"}},
					}}},
				}, mustList(query))
				return fallbackResponse, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		doc, err := s.FindByID(context.Background(), "items", "abc")
		require.NoError(t, err)
		require.True(t, searched)
		require.Equal(t, "abc", doc.ID())
	})

	t.Run("parent child resources search directly", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SearchFn: func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
				return fallbackResponse, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "assignments", Parent: &ParentLink{Type: "items", Field: "item"}})

		doc, err := s.FindByID(context.Background(), "assignments", "abc")
		require.NoError(t, err)
		require.Equal(t, "abc", doc.ID())
	})
}

func TestStore_FindByIDs(t *testing.T) {
	t.Parallel()

	client := &mocks.Client{
		MGetFn: func(ctx context.Context, req *searchstore.MGetRequest) ([]searchstore.Hit, error) {
			require.Equal(t, "sd_items", req.Index)
			require.Equal(t, []string{"1", "2", "3"}, req.IDs)
			return []searchstore.Hit{
				{ID: "1", Source: map[string]any{"headline": "first"}, Found: searchstore.Ptr(true)},
				{ID: "2", Found: searchstore.Ptr(false)},
				{ID: "3", Source: map[string]any{"headline": "third"}, Found: searchstore.Ptr(true)},
			}, nil
		},
	}
	s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
		&Resource{Name: "items"})

	docs, err := s.FindByIDs(context.Background(), "items", []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "1", docs[0].ID())
	require.Equal(t, "3", docs[1].ID())
}

func TestStore_Insert(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	var requests []*searchstore.IndexRequest
	client := &mocks.Client{
		IndexDocFn: func(ctx context.Context, req *searchstore.IndexRequest) error {
			requests = append(requests, req)
			return nil
		},
	}
	s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd", ForceRefresh: true}}, client,
		&Resource{Name: "assignments", Parent: &ParentLink{Type: "items", Field: "item"}})
	s.now = func() time.Time { return now }
	s.generateID = func() string { return "generated" }

	ids, err := s.Insert(context.Background(), "assignments", []Document{
		{"_id": "abc", "state": "assigned", "item": "parent-1"},
		{"state": "draft"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"abc", "generated"}, ids)
	require.Len(t, requests, 2)

	first := requests[0]
	require.Equal(t, "sd_assignments", first.Index)
	require.Equal(t, "abc", first.ID)
	require.Equal(t, searchstore.Ptr("parent-1"), first.Routing)
	require.Equal(t, "true", first.Refresh)

	// identity is carried by the id parameter, not the payload
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(first.Body, &body))
	require.NotContains(t, body, "_id")
	require.Equal(t, "assigned", body["state"])
	require.Contains(t, body, "_created")
	require.Contains(t, body, "_updated")

	require.Nil(t, requests[1].Routing)
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		var updated *searchstore.UpdateRequest
		client := &mocks.Client{
			UpdateFn: func(ctx context.Context, req *searchstore.UpdateRequest) error {
				updated = req
				return nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		require.NoError(t, s.Update(context.Background(), "items", "abc", Document{"state": "published"}))
		require.Equal(t, "sd_items", updated.Index)
		require.Equal(t, "abc", updated.ID)
		require.Equal(t, searchstore.Ptr(5), updated.RetryOnConflict)

		doc := map[string]any{}
		require.NoError(t, json.Unmarshal(updated.Doc, &doc))
		require.Equal(t, "published", doc["state"])
		require.Contains(t, doc, "_updated")
	})

	t.Run("configured conflict retries are passed through", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			UpdateFn: func(ctx context.Context, req *searchstore.UpdateRequest) error {
				require.Equal(t, searchstore.Ptr(2), req.RetryOnConflict)
				return nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd", RetryOnConflict: 2}}, client,
			&Resource{Name: "items"})

		require.NoError(t, s.Update(context.Background(), "items", "abc", Document{"state": "published"}))
	})

	t.Run("missing identity", func(t *testing.T) {
		t.Parallel()

		s := newMockStore(t, &Config{}, &mocks.Client{}, &Resource{Name: "items"})
		require.ErrorIs(t, s.Update(context.Background(), "items", "", Document{}), ErrMissingLookupID)
	})
}

func TestStore_Replace(t *testing.T) {
	t.Parallel()

	var replaced *searchstore.IndexRequest
	client := &mocks.Client{
		IndexDocFn: func(ctx context.Context, req *searchstore.IndexRequest) error {
			replaced = req
			return nil
		},
	}
	s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
		&Resource{Name: "items"})

	require.NoError(t, s.Replace(context.Background(), "items", "abc", Document{
		"_id":      "abc",
		"_type":    "items",
		"headline": "tools",
	}))

	require.Equal(t, "abc", replaced.ID)
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(replaced.Body, &body))
	require.NotContains(t, body, "_id")
	require.NotContains(t, body, "_type")
	require.Equal(t, "tools", body["headline"])

	// a replace stores the document as given, the audit timestamps are the
	// caller's to manage
	require.NotContains(t, body, "_created")
	require.NotContains(t, body, "_updated")
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		lookup map[string]any
		delErr error

		wantErr error
	}{
		{
			name:   "ok",
			lookup: map[string]any{"_id": "abc"},
		},
		{
			name:   "deleting an absent document is not an error",
			lookup: map[string]any{"_id": "abc"},
			delErr: searchstore.ErrResourceNotFound,
		},
		{
			name:    "missing identity is a contract violation",
			lookup:  map[string]any{"state": "draft"},
			wantErr: ErrMissingLookupID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &mocks.Client{
				DeleteDocFn: func(ctx context.Context, req *searchstore.DeleteRequest) error {
					require.Equal(t, "abc", req.ID)
					return tc.delErr
				},
			}
			s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
				&Resource{Name: "items"})

			err := s.Remove(context.Background(), "items", tc.lookup)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStore_IsEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		count    int
		countErr error

		wantEmpty bool
	}{
		{
			name:      "empty index",
			count:     0,
			wantEmpty: true,
		},
		{
			name:  "populated index",
			count: 42,
		},
		{
			name:      "missing index counts as empty",
			countErr:  searchstore.ErrResourceNotFound,
			wantEmpty: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &mocks.Client{
				CountFn: func(ctx context.Context, index string, body map[string]any) (int, error) {
					require.Equal(t, map[string]any{
						"query": map[string]any{"match_all": map[string]any{}},
					}, body)
					return tc.count, tc.countErr
				},
			}
			s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
				&Resource{Name: "items"})

			empty, err := s.IsEmpty(context.Background(), "items")
			require.NoError(t, err)
			require.Equal(t, tc.wantEmpty, empty)
		})
	}
}

func TestStore_SearchAcross(t *testing.T) {
	t.Parallel()

	t.Run("combined index list", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SearchFn: func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
				require.Equal(t, []string{"sd_items", "sd_events"}, req.Index)
				return &searchstore.SearchResponse{}, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"}, &Resource{Name: "events"})

		_, err := s.SearchAcross(context.Background(), []string{"items", "events"}, &FindRequest{Search: "tools"})
		require.NoError(t, err)
	})

	t.Run("resources on different prefixes cannot be combined", func(t *testing.T) {
		t.Parallel()

		s := newMockStore(t, &Config{
			Default:  EngineConfig{Index: "sd"},
			Prefixes: map[string]EngineConfig{"archive": {Index: "arc"}},
		}, &mocks.Client{},
			&Resource{Name: "items"}, &Resource{Name: "legacy", Prefix: "archive"})

		_, err := s.SearchAcross(context.Background(), []string{"items", "legacy"}, &FindRequest{})
		require.Error(t, err)
	})
}

func TestStore_BulkInsert(t *testing.T) {
	t.Parallel()

	errTest := errors.New("oh noes")

	t.Run("per item errors are surfaced with their severity", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SendBulkRequestFn: func(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
				require.Len(t, items, 3)
				items[1].Status = 400
				items[1].Error = []byte(`{"type":"mapper_parsing_exception"}`)
				items[2].Status = 409
				return items[1:3], nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		ids, bulkErrors, err := s.BulkInsert(context.Background(), "items", []Document{
			{"_id": "1"}, {"_id": "2"}, {"_id": "3"},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"1"}, ids)
		require.Len(t, bulkErrors, 2)
		require.Equal(t, "2", bulkErrors[0].ID)
		require.Equal(t, BulkDataLoss, bulkErrors[0].Severity)
		require.Equal(t, "3", bulkErrors[1].ID)
		require.Equal(t, BulkIgnored, bulkErrors[1].Severity)
	})

	t.Run("transient item failures are reported retriable once the budget is spent", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SendBulkRequestFn: func(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
				items[0].Status = 429
				return items[0:1], nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		ids, bulkErrors, err := s.BulkInsert(context.Background(), "items", []Document{{"_id": "1"}})
		require.NoError(t, err)
		require.Empty(t, ids)
		require.Len(t, bulkErrors, 1)
		require.Equal(t, BulkRetriable, bulkErrors[0].Severity)
	})

	t.Run("transient item failures recover within the retry budget", func(t *testing.T) {
		t.Parallel()

		calls := 0
		client := &mocks.Client{
			SendBulkRequestFn: func(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
				calls++
				if calls == 1 {
					require.Len(t, items, 2)
					items[1].Status = 429
					return items[1:2], nil
				}
				// only the failed item is resent
				require.Len(t, items, 1)
				require.Equal(t, "2", items[0].Index.ID)
				return nil, nil
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})
		WithBackoffProvider(func(ctx context.Context) backoff.Backoff {
			return &backoffmocks.Backoff{
				RetryNotifyFn: func(op backoff.Operation, not backoff.Notify) error {
					for {
						err := op()
						if err == nil || errors.Is(err, backoff.ErrPermanent) {
							return err
						}
						not(err, time.Second)
					}
				},
			}
		})(s)

		ids, bulkErrors, err := s.BulkInsert(context.Background(), "items", []Document{
			{"_id": "1"}, {"_id": "2"},
		})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
		require.Equal(t, []string{"1", "2"}, ids)
		require.Empty(t, bulkErrors)
	})

	t.Run("transport errors fail the request", func(t *testing.T) {
		t.Parallel()

		client := &mocks.Client{
			SendBulkRequestFn: func(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
				return nil, errTest
			},
		}
		s := newMockStore(t, &Config{Default: EngineConfig{Index: "sd"}}, client,
			&Resource{Name: "items"})

		_, _, err := s.BulkInsert(context.Background(), "items", []Document{{"_id": "1"}})
		require.ErrorIs(t, err, errTest)
	})
}
