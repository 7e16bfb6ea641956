// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"

	"searchdal/internal/searchstore"
)

type Client struct {
	CloseIndexFn       func(ctx context.Context, index string) error
	OpenIndexFn        func(ctx context.Context, index string) error
	CountFn            func(ctx context.Context, index string, body map[string]any) (int, error)
	CreateIndexFn      func(ctx context.Context, index string, body map[string]any) error
	DeleteIndexFn      func(ctx context.Context, index []string) error
	DeleteDocFn        func(ctx context.Context, req *searchstore.DeleteRequest) error
	GetFn              func(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error)
	GetIndexAliasFn    func(ctx context.Context, name string) (map[string]any, error)
	GetIndexMappingsFn func(ctx context.Context, index string) (map[string]any, error)
	GetIndexSettingsFn func(ctx context.Context, index string) (map[string]any, error)
	IndexDocFn         func(ctx context.Context, req *searchstore.IndexRequest) error
	IndexExistsFn      func(ctx context.Context, index string) (bool, error)
	MGetFn             func(ctx context.Context, req *searchstore.MGetRequest) ([]searchstore.Hit, error)
	PutIndexAliasFn    func(ctx context.Context, index []string, name string) error
	PutIndexMappingsFn func(ctx context.Context, index string, body map[string]any) error
	PutIndexSettingsFn func(ctx context.Context, index string, body map[string]any) error
	RefreshIndexFn     func(ctx context.Context, index string) error
	SearchFn           func(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error)
	SendBulkRequestFn  func(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error)
	UpdateFn           func(ctx context.Context, req *searchstore.UpdateRequest) error
}

func (m *Client) CloseIndex(ctx context.Context, index string) error {
	return m.CloseIndexFn(ctx, index)
}

func (m *Client) OpenIndex(ctx context.Context, index string) error {
	return m.OpenIndexFn(ctx, index)
}

func (m *Client) Count(ctx context.Context, index string, body map[string]any) (int, error) {
	return m.CountFn(ctx, index, body)
}

func (m *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	return m.CreateIndexFn(ctx, index, body)
}

func (m *Client) DeleteIndex(ctx context.Context, index []string) error {
	return m.DeleteIndexFn(ctx, index)
}

func (m *Client) DeleteDoc(ctx context.Context, req *searchstore.DeleteRequest) error {
	return m.DeleteDocFn(ctx, req)
}

func (m *Client) Get(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
	return m.GetFn(ctx, req)
}

func (m *Client) GetIndexAlias(ctx context.Context, name string) (map[string]any, error) {
	return m.GetIndexAliasFn(ctx, name)
}

func (m *Client) GetIndexMappings(ctx context.Context, index string) (map[string]any, error) {
	return m.GetIndexMappingsFn(ctx, index)
}

func (m *Client) GetIndexSettings(ctx context.Context, index string) (map[string]any, error) {
	return m.GetIndexSettingsFn(ctx, index)
}

func (m *Client) IndexDoc(ctx context.Context, req *searchstore.IndexRequest) error {
	return m.IndexDocFn(ctx, req)
}

func (m *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	return m.IndexExistsFn(ctx, index)
}

func (m *Client) MGet(ctx context.Context, req *searchstore.MGetRequest) ([]searchstore.Hit, error) {
	return m.MGetFn(ctx, req)
}

func (m *Client) PutIndexAlias(ctx context.Context, index []string, name string) error {
	return m.PutIndexAliasFn(ctx, index, name)
}

func (m *Client) PutIndexMappings(ctx context.Context, index string, body map[string]any) error {
	return m.PutIndexMappingsFn(ctx, index, body)
}

func (m *Client) PutIndexSettings(ctx context.Context, index string, body map[string]any) error {
	return m.PutIndexSettingsFn(ctx, index, body)
}

func (m *Client) RefreshIndex(ctx context.Context, index string) error {
	return m.RefreshIndexFn(ctx, index)
}

func (m *Client) Search(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
	return m.SearchFn(ctx, req)
}

func (m *Client) SendBulkRequest(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
	return m.SendBulkRequestFn(ctx, items)
}

func (m *Client) Update(ctx context.Context, req *searchstore.UpdateRequest) error {
	return m.UpdateFn(ctx, req)
}
