// SPDX-License-Identifier: Apache-2.0

package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go"
	"github.com/opensearch-project/opensearch-go/opensearchapi"

	"searchdal/internal/searchstore"
)

type Client struct {
	client *opensearch.Client
}

var errInvalidSearchEnvelope = errors.New("invalid search response")

func NewClient(url string) (*Client, error) {
	os, err := newClient(url)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &Client{client: os}, nil
}

func (c *Client) CloseIndex(ctx context.Context, index string) error {
	res, err := c.client.Indices.Close(
		[]string{index},
		c.client.Indices.Close.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[CloseIndex] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[CloseIndex] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) OpenIndex(ctx context.Context, index string) error {
	res, err := c.client.Indices.Open(
		[]string{index},
		c.client.Indices.Open.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[OpenIndex] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[OpenIndex] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) Count(ctx context.Context, index string, body map[string]any) (int, error) {
	opts := []func(*opensearchapi.CountRequest){
		c.client.Count.WithIndex(index),
		c.client.Count.WithContext(ctx),
	}
	if body != nil {
		reader, err := searchstore.CreateReader(body)
		if err != nil {
			return 0, err
		}
		opts = append(opts, c.client.Count.WithBody(reader))
	}

	res, err := c.client.Count(opts...)
	if err != nil {
		return 0, fmt.Errorf("[Count] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return 0, fmt.Errorf("[Count] error response from OpenSearch: %w", err)
	}

	count := &searchstore.CountResponse{}
	if err := json.NewDecoder(res.Body).Decode(count); err != nil {
		return 0, fmt.Errorf("[Count] error decoding OpenSearch response: %w", err)
	}

	return count.Count, nil
}

func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	reader, err := searchstore.CreateReader(body)
	if err != nil {
		return err
	}
	res, err := c.client.Indices.Create(index,
		c.client.Indices.Create.WithContext(ctx),
		c.client.Indices.Create.WithBody(reader),
	)
	if err != nil {
		return fmt.Errorf("[CreateIndex] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[CreateIndex] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) DeleteIndex(ctx context.Context, index []string) error {
	res, err := c.client.Indices.Delete(
		index,
		c.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[DeleteIndex] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[DeleteIndex] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) DeleteDoc(ctx context.Context, req *searchstore.DeleteRequest) error {
	opts := []func(*opensearchapi.DeleteRequest){
		c.client.Delete.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, c.client.Delete.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, c.client.Delete.WithRefresh(req.Refresh))
	}

	res, err := c.client.Delete(req.Index, req.ID, opts...)
	if err != nil {
		return fmt.Errorf("[DeleteDoc] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[DeleteDoc] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) Get(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
	opts := []func(*opensearchapi.GetRequest){
		c.client.Get.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, c.client.Get.WithRouting(*req.Routing))
	}

	res, err := c.client.Get(req.Index, req.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Get] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[Get] error response from OpenSearch: %w", err)
	}

	var hit searchstore.Hit
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil {
		return nil, fmt.Errorf("[Get] error decoding OpenSearch response: %w", err)
	}

	return &hit, nil
}

func (c *Client) MGet(ctx context.Context, req *searchstore.MGetRequest) ([]searchstore.Hit, error) {
	reader, err := searchstore.CreateReader(map[string]any{"ids": req.IDs})
	if err != nil {
		return nil, err
	}

	res, err := c.client.Mget(reader,
		c.client.Mget.WithContext(ctx),
		c.client.Mget.WithIndex(req.Index),
	)
	if err != nil {
		return nil, fmt.Errorf("[MGet] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[MGet] error response from OpenSearch: %w", err)
	}

	var response searchstore.MGetResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("[MGet] error decoding OpenSearch response: %w", err)
	}

	return response.Docs, nil
}

func (c *Client) IndexDoc(ctx context.Context, req *searchstore.IndexRequest) error {
	opts := []func(*opensearchapi.IndexRequest){
		c.client.Index.WithContext(ctx),
	}
	if req.ID != "" {
		opts = append(opts, c.client.Index.WithDocumentID(req.ID))
	}
	if req.Routing != nil {
		opts = append(opts, c.client.Index.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, c.client.Index.WithRefresh(req.Refresh))
	}

	res, err := c.client.Index(req.Index, bytes.NewReader(req.Body), opts...)
	if err != nil {
		return fmt.Errorf("[IndexDoc] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[IndexDoc] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.client.Indices.Exists([]string{index},
		c.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("[IndexExists] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("[IndexExists] error response from OpenSearch: status %d", res.StatusCode)
	}

	return res.StatusCode == http.StatusOK, nil
}

func (c *Client) GetIndexAlias(ctx context.Context, name string) (map[string]any, error) {
	res, err := c.client.Indices.GetAlias(
		c.client.Indices.GetAlias.WithContext(ctx),
		c.client.Indices.GetAlias.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("[GetIndexAlias] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexAlias] error response from OpenSearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexAlias")
}

func (c *Client) GetIndexMappings(ctx context.Context, index string) (map[string]any, error) {
	res, err := c.client.Indices.GetMapping(
		c.client.Indices.GetMapping.WithIndex(index),
		c.client.Indices.GetMapping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("[GetIndexMappings] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexMappings] error response from OpenSearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexMappings")
}

func (c *Client) GetIndexSettings(ctx context.Context, index string) (map[string]any, error) {
	res, err := c.client.Indices.GetSettings(
		c.client.Indices.GetSettings.WithIndex(index),
		c.client.Indices.GetSettings.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("[GetIndexSettings] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexSettings] error response from OpenSearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexSettings")
}

func (c *Client) PutIndexAlias(ctx context.Context, index []string, name string) error {
	res, err := c.client.Indices.PutAlias(
		index,
		name,
		c.client.Indices.PutAlias.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[PutIndexAlias] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexAlias] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) PutIndexMappings(ctx context.Context, index string, mapping map[string]any) error {
	reader, err := searchstore.CreateReader(mapping)
	if err != nil {
		return err
	}
	res, err := c.client.Indices.PutMapping(
		reader,
		c.client.Indices.PutMapping.WithIndex(index),
		c.client.Indices.PutMapping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("[PutIndexMappings] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexMappings] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) PutIndexSettings(ctx context.Context, index string, settings map[string]any) error {
	reader, err := searchstore.CreateReader(settings)
	if err != nil {
		return err
	}
	res, err := c.client.Indices.PutSettings(
		reader,
		c.client.Indices.PutSettings.WithContext(ctx),
		c.client.Indices.PutSettings.WithIndex(index))
	if err != nil {
		return fmt.Errorf("[PutIndexSettings] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexSettings] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) RefreshIndex(ctx context.Context, index string) error {
	res, err := c.client.Indices.Refresh(
		c.client.Indices.Refresh.WithIndex(index),
		c.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[RefreshIndex] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[RefreshIndex] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) Search(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
	res, err := c.client.Search(c.parseSearchRequest(ctx, req)...)
	if err != nil {
		return nil, fmt.Errorf("[Search] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()
	if err := c.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[Search] error response from OpenSearch: %w", err)
	}

	var response searchstore.SearchResponse
	err = json.NewDecoder(res.Body).Decode(&response)
	if err != nil {
		return nil, fmt.Errorf("[Search] decoding response body: %w: %w", errInvalidSearchEnvelope, err)
	}

	return &response, nil
}

// SendBulkRequest can perform multiple indexing or delete operations in a single call
func (c *Client) SendBulkRequest(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
	buffer := new(bytes.Buffer)

	if err := searchstore.EncodeBulkItems(buffer, items); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", "/_bulk", buffer)
	if err != nil {
		return nil, fmt.Errorf("new http request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-ndjson")
	req = req.WithContext(ctx)

	resp, err := c.client.Transport.Perform(req)
	if err != nil {
		return nil, fmt.Errorf("perform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("[SendBulkRequest] error response from OpenSearch: %w", searchstore.ExtractResponseError(resp.Body, resp.StatusCode))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return searchstore.VerifyResponse(bodyBytes, items)
}

func (c *Client) Update(ctx context.Context, req *searchstore.UpdateRequest) error {
	body, err := searchstore.CreateReader(map[string]any{"doc": json.RawMessage(req.Doc)})
	if err != nil {
		return err
	}

	opts := []func(*opensearchapi.UpdateRequest){
		c.client.Update.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, c.client.Update.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, c.client.Update.WithRefresh(req.Refresh))
	}
	if req.RetryOnConflict != nil {
		opts = append(opts, c.client.Update.WithRetryOnConflict(*req.RetryOnConflict))
	}

	res, err := c.client.Update(req.Index, req.ID, body, opts...)
	if err != nil {
		return fmt.Errorf("[Update] error from OpenSearch: %w", err)
	}
	defer res.Body.Close()

	if err := c.isErrResponse(res); err != nil {
		return fmt.Errorf("[Update] error response from OpenSearch: %w", err)
	}

	return nil
}

func (c *Client) parseSearchRequest(ctx context.Context, req *searchstore.SearchRequest) []func(*opensearchapi.SearchRequest) {
	opts := []func(*opensearchapi.SearchRequest){
		c.client.Search.WithContext(ctx),
	}
	if len(req.Index) > 0 {
		opts = append(opts, c.client.Search.WithIndex(req.Index...))
	}
	if req.Size != nil {
		opts = append(opts, c.client.Search.WithSize(*req.Size))
	}
	if req.From != nil {
		opts = append(opts, c.client.Search.WithFrom(*req.From))
	}
	if req.Routing != nil {
		opts = append(opts, c.client.Search.WithRouting(*req.Routing))
	}
	if req.Query != nil {
		opts = append(opts, c.client.Search.WithBody(req.Query))
	}
	if req.SourceIncludes != nil {
		opts = append(opts, c.client.Search.WithSourceIncludes(*req.SourceIncludes))
	}

	return opts
}

func (c *Client) isErrResponse(res *opensearchapi.Response) error {
	return searchstore.IsErrResponse(newAPIResponse(res))
}

func decodeBodyMap(body io.Reader, op string) (map[string]any, error) {
	resData, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("[%s] error reading OpenSearch response body: %w", op, err)
	}

	resMap := map[string]any{}
	if err := json.Unmarshal(resData, &resMap); err != nil {
		return nil, fmt.Errorf("[%s] error unmarshalling OpenSearch response: %w", op, err)
	}
	return resMap, nil
}

func newClient(address string) (*opensearch.Client, error) {
	if address == "" {
		return nil, errors.New("no address provided")
	}

	cfg := opensearch.Config{
		Addresses: []string{
			address,
		},
		Transport: http.DefaultTransport,
	}

	return opensearch.NewClient(cfg)
}

type apiResponse struct {
	*opensearchapi.Response
}

func newAPIResponse(res *opensearchapi.Response) *apiResponse {
	return &apiResponse{Response: res}
}

func (r *apiResponse) GetBody() io.ReadCloser {
	return r.Body
}

func (r *apiResponse) GetStatusCode() int {
	return r.StatusCode
}
