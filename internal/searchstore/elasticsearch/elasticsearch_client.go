// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"searchdal/internal/searchstore"
)

type Client struct {
	client *elasticsearch.Client
}

var errInvalidSearchEnvelope = errors.New("invalid search response")

func NewClient(url string) (*Client, error) {
	es, err := newClient(url)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{client: es}, nil
}

func (ec *Client) CloseIndex(ctx context.Context, index string) error {
	res, err := ec.client.Indices.Close(
		[]string{index},
		ec.client.Indices.Close.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[CloseIndex] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[CloseIndex] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) OpenIndex(ctx context.Context, index string) error {
	res, err := ec.client.Indices.Open(
		[]string{index},
		ec.client.Indices.Open.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[OpenIndex] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[OpenIndex] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) Count(ctx context.Context, index string, body map[string]any) (int, error) {
	opts := []func(*esapi.CountRequest){
		ec.client.Count.WithIndex(index),
		ec.client.Count.WithContext(ctx),
	}
	if body != nil {
		reader, err := searchstore.CreateReader(body)
		if err != nil {
			return 0, err
		}
		opts = append(opts, ec.client.Count.WithBody(reader))
	}

	res, err := ec.client.Count(opts...)
	if err != nil {
		return 0, fmt.Errorf("[Count] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return 0, fmt.Errorf("[Count] error response from Elasticsearch: %w", err)
	}

	count := &searchstore.CountResponse{}
	if err := json.NewDecoder(res.Body).Decode(count); err != nil {
		return 0, fmt.Errorf("[Count] error decoding Elasticsearch response: %w", err)
	}

	return count.Count, nil
}

func (ec *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	reader, err := searchstore.CreateReader(body)
	if err != nil {
		return err
	}
	res, err := ec.client.Indices.Create(index,
		ec.client.Indices.Create.WithContext(ctx),
		ec.client.Indices.Create.WithBody(reader),
	)
	if err != nil {
		return fmt.Errorf("[CreateIndex] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[CreateIndex] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) DeleteIndex(ctx context.Context, index []string) error {
	res, err := ec.client.Indices.Delete(
		index,
		ec.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[DeleteIndex] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[DeleteIndex] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) DeleteDoc(ctx context.Context, req *searchstore.DeleteRequest) error {
	opts := []func(*esapi.DeleteRequest){
		ec.client.Delete.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, ec.client.Delete.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, ec.client.Delete.WithRefresh(req.Refresh))
	}

	res, err := ec.client.Delete(req.Index, req.ID, opts...)
	if err != nil {
		return fmt.Errorf("[DeleteDoc] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[DeleteDoc] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) Get(ctx context.Context, req *searchstore.GetRequest) (*searchstore.Hit, error) {
	opts := []func(*esapi.GetRequest){
		ec.client.Get.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, ec.client.Get.WithRouting(*req.Routing))
	}

	res, err := ec.client.Get(req.Index, req.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Get] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[Get] error response from Elasticsearch: %w", err)
	}

	var hit searchstore.Hit
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil {
		return nil, fmt.Errorf("[Get] error decoding Elasticsearch response: %w", err)
	}

	return &hit, nil
}

func (ec *Client) MGet(ctx context.Context, req *searchstore.MGetRequest) ([]searchstore.Hit, error) {
	reader, err := searchstore.CreateReader(map[string]any{"ids": req.IDs})
	if err != nil {
		return nil, err
	}

	res, err := ec.client.Mget(reader,
		ec.client.Mget.WithContext(ctx),
		ec.client.Mget.WithIndex(req.Index),
	)
	if err != nil {
		return nil, fmt.Errorf("[MGet] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[MGet] error response from Elasticsearch: %w", err)
	}

	var response searchstore.MGetResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("[MGet] error decoding Elasticsearch response: %w", err)
	}

	return response.Docs, nil
}

func (ec *Client) IndexDoc(ctx context.Context, req *searchstore.IndexRequest) error {
	opts := []func(*esapi.IndexRequest){
		ec.client.Index.WithContext(ctx),
	}
	if req.ID != "" {
		opts = append(opts, ec.client.Index.WithDocumentID(req.ID))
	}
	if req.Routing != nil {
		opts = append(opts, ec.client.Index.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, ec.client.Index.WithRefresh(req.Refresh))
	}

	res, err := ec.client.Index(req.Index, bytes.NewReader(req.Body), opts...)
	if err != nil {
		return fmt.Errorf("[IndexDoc] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[IndexDoc] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := ec.client.Indices.Exists([]string{index},
		ec.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("[IndexExists] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("[IndexExists] error response from Elasticsearch: status %d", res.StatusCode)
	}

	return res.StatusCode == http.StatusOK, nil
}

func (ec *Client) GetIndexAlias(ctx context.Context, name string) (map[string]any, error) {
	res, err := ec.client.Indices.GetAlias(
		ec.client.Indices.GetAlias.WithContext(ctx),
		ec.client.Indices.GetAlias.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("[GetIndexAlias] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexAlias] error response from Elasticsearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexAlias")
}

func (ec *Client) GetIndexMappings(ctx context.Context, index string) (map[string]any, error) {
	res, err := ec.client.Indices.GetMapping(
		ec.client.Indices.GetMapping.WithIndex(index),
		ec.client.Indices.GetMapping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("[GetIndexMappings] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexMappings] error response from Elasticsearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexMappings")
}

func (ec *Client) GetIndexSettings(ctx context.Context, index string) (map[string]any, error) {
	res, err := ec.client.Indices.GetSettings(
		ec.client.Indices.GetSettings.WithIndex(index),
		ec.client.Indices.GetSettings.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("[GetIndexSettings] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[GetIndexSettings] error response from Elasticsearch: %w", err)
	}

	return decodeBodyMap(res.Body, "GetIndexSettings")
}

func (ec *Client) PutIndexAlias(ctx context.Context, index []string, name string) error {
	res, err := ec.client.Indices.PutAlias(
		index,
		name,
		ec.client.Indices.PutAlias.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[PutIndexAlias] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexAlias] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) PutIndexMappings(ctx context.Context, index string, mapping map[string]any) error {
	reader, err := searchstore.CreateReader(mapping)
	if err != nil {
		return err
	}
	res, err := ec.client.Indices.PutMapping(
		[]string{index},
		reader,
		ec.client.Indices.PutMapping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("[PutIndexMappings] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexMappings] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) PutIndexSettings(ctx context.Context, index string, settings map[string]any) error {
	reader, err := searchstore.CreateReader(settings)
	if err != nil {
		return err
	}
	res, err := ec.client.Indices.PutSettings(
		reader,
		ec.client.Indices.PutSettings.WithContext(ctx),
		ec.client.Indices.PutSettings.WithIndex(index))
	if err != nil {
		return fmt.Errorf("[PutIndexSettings] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[PutIndexSettings] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) RefreshIndex(ctx context.Context, index string) error {
	res, err := ec.client.Indices.Refresh(
		ec.client.Indices.Refresh.WithIndex(index),
		ec.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("[RefreshIndex] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[RefreshIndex] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) Search(ctx context.Context, req *searchstore.SearchRequest) (*searchstore.SearchResponse, error) {
	res, err := ec.client.Search(ec.parseSearchRequest(ctx, req)...)
	if err != nil {
		return nil, fmt.Errorf("[Search] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if err := ec.isErrResponse(res); err != nil {
		return nil, fmt.Errorf("[Search] error response from Elasticsearch: %w", err)
	}

	var response searchstore.SearchResponse
	err = json.NewDecoder(res.Body).Decode(&response)
	if err != nil {
		return nil, fmt.Errorf("[Search] decoding response body: %w: %w", errInvalidSearchEnvelope, err)
	}

	return &response, nil
}

// SendBulkRequest can perform multiple indexing or delete operations in a single call
func (ec *Client) SendBulkRequest(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
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

	resp, err := ec.client.Transport.Perform(req)
	if err != nil {
		return nil, fmt.Errorf("perform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("[SendBulkRequest] error response from Elasticsearch: %w", searchstore.ExtractResponseError(resp.Body, resp.StatusCode))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return searchstore.VerifyResponse(bodyBytes, items)
}

func (ec *Client) Update(ctx context.Context, req *searchstore.UpdateRequest) error {
	body, err := searchstore.CreateReader(map[string]any{"doc": json.RawMessage(req.Doc)})
	if err != nil {
		return err
	}

	opts := []func(*esapi.UpdateRequest){
		ec.client.Update.WithContext(ctx),
	}
	if req.Routing != nil {
		opts = append(opts, ec.client.Update.WithRouting(*req.Routing))
	}
	if req.Refresh != "" {
		opts = append(opts, ec.client.Update.WithRefresh(req.Refresh))
	}
	if req.RetryOnConflict != nil {
		opts = append(opts, ec.client.Update.WithRetryOnConflict(*req.RetryOnConflict))
	}

	res, err := ec.client.Update(req.Index, req.ID, body, opts...)
	if err != nil {
		return fmt.Errorf("[Update] error from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if err := ec.isErrResponse(res); err != nil {
		return fmt.Errorf("[Update] error response from Elasticsearch: %w", err)
	}

	return nil
}

func (ec *Client) parseSearchRequest(ctx context.Context, req *searchstore.SearchRequest) []func(*esapi.SearchRequest) {
	opts := []func(*esapi.SearchRequest){
		ec.client.Search.WithContext(ctx),
	}
	if len(req.Index) > 0 {
		opts = append(opts, ec.client.Search.WithIndex(req.Index...))
	}
	if req.Size != nil {
		opts = append(opts, ec.client.Search.WithSize(*req.Size))
	}
	if req.From != nil {
		opts = append(opts, ec.client.Search.WithFrom(*req.From))
	}
	if req.Routing != nil {
		opts = append(opts, ec.client.Search.WithRouting(*req.Routing))
	}
	if req.Query != nil {
		opts = append(opts, ec.client.Search.WithBody(req.Query))
	}
	if req.SourceIncludes != nil {
		opts = append(opts, ec.client.Search.WithSourceIncludes(*req.SourceIncludes))
	}

	return opts
}

func (ec *Client) isErrResponse(res *esapi.Response) error {
	return searchstore.IsErrResponse(newAPIResponse(res))
}

func decodeBodyMap(body io.Reader, op string) (map[string]any, error) {
	resData, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("[%s] error reading Elasticsearch response body: %w", op, err)
	}

	resMap := map[string]any{}
	if err := json.Unmarshal(resData, &resMap); err != nil {
		return nil, fmt.Errorf("[%s] error unmarshalling Elasticsearch response: %w", op, err)
	}
	return resMap, nil
}

func newClient(address string) (*elasticsearch.Client, error) {
	if address == "" {
		return nil, errors.New("no address provided")
	}

	cfg := elasticsearch.Config{
		Addresses: []string{
			address,
		},
		Transport: http.DefaultTransport,
	}

	return elasticsearch.NewClient(cfg)
}

type apiResponse struct {
	*esapi.Response
}

func newAPIResponse(res *esapi.Response) *apiResponse {
	return &apiResponse{Response: res}
}

func (r *apiResponse) GetBody() io.ReadCloser {
	return r.Body
}

func (r *apiResponse) GetStatusCode() int {
	return r.StatusCode
}
