// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"searchdal/internal/backoff"
	"searchdal/internal/json"
	"searchdal/internal/searchstore"
	loglib "searchdal/pkg/log"
)

// Store is the data access facade. It routes each registered resource to its
// configured engine, compiles find requests into engine queries and
// normalizes the responses.
//
// Resource registration happens at startup; after that the store is safe for
// concurrent use.
type Store struct {
	cfg             *Config
	resources       map[string]*Resource
	resourceNames   []string
	registry        *clientRegistry
	logger          loglib.Logger
	backoffProvider backoff.Provider
	generateID      func() string
	now             func() time.Time
}

type Option func(*Store)

func WithLogger(logger loglib.Logger) Option {
	return func(s *Store) {
		s.logger = loglib.NewLogger(logger).WithFields(loglib.Fields{
			loglib.ModuleField: "datalayer_store",
		})
	}
}

// WithClientFactory overrides how engine clients are built. Used in tests to
// inject mocks.
func WithClientFactory(factory ClientFactory) Option {
	return func(s *Store) {
		s.registry = newClientRegistry(factory)
	}
}

// WithBackoffProvider sets the retry policy for bulk writes hitting
// retryable engine errors.
func WithBackoffProvider(provider backoff.Provider) Option {
	return func(s *Store) {
		s.backoffProvider = provider
	}
}

func NewStore(cfg *Config, opts ...Option) *Store {
	s := &Store{
		cfg:        cfg,
		resources:  make(map[string]*Resource),
		registry:   newClientRegistry(nil),
		logger:     loglib.NewNoopLogger(),
		generateID: func() string { return xid.New().String() },
		now:        time.Now,
		backoffProvider: func(ctx context.Context) backoff.Backoff {
			return backoff.NewStopBackoff()
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RegisterResource adds a resource to the store. Registration order is
// preserved for index administration.
func (s *Store) RegisterResource(res *Resource) error {
	if res == nil || res.Name == "" {
		return errors.New("resource must have a name")
	}
	if _, ok := s.resources[res.Name]; ok {
		return fmt.Errorf("resource [%s] already registered", res.Name)
	}
	s.resources[res.Name] = res
	s.resourceNames = append(s.resourceNames, res.Name)
	return nil
}

// Reset drops the cached engine clients. The next operation reconnects.
func (s *Store) Reset() {
	s.registry.reset()
}

func (s *Store) resolve(resource string) (*Resource, *EngineConfig, searchstore.Client, error) {
	res, ok := s.resources[resource]
	if !ok {
		return nil, nil, nil, ErrResourceNotConfigured{Resource: resource}
	}
	engine := s.cfg.engine(res.Prefix)
	client, err := s.registry.get(res.Prefix, engine)
	if err != nil {
		return nil, nil, nil, err
	}
	return res, engine, client, nil
}

// Find compiles the request into an engine query against the resource index
// and returns a cursor over the normalized results. A missing index or
// mapping yields an empty cursor, not an error.
func (s *Store) Find(ctx context.Context, resource string, req *FindRequest) (*Cursor, error) {
	return s.find(ctx, resource, req, nil)
}

func (s *Store) find(ctx context.Context, resource string, req *FindRequest, subLookup map[string]any) (*Cursor, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &FindRequest{}
	}

	query, err := s.compileQuery(res, req, subLookup)
	if err != nil {
		return nil, err
	}

	searchReq := &searchstore.SearchRequest{
		Index: []string{engine.resourceIndex(res.sourceName())},
	}
	if len(req.Projections) > 0 {
		searchReq.SourceIncludes = searchstore.Ptr(strings.Join(req.Projections, ","))
	}

	response, err := s.search(ctx, client, searchReq, query, req.Search)
	if err != nil {
		return nil, err
	}
	return newCursor(response, DateFields(res.Schema)), nil
}

func (s *Store) search(ctx context.Context, client searchstore.Client, req *searchstore.SearchRequest, query map[string]any, searchTerm string) (*searchstore.SearchResponse, error) {
	reader, err := searchstore.CreateReader(query)
	if err != nil {
		return nil, err
	}
	req.Query = reader

	response, err := client.Search(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, searchstore.ErrQueryStringInvalid):
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSearchString, searchTerm, err)
		case errors.Is(err, searchstore.ErrResourceNotFound),
			errors.Is(err, searchstore.ErrMappingNotFound):
			// read paths treat a missing index or mapping as empty
			return nil, nil
		default:
			return nil, fmt.Errorf("searching %v: %w", req.Index, err)
		}
	}
	return response, nil
}

// Search runs a raw caller supplied query body against the resource index.
func (s *Store) Search(ctx context.Context, resource string, query map[string]any) (*Cursor, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}

	response, err := s.search(ctx, client, &searchstore.SearchRequest{
		Index: []string{engine.resourceIndex(res.sourceName())},
	}, query, "")
	if err != nil {
		return nil, err
	}
	return newCursor(response, DateFields(res.Schema)), nil
}

// SearchAcross runs one query against the combined index list of several
// resources. The resources must share the same engine prefix; date handling
// uses the union of their date fields.
func (s *Store) SearchAcross(ctx context.Context, resources []string, req *FindRequest) (*Cursor, error) {
	if len(resources) == 0 {
		return nil, errors.New("no resources to search")
	}

	first, _, client, err := s.resolve(resources[0])
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &FindRequest{}
	}

	indexes := make([]string, 0, len(resources))
	dateFields := []string{}
	seen := map[string]struct{}{}
	for _, name := range resources {
		res, engine, _, err := s.resolve(name)
		if err != nil {
			return nil, err
		}
		if res.Prefix != first.Prefix {
			return nil, fmt.Errorf("resource [%s] is not served by prefix %q", name, first.Prefix)
		}
		indexes = append(indexes, engine.resourceIndex(res.sourceName()))
		for _, field := range DateFields(res.Schema) {
			if _, ok := seen[field]; !ok {
				seen[field] = struct{}{}
				dateFields = append(dateFields, field)
			}
		}
	}

	query, err := s.compileQuery(first, req, nil)
	if err != nil {
		return nil, err
	}

	searchReq := &searchstore.SearchRequest{Index: indexes}
	if len(req.Projections) > 0 {
		searchReq.SourceIncludes = searchstore.Ptr(strings.Join(req.Projections, ","))
	}

	response, err := s.search(ctx, client, searchReq, query, req.Search)
	if err != nil {
		return nil, err
	}
	return newCursor(response, dateFields), nil
}

// FindOne returns the first document matching the lookup terms, or nil when
// nothing matches. A lookup carrying the identity field resolves through a
// direct get, any other terms become individual term clauses ANDed together.
func (s *Store) FindOne(ctx context.Context, resource string, lookup map[string]any) (Document, error) {
	if id, ok := lookup[FieldID].(string); ok {
		return s.FindByID(ctx, resource, id)
	}

	cursor, err := s.find(ctx, resource, &FindRequest{MaxResults: 1}, lookup)
	if err != nil {
		return nil, err
	}
	return cursor.First(), nil
}

// FindByID fetches one document by identity, or nil when it does not exist.
// On a parent/child index where the routing is unknown the direct get fails
// with a routing missing error; the lookup falls back to a term search by
// identity.
func (s *Store) FindByID(ctx context.Context, resource string, id string) (Document, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}

	if res.Parent != nil {
		return s.findByIDSearch(ctx, resource, id)
	}

	hit, err := client.Get(ctx, &searchstore.GetRequest{
		Index: engine.resourceIndex(res.sourceName()),
		ID:    id,
	})
	if err != nil {
		switch {
		case errors.Is(err, searchstore.ErrRoutingMissing):
			return s.findByIDSearch(ctx, resource, id)
		case errors.Is(err, searchstore.ErrResourceNotFound):
			return nil, nil
		default:
			return nil, fmt.Errorf("getting %s [%s]: %w", resource, id, err)
		}
	}
	if hit == nil || (hit.Found != nil && !*hit.Found) {
		return nil, nil
	}
	return formatHit(hit, DateFields(res.Schema)), nil
}

func (s *Store) findByIDSearch(ctx context.Context, resource, id string) (Document, error) {
	cursor, err := s.find(ctx, resource, &FindRequest{MaxResults: 1}, map[string]any{FieldID: id})
	if err != nil {
		return nil, err
	}
	return cursor.First(), nil
}

// FindByIDs fetches multiple documents by identity in one round trip. Only
// found documents are returned, in engine order.
func (s *Store) FindByIDs(ctx context.Context, resource string, ids []string) ([]Document, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}

	hits, err := client.MGet(ctx, &searchstore.MGetRequest{
		Index: engine.resourceIndex(res.sourceName()),
		IDs:   ids,
	})
	if err != nil {
		if errors.Is(err, searchstore.ErrResourceNotFound) {
			return []Document{}, nil
		}
		return nil, fmt.Errorf("multi-getting %s: %w", resource, err)
	}

	docs := make([]Document, 0, len(hits))
	dateFields := DateFields(res.Schema)
	for i := range hits {
		if hits[i].Found != nil && !*hits[i].Found {
			continue
		}
		docs = append(docs, formatHit(&hits[i], dateFields))
	}
	return docs, nil
}

// Insert indexes the given documents one by one and returns their ids.
// Documents without an identity get a generated one. A document carrying the
// parent linkage field is routed by its value.
func (s *Store) Insert(ctx context.Context, resource string, docs []Document) ([]string, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}

	index := engine.resourceIndex(res.sourceName())
	refresh := writeRefresh(res, engine)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, body, routing, err := s.prepareWrite(res, doc)
		if err != nil {
			return ids, err
		}

		if err := client.IndexDoc(ctx, &searchstore.IndexRequest{
			Index:   index,
			ID:      id,
			Body:    body,
			Routing: routing,
			Refresh: refresh,
		}); err != nil {
			return ids, fmt.Errorf("indexing into %s: %w", resource, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Update applies a partial merge onto the stored document, retrying on
// version conflicts up to the configured budget.
func (s *Store) Update(ctx context.Context, resource string, id string, updates Document) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrMissingLookupID
	}

	doc := stripIdentity(updates)
	doc[FieldUpdated] = s.now().UTC()
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}

	if err := client.Update(ctx, &searchstore.UpdateRequest{
		Index:           engine.resourceIndex(res.sourceName()),
		ID:              id,
		Doc:             body,
		Routing:         parentRouting(res, updates),
		Refresh:         writeRefresh(res, engine),
		RetryOnConflict: searchstore.Ptr(engine.retryOnConflict()),
	}); err != nil {
		return fmt.Errorf("updating %s [%s]: %w", resource, id, err)
	}
	return nil
}

// Replace overwrites the stored document. Identity is carried through the
// id parameter, not the payload.
func (s *Store) Replace(ctx context.Context, resource string, id string, doc Document) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrMissingLookupID
	}

	_, body, routing, err := s.prepareWriteWithID(res, doc, id)
	if err != nil {
		return err
	}

	if err := client.IndexDoc(ctx, &searchstore.IndexRequest{
		Index:   engine.resourceIndex(res.sourceName()),
		ID:      id,
		Body:    body,
		Routing: routing,
		Refresh: writeRefresh(res, engine),
	}); err != nil {
		return fmt.Errorf("replacing %s [%s]: %w", resource, id, err)
	}
	return nil
}

// Remove deletes one document by identity. A lookup without an identity is a
// caller contract violation.
func (s *Store) Remove(ctx context.Context, resource string, lookup map[string]any) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}

	id, ok := lookup[FieldID].(string)
	if !ok || id == "" {
		return ErrMissingLookupID
	}

	err = client.DeleteDoc(ctx, &searchstore.DeleteRequest{
		Index:   engine.resourceIndex(res.sourceName()),
		ID:      id,
		Routing: parentRouting(res, lookup),
		Refresh: writeRefresh(res, engine),
	})
	if err != nil && !errors.Is(err, searchstore.ErrResourceNotFound) {
		return fmt.Errorf("removing %s [%s]: %w", resource, id, err)
	}
	return nil
}

// Count returns the number of documents matching a query body, the whole
// index when the body is nil.
func (s *Store) Count(ctx context.Context, resource string, query map[string]any) (int, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return 0, err
	}

	count, err := client.Count(ctx, engine.resourceIndex(res.sourceName()), query)
	if err != nil {
		if errors.Is(err, searchstore.ErrResourceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("counting %s: %w", resource, err)
	}
	return count, nil
}

// IsEmpty reports whether the resource index holds no documents, via a
// match_all count.
func (s *Store) IsEmpty(ctx context.Context, resource string) (bool, error) {
	count, err := s.Count(ctx, resource, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
	})
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Refresh forces an index refresh so prior writes become searchable.
func (s *Store) Refresh(ctx context.Context, resource string) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}
	return client.RefreshIndex(ctx, engine.resourceIndex(res.sourceName()))
}

// prepareWrite normalizes a document for a fresh insert: identity is
// stripped from the payload and carried as the id parameter, generated when
// absent, and missing audit timestamps are stamped with now.
func (s *Store) prepareWrite(res *Resource, doc Document) (id string, body []byte, routing *string, err error) {
	docID, _ := doc[FieldID].(string)
	if docID == "" {
		docID = s.generateID()
	}
	payload := stripIdentity(doc)
	s.stampAudit(payload)
	body, err = json.Marshal(payload)
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshaling document: %w", err)
	}
	return docID, body, parentRouting(res, doc), nil
}

// prepareWriteWithID normalizes a document for a full replace. Audit
// timestamps stay as the caller provided them.
func (s *Store) prepareWriteWithID(res *Resource, doc Document, id string) (string, []byte, *string, error) {
	body, err := json.Marshal(stripIdentity(doc))
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshaling document: %w", err)
	}
	return id, body, parentRouting(res, doc), nil
}

// stampAudit fills the audit timestamps that are missing from an inserted
// payload.
func (s *Store) stampAudit(payload Document) {
	if _, ok := payload[FieldCreated]; !ok {
		payload[FieldCreated] = s.now().UTC()
	}
	if _, ok := payload[FieldUpdated]; !ok {
		payload[FieldUpdated] = payload[FieldCreated]
	}
}

// stripIdentity copies the document without its engine managed identity and
// type fields.
func stripIdentity(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == FieldID || k == FieldTypeTag {
			continue
		}
		out[k] = v
	}
	return out
}

// parentRouting extracts the routing value from the configured parent
// linkage field, nil when the resource has no parent or the document does
// not carry the field.
func parentRouting(res *Resource, doc map[string]any) *string {
	if res.Parent == nil || res.Parent.Field == "" {
		return nil
	}
	value, ok := doc[res.Parent.Field]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return searchstore.Ptr(v)
	default:
		return searchstore.Ptr(fmt.Sprint(v))
	}
}

func writeRefresh(res *Resource, engine *EngineConfig) string {
	if res.forceRefresh(engine) {
		return "true"
	}
	return ""
}
