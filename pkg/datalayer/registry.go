// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"fmt"
	"sync"

	"searchdal/internal/searchstore"
	"searchdal/internal/searchstore/elasticsearch"
	"searchdal/internal/searchstore/opensearch"
)

// ClientFactory builds a search store client for an engine configuration.
// Overridable in tests.
type ClientFactory func(engine *EngineConfig) (searchstore.Client, error)

func defaultClientFactory(engine *EngineConfig) (searchstore.Client, error) {
	url := normalizeURL(engine.URL)
	switch engine.backend() {
	case BackendElasticsearch:
		return elasticsearch.NewClient(url)
	case BackendOpenSearch:
		return opensearch.NewClient(url)
	default:
		return nil, fmt.Errorf("unsupported search backend: %q", engine.Backend)
	}
}

// clientRegistry lazily builds and caches one client per engine prefix.
type clientRegistry struct {
	mu      sync.Mutex
	factory ClientFactory
	clients map[string]searchstore.Client
}

func newClientRegistry(factory ClientFactory) *clientRegistry {
	if factory == nil {
		factory = defaultClientFactory
	}
	return &clientRegistry{
		factory: factory,
		clients: make(map[string]searchstore.Client),
	}
}

// get returns the cached client for a prefix, building it on first use.
// Concurrent callers observe a single shared client per prefix.
func (r *clientRegistry) get(prefix string, engine *EngineConfig) (searchstore.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[prefix]; ok {
		return client, nil
	}

	client, err := r.factory(engine)
	if err != nil {
		return nil, fmt.Errorf("creating search client for prefix %q: %w", prefix, err)
	}
	r.clients[prefix] = client
	return client, nil
}

// reset empties the registry so the next access rebuilds its clients.
func (r *clientRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[string]searchstore.Client)
}
