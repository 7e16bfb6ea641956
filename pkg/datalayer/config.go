// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"strings"
)

const (
	// BackendElasticsearch selects the Elasticsearch client implementation.
	BackendElasticsearch = "elasticsearch"
	// BackendOpenSearch selects the OpenSearch client implementation.
	BackendOpenSearch = "opensearch"
)

const defaultRetryOnConflict = 5

// Resource describes a single searchable resource: its schema, which engine
// prefix it lives on, and the query behaviour hooks the compiler consults.
type Resource struct {
	// Name is the registered resource name.
	Name string
	// Source overrides the backing index name segment. Empty means Name.
	Source string
	// Prefix selects the engine configuration. Empty means the default
	// engine.
	Prefix string
	// Schema declares the resource fields.
	Schema Schema
	// Settings are per resource index settings merged over the engine
	// settings at index creation.
	Settings map[string]any
	// DefaultSort applies when a find request carries no sort of its own.
	DefaultSort []map[string]any
	// Filter is a static filter attached to every search.
	Filter map[string]any
	// FilterCallback computes a per-request filter. A nil return attaches
	// nothing.
	FilterCallback func() map[string]any
	// Facets declares the facet section attached to every search.
	Facets map[string]any
	// Aggregations declares aggregations attached when aggregating.
	Aggregations map[string]any
	// HighlightCallback builds a highlight section for the given query.
	// A nil return disables highlighting for the request.
	HighlightCallback func(query map[string]any) map[string]any
	// Parent establishes a parent/child join for the resource.
	Parent *ParentLink
	// ForceRefresh overrides the engine level refresh behaviour.
	ForceRefresh *bool
	// VersioningEnabled marks the resource as carrying engine versions.
	VersioningEnabled bool
}

func (r *Resource) sourceName() string {
	if r.Source != "" {
		return r.Source
	}
	return r.Name
}

func (r *Resource) forceRefresh(engine *EngineConfig) bool {
	if r.ForceRefresh != nil {
		return *r.ForceRefresh
	}
	return engine.ForceRefresh
}

// EngineConfig holds the connection and behaviour settings of one search
// engine cluster.
type EngineConfig struct {
	// URL is the engine endpoint.
	URL string
	// Backend selects the client implementation, BackendElasticsearch by
	// default.
	Backend string
	// Index is the base alias name. Resource indexes derive from it unless
	// overridden in Indexes.
	Index string
	// Indexes maps a resource source name to an explicit alias.
	Indexes map[string]string
	// Settings are the cluster level index settings applied at creation.
	Settings map[string]any
	// ForceRefresh makes every write refresh the index before returning.
	ForceRefresh bool
	// AutoAggregations enables declared aggregations on every search.
	AutoAggregations bool
	// RetryOnConflict is the optimistic concurrency retry budget for
	// updates. Zero means the default of 5.
	RetryOnConflict int
}

func (e *EngineConfig) backend() string {
	if e.Backend == "" {
		return BackendElasticsearch
	}
	return e.Backend
}

func (e *EngineConfig) retryOnConflict() int {
	if e.RetryOnConflict <= 0 {
		return defaultRetryOnConflict
	}
	return e.RetryOnConflict
}

// resourceIndex resolves the alias a resource source name maps to.
func (e *EngineConfig) resourceIndex(source string) string {
	if alias, ok := e.Indexes[source]; ok {
		return alias
	}
	if e.Index == "" {
		return source
	}
	return e.Index + "_" + source
}

// Config wires resources to one or more engine configurations keyed by
// prefix.
type Config struct {
	// Default is the engine used by resources without a prefix.
	Default EngineConfig
	// Prefixes holds additional engines keyed by resource prefix.
	Prefixes map[string]EngineConfig
}

// engine resolves the engine configuration for a prefix, falling back to the
// default engine for unknown prefixes.
func (c *Config) engine(prefix string) *EngineConfig {
	if prefix != "" {
		if engine, ok := c.Prefixes[prefix]; ok {
			return &engine
		}
	}
	return &c.Default
}

func normalizeURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
