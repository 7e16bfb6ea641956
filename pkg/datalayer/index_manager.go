// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"searchdal/internal/searchstore"
	loglib "searchdal/pkg/log"
)

// ApplyStatus reports the outcome of a settings reconciliation.
type ApplyStatus int

const (
	// ApplyFailed means the settings could not be applied.
	ApplyFailed ApplyStatus = iota
	// ApplyAlreadySatisfied means the live settings already contain the
	// desired ones and nothing was changed.
	ApplyAlreadySatisfied
	// ApplyApplied means the settings were written through a close, put,
	// open cycle.
	ApplyApplied
)

// InitIndexes makes sure every registered resource has a backing index with
// current settings and mappings. Mapping conflicts on live indexes are
// logged, not fatal.
func (s *Store) InitIndexes(ctx context.Context) error {
	for _, name := range s.resourceNames {
		if err := s.EnsureIndex(ctx, name); err != nil {
			return fmt.Errorf("init index for resource %q: %w", name, err)
		}
	}
	return nil
}

// EnsureIndex creates the resource index behind its alias when it does not
// exist yet, or reconciles settings and mappings when it does.
func (s *Store) EnsureIndex(ctx context.Context, resource string) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}

	alias := engine.resourceIndex(res.sourceName())
	exists, err := client.IndexExists(ctx, alias)
	if err != nil {
		return fmt.Errorf("checking index %q: %w", alias, err)
	}

	if !exists {
		if err := s.createIndex(ctx, client, res, engine, alias); err != nil {
			return err
		}
		return s.applyMappings(ctx, client, res, alias)
	}

	if _, err := s.reconcileSettings(ctx, client, res, engine, alias); err != nil {
		return err
	}
	return s.applyMappings(ctx, client, res, alias)
}

// createIndex creates a uniquely named index and points the resource alias
// at it, so later reindexing can swap the alias without downtime. A
// concurrent creation of the same index is not an error.
func (s *Store) createIndex(ctx context.Context, client searchstore.Client, res *Resource, engine *EngineConfig, alias string) error {
	body := mergeSettings(engine.Settings, res.Settings)
	if body == nil {
		body = map[string]any{}
	}

	name := generateIndexName(alias)
	err := client.CreateIndex(ctx, name, body)
	if err != nil {
		alreadyExists := searchstore.ErrResourceAlreadyExists{}
		if !errors.As(err, &alreadyExists) {
			return fmt.Errorf("creating index %q: %w", name, err)
		}
		s.logger.Warn(nil, "index already exists", loglib.Fields{"index": name})
	}

	if err := client.PutIndexAlias(ctx, []string{name}, alias); err != nil {
		return fmt.Errorf("creating alias %q for index %q: %w", alias, name, err)
	}

	s.logger.Info("index created", loglib.Fields{"index": name, "alias": alias})
	return nil
}

// ReconcileSettings makes the live index settings contain the configured
// ones, closing and reopening the index around the write when a change is
// needed.
func (s *Store) ReconcileSettings(ctx context.Context, resource string) (ApplyStatus, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return ApplyFailed, err
	}
	if len(settingsIndexSection(mergeSettings(engine.Settings, res.Settings))) == 0 {
		return ApplyFailed, ErrInvalidIndexSettings
	}

	alias := engine.resourceIndex(res.sourceName())
	return s.reconcileSettings(ctx, client, res, engine, alias)
}

func (s *Store) reconcileSettings(ctx context.Context, client searchstore.Client, res *Resource, engine *EngineConfig, alias string) (ApplyStatus, error) {
	desired := mergeSettings(engine.Settings, res.Settings)
	desiredIndex := settingsIndexSection(desired)
	if len(desiredIndex) == 0 {
		return ApplyAlreadySatisfied, nil
	}

	current, err := client.GetIndexSettings(ctx, alias)
	if err != nil {
		return ApplyFailed, fmt.Errorf("reading settings of %q: %w", alias, err)
	}
	if settingsContain(liveIndexSettings(current), desiredIndex) {
		return ApplyAlreadySatisfied, nil
	}

	if err := client.CloseIndex(ctx, alias); err != nil {
		return ApplyFailed, fmt.Errorf("closing index %q: %w", alias, err)
	}
	putErr := client.PutIndexSettings(ctx, alias, desired)
	if err := client.OpenIndex(ctx, alias); err != nil {
		return ApplyFailed, fmt.Errorf("reopening index %q: %w", alias, err)
	}
	if putErr != nil {
		return ApplyFailed, fmt.Errorf("updating settings of %q: %w", alias, putErr)
	}

	s.logger.Info("index settings updated", loglib.Fields{"index": alias})
	return ApplyApplied, nil
}

// applyMappings pushes the derived mapping onto the live index. Conflicts
// with existing field mappings are logged and skipped, the index keeps
// serving with its previous mapping. Any other failure is returned.
func (s *Store) applyMappings(ctx context.Context, client searchstore.Client, res *Resource, alias string) error {
	mapping := DeriveMapping(res.Schema, res.Parent)
	if mapping == nil {
		return nil
	}

	if err := client.PutIndexMappings(ctx, alias, mapping); err != nil {
		queryInvalid := searchstore.ErrQueryInvalid{}
		if !errors.Is(err, searchstore.ErrMappingConflict) && !errors.As(err, &queryInvalid) {
			return fmt.Errorf("updating mapping of %q: %w", alias, err)
		}
		s.logger.Warn(err, "mapping error, updating the index mapping will fail", loglib.Fields{
			"index":    alias,
			"resource": res.Name,
		})
	}
	return nil
}

// PutMapping pushes the derived resource mapping onto the live index.
func (s *Store) PutMapping(ctx context.Context, resource string) error {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return err
	}
	return s.applyMappings(ctx, client, res, engine.resourceIndex(res.sourceName()))
}

// Mapping returns the live index mapping of the resource.
func (s *Store) Mapping(ctx context.Context, resource string) (map[string]any, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}
	return client.GetIndexMappings(ctx, engine.resourceIndex(res.sourceName()))
}

// Settings returns the live index settings of the resource.
func (s *Store) Settings(ctx context.Context, resource string) (map[string]any, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, err
	}
	return client.GetIndexSettings(ctx, engine.resourceIndex(res.sourceName()))
}

// ResolveAlias returns the concrete index name the resource alias points to.
// A name with no alias behind it resolves to itself.
func (s *Store) ResolveAlias(ctx context.Context, resource string) (string, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return "", err
	}

	alias := engine.resourceIndex(res.sourceName())
	aliases, err := client.GetIndexAlias(ctx, alias)
	if err != nil {
		if errors.Is(err, searchstore.ErrResourceNotFound) {
			return alias, nil
		}
		return "", fmt.Errorf("resolving alias %q: %w", alias, err)
	}
	for _, name := range sortedKeys(aliases) {
		return name, nil
	}
	return alias, nil
}

// DropIndexes deletes the backing index of every registered resource.
// Missing indexes are skipped.
func (s *Store) DropIndexes(ctx context.Context) error {
	for _, name := range s.resourceNames {
		_, _, client, err := s.resolve(name)
		if err != nil {
			return err
		}

		index, err := s.ResolveAlias(ctx, name)
		if err != nil {
			return err
		}
		if err := client.DeleteIndex(ctx, []string{index}); err != nil {
			if errors.Is(err, searchstore.ErrResourceNotFound) {
				continue
			}
			return fmt.Errorf("deleting index %q: %w", index, err)
		}
	}
	return nil
}

// generateIndexName appends a random suffix to the alias so each generation
// of the index gets a unique concrete name.
func generateIndexName(alias string) string {
	suffix, _, _ := strings.Cut(uuid.New().String(), "-")
	return alias + "_" + suffix
}

// mergeSettings layers the resource settings over the engine settings. Both
// are full bodies of the form {"settings": {"index": {...}}}.
func mergeSettings(engineSettings, resourceSettings map[string]any) map[string]any {
	if len(resourceSettings) > 0 {
		return resourceSettings
	}
	if len(engineSettings) > 0 {
		return engineSettings
	}
	return nil
}

func settingsIndexSection(settings map[string]any) map[string]any {
	outer, ok := settings["settings"].(map[string]any)
	if !ok {
		return nil
	}
	index, _ := outer["index"].(map[string]any)
	return index
}

// liveIndexSettings unwraps the per index settings envelope the engine
// returns, keyed by the concrete index name.
func liveIndexSettings(response map[string]any) map[string]any {
	for _, key := range sortedKeys(response) {
		entry, ok := response[key].(map[string]any)
		if !ok {
			continue
		}
		return settingsIndexSection(entry)
	}
	return nil
}

// settingsContain reports whether current carries every desired key with an
// equal value, descending into nested sections.
func settingsContain(current, desired map[string]any) bool {
	for key, want := range desired {
		got, ok := current[key]
		if !ok {
			return false
		}
		wantMap, wantIsMap := want.(map[string]any)
		gotMap, gotIsMap := got.(map[string]any)
		if wantIsMap {
			if !gotIsMap || !settingsContain(gotMap, wantMap) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
