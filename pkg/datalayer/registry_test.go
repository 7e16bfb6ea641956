// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"searchdal/internal/searchstore"
	"searchdal/internal/searchstore/mocks"
)

func TestClientRegistry(t *testing.T) {
	t.Parallel()

	t.Run("one client per prefix, built once", func(t *testing.T) {
		t.Parallel()

		var calls int
		registry := newClientRegistry(func(engine *EngineConfig) (searchstore.Client, error) {
			calls++
			return &mocks.Client{}, nil
		})

		engine := &EngineConfig{}
		first, err := registry.get("", engine)
		require.NoError(t, err)
		second, err := registry.get("", engine)
		require.NoError(t, err)
		require.Same(t, first, second)

		_, err = registry.get("archive", engine)
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})

	t.Run("concurrent first use shares one client", func(t *testing.T) {
		t.Parallel()

		var calls int
		registry := newClientRegistry(func(engine *EngineConfig) (searchstore.Client, error) {
			calls++
			return &mocks.Client{}, nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := registry.get("", &EngineConfig{})
				require.NoError(t, err)
			}()
		}
		wg.Wait()
		require.Equal(t, 1, calls)
	})

	t.Run("factory failures are not cached", func(t *testing.T) {
		t.Parallel()

		errTest := errors.New("oh noes")
		fail := true
		registry := newClientRegistry(func(engine *EngineConfig) (searchstore.Client, error) {
			if fail {
				return nil, errTest
			}
			return &mocks.Client{}, nil
		})

		_, err := registry.get("", &EngineConfig{})
		require.ErrorIs(t, err, errTest)

		fail = false
		_, err = registry.get("", &EngineConfig{})
		require.NoError(t, err)
	})

	t.Run("reset drops the cached clients", func(t *testing.T) {
		t.Parallel()

		var calls int
		registry := newClientRegistry(func(engine *EngineConfig) (searchstore.Client, error) {
			calls++
			return &mocks.Client{}, nil
		})

		_, err := registry.get("", &EngineConfig{})
		require.NoError(t, err)
		registry.reset()
		_, err = registry.get("", &EngineConfig{})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})
}

func TestDefaultClientFactory_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := defaultClientFactory(&EngineConfig{URL: "http://localhost:9200", Backend: "solr"})
	require.Error(t, err)
}
