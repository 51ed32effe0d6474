package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyStoreFlushesAtBatchSize(t *testing.T) {
	backend := NewMemoryStore()
	store := NewLazyItemStore(backend, 3)
	item, err := store.New()
	require.NoError(t, err)

	require.NoError(t, item.Set("a", 1))
	require.NoError(t, item.Set("b", 2))
	raw, err := backend.Query(item.Key())
	require.NoError(t, err)
	assert.Equal(t, "{}", raw, "below the batch size nothing is persisted")

	require.NoError(t, item.Set("c", 3))
	raw, err = backend.Query(item.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2,"c":3}`, raw, "the batch-sized write flushes everything")
}

func TestLazyStoreReadsSeeUnflushedWrites(t *testing.T) {
	store := NewLazyItemStore(NewMemoryStore(), 100)
	item, err := store.New()
	require.NoError(t, err)
	require.NoError(t, item.Set("score", 1.5))
	assert.Equal(t, 1.5, item.Get("score"), "reads resolve from the cache")
}

func TestLazyStoreCloseFlushes(t *testing.T) {
	backend := NewMemoryStore()
	store := NewLazyItemStore(backend, 100)
	item, err := store.New()
	require.NoError(t, err)
	require.NoError(t, item.Set("body", "return x"))

	require.NoError(t, store.Close())
	raw, err := backend.Query(item.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"return x"}`, raw)
}

func TestLazyStoreNoFlushScope(t *testing.T) {
	backend := NewMemoryStore()
	store := NewLazyItemStore(backend, 1)
	item, err := store.New()
	require.NoError(t, err)

	release := store.NoFlush()
	require.NoError(t, item.Set("a", 1))
	require.NoError(t, item.Set("b", 2))
	raw, err := backend.Query(item.Key())
	require.NoError(t, err)
	assert.Equal(t, "{}", raw, "suspension defers even batch-sized flushes")

	require.NoError(t, release())
	raw, err = backend.Query(item.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, raw, "release flushes the deferred writes")

	// Releasing twice is harmless.
	require.NoError(t, release())
}

func TestLazyStoreNestedNoFlush(t *testing.T) {
	backend := NewMemoryStore()
	store := NewLazyItemStore(backend, 1)
	item, err := store.New()
	require.NoError(t, err)

	outer := store.NoFlush()
	inner := store.NoFlush()
	require.NoError(t, item.Set("a", 1))

	require.NoError(t, inner())
	raw, err := backend.Query(item.Key())
	require.NoError(t, err)
	assert.Equal(t, "{}", raw, "inner release keeps the outer scope suspended")

	require.NoError(t, outer())
	raw, err = backend.Query(item.Key())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, raw)
}

func TestLazyStoreSkipsDeletedDirtyKeys(t *testing.T) {
	backend := NewMemoryStore()
	store := NewLazyItemStore(backend, 100)
	item, err := store.New()
	require.NoError(t, err)
	require.NoError(t, item.Set("a", 1))
	require.NoError(t, item.Delete())
	require.NoError(t, store.Flush())

	n, err := backend.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLazyStoreEveryWritePersistedAtBatchBoundary(t *testing.T) {
	backend := NewMemoryStore()
	const batch = 4
	store := NewLazyItemStore(backend, batch)

	items := make([]Item, batch)
	for i := range items {
		item, err := store.New()
		require.NoError(t, err)
		items[i] = item
	}
	for i, item := range items {
		require.NoError(t, item.Set("n", i))
	}

	// Exactly batch writes happened, so the backend holds all of them.
	for i, item := range items {
		raw, err := backend.Query(item.Key())
		require.NoError(t, err)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), raw)
	}
}
