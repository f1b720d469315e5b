package antrian

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerStorage {
	t.Helper()
	store, err := OpenInMemoryBadgerStorage()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStorageSetGet(t *testing.T) {
	ctx := context.Background()
	store := newTestBadger(t)

	entry := Entry{Data: map[string]any{"id": 1, "title": "x"}, Tags: []string{"todos"}, ExpiresAt: 1234}
	require.NoError(t, store.Set(ctx, "k", entry))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1234), got.ExpiresAt)
	assert.Equal(t, []string{"todos"}, got.Tags)
	// JSON round trip yields generic shapes.
	assert.Equal(t, map[string]any{"id": float64(1), "title": "x"}, got.Data)
}

func TestBadgerStorageMissingKey(t *testing.T) {
	store := newTestBadger(t)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerStorageDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestBadger(t)

	require.NoError(t, store.Set(ctx, "k", Entry{Data: "v"}))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerStorageEntriesAndClear(t *testing.T) {
	ctx := context.Background()
	store := newTestBadger(t)

	require.NoError(t, store.Set(ctx, "a", Entry{Data: "1", Tags: []string{"x"}}))
	require.NoError(t, store.Set(ctx, "b", Entry{Data: "2"}))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Clear(ctx))
	entries, err = store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCacheWithBadgerDurableTier(t *testing.T) {
	ctx := context.Background()
	store := newTestBadger(t)
	c := NewCache("test", WithDurable(store))

	type todo struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}

	var calls int32
	got, ok := c.Get(ctx, GetOptions{
		Key:       "todo/1",
		Generator: constGenerator(todo{ID: 1, Title: "write"}, &calls),
		Tags:      []string{"todos"},
		TTL:       time.Minute,
		Durable:   true,
	})
	require.True(t, ok)
	assert.Equal(t, todo{ID: 1, Title: "write"}, got)

	// The durable tier answers next, with the decoded JSON shape.
	got, ok = c.Get(ctx, GetOptions{Key: "todo/1"})
	require.True(t, ok)
	decoded, err := As[todo](got)
	require.NoError(t, err)
	assert.Equal(t, todo{ID: 1, Title: "write"}, decoded)

	require.NoError(t, c.ClearByTag(ctx, "todos"))
	_, ok, err = store.Get(ctx, "todo/1")
	require.NoError(t, err)
	assert.False(t, ok)
}
