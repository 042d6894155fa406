package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "storage.json")
	return NewStore(NewRegistry(), filename), filename
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	value, ok, err := store.GetItem(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)

	versions, err := store.GetAllVersions(ctx, "anything")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestStore_StoreAndGetItem(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.StoreItem(ctx, "greeting", "hello\nworld", false))

	value, ok, err := store.GetItem(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello\nworld", value)
}

func TestStore_InPlaceUpdateKeepsVersionCount(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.StoreItem(ctx, "key", "first", false))
	require.NoError(t, store.StoreItem(ctx, "key", "second", false))

	versions, err := store.GetAllVersions(ctx, "key")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, []string{"second"}, versions[0].Value)
}

func TestStore_NewVersionAppends(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.StoreItem(ctx, "key", "first", false))
	require.NoError(t, store.StoreItem(ctx, "key", "second", true))
	require.NoError(t, store.StoreItem(ctx, "key", "third", false))

	versions, err := store.GetAllVersions(ctx, "key")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, []string{"first"}, versions[0].Value)
	assert.Equal(t, []string{"third"}, versions[1].Value)
	assert.LessOrEqual(t, versions[0].Timestamp, versions[1].Timestamp)

	value, ok, err := store.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "third", value)
}

func TestStore_SharedRegistrySharesLoad(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	filename := filepath.Join(t.TempDir(), "storage.json")

	first := NewStore(registry, filename)
	second := NewStore(registry, filename)

	require.NoError(t, first.StoreItem(ctx, "key", "written by first", false))

	value, ok, err := second.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "written by first", value)
}

func TestStore_PersistsAcrossRegistries(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "storage.json")

	store := NewStore(NewRegistry(), filename)
	require.NoError(t, store.StoreItem(ctx, "key", "line one\nline two", true))
	require.NoError(t, store.StoreItem(ctx, "key", "line three", true))

	// A fresh registry simulates a process restart: the data must come back
	// from the file, versions intact.
	reloaded := NewStore(NewRegistry(), filename)
	versions, err := reloaded.GetAllVersions(ctx, "key")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, []string{"line one", "line two"}, versions[0].Value)
	assert.Equal(t, []string{"line three"}, versions[1].Value)
}

func TestStore_MalformedFileFailsFast(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "not json at all"},
		{"not an object", `["a", "b"]`},
		{"versions not a list", `{"key": "oops"}`},
		{"version not a pair", `{"key": [[1]]}`},
		{"version pair too long", `{"key": [[1, ["a"], "extra"]]}`},
		{"timestamp not an integer", `{"key": [["soon", ["a"]]]}`},
		{"value not a list", `{"key": [[1, "a"]]}`},
		{"value is null", `{"key": [[1, null]]}`},
		{"value not strings", `{"key": [[1, [2]]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "storage.json")
			require.NoError(t, os.WriteFile(filename, []byte(tt.content), 0o600))

			store := NewStore(NewRegistry(), filename)
			_, _, err := store.GetItem(ctx, "key")
			assert.Error(t, err)
		})
	}
}

func TestStore_ValidFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	filename := filepath.Join(t.TempDir(), "storage.json")
	content := `{"key": [[1000, ["a", "b"]], [2000, ["c"]]]}`
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o600))

	store := NewStore(NewRegistry(), filename)
	versions, err := store.GetAllVersions(ctx, "key")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, Version{Timestamp: 1000, Value: []string{"a", "b"}}, versions[0])
	assert.Equal(t, Version{Timestamp: 2000, Value: []string{"c"}}, versions[1])
}

func TestStore_GetAllVersionsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.StoreItem(ctx, "key", "first", false))

	versions, err := store.GetAllVersions(ctx, "key")
	require.NoError(t, err)
	versions[0] = Version{Timestamp: 0, Value: []string{"tampered"}}

	value, _, err := store.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}
