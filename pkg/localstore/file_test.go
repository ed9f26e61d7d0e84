package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "attendance-c1-2024-02-01")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "attendance-c1-2024-02-01", []byte(`{"s1":{}}`)))
	got, err := store.Get(ctx, "attendance-c1-2024-02-01")
	require.NoError(t, err)
	assert.JSONEq(t, `{"s1":{}}`, string(got))

	require.NoError(t, store.Put(ctx, "attendance-c1-2024-02-01", []byte(`{}`)))
	got, err = store.Get(ctx, "attendance-c1-2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	require.NoError(t, store.Delete(ctx, "attendance-c1-2024-02-01"))
	_, err = store.Get(ctx, "attendance-c1-2024-02-01")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "attendance-c1-2024-02-01"))
}

func TestFileStoreEscapesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "grade-entry-../../etc", []byte(`{}`)))
	assert.Equal(t, dir, filepath.Dir(store.Path("grade-entry-../../etc")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, []string{"k"}, store.Keys())
}
