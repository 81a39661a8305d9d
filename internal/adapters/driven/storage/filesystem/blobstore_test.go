package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func TestBlobStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Store(ctx, []byte("%PDF-1.7 ..."), ".PDF")
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(ref))

	data, err := store.Retrieve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 ...", string(data))

	info, err := os.Stat(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Retrieve(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Delete(ctx, ref))
}

func TestBlobStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	_, err = store.Store(context.Background(), []byte("x"), ".txt")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".upload-")
}

func TestBlobStore_RejectsTraversal(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, ref := range []string{"../secret", "/etc/passwd", "a/b", ""} {
		_, err := store.Retrieve(ctx, ref)
		assert.ErrorIs(t, err, domain.ErrNotFound, ref)
	}

	_, err = store.Store(ctx, []byte("x"), "/../x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBlobStore_CancelledContext(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Store(ctx, []byte("x"), ".txt")
	assert.ErrorIs(t, err, context.Canceled)
}
