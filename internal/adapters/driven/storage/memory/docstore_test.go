package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func newDoc(id string) *domain.Document {
	now := time.Now()
	return &domain.Document{
		ID:               id,
		OriginalFilename: id + ".pdf",
		FileType:         domain.FileTypePDF,
		Size:             1024,
		BlobRef:          id + ".pdf",
		Metadata:         map[string]string{"source": "upload"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestNewDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.documents)
}

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	saved, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1.pdf", saved.OriginalFilename)
	assert.Equal(t, domain.StatePending, saved.State)
	assert.Equal(t, "upload", saved.Metadata["source"])
}

func TestDocumentStore_SaveRejectsDuplicateAndEmptyID(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	assert.ErrorIs(t, store.Save(ctx, newDoc("doc-1")), domain.ErrAlreadyExists)
	assert.ErrorIs(t, store.Save(ctx, &domain.Document{}), domain.ErrInvalidInput)
}

func TestDocumentStore_GetReturnsCopy(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	got.Metadata["source"] = "mutated"
	got.State = domain.StateIndexed

	again, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "upload", again.Metadata["source"])
	assert.Equal(t, domain.StatePending, again.State)
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	_, err := NewDocumentStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListOrdering(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Save(ctx, newDoc(id)))
	}
	_, err := store.UpdateState(ctx, domain.StateChange{
		DocumentID: "second", From: domain.StatePending, To: domain.StateProcessing,
	})
	require.NoError(t, err)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].ID)
	assert.Equal(t, "first", all[2].ID)

	pending, err := store.ListByState(ctx, domain.StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].ID)
	assert.Equal(t, "third", pending[1].ID)
}

func TestDocumentStore_UpdateState(t *testing.T) {
	tests := []struct {
		name    string
		initial domain.DocumentState
		change  domain.StateChange
		wantErr error
	}{
		{
			name:    "pending to processing",
			initial: domain.StatePending,
			change:  domain.StateChange{From: domain.StatePending, To: domain.StateProcessing},
		},
		{
			name:    "processing to indexed",
			initial: domain.StateProcessing,
			change:  domain.StateChange{From: domain.StateProcessing, To: domain.StateIndexed, ChunkCount: 4},
		},
		{
			name:    "processing to error",
			initial: domain.StateProcessing,
			change:  domain.StateChange{From: domain.StateProcessing, To: domain.StateError, Reason: "embedding backend error"},
		},
		{
			name:    "stale from",
			initial: domain.StateIndexed,
			change:  domain.StateChange{From: domain.StateProcessing, To: domain.StateError},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:    "backward step",
			initial: domain.StateIndexed,
			change:  domain.StateChange{From: domain.StateIndexed, To: domain.StateProcessing},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:    "skip processing",
			initial: domain.StatePending,
			change:  domain.StateChange{From: domain.StatePending, To: domain.StateIndexed},
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewDocumentStore()
			ctx := context.Background()
			doc := newDoc("doc-1")
			doc.State = tt.initial
			require.NoError(t, store.Save(ctx, doc))

			tt.change.DocumentID = "doc-1"
			updated, err := store.UpdateState(ctx, tt.change)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				got, _ := store.Get(ctx, "doc-1")
				assert.Equal(t, tt.initial, got.State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.change.To, updated.State)
			assert.Equal(t, tt.change.Reason, updated.ErrorReason)
			assert.Equal(t, tt.change.ChunkCount, updated.ChunkCount)
		})
	}
}

func TestDocumentStore_UpdateStateMergesMetadata(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	updated, err := store.UpdateState(ctx, domain.StateChange{
		DocumentID: "doc-1", From: domain.StatePending, To: domain.StateProcessing,
		Metadata: map[string]string{"pages": "12"},
	})
	require.NoError(t, err)
	assert.Equal(t, "12", updated.Metadata["pages"])
	assert.Equal(t, "upload", updated.Metadata["source"])
}

func TestDocumentStore_UpdateStateNotFound(t *testing.T) {
	_, err := NewDocumentStore().UpdateState(context.Background(), domain.StateChange{
		DocumentID: "missing", From: domain.StatePending, To: domain.StateProcessing,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ConcurrentTransitionsOnlyOneWins(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateState(ctx, domain.StateChange{
				DocumentID: "doc-1", From: domain.StatePending, To: domain.StateProcessing,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestDocumentStore_Delete(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, newDoc("doc-1")))

	require.NoError(t, store.Delete(ctx, "doc-1"))
	require.NoError(t, store.Delete(ctx, "doc-1"))

	_, err := store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
