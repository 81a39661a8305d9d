// Package vectortest holds the behaviour every driven.VectorIndex must share,
// run against each implementation from its own package tests.
package vectortest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Factory returns an empty index. Cleanup is registered on t.
type Factory func(t *testing.T) driven.VectorIndex

// Passages builds passages of documentID with the given embeddings.
func Passages(documentID string, vectors ...[]float32) []domain.Passage {
	out := make([]domain.Passage, len(vectors))
	for i, v := range vectors {
		out[i] = domain.Passage{
			DocumentID: documentID,
			Sequence:   i,
			Content:    fmt.Sprintf("%s passage %d", documentID, i),
			Embedding:  v,
			Start:      i * 100,
			End:        i*100 + 99,
			Locator:    fmt.Sprintf("page %d", i+1),
		}
	}
	return out
}

// Run exercises the shared VectorIndex behaviour.
func Run(t *testing.T, newIndex Factory) {
	t.Helper()

	t.Run("empty scope returns nothing", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", []float32{1, 0})))

		for _, scope := range [][]string{nil, {}} {
			results, err := index.Search(ctx, []float32{1, 0}, scope, 3)
			require.NoError(t, err)
			assert.Empty(t, results)
		}
	})

	t.Run("search is limited to allowed documents", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", []float32{0, 1}, []float32{0.1, 1})))
		require.NoError(t, index.Upsert(ctx, "b", Passages("b", []float32{1, 0})))

		results, err := index.Search(ctx, []float32{1, 0}, []string{"a"}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, "a", r.DocumentID)
		}

		results, err = index.Search(ctx, []float32{1, 0}, []string{"missing"}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("results ordered by similarity and capped at k", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		require.NoError(t, index.Upsert(ctx, "a", Passages("a",
			[]float32{0, 1}, []float32{1, 0}, []float32{1, 1})))

		results, err := index.Search(ctx, []float32{1, 0}, []string{"a"}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 1, results[0].Sequence)
		assert.Equal(t, 2, results[1].Sequence)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
		assert.Equal(t, "page 2", results[0].Locator)
		assert.Equal(t, 100, results[0].Start)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		require.NoError(t, index.Upsert(ctx, "z", Passages("z", []float32{1, 0})))
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", []float32{3, 0}, []float32{2, 0})))

		results, err := index.Search(ctx, []float32{1, 0}, []string{"a", "z"}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "z", results[0].DocumentID)
		assert.Equal(t, "a", results[1].DocumentID)
		assert.Equal(t, 0, results[1].Sequence)
		assert.Equal(t, 1, results[2].Sequence)
	})

	t.Run("re-index replaces passages", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", vectors...)))
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", vectors...)))

		n, err := index.Count(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.NoError(t, index.Upsert(ctx, "a", Passages("a", vectors[0])))
		n, err = index.Count(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete removes passages", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		require.NoError(t, index.Upsert(ctx, "a", Passages("a", []float32{1, 0})))
		require.NoError(t, index.Delete(ctx, "a"))
		require.NoError(t, index.Delete(ctx, "never-indexed"))

		n, err := index.Count(ctx, "a")
		require.NoError(t, err)
		assert.Zero(t, n)

		results, err := index.Search(ctx, []float32{1, 0}, []string{"a"}, 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("upsert rejects foreign passages", func(t *testing.T) {
		index := newIndex(t)
		err := index.Upsert(context.Background(), "a", Passages("b", []float32{1, 0}))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("concurrent search sees whole documents", func(t *testing.T) {
		index := newIndex(t)
		ctx := context.Background()
		small := Passages("a", []float32{1, 0}, []float32{1, 0})
		large := Passages("a", []float32{1, 0}, []float32{1, 0}, []float32{1, 0}, []float32{1, 0})
		require.NoError(t, index.Upsert(ctx, "a", small))

		var wg sync.WaitGroup
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(stop)
			for i := range 30 {
				batch := small
				if i%2 == 0 {
					batch = large
				}
				assert.NoError(t, index.Upsert(ctx, "a", batch))
			}
		}()

		for done := false; !done; {
			select {
			case <-stop:
				done = true
			default:
			}
			results, err := index.Search(ctx, []float32{1, 0}, []string{"a"}, 10)
			require.NoError(t, err)
			assert.Contains(t, []int{len(small), len(large)}, len(results))
		}
		wg.Wait()
	})
}
