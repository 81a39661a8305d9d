package similarity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func passage(doc string, seq int, v ...float32) domain.Passage {
	return domain.Passage{DocumentID: doc, Sequence: seq, Embedding: v}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestTopK_OrdersBySimilarity(t *testing.T) {
	candidates := []domain.Passage{
		passage("a", 0, 0, 1),
		passage("a", 1, 1, 0),
		passage("b", 0, 1, 1),
	}

	got, err := TopK([]float32{1, 0}, candidates, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Sequence)
	assert.Equal(t, "b", got[1].DocumentID)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
}

func TestTopK_TiesKeepInsertionOrder(t *testing.T) {
	candidates := []domain.Passage{
		passage("x", 0, 1, 0),
		passage("y", 0, 2, 0),
		passage("z", 0, 3, 0),
	}

	got, err := TopK([]float32{1, 0}, candidates, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "x", got[0].DocumentID)
	assert.Equal(t, "y", got[1].DocumentID)
	assert.Equal(t, "z", got[2].DocumentID)
}

func TestTopK_Empty(t *testing.T) {
	got, err := TopK([]float32{1}, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = TopK([]float32{1}, []domain.Passage{passage("a", 0, 1)}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTopK_DimensionMismatch(t *testing.T) {
	_, err := TopK([]float32{1, 0}, []domain.Passage{passage("a", 0, 1, 0, 0)}, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("a", nil))
	assert.NoError(t, Validate("a", []domain.Passage{passage("a", 0, 1, 2), passage("a", 1, 3, 4)}))
	assert.ErrorIs(t, Validate("a", []domain.Passage{passage("b", 0, 1)}), domain.ErrInvalidInput)
	assert.ErrorIs(t, Validate("a", []domain.Passage{passage("a", 0)}), domain.ErrInvalidInput)
	assert.ErrorIs(t, Validate("a", []domain.Passage{passage("a", 0, 1), passage("a", 1, 1, 2)}), domain.ErrInvalidInput)
}
