package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestNewEmbeddingService(t *testing.T) {
	s := NewEmbeddingService(0)
	assert.Equal(t, DefaultDimensions, s.Dimensions())
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())

	assert.Equal(t, 64, NewEmbeddingService(64).Dimensions())
}

func TestEmbed_Deterministic(t *testing.T) {
	a := NewEmbeddingService(256)
	b := NewEmbeddingService(256)

	v1, err := a.Embed(context.Background(), "Mitochondria produce ATP.")
	require.NoError(t, err)
	v2, err := b.Embed(context.Background(), "Mitochondria produce ATP.")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestEmbed_Normalised(t *testing.T) {
	v, err := NewEmbeddingService(128).Embed(context.Background(), "photosynthesis converts light energy")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestEmbed_RelatedTextIsCloser(t *testing.T) {
	s := NewEmbeddingService(512)
	ctx := context.Background()

	query, err := s.Embed(ctx, "What does the mitochondria produce?")
	require.NoError(t, err)
	related, err := s.Embed(ctx, "The mitochondria produce ATP for the cell.")
	require.NoError(t, err)
	unrelated, err := s.Embed(ctx, "Shakespeare wrote Hamlet around 1600.")
	require.NoError(t, err)

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestEmbed_CaseAndPunctuationInsensitive(t *testing.T) {
	s := NewEmbeddingService(128)
	a, err := s.Embed(context.Background(), "Cell Theory!")
	require.NoError(t, err)
	b, err := s.Embed(context.Background(), "cell, theory")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewEmbeddingService(16).Embed(context.Background(), "  the  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), v)
}

func TestEmbedBatch(t *testing.T) {
	s := NewEmbeddingService(32)
	vecs, err := s.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := s.Embed(context.Background(), "beta")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestEmbed_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddingService(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
