// Package similarity ranks passages by cosine similarity for the
// brute-force vector indexes.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// Cosine returns the cosine similarity of a and b.
// A zero vector has similarity 0 to everything.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK scores candidates against query and returns the k best.
// Candidates must be in insertion order; equal scores keep that order.
func TopK(query []float32, candidates []domain.Passage, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]domain.ScoredPassage, 0, len(candidates))
	for _, p := range candidates {
		if len(p.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, passage %s/%d has %d",
				domain.ErrInvalidInput, len(query), p.DocumentID, p.Sequence, len(p.Embedding))
		}
		scored = append(scored, domain.ScoredPassage{
			Passage:    p,
			Similarity: Cosine(query, p.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Validate checks that every passage belongs to documentID and carries an
// embedding of the same size.
func Validate(documentID string, passages []domain.Passage) error {
	dims := -1
	for i, p := range passages {
		if p.DocumentID != documentID {
			return fmt.Errorf("%w: passage %d belongs to %q, not %q",
				domain.ErrInvalidInput, i, p.DocumentID, documentID)
		}
		if len(p.Embedding) == 0 {
			return fmt.Errorf("%w: passage %d has no embedding", domain.ErrInvalidInput, i)
		}
		if dims >= 0 && len(p.Embedding) != dims {
			return fmt.Errorf("%w: passage %d has %d dimensions, expected %d",
				domain.ErrInvalidInput, i, len(p.Embedding), dims)
		}
		dims = len(p.Embedding)
	}
	return nil
}
