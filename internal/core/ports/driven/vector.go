package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// VectorIndex stores passage vectors partitioned by document and searches
// them with cosine similarity.
//
// Implementations must guarantee:
//   - Search with no allowed documents returns no results.
//   - Search only returns passages of allowed documents.
//   - Ties are broken by insertion order.
//   - Upsert replaces a document's passages as one unit: a concurrent
//     Search sees all old passages or all new ones, never a mix.
type VectorIndex interface {
	// Upsert replaces all passages of a document.
	Upsert(ctx context.Context, documentID string, passages []domain.Passage) error

	// Delete removes all passages of a document.
	Delete(ctx context.Context, documentID string) error

	// Search returns up to k passages of the allowed documents closest to query.
	Search(ctx context.Context, query []float32, allowedDocumentIDs []string, k int) ([]domain.ScoredPassage, error)

	// Count returns the number of passages stored for a document.
	Count(ctx context.Context, documentID string) (int, error)

	// Close releases resources.
	Close() error
}
