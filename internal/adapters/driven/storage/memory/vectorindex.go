package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Each document's passages are an immutable slice swapped as a whole.
type VectorIndex struct {
	mu   sync.RWMutex
	docs map[string]indexedDocument
	next uint64
}

type indexedDocument struct {
	insertedAt uint64
	passages   []domain.Passage
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{docs: make(map[string]indexedDocument)}
}

// Upsert replaces all passages of a document.
func (v *VectorIndex) Upsert(_ context.Context, documentID string, passages []domain.Passage) error {
	if err := similarity.Validate(documentID, passages); err != nil {
		return err
	}
	stored := make([]domain.Passage, len(passages))
	for i, p := range passages {
		p.Embedding = slices.Clone(p.Embedding)
		stored[i] = p
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs[documentID] = indexedDocument{insertedAt: v.next, passages: stored}
	v.next++
	return nil
}

// Delete removes all passages of a document.
func (v *VectorIndex) Delete(_ context.Context, documentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.docs, documentID)
	return nil
}

// Search returns up to k passages of the allowed documents closest to query.
func (v *VectorIndex) Search(
	_ context.Context, query []float32, allowedDocumentIDs []string, k int,
) ([]domain.ScoredPassage, error) {
	if len(allowedDocumentIDs) == 0 || k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	docs := make([]indexedDocument, 0, len(allowedDocumentIDs))
	seen := make(map[string]struct{}, len(allowedDocumentIDs))
	for _, id := range allowedDocumentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if doc, ok := v.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	v.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].insertedAt < docs[j].insertedAt })

	var candidates []domain.Passage
	for _, doc := range docs {
		candidates = append(candidates, doc.passages...)
	}
	return similarity.TopK(query, candidates, k)
}

// Count returns the number of passages stored for a document.
func (v *VectorIndex) Count(_ context.Context, documentID string) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.docs[documentID].passages), nil
}

// Close releases resources.
func (v *VectorIndex) Close() error {
	return nil
}
