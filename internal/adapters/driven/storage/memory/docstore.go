package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	order     map[string]int
	next      int
	sessions  *SessionStore
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		order:     make(map[string]int),
	}
}

// Save inserts a new document.
func (s *DocumentStore) Save(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	stored := cloneDocument(*doc)
	if stored.State == "" {
		stored.State = domain.StatePending
	}
	s.documents[doc.ID] = stored
	s.order[doc.ID] = s.next
	s.next++
	return nil
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

// List returns all documents, newest first.
func (s *DocumentStore) List(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := s.sortedLocked(func(domain.Document) bool { return true })
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// ListByState returns documents in the given state, oldest first.
func (s *DocumentStore) ListByState(_ context.Context, state domain.DocumentState) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(d domain.Document) bool { return d.State == state }), nil
}

// UpdateState applies a compare-and-set state change.
func (s *DocumentStore) UpdateState(_ context.Context, change domain.StateChange) (*domain.Document, error) {
	if !change.From.CanTransitionTo(change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, change.From, change.To)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[change.DocumentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if doc.State != change.From {
		return nil, fmt.Errorf("%w: document %s is %s, not %s",
			domain.ErrInvalidTransition, doc.ID, doc.State, change.From)
	}

	doc = cloneDocument(doc)
	doc.State = change.To
	switch change.To {
	case domain.StateError:
		doc.ErrorReason = change.Reason
	case domain.StateIndexed:
		doc.ChunkCount = change.ChunkCount
		doc.ErrorReason = ""
	}
	if change.Metadata != nil {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string, len(change.Metadata))
		}
		maps.Copy(doc.Metadata, change.Metadata)
	}
	doc.UpdatedAt = time.Now()
	s.documents[doc.ID] = doc

	out := cloneDocument(doc)
	return &out, nil
}

// Delete removes a document record.
// A linked SessionStore loses its bindings to the document.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.documents, id)
	delete(s.order, id)
	sessions := s.sessions
	s.mu.Unlock()

	if sessions != nil {
		return sessions.UnbindDocument(ctx, id)
	}
	return nil
}

func (s *DocumentStore) cascadeTo(sessions *SessionStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
}

func (s *DocumentStore) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[id]
	return ok
}

// sortedLocked returns matching documents in insertion order.
func (s *DocumentStore) sortedLocked(match func(domain.Document) bool) []domain.Document {
	var result []domain.Document
	for _, doc := range s.documents {
		if match(doc) {
			result = append(result, cloneDocument(doc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result
}

func cloneDocument(d domain.Document) domain.Document {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}
