package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// DocumentStore persists document metadata and processing state.
type DocumentStore interface {
	// Save inserts a new document.
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID.
	// Returns domain.ErrNotFound if the document does not exist.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// ListByState returns documents in the given state, oldest first.
	ListByState(ctx context.Context, state domain.DocumentState) ([]domain.Document, error)

	// UpdateState applies a compare-and-set state change and returns the
	// updated document. Returns domain.ErrInvalidTransition if the document
	// is not in change.From or the step is not a forward transition.
	UpdateState(ctx context.Context, change domain.StateChange) (*domain.Document, error)

	// Delete removes a document record.
	Delete(ctx context.Context, id string) error
}
