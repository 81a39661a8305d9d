package driving

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// DocumentService manages uploaded documents and their processing lifecycle.
type DocumentService interface {
	// Upload stores a file and queues it for background processing.
	// Returns the document in the PENDING state.
	Upload(ctx context.Context, filename string, data []byte) (*domain.Document, error)

	// Get retrieves a document by ID, including its state and error reason.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// Delete removes a document, its passages, its blob and every session binding.
	Delete(ctx context.Context, documentID string) error

	// Subscribe delivers state changes of one document. An empty documentID
	// subscribes to every document. Call cancel to release the subscription.
	Subscribe(documentID string) (events <-chan domain.DocumentEvent, cancel func())

	// WaitForState blocks until the document reaches INDEXED or ERROR.
	WaitForState(ctx context.Context, documentID string) (*domain.Document, error)

	// Recover fails documents interrupted mid-write and re-queues pending ones.
	// Returns domain.ErrProcessingLocked while a running process is writing documents.
	Recover(ctx context.Context) (*RecoveryReport, error)
}

// RecoveryReport summarises a recovery sweep.
type RecoveryReport struct {
	// Failed lists documents moved from PROCESSING to ERROR.
	Failed []string

	// Requeued lists PENDING documents queued again.
	Requeued []string
}
