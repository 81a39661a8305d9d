package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// SessionStore persists chat sessions and their document bindings.
// Binding writes must be visible to the next Bindings call.
type SessionStore interface {
	// Create inserts a session together with its initial bindings.
	Create(ctx context.Context, session *domain.ChatSession) error

	// Get retrieves a session with its bound document IDs.
	// Returns domain.ErrNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*domain.ChatSession, error)

	// List returns sessions ordered by last activity, most recent first.
	List(ctx context.Context, limit, offset int) ([]domain.ChatSession, error)

	// Update stores title, kind, provider and last activity.
	Update(ctx context.Context, session *domain.ChatSession) error

	// Delete removes a session, its messages and its bindings.
	// Documents are never removed. Returns domain.ErrNotFound for unknown sessions.
	Delete(ctx context.Context, id string) error

	// Bindings returns the bound document IDs, sorted.
	Bindings(ctx context.Context, sessionID string) ([]string, error)

	// SetBindings replaces the bound document set.
	SetBindings(ctx context.Context, sessionID string, documentIDs []string) error

	// AddBindings adds documents to the bound set. Existing bindings are kept.
	// Binding a document that does not exist returns domain.ErrDocumentNotFound,
	// as do SetBindings and Create.
	AddBindings(ctx context.Context, sessionID string, documentIDs []string) error

	// RemoveBindings removes documents from the bound set.
	RemoveBindings(ctx context.Context, sessionID string, documentIDs []string) error

	// UnbindDocument removes a document from every session.
	UnbindDocument(ctx context.Context, documentID string) error
}

// MessageStore persists completed chat turns.
type MessageStore interface {
	// Append stores a turn and bumps the session's message count and last
	// activity. A turn ID that already exists is ignored and reported
	// as not inserted. Returns domain.ErrNotFound for unknown sessions.
	Append(ctx context.Context, msg *domain.ChatMessage) (bool, error)

	// List returns a session's turns, oldest first.
	List(ctx context.Context, sessionID string, limit, offset int) ([]domain.ChatMessage, error)

	// Count returns the number of turns stored for a session.
	Count(ctx context.Context, sessionID string) (int, error)
}
