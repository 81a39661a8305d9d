package driving

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// BindMode selects how BindDocuments changes a session's document set.
type BindMode string

// Bind modes.
const (
	BindReplace BindMode = "replace"
	BindAdd     BindMode = "add"
	BindRemove  BindMode = "remove"
)

// IsValid returns true if the mode is recognised.
func (m BindMode) IsValid() bool {
	return m == BindReplace || m == BindAdd || m == BindRemove
}

// CreateSessionRequest describes a new chat session.
type CreateSessionRequest struct {
	// Title is optional.
	Title string

	// Kind defaults to text.
	Kind domain.SessionKind

	// Provider is the session's default generation provider. Optional.
	Provider domain.AIProvider

	// DocumentIDs is the initial bound set. Every document must be INDEXED.
	DocumentIDs []string
}

// SessionService manages chat sessions and is the retrieval gate:
// the only way to learn which documents a session may retrieve from.
type SessionService interface {
	// Create creates a session with an initial, possibly empty, document set.
	Create(ctx context.Context, req CreateSessionRequest) (*domain.ChatSession, error)

	// Get retrieves a session with its bound documents.
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// List returns sessions, most recently active first.
	List(ctx context.Context, limit, offset int) ([]domain.ChatSession, error)

	// Rename changes a session's title.
	Rename(ctx context.Context, sessionID, title string) error

	// SetProvider changes a session's default provider. Empty clears it.
	SetProvider(ctx context.Context, sessionID string, provider domain.AIProvider) error

	// Delete removes a session with its messages and bindings.
	Delete(ctx context.Context, sessionID string) error

	// ResolveScope returns exactly the session's current bound document set.
	// Returns domain.ErrSessionNotFound for unknown sessions.
	ResolveScope(ctx context.Context, sessionID string) ([]string, error)

	// BindDocuments changes the bound set. Adding a document that is not
	// INDEXED fails with domain.ErrDocumentNotReady and changes nothing.
	BindDocuments(ctx context.Context, sessionID string, documentIDs []string, mode BindMode) error

	// Messages returns a session's completed turns, oldest first.
	Messages(ctx context.Context, sessionID string, limit, offset int) ([]domain.ChatMessage, error)
}
