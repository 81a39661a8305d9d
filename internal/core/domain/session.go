package domain

import "time"

// SessionKind distinguishes typed chat from voice conversations.
// Both feed the same answer path.
type SessionKind string

// Session kinds.
const (
	SessionKindText  SessionKind = "text"
	SessionKindVoice SessionKind = "voice"
)

// IsValid returns true if the kind is recognised.
func (k SessionKind) IsValid() bool {
	return k == SessionKindText || k == SessionKindVoice
}

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New chat"

// ChatSession is a conversation whose retrieval is limited to its bound documents.
type ChatSession struct {
	// ID is the opaque session token.
	ID string

	// Title is the human-readable title.
	Title string

	// Kind is text or voice.
	Kind SessionKind

	// Provider is the session's default generation provider.
	// Empty means the configured default.
	Provider AIProvider

	// DocumentIDs is the bound document set, sorted.
	DocumentIDs []string

	// TotalMessages counts the persisted turns.
	TotalMessages int

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastActivity is when the session was last updated or answered in.
	LastActivity time.Time
}

// ChatMessage is one completed question/answer turn.
type ChatMessage struct {
	// ID is the turn id. A turn is persisted at most once.
	ID string

	// SessionID links to the owning ChatSession.
	SessionID string

	// Question is the user's question.
	Question string

	// Answer is the full assembled answer.
	Answer string

	// Provider is the generation provider that answered.
	Provider AIProvider

	// Model is the model name reported by the provider.
	Model string

	// TokenCount is the prompt plus answer token count, zero if unknown.
	TokenCount int

	// ProcessingTime is the latency of the turn.
	ProcessingTime time.Duration

	// Sources lists the passages the answer was grounded on.
	Sources []SourceRef

	// CreatedAt is when the turn completed.
	CreatedAt time.Time
}
