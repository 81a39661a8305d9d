package driving

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// AnswerRequest is one question in a session.
type AnswerRequest struct {
	// SessionID is the session asking.
	SessionID string

	// Question is typed text or a transcribed voice utterance.
	Question string

	// Provider overrides the session's default provider for this turn.
	Provider domain.AIProvider

	// TopK overrides the number of passages retrieved for this turn.
	// Zero keeps the configured value; others are clamped to 1..MaxTopK.
	TopK int
}

// ChatService answers questions grounded in a session's documents.
type ChatService interface {
	// Answer streams the answer to a question. Misuse (unknown session,
	// empty question, unknown provider) is returned as an error. Everything
	// after that is reported on the stream, which always ends with a done
	// or error event and is then closed. Cancel ctx to abandon the turn;
	// an abandoned turn is never persisted.
	Answer(ctx context.Context, req AnswerRequest) (<-chan domain.StreamEvent, error)
}
