package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// GenerationProvider streams answer text from a language model.
//
// Implementations include:
//   - Ollama (local models)
//   - OpenAI (hosted)
//   - Anthropic (hosted)
//
// Unreachable backends and timeouts wrap domain.ErrProviderUnavailable.
type GenerationProvider interface {
	// Provider identifies the backend.
	Provider() domain.AIProvider

	// ModelName returns the name of the model being used.
	ModelName() string

	// GenerateStream sends the request and calls onDelta with each text
	// increment as it arrives. An error returned by onDelta aborts the stream
	// and is returned unchanged.
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(delta string) error) error

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateRequest is a prompt for a streamed answer.
type GenerateRequest struct {
	// System is the system instruction.
	System string

	// Messages is the conversation, ending with the user turn.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// TokenCounter counts model tokens in text.
type TokenCounter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}
