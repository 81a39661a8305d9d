package domain

// StreamEventType identifies an event in a streamed answer.
type StreamEventType string

// Stream event types. A stream is zero or more content deltas followed by
// either source_list then done, or a single error.
const (
	EventContentDelta StreamEventType = "content_delta"
	EventSourceList   StreamEventType = "source_list"
	EventDone         StreamEventType = "done"
	EventError        StreamEventType = "error"
)

// IsTerminal returns true if no events follow this one.
func (t StreamEventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// SourceRef names a passage an answer was grounded on.
type SourceRef struct {
	// DocumentID is the owning document.
	DocumentID string `json:"document_id"`

	// Filename is the document's original filename.
	Filename string `json:"filename"`

	// Sequence is the passage's position within the document.
	Sequence int `json:"sequence"`

	// Locator is the page/slide/cell the passage came from.
	Locator string `json:"locator,omitempty"`

	// Similarity is the retrieval score.
	Similarity float64 `json:"similarity"`
}

// StreamEvent is one event of a streamed answer.
type StreamEvent struct {
	// Type is the event type.
	Type StreamEventType `json:"type"`

	// Delta is the incremental answer text for content_delta.
	Delta string `json:"delta,omitempty"`

	// Sources is set for source_list.
	Sources []SourceRef `json:"sources,omitempty"`

	// MessageID is the turn id, set for done.
	MessageID string `json:"message_id,omitempty"`

	// Error is a user-safe message, set for error.
	Error string `json:"error,omitempty"`

	// Err is the underlying error for error events. Not serialised.
	Err error `json:"-"`
}
