package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// Normaliser extracts readable text from an uploaded file.
// Each normaliser handles one or more file types.
// Normalisers are pure: they read only the supplied bytes.
type Normaliser interface {
	// SupportedTypes returns the file types this normaliser handles.
	SupportedTypes() []domain.FileType

	// Priority returns the selection priority (higher = preferred).
	// Format normalisers should return 50-89. Fallbacks should return 1-9.
	Priority() int

	// Normalise extracts ordered text segments.
	// Fails with domain.ErrCorruptFile or domain.ErrEmptyContent.
	Normalise(ctx context.Context, data []byte) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the PostProcessor pipeline.
type NormaliseResult struct {
	// Segments is the extracted text in document order.
	Segments []domain.Segment

	// Metadata holds values found while extracting (e.g. "pages").
	Metadata map[string]string
}
