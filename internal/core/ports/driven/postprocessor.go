package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// PostProcessor transforms passages on their way to the vector index.
// PostProcessors are chained in a pipeline (e.g. cleaning, chunking).
// The pipeline seeds one passage per extracted segment; a chunker splits
// those into retrieval-sized passages.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives passages and returns the transformed passages.
	Process(ctx context.Context, doc *domain.Document, passages []domain.Passage) ([]domain.Passage, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process turns a document's segments into final, sequenced passages.
	Process(ctx context.Context, doc *domain.Document, segments []domain.Segment) ([]domain.Passage, error)
}
