// Package postprocessors turns extracted segments into retrieval passages.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// segmentSeparator joins segments when computing passage offsets.
const segmentSeparator = "\n\n"

// Pipeline chains multiple PostProcessors and runs them in order.
// It implements the PostProcessorPipeline interface.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a new processing pipeline with the given processors.
// Processors are executed in the order provided.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process seeds one passage per segment and runs them through all
// processors in order. The result is stamped with the document ID and
// renumbered from zero.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document, segments []domain.Segment) ([]domain.Passage, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	passages := SeedPassages(segments)

	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		passages, err = processor.Process(ctx, doc, passages)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	for i := range passages {
		passages[i].DocumentID = doc.ID
		passages[i].Sequence = i
	}

	return passages, nil
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// SeedPassages wraps each segment in a passage, with offsets into the
// segments joined by a blank line.
func SeedPassages(segments []domain.Segment) []domain.Passage {
	if len(segments) == 0 {
		return nil
	}

	passages := make([]domain.Passage, 0, len(segments))
	offset := 0
	for _, seg := range segments {
		passages = append(passages, domain.Passage{
			Content: seg.Text,
			Start:   offset,
			End:     offset + len(seg.Text),
			Locator: seg.Locator,
		})
		offset += len(seg.Text) + len(segmentSeparator)
	}
	return passages
}
