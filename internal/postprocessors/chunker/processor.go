// Package chunker splits passages into retrieval-sized pieces on natural
// text boundaries.
package chunker

import (
	"context"
	"strings"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// Processor splits passage content into chunks of at most chunkSize bytes,
// preferring paragraph, then sentence, then word boundaries.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits every input passage. Output passages keep the locator of
// their input and offsets relative to the same text.
func (p *Processor) Process(ctx context.Context, _ *domain.Document, passages []domain.Passage) ([]domain.Passage, error) {
	var out []domain.Passage

	for _, in := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, sp := range p.split(in.Content) {
			out = append(out, domain.Passage{
				DocumentID: in.DocumentID,
				Content:    in.Content[sp.start:sp.end],
				Start:      in.Start + sp.start,
				End:        in.Start + sp.end,
				Locator:    in.Locator,
			})
		}
	}

	return out, nil
}

type span struct {
	start, end int
}

func (p *Processor) split(text string) []span {
	n := len(text)
	var spans []span

	start := skipSpace(text, 0)
	for start < n {
		end := n
		if n-start > p.chunkSize {
			end = p.breakPoint(text, start, start+p.chunkSize)
		}

		if s, e := trim(text, start, end); s < e {
			spans = append(spans, span{start: s, end: e})
		}
		if end >= n {
			break
		}

		start = skipSpace(text, p.nextStart(text, start, end))
	}

	return spans
}

// breakPoint picks where a chunk starting at start should end, given the
// hard limit. Paragraph breaks win over sentence ends, which win over
// plain whitespace. A word longer than the limit is kept whole.
func (p *Processor) breakPoint(text string, start, limit int) int {
	minEnd := start + p.chunkSize/4

	if i := strings.LastIndex(text[start:limit], "\n\n"); i >= 0 && start+i > minEnd {
		return start + i
	}

	for j := limit; j > minEnd; j-- {
		if isSpace(text[j]) && isSentenceEnd(text[j-1]) {
			return j
		}
	}

	for j := limit; j > start; j-- {
		if isSpace(text[j]) {
			return j
		}
	}

	j := limit
	for j < len(text) && !isSpace(text[j]) {
		j++
	}
	return j
}

// nextStart backs up from end by the overlap to the start of a word.
// It always returns a position after start.
func (p *Processor) nextStart(text string, start, end int) int {
	if p.overlap == 0 {
		return end
	}

	next := end - p.overlap
	if next <= start {
		return end
	}
	for next > start && !isSpace(text[next-1]) {
		next--
	}
	if next <= start {
		return end
	}
	return next
}

func trim(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
