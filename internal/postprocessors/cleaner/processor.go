// Package cleaner normalises whitespace and strips control characters
// from extracted text before chunking.
package cleaner

import (
	"context"
	"strings"
	"unicode"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor cleans passage text and drops passages left empty.
type Processor struct{}

// New creates a new cleaner processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "cleaner"
}

// Process cleans each passage. Offsets are recomputed against the cleaned
// text, with passages joined by a blank line.
func (p *Processor) Process(_ context.Context, _ *domain.Document, passages []domain.Passage) ([]domain.Passage, error) {
	out := make([]domain.Passage, 0, len(passages))
	offset := 0

	for _, in := range passages {
		text := Clean(in.Content)
		if text == "" {
			continue
		}

		in.Content = text
		in.Start = offset
		in.End = offset + len(text)
		out = append(out, in)

		offset = in.End + 2
	}

	return out, nil
}

// Clean collapses horizontal whitespace, limits blank lines to one, trims
// each line and removes control characters other than newlines.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = cleanLine(line)
		if line == "" {
			if len(cleaned) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			cleaned = append(cleaned, "")
			blank = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

func cleanLine(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	space := false

	for _, r := range line {
		switch {
		case r == '\uFFFD':
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == '\u200B', r == '\uFEFF':
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	return b.String()
}
