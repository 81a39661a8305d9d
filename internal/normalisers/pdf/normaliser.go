// Package pdf extracts per-page text from PDF files using MuPDF (go-fitz).
package pdf

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// PageReader is the subset of a parsed PDF the normaliser needs.
type PageReader interface {
	NumPage() int
	Text(page int) (string, error)
	Close() error
}

// OpenFunc parses PDF bytes into a PageReader.
type OpenFunc func(data []byte) (PageReader, error)

// OpenFitz opens a PDF with MuPDF.
func OpenFitz(data []byte) (PageReader, error) {
	return fitz.NewFromMemory(data)
}

// Normaliser handles PDF documents.
type Normaliser struct {
	open OpenFunc
}

// Option configures the PDF normaliser.
type Option func(*Normaliser)

// WithOpener replaces the PDF parser. Used in tests.
func WithOpener(open OpenFunc) Option {
	return func(n *Normaliser) {
		if open != nil {
			n.open = open
		}
	}
}

// New creates a new PDF normaliser.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{open: OpenFitz}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SupportedTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypePDF}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts text per page. Pages without text are skipped;
// a document where no page has text is empty content.
func (n *Normaliser) Normalise(ctx context.Context, data []byte) (*driven.NormaliseResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty pdf", domain.ErrCorruptFile)
	}

	doc, err := n.open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptFile, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	segments := make([]domain.Segment, 0, pages)
	skipped := 0

	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.Text(i)
		if err != nil {
			logger.Debug("pdf page %d: %v", i+1, err)
			skipped++
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			skipped++
			continue
		}

		segments = append(segments, domain.Segment{
			Text:    text,
			Locator: "page " + strconv.Itoa(i+1),
		})
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no extractable text in %d pages", domain.ErrEmptyContent, pages)
	}
	if skipped > 0 {
		logger.Debug("pdf: skipped %d of %d pages without text", skipped, pages)
	}

	return &driven.NormaliseResult{
		Segments: segments,
		Metadata: map[string]string{
			"pages": strconv.Itoa(pages),
		},
	}, nil
}
