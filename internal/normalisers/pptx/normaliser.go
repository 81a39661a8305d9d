// Package pptx extracts per-slide text from PowerPoint (OOXML) decks.
package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Normaliser handles PPTX slide decks.
type Normaliser struct{}

// New creates a new PPTX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeSlides}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts one segment per slide: title placeholders first,
// then the remaining shapes in document order. Slides without text are skipped.
func (n *Normaliser) Normalise(ctx context.Context, data []byte) (*driven.NormaliseResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive", domain.ErrCorruptFile)
	}

	slides, hasPresentation := collectSlides(reader)
	if !hasPresentation {
		return nil, fmt.Errorf("%w: missing ppt/presentation.xml", domain.ErrCorruptFile)
	}

	segments := make([]domain.Segment, 0, len(slides))
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := readFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", domain.ErrCorruptFile, s.number, err)
		}
		text, err := parseSlideXML(content)
		if err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", domain.ErrCorruptFile, s.number, err)
		}
		if text == "" {
			continue
		}

		segments = append(segments, domain.Segment{
			Text:    text,
			Locator: "slide " + strconv.Itoa(s.number),
		})
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no text on %d slides", domain.ErrEmptyContent, len(slides))
	}

	metadata := map[string]string{
		"slides": strconv.Itoa(len(slides)),
	}
	if title := extractTitle(reader); title != "" {
		metadata["title"] = title
	}

	return &driven.NormaliseResult{
		Segments: segments,
		Metadata: metadata,
	}, nil
}

type slideFile struct {
	number int
	file   *zip.File
}

// collectSlides returns slide parts in numeric order (slide2 before slide10).
func collectSlides(reader *zip.Reader) ([]slideFile, bool) {
	var slides []slideFile
	hasPresentation := false

	for _, file := range reader.File {
		if file.Name == "ppt/presentation.xml" {
			hasPresentation = true
			continue
		}
		m := slidePath.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{number: num, file: file})
	}

	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })
	return slides, hasPresentation
}

func readFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// slideXML represents the parts of ppt/slides/slideN.xml that carry text.
type slideXML struct {
	Shapes []shape      `xml:"cSld>spTree>sp"`
	Groups []groupShape `xml:"cSld>spTree>grpSp"`
}

type groupShape struct {
	Shapes []shape `xml:"sp"`
}

type shape struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"txBody>p"`
}

func (s shape) isTitle() bool {
	if s.Placeholder == nil {
		return false
	}
	return s.Placeholder.Type == "title" || s.Placeholder.Type == "ctrTitle"
}

func (s shape) text() string {
	lines := make([]string, 0, len(s.Paragraphs))
	for _, p := range s.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			b.WriteString(r.Text)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// parseSlideXML returns the slide's text with titles first.
func parseSlideXML(content []byte) (string, error) {
	var slide slideXML
	if err := xml.Unmarshal(content, &slide); err != nil {
		return "", err
	}

	all := slide.Shapes
	for _, g := range slide.Groups {
		all = append(all, g.Shapes...)
	}

	var titles, body []string
	for _, s := range all {
		text := s.text()
		if text == "" {
			continue
		}
		if s.isTitle() {
			titles = append(titles, text)
		} else {
			body = append(body, text)
		}
	}

	return strings.Join(append(titles, body...), "\n"), nil
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle reads the deck title from docProps/core.xml.
func extractTitle(reader *zip.Reader) string {
	for _, file := range reader.File {
		if file.Name != "docProps/core.xml" {
			continue
		}
		content, err := readFile(file)
		if err != nil {
			return ""
		}
		var core coreXML
		if err := xml.Unmarshal(content, &core); err != nil {
			return ""
		}
		return strings.TrimSpace(core.Title)
	}
	return ""
}
