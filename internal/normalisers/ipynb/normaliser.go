// Package ipynb extracts markdown and code cells from Jupyter notebooks.
package ipynb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Jupyter notebooks (nbformat v3 and v4).
type Normaliser struct{}

// New creates a new notebook normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeNotebook}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// notebook is the subset of nbformat the normaliser reads.
type notebook struct {
	Cells      []cell `json:"cells"`
	Worksheets []struct {
		Cells []cell `json:"cells"`
	} `json:"worksheets"`
	Metadata struct {
		KernelSpec struct {
			Language string `json:"language"`
		} `json:"kernelspec"`
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
	NBFormat int `json:"nbformat"`
}

type cell struct {
	CellType string     `json:"cell_type"`
	Source   sourceText `json:"source"`
	// v3 code cells carry their source in "input".
	Input sourceText `json:"input"`
}

// sourceText accepts both a single string and a list of lines.
type sourceText string

// UnmarshalJSON implements json.Unmarshaler.
func (s *sourceText) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = sourceText(single)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("source must be a string or list of strings: %w", err)
	}
	*s = sourceText(strings.Join(lines, ""))
	return nil
}

// Normalise emits one segment per non-empty markdown or code cell.
// Outputs, attachments and raw cells are ignored.
func (n *Normaliser) Normalise(ctx context.Context, data []byte) (*driven.NormaliseResult, error) {
	var nb notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("%w: invalid notebook json: %v", domain.ErrCorruptFile, err)
	}

	cells := nb.Cells
	for _, ws := range nb.Worksheets {
		cells = append(cells, ws.Cells...)
	}

	segments := make([]domain.Segment, 0, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var text string
		switch c.CellType {
		case "markdown", "heading":
			text = string(c.Source)
		case "code":
			text = string(c.Source)
			if text == "" {
				text = string(c.Input)
			}
		default:
			continue
		}

		text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			Text:    text,
			Locator: "cell " + strconv.Itoa(i+1),
		})
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no markdown or code cells with content", domain.ErrEmptyContent)
	}

	metadata := map[string]string{
		"cells": strconv.Itoa(len(cells)),
	}
	if lang := nb.language(); lang != "" {
		metadata["language"] = lang
	}

	return &driven.NormaliseResult{
		Segments: segments,
		Metadata: metadata,
	}, nil
}

func (nb *notebook) language() string {
	if nb.Metadata.LanguageInfo.Name != "" {
		return nb.Metadata.LanguageInfo.Name
	}
	return nb.Metadata.KernelSpec.Language
}
