// Package tiktoken counts model tokens with the cl100k_base BPE encoding.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Counter implements the interface.
var _ driven.TokenCounter = (*Counter)(nil)

// DefaultEncoding is the encoding used by current chat models.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens. Without an encoding it falls back to an estimate
// of one token per four bytes.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New loads the named encoding.
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Counter{encoding: enc}, nil
}

// NewEstimator returns a Counter that only estimates.
func NewEstimator() *Counter {
	return &Counter{}
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Exact reports whether counts come from a real encoding.
func (c *Counter) Exact() bool {
	return c != nil && c.encoding != nil
}
