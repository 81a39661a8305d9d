package driven

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a file type.
type NormaliserRegistry interface {
	// Normalise extracts a file using the highest priority normaliser for its type.
	// Returns domain.ErrUnsupportedFormat when no normaliser handles the type.
	Normalise(ctx context.Context, fileType domain.FileType, data []byte) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedTypes returns all file types that can be normalised.
	SupportedTypes() []domain.FileType
}
