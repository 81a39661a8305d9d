package normalisers

import (
	"github.com/custodia-labs/studybuddy/internal/normalisers/ipynb"
	"github.com/custodia-labs/studybuddy/internal/normalisers/pdf"
	"github.com/custodia-labs/studybuddy/internal/normalisers/plaintext"
	"github.com/custodia-labs/studybuddy/internal/normalisers/pptx"
)

// RegisterDefaults registers the built-in normaliser for every supported
// file type.
func RegisterDefaults(r *Registry) {
	r.Register(plaintext.New())
	r.Register(pdf.New())
	r.Register(pptx.New())
	r.Register(ipynb.New())
}
