package normalisers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches extraction to the highest priority normaliser
// registered for a file type.
type Registry struct {
	mu     sync.RWMutex
	byType map[domain.FileType][]driven.Normaliser
}

// NewRegistry creates an empty normaliser registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[domain.FileType][]driven.Normaliser),
	}
}

// Register adds a normaliser for each type it supports.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range n.SupportedTypes() {
		list := append(r.byType[t], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byType[t] = list
	}
}

// Normalise extracts data with the preferred normaliser for fileType.
func (r *Registry) Normalise(ctx context.Context, fileType domain.FileType, data []byte) (*driven.NormaliseResult, error) {
	r.mu.RLock()
	list := r.byType[fileType]
	r.mu.RUnlock()

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no normaliser for %q", domain.ErrUnsupportedFormat, fileType)
	}

	logger.Debug("normalising %d bytes as %s", len(data), fileType)
	return list[0].Normalise(ctx, data)
}

// SupportedTypes returns all file types with at least one normaliser.
func (r *Registry) SupportedTypes() []domain.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.FileType, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
