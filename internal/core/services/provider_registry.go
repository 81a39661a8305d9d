package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// ProviderFactory builds a generation provider from settings.
// It returns nil, nil when the provider is not configured.
type ProviderFactory func(provider domain.AIProvider) (driven.GenerationProvider, error)

// ProviderRegistry hands out generation providers by name.
// Providers are built on first use and kept until Close. There is no
// "current" provider: every caller names the one it wants.
type ProviderRegistry struct {
	factory ProviderFactory

	mu        sync.Mutex
	providers map[domain.AIProvider]driven.GenerationProvider
}

// NewProviderRegistry creates a registry. factory may be nil when every
// provider is registered up front.
func NewProviderRegistry(factory ProviderFactory) *ProviderRegistry {
	return &ProviderRegistry{
		factory:   factory,
		providers: make(map[domain.AIProvider]driven.GenerationProvider),
	}
}

// Register adds a ready-made provider, replacing any cached one.
func (r *ProviderRegistry) Register(p driven.GenerationProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.providers[p.Provider()]; ok && old != p {
		_ = old.Close()
	}
	r.providers[p.Provider()] = p
}

// Get returns the provider with the given name.
// Unknown names fail with ErrInvalidInput; known but unconfigured or
// unbuildable providers fail with ErrProviderUnavailable.
func (r *ProviderRegistry) Get(name domain.AIProvider) (driven.GenerationProvider, error) {
	if !name.SupportsGeneration() {
		return nil, fmt.Errorf("%w: %q is not a generation provider", domain.ErrInvalidInput, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrProviderUnavailable, name)
	}

	p, err := r.factory(name)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrProviderUnavailable, name)
	}

	logger.Debug("built %s provider with model %s", name, p.ModelName())
	r.providers[name] = p
	return p, nil
}

// Available returns the names of providers built so far, sorted.
func (r *ProviderRegistry) Available() []domain.AIProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]domain.AIProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Close releases every provider built by the registry.
func (r *ProviderRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.providers, name)
	}
	return errors.Join(errs...)
}
