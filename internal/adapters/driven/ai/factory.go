// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/studybuddy/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/studybuddy/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/studybuddy/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/studybuddy/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/studybuddy/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the AI services built from settings.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	Providers        map[domain.AIProvider]driven.GenerationProvider
	Warnings         []string // Non-fatal issues, e.g. a provider missing its API key.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	for _, p := range r.Providers {
		p.Close()
	}
}

// Init builds the embedding service and every configured generation
// provider. Generation providers are not pinged: an unreachable provider
// is reported when a question is asked of it.
func Init(settings *domain.AppSettings) (*InitResult, error) {
	embedding, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingBackend, err)
	}
	if embedding == nil {
		return nil, fmt.Errorf("%w: embedding provider %q is not configured",
			domain.ErrEmbeddingBackend, settings.Embedding.Provider)
	}

	providers, warnings := CreateGenerationProviders(&settings.Generation)
	return &InitResult{
		EmbeddingService: embedding,
		Providers:        providers,
		Warnings:         warnings,
	}, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
// This is intended for use in the settings command to validate credentials on configuration.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateGenerationConfig validates one provider by creating it and pinging it.
func ValidateGenerationConfig(provider domain.AIProvider, settings *domain.GenerationSettings) error {
	svc, err := CreateGenerationProvider(provider, settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("%w: %s is not configured", domain.ErrProviderUnavailable, provider)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}
	if settings.Provider.IsValid() && !settings.Provider.SupportsEmbedding() {
		return nil, fmt.Errorf("%s does not support embeddings, use hashing, ollama or openai", settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateGenerationProviders builds every generation provider that is
// configured. Providers that cannot be built are skipped with a warning.
func CreateGenerationProviders(settings *domain.GenerationSettings) (map[domain.AIProvider]driven.GenerationProvider, []string) {
	providers := make(map[domain.AIProvider]driven.GenerationProvider)
	var warnings []string

	for _, p := range domain.AllLLMProviders() {
		svc, err := CreateGenerationProvider(p, settings)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		if svc == nil {
			if p == settings.Default {
				warnings = append(warnings, fmt.Sprintf("default provider %s is not configured", p))
			}
			continue
		}
		providers[p] = svc
	}

	sort.Strings(warnings)
	return providers, warnings
}

// CreateGenerationProvider creates one generation provider.
// Returns nil if the provider is not configured.
func CreateGenerationProvider(provider domain.AIProvider, settings *domain.GenerationSettings) (driven.GenerationProvider, error) {
	if settings == nil || !settings.IsConfigured(provider) {
		return nil, nil
	}

	cfg := settings.Provider(provider)
	switch provider {
	case domain.AIProviderOllama:
		return ollamallm.NewProvider(ollamallm.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewProvider(openaillm.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           settings.Timeout,
			RequestsPerMinute: settings.RequestsPerMinute,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewProvider(anthropicllm.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           settings.Timeout,
			RequestsPerMinute: settings.RequestsPerMinute,
		})

	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", provider)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: dimensions,
	})
}
