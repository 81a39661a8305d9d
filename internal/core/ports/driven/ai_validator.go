package driven

import "github.com/custodia-labs/studybuddy/internal/core/domain"

// AIConfigValidator validates AI provider configurations.
// Implementations verify that configurations are valid by testing connectivity
// to the underlying AI services.
type AIConfigValidator interface {
	// ValidateEmbedding validates an embedding configuration by pinging the provider.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateGeneration validates one generation provider by pinging it.
	ValidateGeneration(provider domain.AIProvider, config *domain.GenerationSettings) error
}
