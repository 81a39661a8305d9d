package driving

import "github.com/custodia-labs/studybuddy/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetDefaultProvider selects the generation provider used when a call
	// and its session name none.
	SetDefaultProvider(provider domain.AIProvider) error

	// SetProviderConfig configures a generation provider.
	SetProviderConfig(provider domain.AIProvider, model, apiKey string) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetEmptyScopePolicy selects how sessions without documents are answered.
	SetEmptyScopePolicy(policy domain.EmptyScopePolicy) error

	// Validate checks the current settings for consistency.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig() error

	// ValidateProviderConfig pings one generation provider.
	ValidateProviderConfig(provider domain.AIProvider) error
}
