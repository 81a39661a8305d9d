package services

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyGenProvider    = "generation.provider"
	keyGenTemperature = "generation.temperature"
	keyGenMaxTokens   = "generation.max_tokens"
	keyGenTimeout     = "generation.timeout"
	keyGenRate        = "generation.requests_per_minute"

	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyEmbedDims     = "embedding.dimensions"
	keyEmbedTimeout  = "embedding.timeout"

	keyTopK             = "retrieval.top_k"
	keyEmptyScopePolicy = "retrieval.empty_scope_policy"

	keyChunkSize    = "processing.chunk_size"
	keyChunkOverlap = "processing.chunk_overlap"
	keyMaxFileSize  = "processing.max_file_size"
	keyWorkers      = "processing.workers"

	keyDataDir       = "storage.data_dir"
	keyVectorBackend = "storage.vector_backend"
	keyPostgresDSN   = "storage.postgres_dsn"

	keyPipelineProcessors = "pipeline.processors"
)

// Environment variables that override file values.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvPostgresDSN  = "STUDYBUDDY_PG_DSN"
)

// defaultOllamaURL is filled in for local providers without a base URL.
const defaultOllamaURL = "http://localhost:11434"

// providerKey returns the config key of a per-provider generation setting.
func providerKey(p domain.AIProvider, field string) string {
	return "generation." + p.String() + "." + field
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings. API keys and the Postgres
// DSN set in the environment take precedence over the config file.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Generation: domain.GenerationSettings{
			Default:           s.getProvider(keyGenProvider, defaults.Generation.Default),
			Providers:         make(map[domain.AIProvider]domain.ProviderSettings),
			Temperature:       s.getFloat(keyGenTemperature, defaults.Generation.Temperature),
			MaxTokens:         s.getInt(keyGenMaxTokens, defaults.Generation.MaxTokens),
			Timeout:           s.getDuration(keyGenTimeout, defaults.Generation.Timeout),
			RequestsPerMinute: s.getInt(keyGenRate, defaults.Generation.RequestsPerMinute),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:      s.configStore.GetString(keyEmbedModel),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: s.configStore.GetInt(keyEmbedDims),
			Timeout:    s.getDuration(keyEmbedTimeout, defaults.Embedding.Timeout),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:             s.getInt(keyTopK, defaults.Retrieval.TopK),
			EmptyScopePolicy: s.getPolicy(defaults.Retrieval.EmptyScopePolicy),
		},
		Processing: domain.ProcessingSettings{
			ChunkSize:    s.getInt(keyChunkSize, defaults.Processing.ChunkSize),
			ChunkOverlap: s.getIntAllowZero(keyChunkOverlap, defaults.Processing.ChunkOverlap),
			MaxFileSize:  int64(s.getInt(keyMaxFileSize, int(defaults.Processing.MaxFileSize))),
			Workers:      s.getInt(keyWorkers, defaults.Processing.Workers),
		},
		Storage: domain.StorageSettings{
			DataDir:       s.configStore.GetString(keyDataDir),
			VectorBackend: s.getBackend(defaults.Storage.VectorBackend),
			PostgresDSN:   s.configStore.GetString(keyPostgresDSN),
		},
	}

	for _, p := range domain.AllLLMProviders() {
		settings.Generation.Providers[p] = domain.ProviderSettings{
			Model:   s.getString(providerKey(p, "model"), defaults.Generation.Provider(p).Model),
			BaseURL: s.configStore.GetString(providerKey(p, "base_url")),
			APIKey:  s.configStore.GetString(providerKey(p, "api_key")),
		}
	}

	// Embedding model and dimensions follow the provider when unset.
	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if settings.Embedding.Dimensions == 0 {
		settings.Embedding.Dimensions = domain.EmbeddingDimensions()[settings.Embedding.Model]
	}

	s.applyEnv(settings)
	return settings, nil
}

// applyEnv overlays environment values onto settings.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) {
	if key := s.getenv(EnvOpenAIKey); key != "" {
		openai := settings.Generation.Providers[domain.AIProviderOpenAI]
		openai.APIKey = key
		settings.Generation.Providers[domain.AIProviderOpenAI] = openai
		if settings.Embedding.Provider == domain.AIProviderOpenAI {
			settings.Embedding.APIKey = key
		}
	}
	if key := s.getenv(EnvAnthropicKey); key != "" {
		anthropic := settings.Generation.Providers[domain.AIProviderAnthropic]
		anthropic.APIKey = key
		settings.Generation.Providers[domain.AIProviderAnthropic] = anthropic
	}
	if dsn := s.getenv(EnvPostgresDSN); dsn != "" {
		settings.Storage.PostgresDSN = dsn
	}
}

// Save persists application settings. Secrets that come from the
// environment are not written to the config file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	gen := settings.Generation
	values := []struct {
		key   string
		value any
	}{
		{keyGenProvider, gen.Default.String()},
		{keyGenTemperature, gen.Temperature},
		{keyGenMaxTokens, gen.MaxTokens},
		{keyGenTimeout, gen.Timeout},
		{keyGenRate, gen.RequestsPerMinute},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedTimeout, settings.Embedding.Timeout},
		{keyTopK, settings.Retrieval.TopK},
		{keyEmptyScopePolicy, string(settings.Retrieval.EmptyScopePolicy)},
		{keyChunkSize, settings.Processing.ChunkSize},
		{keyChunkOverlap, settings.Processing.ChunkOverlap},
		{keyMaxFileSize, settings.Processing.MaxFileSize},
		{keyWorkers, settings.Processing.Workers},
		{keyVectorBackend, string(settings.Storage.VectorBackend)},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.Storage.DataDir != "" {
		if err := s.configStore.Set(keyDataDir, settings.Storage.DataDir); err != nil {
			return fmt.Errorf("save %s: %w", keyDataDir, err)
		}
	}
	if err := s.saveSecret(keyPostgresDSN, settings.Storage.PostgresDSN, EnvPostgresDSN); err != nil {
		return err
	}
	if err := s.saveSecret(keyEmbedAPIKey, settings.Embedding.APIKey, EnvOpenAIKey); err != nil {
		return err
	}

	for _, p := range domain.AllLLMProviders() {
		cfg := gen.Provider(p)
		if err := s.configStore.Set(providerKey(p, "model"), cfg.Model); err != nil {
			return fmt.Errorf("save %s model: %w", p, err)
		}
		if err := s.configStore.Set(providerKey(p, "base_url"), cfg.BaseURL); err != nil {
			return fmt.Errorf("save %s base_url: %w", p, err)
		}
		if err := s.saveSecret(providerKey(p, "api_key"), cfg.APIKey, envKeyFor(p)); err != nil {
			return err
		}
	}

	return nil
}

// saveSecret writes a non-empty secret unless it matches the environment.
func (s *SettingsService) saveSecret(key, value, env string) error {
	if value == "" || (env != "" && value == s.getenv(env)) {
		return nil
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func envKeyFor(p domain.AIProvider) string {
	switch p { //nolint:exhaustive // Local providers have no key.
	case domain.AIProviderOpenAI:
		return EnvOpenAIKey
	case domain.AIProviderAnthropic:
		return EnvAnthropicKey
	default:
		return ""
	}
}

// SetDefaultProvider selects the generation provider used when a call
// and its session name none.
func (s *SettingsService) SetDefaultProvider(provider domain.AIProvider) error {
	if !provider.SupportsGeneration() {
		return fmt.Errorf("%w: %q cannot answer questions", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	if !settings.Generation.IsConfigured(provider) {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings.Generation.Default = provider
	return s.Save(settings)
}

// SetProviderConfig configures a generation provider.
func (s *SettingsService) SetProviderConfig(provider domain.AIProvider, model, apiKey string) error {
	if !provider.SupportsGeneration() {
		return fmt.Errorf("%w: %q cannot answer questions", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	cfg := settings.Generation.Provider(provider)
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if provider.RequiresAPIKey() && cfg.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	// Set model - use provided or default
	if model != "" {
		cfg.Model = model
	} else if cfg.Model == "" {
		cfg.Model = domain.DefaultLLMModels()[provider]
	}

	if provider.IsLocal() && cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}

	settings.Generation.Providers[provider] = cfg
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider: %s", domain.ErrInvalidInput, provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	if apiKey == "" && provider == domain.AIProviderOpenAI {
		apiKey = s.getenv(EnvOpenAIKey)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}

	// Set base URL based on provider type
	switch {
	case provider == domain.AIProviderOllama:
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = defaultOllamaURL
		}
	default:
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	// Dimensions follow the model. Switching the model invalidates
	// existing vectors, which must be re-uploaded.
	settings.Embedding.Dimensions = domain.EmbeddingDimensions()[settings.Embedding.Model]

	return s.Save(settings)
}

// SetEmptyScopePolicy selects how sessions without documents are answered.
func (s *SettingsService) SetEmptyScopePolicy(policy domain.EmptyScopePolicy) error {
	if !policy.IsValid() {
		return fmt.Errorf("%w: unknown empty scope policy %q", domain.ErrInvalidInput, policy)
	}
	return s.configStore.Set(keyEmptyScopePolicy, string(policy))
}

// Validate checks the current settings for consistency.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return ValidateSettings(settings)
}

// ValidateSettings checks settings for values the services cannot run with.
func ValidateSettings(settings *domain.AppSettings) error {
	var errs []error

	if !settings.Generation.IsConfigured(settings.Generation.Default) {
		errs = append(errs, fmt.Errorf("default provider %s is not configured", settings.Generation.Default))
	}
	if settings.Generation.Timeout <= 0 {
		errs = append(errs, errors.New("generation timeout must be positive"))
	}
	if !settings.Embedding.IsConfigured() {
		errs = append(errs, fmt.Errorf("embedding provider %s is not configured", settings.Embedding.Provider))
	}
	if k := settings.Retrieval.TopK; k < 1 || k > domain.MaxTopK {
		errs = append(errs, fmt.Errorf("top_k must be between 1 and %d, got %d", domain.MaxTopK, k))
	}
	if !settings.Retrieval.EmptyScopePolicy.IsValid() {
		errs = append(errs, fmt.Errorf("unknown empty scope policy %q", settings.Retrieval.EmptyScopePolicy))
	}
	if p := settings.Processing; p.ChunkOverlap >= p.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", p.ChunkOverlap, p.ChunkSize))
	}
	if settings.Processing.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if settings.Storage.VectorBackend == domain.VectorBackendPgvector && settings.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("vector backend pgvector requires storage.postgres_dsn or %s", EnvPostgresDSN))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateProviderConfig validates one generation provider by pinging it.
func (s *SettingsService) ValidateProviderConfig(provider domain.AIProvider) error {
	if !provider.SupportsGeneration() {
		return fmt.Errorf("%w: %q cannot answer questions", domain.ErrInvalidInput, provider)
	}
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateGeneration(provider, &settings.Generation)
}

// GetPipelineConfig returns the post-processor pipeline configuration.
// The processor list can be overridden with pipeline.processors.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	settings, err := s.Get()
	if err != nil {
		return domain.DefaultPipelineConfig()
	}

	cfg := domain.PipelineConfigFor(settings.Processing)
	if processors := s.configStore.GetStringSlice(keyPipelineProcessors); len(processors) > 0 {
		cfg.Processors = processors
	}
	return cfg
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getIntAllowZero(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getPolicy(defaultVal domain.EmptyScopePolicy) domain.EmptyScopePolicy {
	policy := domain.EmptyScopePolicy(s.configStore.GetString(keyEmptyScopePolicy))
	if !policy.IsValid() {
		return defaultVal
	}
	return policy
}

func (s *SettingsService) getBackend(defaultVal domain.VectorBackend) domain.VectorBackend {
	backend := domain.VectorBackend(s.configStore.GetString(keyVectorBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
