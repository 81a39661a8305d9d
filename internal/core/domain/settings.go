package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHashing is the built-in deterministic embedder.
	// It supports embeddings only.
	AIProviderHashing AIProvider = "hashing"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHashing:
		return true
	default:
		return false
	}
}

// SupportsGeneration returns true if the provider can stream answers.
func (p AIProvider) SupportsGeneration() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderAnthropic
}

// SupportsEmbedding returns true if the provider can embed text.
func (p AIProvider) SupportsEmbedding() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderHashing
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHashing:
		return "Feature hashing (built-in, offline)"
	default:
		return unknownDescription
	}
}

// EmptyScopePolicy decides how a session with no bound documents is answered.
type EmptyScopePolicy string

// Empty scope policies.
const (
	// EmptyScopeUngrounded lets the model answer with an explicit
	// "no grounding documents" context.
	EmptyScopeUngrounded EmptyScopePolicy = "ungrounded"

	// EmptyScopeRefuse answers with a fixed refusal and calls no provider.
	EmptyScopeRefuse EmptyScopePolicy = "refuse"
)

// IsValid returns true if the policy is recognised.
func (p EmptyScopePolicy) IsValid() bool {
	return p == EmptyScopeUngrounded || p == EmptyScopeRefuse
}

// VectorBackend selects the vector index implementation.
type VectorBackend string

// Vector backends.
const (
	VectorBackendSQLite   VectorBackend = "sqlite"
	VectorBackendMemory   VectorBackend = "memory"
	VectorBackendPgvector VectorBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendSQLite, VectorBackendMemory, VectorBackendPgvector:
		return true
	default:
		return false
	}
}

// ProviderSettings holds connection settings for one generation provider.
type ProviderSettings struct {
	// Model is the model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string
}

// GenerationSettings holds answer generation configuration.
type GenerationSettings struct {
	// Default is the provider used when neither the call nor the
	// session names one.
	Default AIProvider

	// Providers holds per-provider connection settings.
	Providers map[AIProvider]ProviderSettings

	// Temperature controls randomness.
	Temperature float64

	// MaxTokens caps the answer length.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration

	// RequestsPerMinute rate limits hosted providers. Zero disables limiting.
	RequestsPerMinute int
}

// Provider returns the settings for p, or zero settings.
func (g GenerationSettings) Provider(p AIProvider) ProviderSettings {
	if g.Providers == nil {
		return ProviderSettings{}
	}
	return g.Providers[p]
}

// IsConfigured returns true if provider p can be constructed.
func (g GenerationSettings) IsConfigured(p AIProvider) bool {
	if !p.SupportsGeneration() {
		return false
	}
	if p.RequiresAPIKey() && g.Provider(p).APIKey == "" {
		return false
	}
	return true
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size.
	Dimensions int

	// Timeout bounds a single embedding call.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbedding() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RetrievalSettings holds query-time retrieval configuration.
type RetrievalSettings struct {
	// TopK is the number of passages retrieved per question.
	TopK int

	// EmptyScopePolicy decides how sessions without documents are answered.
	EmptyScopePolicy EmptyScopePolicy
}

// ProcessingSettings holds document ingestion configuration.
type ProcessingSettings struct {
	// ChunkSize is the maximum passage length in characters.
	ChunkSize int

	// ChunkOverlap is the minimum overlap between consecutive passages.
	ChunkOverlap int

	// MaxFileSize is the upload limit in bytes.
	MaxFileSize int64

	// Workers is the number of documents processed concurrently.
	Workers int
}

// StorageSettings holds persistence configuration.
type StorageSettings struct {
	// DataDir holds the database and uploaded blobs.
	DataDir string

	// VectorBackend selects the vector index.
	VectorBackend VectorBackend

	// PostgresDSN is used when VectorBackend is pgvector.
	PostgresDSN string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Generation GenerationSettings
	Embedding  EmbeddingSettings
	Retrieval  RetrievalSettings
	Processing ProcessingSettings
	Storage    StorageSettings
}

// Defaults for settings that are not configured.
const (
	DefaultTopK              = 3
	MaxTopK                  = 10
	DefaultChunkSize         = 1000
	DefaultChunkOverlap      = 200
	DefaultMaxFileSize       = 20 * 1024 * 1024
	DefaultWorkers           = 2
	DefaultTemperature       = 0.7
	DefaultMaxTokens         = 1024
	DefaultRequestTimeout    = 60 * time.Second
	DefaultEmbeddingTimeout  = 30 * time.Second
	DefaultRequestsPerMinute = 15
	DefaultHashingDimensions = 768
)

// DefaultAppSettings returns settings with sensible defaults.
// Answers use local Ollama and embeddings use the built-in hashing
// embedder, so nothing needs an API key out of the box.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Generation: GenerationSettings{
			Default: AIProviderOllama,
			Providers: map[AIProvider]ProviderSettings{
				AIProviderOllama:    {Model: DefaultLLMModels()[AIProviderOllama]},
				AIProviderOpenAI:    {Model: DefaultLLMModels()[AIProviderOpenAI]},
				AIProviderAnthropic: {Model: DefaultLLMModels()[AIProviderAnthropic]},
			},
			Temperature:       DefaultTemperature,
			MaxTokens:         DefaultMaxTokens,
			Timeout:           DefaultRequestTimeout,
			RequestsPerMinute: DefaultRequestsPerMinute,
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Model:      DefaultEmbeddingModels()[AIProviderHashing],
			Dimensions: DefaultHashingDimensions,
			Timeout:    DefaultEmbeddingTimeout,
		},
		Retrieval: RetrievalSettings{
			TopK:             DefaultTopK,
			EmptyScopePolicy: EmptyScopeUngrounded,
		},
		Processing: ProcessingSettings{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			MaxFileSize:  DefaultMaxFileSize,
			Workers:      DefaultWorkers,
		},
		Storage: StorageSettings{
			VectorBackend: VectorBackendSQLite,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderHashing,
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support answer generation.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderHashing: "fnv-hashing-v1",
		AIProviderOllama:  "nomic-embed-text",
		AIProviderOpenAI:  "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "gemma3:12b",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Built-in
		"fnv-hashing-v1": DefaultHashingDimensions,
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config so processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the pipeline configuration from processing settings.
func PipelineConfigFor(p ProcessingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"cleaner", "chunker"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": p.ChunkSize,
				"overlap":    p.ChunkOverlap,
			},
		},
	}
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfigFor(DefaultAppSettings().Processing)
}
