package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

func TestNewConfigValidator(t *testing.T) {
	validator := NewConfigValidator()

	require.NotNil(t, validator)
}

func TestConfigValidator_ImplementsInterface(t *testing.T) {
	var _ driven.AIConfigValidator = (*ConfigValidator)(nil)
}

func TestConfigValidator_ValidateEmbedding_NilConfig(t *testing.T) {
	validator := NewConfigValidator()

	err := validator.ValidateEmbedding(nil)

	// nil config returns nil (nothing to validate)
	assert.NoError(t, err)
}

func TestConfigValidator_ValidateEmbedding_UnconfiguredProvider(t *testing.T) {
	validator := NewConfigValidator()
	config := &domain.EmbeddingSettings{
		Provider: "",
		Model:    "test-model",
	}

	assert.NoError(t, validator.ValidateEmbedding(config))
}

func TestConfigValidator_ValidateEmbedding_UnsupportedProvider(t *testing.T) {
	validator := NewConfigValidator()
	config := &domain.EmbeddingSettings{
		Provider: domain.AIProviderAnthropic,
		APIKey:   "k",
	}

	assert.Error(t, validator.ValidateEmbedding(config))
}

func TestConfigValidator_ValidateGeneration_NilConfig(t *testing.T) {
	validator := NewConfigValidator()

	err := validator.ValidateGeneration(domain.AIProviderOllama, nil)

	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestConfigValidator_ValidateGeneration_MissingKey(t *testing.T) {
	validator := NewConfigValidator()
	settings := domain.DefaultAppSettings().Generation

	err := validator.ValidateGeneration(domain.AIProviderAnthropic, &settings)

	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
