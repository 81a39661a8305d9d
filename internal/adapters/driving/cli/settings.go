package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, embeddings and answer behaviour.

Use subcommands to configure specific settings or run the interactive wizard.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure all settings step by step.`,
	RunE:  runSettingsWizard,
}

var settingsDefaultCmd = &cobra.Command{
	Use:   "default [provider]",
	Short: "Set the default generation provider",
	Long: `Set the provider used when neither the question nor its session names one.

Available providers:
  ollama    - Local Ollama server (no API key)
  openai    - OpenAI cloud API
  anthropic - Anthropic cloud API`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsDefault,
}

var settingsProviderCmd = &cobra.Command{
	Use:   "provider [provider]",
	Short: "Configure a generation provider",
	Long:  `Configure the model and API key of a generation provider.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsProvider,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider used to index documents and questions.

Changing the embedding model does not re-embed existing documents;
upload them again to index them with the new model.`,
	RunE: runSettingsEmbedding,
}

var settingsPolicyCmd = &cobra.Command{
	Use:   "policy [ungrounded|refuse]",
	Short: "Set how sessions without documents are answered",
	Long: `Set the empty scope policy.

  ungrounded - Answer without documents and say so
  refuse     - Reply with a fixed refusal and call no provider`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsPolicy,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check settings and ping the configured providers",
	RunE:  runSettingsValidate,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsDefaultCmd)
	settingsCmd.AddCommand(settingsProviderCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsPolicyCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	// Generation settings
	cmd.Println("[Generation]")
	cmd.Printf("  Default: %s\n", settings.Generation.Default.Description())
	cmd.Printf("  Temperature: %.2f\n", settings.Generation.Temperature)
	cmd.Printf("  Max tokens: %d\n", settings.Generation.MaxTokens)
	cmd.Printf("  Timeout: %s\n", settings.Generation.Timeout)
	for _, p := range domain.AllLLMProviders() {
		ps := settings.Generation.Provider(p)
		cmd.Printf("  %s\n", p.Description())
		cmd.Printf("    Model: %s\n", ps.Model)
		if ps.BaseURL != "" {
			cmd.Printf("    Base URL: %s\n", ps.BaseURL)
		}
		if p.RequiresAPIKey() {
			if ps.APIKey != "" {
				cmd.Printf("    API Key: %s\n", maskAPIKey(ps.APIKey))
			} else {
				cmd.Printf("    API Key: (not set)\n")
			}
		}
	}
	cmd.Println()

	// Embedding settings
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	if settings.Embedding.Provider == domain.AIProviderOllama {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Println()

	// Retrieval settings
	cmd.Println("[Retrieval]")
	cmd.Printf("  Passages per question: %d\n", settings.Retrieval.TopK)
	cmd.Printf("  Empty sessions: %s\n", settings.Retrieval.EmptyScopePolicy)
	cmd.Println()

	// Processing and storage
	cmd.Println("[Processing]")
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Processing.ChunkSize, settings.Processing.ChunkOverlap)
	cmd.Printf("  Max file size: %d MB\n", settings.Processing.MaxFileSize/(1024*1024))
	cmd.Printf("  Workers: %d\n", settings.Processing.Workers)
	cmd.Printf("  Vector index: %s\n", settings.Storage.VectorBackend)
	cmd.Println()

	// Validation
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'studybuddy settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println("Study Buddy Settings Wizard")
	cmd.Println("===========================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	// Step 1: Default provider
	cmd.Println("Step 1: Configure Answer Provider")
	cmd.Println("---------------------------------")
	provider, err := configureLLMProvider(cmd, reader)
	if err != nil {
		return err
	}
	if err := settingsService.SetDefaultProvider(provider); err != nil {
		return fmt.Errorf("failed to set default provider: %w", err)
	}

	// Step 2: Embeddings
	cmd.Println("Step 2: Configure Embedding Provider")
	cmd.Println("------------------------------------")
	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}

	// Step 3: Empty scope policy
	cmd.Println("Step 3: Sessions Without Documents")
	cmd.Println("----------------------------------")
	policies := []domain.EmptyScopePolicy{domain.EmptyScopeUngrounded, domain.EmptyScopeRefuse}
	cmd.Println("  1. Answer without documents and say so")
	cmd.Println("  2. Refuse to answer")
	cmd.Print("\nEnter choice [1]: ")
	policy := policies[parseChoice(readLine(reader), len(policies), 1)-1]
	if err := settingsService.SetEmptyScopePolicy(policy); err != nil {
		return fmt.Errorf("failed to set policy: %w", err)
	}
	cmd.Println()

	// Final validation
	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsDefault(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	provider := domain.AIProvider(args[0])
	if err := settingsService.SetDefaultProvider(provider); err != nil {
		if provider.RequiresAPIKey() {
			cmd.Printf("Run 'studybuddy settings provider %s' to configure it first.\n", provider)
		}
		return fmt.Errorf("failed to set default provider: %w", err)
	}

	cmd.Printf("Default provider set to: %s\n", provider.Description())
	return nil
}

func runSettingsProvider(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	if len(args) == 1 {
		provider := domain.AIProvider(args[0])
		if !provider.SupportsGeneration() {
			return fmt.Errorf("unknown generation provider: %s", args[0])
		}
		return configureProvider(cmd, reader, provider)
	}

	_, err := configureLLMProvider(cmd, reader)
	return err
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func runSettingsPolicy(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	policy := domain.EmptyScopePolicy(args[0])
	if err := settingsService.SetEmptyScopePolicy(policy); err != nil {
		return fmt.Errorf("failed to set policy: %w", err)
	}

	cmd.Printf("Empty session policy set to: %s\n", policy)
	return nil
}

func runSettingsValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Printf("Embedding (%s)... ", settings.Embedding.Provider)
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Generation (%s)... ", settings.Generation.Default)
	if err := settingsService.ValidateProviderConfig(settings.Generation.Default); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("provider configuration validation failed: %w", err)
	}
	cmd.Println("OK")
	return nil
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get model
	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get API key if needed
	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n\n", selectedProvider.Description(), model)
	return nil
}

func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) (domain.AIProvider, error) {
	cmd.Println("Select Answer Provider")
	providers := domain.AllLLMProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	return selectedProvider, configureProvider(cmd, reader, selectedProvider)
}

func configureProvider(cmd *cobra.Command, reader *bufio.Reader, provider domain.AIProvider) error {
	defaultModel := domain.DefaultLLMModels()[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this provider")
		}
	}

	if err := settingsService.SetProviderConfig(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure %s: %w", provider, err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateProviderConfig(provider); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("%s configuration validation failed: %w", provider, err)
	}
	cmd.Println("OK")

	cmd.Printf("Provider configured: %s (%s)\n\n", provider.Description(), model)
	return nil
}

// Helper functions.

func readLine(reader *bufio.Reader) string {
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads a secret without echo when stdin is a terminal,
// and from reader otherwise.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
