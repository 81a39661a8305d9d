// Package cli implements the studybuddy command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services wired in by main.
var (
	documentService driving.DocumentService
	sessionService  driving.SessionService
	chatService     driving.ChatService
	settingsService driving.SettingsService
)

// Services holds the ports the CLI drives.
type Services struct {
	Documents driving.DocumentService
	Sessions  driving.SessionService
	Chat      driving.ChatService
	Settings  driving.SettingsService
}

// SetServices wires the services used by every command.
func SetServices(s Services) {
	documentService = s.Documents
	sessionService = s.Sessions
	chatService = s.Chat
	settingsService = s.Settings
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// BootstrapOptions describes what a command needs from the bootstrap.
type BootstrapOptions struct {
	// ConfigPath is the config file, or empty for the default location.
	ConfigPath string

	// Process starts background document processing. Commands that only
	// read or edit records leave documents to whichever process owns them.
	Process bool
}

// Bootstrap builds the services. The returned function releases them.
type Bootstrap func(ctx context.Context, opts BootstrapOptions) (Services, func(), error)

// annotationProcessing marks commands that process documents.
const annotationProcessing = "studybuddy/processing"

// processing is the annotation set of commands that process documents.
var processing = map[string]string{annotationProcessing: "true"}

var (
	bootstrap Bootstrap
	release   func()
)

// SetBootstrap sets the function that wires services before a command runs.
// Without it commands use whatever SetServices configured.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Global flags.
var (
	verboseFlag bool
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "studybuddy",
	Short: "Ask questions about your study material",
	Long: `Study Buddy answers questions using only the documents you bind to a chat session.

Upload lecture PDFs, notes, slide decks and notebooks, bind them to a
session, then ask away. Every answer lists the passages it was grounded on.`,
	SilenceUsage:      true,
	PersistentPreRunE: runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ~/.studybuddy/config.toml)")
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verboseFlag)
	if bootstrap == nil || cmd == versionCmd || release != nil {
		return nil
	}

	services, done, err := bootstrap(cmd.Context(), BootstrapOptions{
		ConfigPath: configFlag,
		Process:    cmd.Annotations[annotationProcessing] == "true",
	})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	SetServices(services)
	release = done
	return nil
}

// Execute runs the root command and releases the services it started.
func Execute(ctx context.Context) error {
	defer func() {
		if release != nil {
			release()
			release = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}
