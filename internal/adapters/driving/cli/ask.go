package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

var askCmd = &cobra.Command{
	Use:   "ask [session-id] [question...]",
	Short: "Ask a question in a session",
	Long: `Ask a question answered from the documents bound to the session.

The answer is printed as it is generated, followed by its sources.
Press Ctrl-C to stop; a stopped answer is not saved.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Chat interactively in a session",
	Long:  `Reads questions line by line until an empty line, "exit" or end of input.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

// Per-question overrides for ask and chat.
var (
	askProvider string
	askTopK     int
)

func init() {
	askCmd.Flags().StringVarP(&askProvider, "provider", "p", "", "Provider for this question (ollama, openai or anthropic)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Passages retrieved for this question (1-10, default from settings)")
	chatCmd.Flags().StringVarP(&askProvider, "provider", "p", "", "Provider for every question (ollama, openai or anthropic)")
	chatCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Passages retrieved for every question (1-10, default from settings)")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return streamAnswer(ctx, cmd, args[0], strings.Join(args[1:], " "))
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}

	sessionID := args[0]
	if sessionService != nil {
		session, err := sessionService.Get(cmd.Context(), sessionID)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		cmd.Printf("Chatting in %q with %d documents. Empty line to quit.\n", session.Title, len(session.DocumentIDs))
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for {
		cmd.Print("\n> ")
		question := readLine(reader)
		if question == "" || question == "exit" {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		err := streamAnswer(ctx, cmd, sessionID, question)
		stop()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
		}
	}
}

// streamAnswer prints one answer as it streams, then its sources.
func streamAnswer(ctx context.Context, cmd *cobra.Command, sessionID, question string) error {
	stream, err := chatService.Answer(ctx, driving.AnswerRequest{
		SessionID: sessionID,
		Question:  question,
		Provider:  domain.AIProvider(askProvider),
		TopK:      askTopK,
	})
	if err != nil {
		return fmt.Errorf("failed to ask: %w", err)
	}

	// Drain to the end: the stream closes only once the turn is stored.
	var (
		terminal bool
		result   error
	)
	for ev := range stream {
		switch ev.Type {
		case domain.EventContentDelta:
			cmd.Print(ev.Delta)
		case domain.EventSourceList:
			cmd.Println()
			printSources(cmd, ev.Sources)
		case domain.EventDone:
			terminal = true
		case domain.EventError:
			cmd.Println()
			terminal = true
			result = errors.New(ev.Error)
		}
	}

	if !terminal {
		cmd.Println()
		return errors.New("answer cancelled")
	}
	return result
}

func printSources(cmd *cobra.Command, sources []domain.SourceRef) {
	if len(sources) == 0 {
		return
	}
	cmd.Println("\nSources:")
	for i, src := range sources {
		cmd.Printf("  [%d] %s", i+1, src.Filename)
		if src.Locator != "" {
			cmd.Printf(" (%s)", src.Locator)
		}
		cmd.Printf("  %.2f\n", src.Similarity)
	}
}
