package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
	Long: `Create chat sessions and choose which documents each may answer from.

A session only ever retrieves from the documents bound to it.`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create [doc-id...]",
	Short: "Create a session",
	Long:  `Create a session bound to the given documents. Every document must be indexed.`,
	RunE:  runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently active first",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session and its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionBindCmd = &cobra.Command{
	Use:   "bind [session-id] [doc-id...]",
	Short: "Add documents to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  bindRunner(driving.BindAdd),
}

var sessionUnbindCmd = &cobra.Command{
	Use:   "unbind [session-id] [doc-id...]",
	Short: "Remove documents from a session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  bindRunner(driving.BindRemove),
}

var sessionReplaceCmd = &cobra.Command{
	Use:   "replace [session-id] [doc-id...]",
	Short: "Replace a session's documents",
	Long:  `Replaces the bound set. With no document IDs the session is left without documents.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  bindRunner(driving.BindReplace),
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename [session-id] [title]",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionRename,
}

var sessionProviderCmd = &cobra.Command{
	Use:   "provider [session-id] [provider]",
	Short: "Set a session's default provider",
	Long:  `Sets the provider used when a question names none. Omit the provider to clear it.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionProvider,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

var sessionMessagesCmd = &cobra.Command{
	Use:   "messages [session-id]",
	Short: "Show a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionMessages,
}

// Flags for session commands.
var (
	sessionTitle    string
	sessionKind     string
	sessionProvider string
	sessionLimit    int
)

func init() {
	sessionCreateCmd.Flags().StringVarP(&sessionTitle, "title", "t", "", "Session title")
	sessionCreateCmd.Flags().StringVar(&sessionKind, "kind", string(domain.SessionKindText), "Session kind (text or voice)")
	sessionCreateCmd.Flags().StringVarP(&sessionProvider, "provider", "p", "", "Default provider (ollama, openai or anthropic)")
	sessionListCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 20, "Maximum number of sessions")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionBindCmd)
	sessionCmd.AddCommand(sessionUnbindCmd)
	sessionCmd.AddCommand(sessionReplaceCmd)
	sessionCmd.AddCommand(sessionRenameCmd)
	sessionCmd.AddCommand(sessionProviderCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionMessagesCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	session, err := sessionService.Create(cmd.Context(), driving.CreateSessionRequest{
		Title:       sessionTitle,
		Kind:        domain.SessionKind(sessionKind),
		Provider:    domain.AIProvider(sessionProvider),
		DocumentIDs: args,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	cmd.Printf("Created session: %s\n", session.ID)
	cmd.Printf("  Title:     %s\n", session.Title)
	cmd.Printf("  Documents: %d\n", len(session.DocumentIDs))
	return nil
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	sessions, err := sessionService.List(cmd.Context(), sessionLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		cmd.Println("No sessions yet. Create one with 'studybuddy session create'.")
		return nil
	}

	for i := range sessions {
		s := &sessions[i]
		cmd.Printf("  %s  %-24s %2d docs  %3d messages  %s\n",
			s.ID, s.Title, len(s.DocumentIDs), s.TotalMessages, s.LastActivity.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	session, err := sessionService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	cmd.Printf("Session: %s\n\n", session.ID)
	cmd.Printf("  Title:    %s\n", session.Title)
	cmd.Printf("  Kind:     %s\n", session.Kind)
	provider := session.Provider.String()
	if provider == "" {
		provider = "(default)"
	}
	cmd.Printf("  Provider: %s\n", provider)
	cmd.Printf("  Messages: %d\n", session.TotalMessages)
	cmd.Printf("  Created:  %s\n", session.CreatedAt.Format("2006-01-02 15:04:05"))

	cmd.Println("\n  Documents:")
	if len(session.DocumentIDs) == 0 {
		cmd.Println("    (none)")
	}
	for _, id := range session.DocumentIDs {
		name := id
		if documentService != nil {
			if doc, err := documentService.Get(cmd.Context(), id); err == nil {
				name = fmt.Sprintf("%s  %s", id, doc.OriginalFilename)
			}
		}
		cmd.Printf("    %s\n", name)
	}
	return nil
}

func bindRunner(mode driving.BindMode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if sessionService == nil {
			return errors.New("session service not configured")
		}

		sessionID, documentIDs := args[0], args[1:]
		if err := sessionService.BindDocuments(cmd.Context(), sessionID, documentIDs, mode); err != nil {
			return fmt.Errorf("failed to %s documents: %w", mode, err)
		}

		scope, err := sessionService.ResolveScope(cmd.Context(), sessionID)
		if err != nil {
			return fmt.Errorf("failed to get session documents: %w", err)
		}
		cmd.Printf("Session %s now has %d documents\n", sessionID, len(scope))
		return nil
	}
}

func runSessionRename(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	if err := sessionService.Rename(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}

	cmd.Printf("Renamed session %s to %q\n", args[0], strings.TrimSpace(args[1]))
	return nil
}

func runSessionProvider(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	var provider domain.AIProvider
	if len(args) == 2 {
		provider = domain.AIProvider(args[1])
	}

	if err := sessionService.SetProvider(cmd.Context(), args[0], provider); err != nil {
		return fmt.Errorf("failed to set provider: %w", err)
	}

	if provider == "" {
		cmd.Printf("Session %s uses the default provider\n", args[0])
	} else {
		cmd.Printf("Session %s uses %s\n", args[0], provider.Description())
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	if err := sessionService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	cmd.Printf("Deleted session: %s\n", args[0])
	return nil
}

func runSessionMessages(cmd *cobra.Command, args []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	msgs, err := sessionService.Messages(cmd.Context(), args[0], 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	if len(msgs) == 0 {
		cmd.Println("No messages yet.")
		return nil
	}

	for i := range msgs {
		m := &msgs[i]
		cmd.Printf("Q: %s\n", m.Question)
		cmd.Printf("A: %s\n", m.Answer)
		printSources(cmd, m.Sources)
		cmd.Println()
	}
	return nil
}
