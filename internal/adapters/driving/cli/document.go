package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage uploaded documents",
	Long:  `Upload, inspect, or delete study documents and follow their processing.`,
}

var documentUploadCmd = &cobra.Command{
	Use:   "upload [file...]",
	Short: "Upload files for indexing",
	Long: `Upload one or more files. Supported formats are .pdf, .txt, .pptx and .ipynb.

By default the command waits until every file is indexed or has failed.`,
	Args:        cobra.MinimumNArgs(1),
	RunE:        runDocumentUpload,
	Annotations: processing,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentStatusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show document state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentStatus,
}

var documentWaitCmd = &cobra.Command{
	Use:         "wait [doc-id]",
	Short:       "Wait until a document is indexed or has failed",
	Args:        cobra.ExactArgs(1),
	RunE:        runDocumentWait,
	Annotations: processing,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long:  `Removes a document, its passages and its file, and unbinds it from every session.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentRecoverCmd = &cobra.Command{
	Use:         "recover",
	Short:       "Recover documents left by an interrupted run",
	Args:        cobra.NoArgs,
	RunE:        runDocumentRecover,
	Annotations: processing,
}

var documentEventsCmd = &cobra.Command{
	Use:         "events [doc-id]",
	Short:       "Stream document state changes",
	Long:        `Prints state changes as they happen. Without a document ID every document is followed.`,
	Args:        cobra.MaximumNArgs(1),
	RunE:        runDocumentEvents,
	Annotations: processing,
}

// noWait is a flag for the upload command.
var noWait bool

func init() {
	documentUploadCmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the files are queued")

	documentCmd.AddCommand(documentUploadCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentStatusCmd)
	documentCmd.AddCommand(documentWaitCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentRecoverCmd)
	documentCmd.AddCommand(documentEventsCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentUpload(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := cmd.Context()
	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		doc, err := documentService.Upload(ctx, filepath.Base(path), data)
		if err != nil {
			cmd.Printf("%s: %v\n", path, err)
			failed++
			continue
		}

		if !noWait {
			doc, err = documentService.WaitForState(ctx, doc.ID)
			if err != nil {
				return fmt.Errorf("failed waiting for %s: %w", path, err)
			}
		}

		cmd.Printf("%s  %-10s %s\n", doc.ID, doc.State, doc.OriginalFilename)
		if doc.State == domain.StateError {
			cmd.Printf("    Error: %s\n", doc.ErrorReason)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents uploaded.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s  %-10s %s\n", docs[i].ID, docs[i].State, docs[i].OriginalFilename)
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentStatus(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	printDocument(cmd, doc)
	return nil
}

func runDocumentWait(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.WaitForState(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to wait for document: %w", err)
	}

	printDocument(cmd, doc)
	if doc.State == domain.StateError {
		return fmt.Errorf("document failed: %s", doc.ErrorReason)
	}
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document: %s\n", args[0])
	return nil
}

func runDocumentRecover(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	report, err := documentService.Recover(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to recover documents: %w", err)
	}

	cmd.Printf("Failed: %d\n", len(report.Failed))
	for _, id := range report.Failed {
		cmd.Printf("  %s\n", id)
	}
	cmd.Printf("Requeued: %d\n", len(report.Requeued))
	for _, id := range report.Requeued {
		cmd.Printf("  %s\n", id)
	}
	return nil
}

func runDocumentEvents(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	var documentID string
	if len(args) == 1 {
		documentID = args[0]
	}

	events, cancel := documentService.Subscribe(documentID)
	defer cancel()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			cmd.Printf("%s  %s  %s", ev.At.Format("15:04:05"), ev.DocumentID, ev.State)
			if ev.Reason != "" {
				cmd.Printf("  (%s)", ev.Reason)
			}
			cmd.Println()
			if documentID != "" && ev.State.IsTerminal() {
				return nil
			}
		}
	}
}

func printDocument(cmd *cobra.Command, doc *domain.Document) {
	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  File:     %s\n", doc.OriginalFilename)
	cmd.Printf("  Type:     %s\n", doc.FileType)
	cmd.Printf("  Size:     %d bytes\n", doc.Size)
	cmd.Printf("  State:    %s\n", doc.State)
	if doc.ErrorReason != "" {
		cmd.Printf("  Error:    %s\n", doc.ErrorReason)
	}
	if doc.State == domain.StateIndexed {
		cmd.Printf("  Passages: %d\n", doc.ChunkCount)
	}
	cmd.Printf("  Uploaded: %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		for k, v := range doc.Metadata {
			cmd.Printf("    %s: %s\n", k, v)
		}
	}
}
