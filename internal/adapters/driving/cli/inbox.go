package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/studybuddy/internal/adapters/driving/inbox"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox [dir]",
	Short: "Upload files dropped into a directory",
	Long: `Watch a directory and upload every supported file placed in it.

Uploaded files are moved into the directory's ` + inbox.ArchiveDir + ` folder.
Files already present are uploaded when watching starts.`,
	Args:        cobra.ExactArgs(1),
	RunE:        runInbox,
	Annotations: processing,
}

// inboxSettle is a flag for the inbox command.
var inboxSettle = inbox.DefaultSettle

func init() {
	inboxCmd.Flags().DurationVar(&inboxSettle, "settle", inbox.DefaultSettle, "How long a file must be unchanged before upload")
	rootCmd.AddCommand(inboxCmd)
}

func runInbox(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	w := inbox.New(args[0], documentService,
		inbox.WithSettle(inboxSettle),
		inbox.WithOnUpload(func(doc *domain.Document) {
			cmd.Printf("Queued %s as %s\n", doc.OriginalFilename, doc.ID)
		}),
	)

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", args[0])
	return w.Run(cmd.Context())
}
