package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/iksnae/doc-chat/internal/upload"
	"github.com/spf13/cobra"
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document and start a conversation",
	Long: `Upload a document (typically a PDF) to the backend.

Progress reported by the server is shown while the document is processed.
When processing completes the new conversation is ready for questions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(turn.Options{})
		if err != nil {
			return err
		}

		s, err := uploadDocument(cmd.Context(), a, cmd.ErrOrStderr(), args[0])
		if err != nil {
			return err
		}

		internal.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Ready: %s (chat %s)", s.DisplayName(), s.ID))
		return nil
	},
}

// uploadDocument streams path to the backend with a live status line and
// adopts the resulting conversation as the active session
func uploadDocument(ctx context.Context, a *app, statusOut io.Writer, path string) (internal.Session, error) {
	name := filepath.Base(path)
	line := internal.NewStatusLine(statusOut, fmt.Sprintf("Uploading %s...", name))

	a.uploader.OnStatus(func(j upload.Job) {
		switch {
		case j.State == upload.Requesting:
			line.Start(ctx)
		case j.Status != "":
			line.Update(fmt.Sprintf("%s: %s", name, j.Status))
		}
	})
	defer a.uploader.OnStatus(nil)

	job, err := a.uploader.Start(ctx, path)
	line.Stop(err == nil && job.State == upload.Complete)
	a.uploader.Reset()

	if job.State == upload.Failed {
		return internal.Session{}, fmt.Errorf("upload of %s failed: %w", name, err)
	}
	if err != nil {
		return internal.Session{}, err
	}
	if job.Dropped > 0 {
		internal.LogWarn("skipped %d malformed progress record(s)", job.Dropped)
	}

	s, err := a.turns.AdoptUpload(ctx, job.DocumentID, name)
	if err != nil {
		return internal.Session{}, fmt.Errorf("failed to open conversation for %s: %w", name, err)
	}
	return s, nil
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
