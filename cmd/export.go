package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/export"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	toStdout  bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [chat-id]",
	Short: "Export conversations to file",
	Long: `Export conversation transcripts to various formats (jsonl, md, yaml, json, html).

With a chat id only that conversation is exported; otherwise every conversation is.
Use 'doc-chat list' to see available chat ids.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Create exporter first so a bad format fails before any request
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		a, err := newApp(turn.Options{})
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := a.sync(ctx); err != nil {
			return err
		}

		var sessions []internal.Session
		if len(args) == 1 {
			s, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			sessions = append(sessions, s)
		} else {
			sessions = a.turns.Directory().List()
		}

		if toStdout {
			if len(sessions) != 1 {
				return fmt.Errorf("--stdout needs exactly one chat id")
			}
			s, err := hydrate(ctx, a, sessions[0].ID)
			if err != nil {
				return err
			}
			return exporter.Export(&s, cmd.OutOrStdout())
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d chat(s) to %s", len(sessions), outputDir), func() error {
			for _, ref := range sessions {
				s, err := hydrate(ctx, a, ref.ID)
				if err != nil {
					internal.LogError("Failed to load chat %s: %v", ref.ID, err)
					continue
				}

				path := filepath.Join(outputDir, fmt.Sprintf("chat_%s.%s", s.ID, exporter.Extension()))
				if err := writeExport(exporter, &s, path); err != nil {
					internal.LogError("Failed to export chat %s: %v", s.ID, err)
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if exported < len(sessions) {
			return fmt.Errorf("exported %d of %d chat(s) to %s", exported, len(sessions), outputDir)
		}
		internal.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Export complete: %d chat(s) exported to %s", exported, outputDir))
		return nil
	},
}

// hydrate fetches the transcript and returns the refreshed session
func hydrate(ctx context.Context, a *app, id string) (internal.Session, error) {
	if err := a.turns.Load(ctx, id); err != nil {
		return internal.Session{}, err
	}
	s, ok := a.turns.Directory().Get(id)
	if !ok {
		return internal.Session{}, internal.ErrStale
	}
	return s, nil
}

func writeExport(exporter export.Exporter, s *internal.Session, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exporter.Export(s, file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats, ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&toStdout, "stdout", false, "Write a single chat to stdout instead of a file")
}
