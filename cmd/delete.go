package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/spf13/cobra"
)

var deleteForce bool

// errNeedsForce is returned when confirmation is required but stdin cannot prompt
var errNeedsForce = errors.New("refusing to delete without confirmation; use --force when not running in a terminal")

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation and its history from the backend.

You are asked to confirm unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(turn.Options{})
		if err != nil {
			return err
		}
		if err := a.sync(cmd.Context()); err != nil {
			return err
		}

		s, err := a.resolve(args[0])
		if err != nil {
			return err
		}

		if !deleteForce {
			ok, err := confirmDelete(cmd.InOrStdin(), s)
			if err != nil {
				return err
			}
			if !ok {
				internal.FprintInfo(cmd.OutOrStdout(), "Deletion cancelled")
				return nil
			}
		}

		if err := a.turns.Delete(cmd.Context(), s.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", s.DisplayName(), err)
		}

		internal.FprintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted %s (chat %s)", s.DisplayName(), s.ID))
		return nil
	},
}

func confirmDelete(in io.Reader, s internal.Session) (bool, error) {
	f, ok := in.(*os.File)
	if !ok || !internal.IsTerminal(f) {
		return false, errNeedsForce
	}

	confirm := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Delete chat '%s' and its history?", s.DisplayName()),
	}
	if err := survey.AskOne(prompt, &confirm, survey.WithStdio(f, os.Stdout, os.Stderr)); err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirm, nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without asking for confirmation")
}
