package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const (
	nameWidth = 40
	idWidth   = 8
)

var listFullIDs bool

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	documentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long:  `List every conversation the backend knows about. The active chat is marked with *.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(turn.Options{})
		if err != nil {
			return err
		}

		if err := a.sync(cmd.Context()); err != nil {
			return err
		}

		dir := a.turns.Directory()
		displaySessions(cmd.OutOrStdout(), dir.List(), dir.ActiveID(), listFullIDs)
		return nil
	},
}

func displaySessions(out io.Writer, sessions []internal.Session, activeID string, fullIDs bool) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No chats yet"))
		fmt.Fprintln(out, idStyle.Render("💡 Tip: Upload a document with `doc-chat upload <file>`"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d chat(s)", len(sessions))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, " \t"+titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Document")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 80))

	for _, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = activeStyle.Render("*")
		}

		id := s.ID
		if !fullIDs {
			id = shortID(id)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			marker,
			idStyle.Render(id),
			truncate(s.DisplayName(), nameWidth),
			documentStyle.Render(s.DocumentID))
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use an id or unique prefix (e.g., ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(shortID(sessions[0].ID))+
		idStyle.Render(") with `doc-chat show <id>`"))
}

func shortID(id string) string {
	if runewidth.StringWidth(id) <= idWidth {
		return id
	}
	return runewidth.Truncate(id, idWidth, "")
}

// truncate shortens s to width terminal cells, so wide runes count double
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listFullIDs, "full-ids", false, "Show full chat ids")
}
