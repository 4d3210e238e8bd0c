package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const wrapWidth = 80

var limit int

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	counterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Show the transcript of a conversation",
	Long:  `Fetch and display the full question/answer history of a conversation.`,
	Args:  cobra.ExactArgs(1),
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
		if err := a.turns.Select(cmd.Context(), s.ID); err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		s, _ = a.turns.Directory().Get(s.ID)

		out := cmd.OutOrStdout()
		displaySessionHeader(out, &s)

		messages := s.Messages
		total := len(messages)
		if limit > 0 && limit < total {
			messages = messages[:limit]
		}
		for i, msg := range messages {
			displayMessage(out, i+1, msg, total)
		}

		if limit > 0 && limit < total {
			fmt.Fprintln(out)
			fmt.Fprintln(out, counterStyle.Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}
		return nil
	},
}

func displaySessionHeader(out io.Writer, s *internal.Session) {
	if s == nil {
		return
	}
	fmt.Fprintln(out, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", s.DisplayName())))

	metaParts := []string{
		fmt.Sprintf("Chat: %s", s.ID),
		fmt.Sprintf("Document: %s", s.DocumentID),
		fmt.Sprintf("Messages: %d", len(s.Messages)),
	}
	fmt.Fprintln(out, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(out)
}

func displayMessage(out io.Writer, index int, msg internal.Message, total int) {
	actorStyle, actorLabel := assistantMessageStyle, "🤖 Assistant"
	if msg.Role == internal.RoleUser {
		actorStyle, actorLabel = userMessageStyle, "👤 You"
	}

	fmt.Fprintln(out, actorStyle.Render(actorLabel)+" "+counterStyle.Render(fmt.Sprintf("[%d/%d]", index, total)))

	content := strings.TrimSpace(msg.Text)
	if content == "" {
		fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	} else {
		fmt.Fprintln(out, messageContentStyle.Render(wrapText(content, wrapWidth)))
	}
	fmt.Fprintln(out)
}

// wrapText wraps on word boundaries, measuring in terminal cells. Words wider
// than width are split.
func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if runewidth.StringWidth(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		currentLine, currentWidth := "", 0
		for _, word := range strings.Fields(line) {
			for runewidth.StringWidth(word) > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
					currentLine, currentWidth = "", 0
				}
				head := runewidth.Truncate(word, width, "")
				wrapped = append(wrapped, head)
				word = word[len(head):]
			}
			if word == "" {
				continue
			}

			w := runewidth.StringWidth(word)
			switch {
			case currentLine == "":
				currentLine, currentWidth = word, w
			case currentWidth+1+w > width:
				wrapped = append(wrapped, currentLine)
				currentLine, currentWidth = word, w
			default:
				currentLine += " " + word
				currentWidth += 1 + w
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
}
