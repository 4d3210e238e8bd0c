package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/doc-chat/internal"
)

// MarkdownExporter exports sessions in Markdown format. Assistant answers are
// already Markdown and are written as is; questions are escaped.
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(session.DisplayName()))

	_, _ = fmt.Fprintf(w, "**Chat:** %s  \n", session.ID)
	_, _ = fmt.Fprintf(w, "**Document:** %s  \n", session.DocumentID)
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range session.Messages {
		content := msg.Text
		if msg.Role == internal.RoleUser {
			content = escapeMarkdown(content)
		}

		_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", roleLabel(msg.Role), content)

		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func roleLabel(r internal.Role) string {
	if r == internal.RoleUser {
		return "You"
	}
	return "Assistant"
}

// escapeMarkdown escapes emphasis and heading markers outside code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			if strings.HasPrefix(line, "#") {
				line = "\\" + line
			}
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
