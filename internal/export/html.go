package export

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/iksnae/doc-chat/internal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// HTMLExporter renders the Markdown transcript into a standalone HTML page
type HTMLExporter struct{}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; line-height: 1.5; }
pre { background: #f4f4f4; padding: .75rem; overflow-x: auto; }
</style>
</head>
<body>
`

// Export exports a session to HTML
func (e *HTMLExporter) Export(session *internal.Session, w io.Writer) error {
	var md bytes.Buffer
	if err := (&MarkdownExporter{}).Export(session, &md); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, htmlHead, html.EscapeString(session.DisplayName())); err != nil {
		return err
	}
	if err := markdown.Convert(md.Bytes(), w); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

// Extension returns the file extension for this format
func (e *HTMLExporter) Extension() string {
	return "html"
}
