package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/doc-chat/internal"
)

// JSONExporter exports the transcript as one pretty-printed document
type JSONExporter struct{}

// Export writes the chat header and every message
func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(newTranscript(session))
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
