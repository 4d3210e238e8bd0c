package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/doc-chat/internal"
)

// JSONLExporter exports one message per line in the backend's history shape
type JSONLExporter struct{}

type jsonlLine struct {
	Session string        `json:"session"`
	Index   int           `json:"index"`
	Role    internal.Role `json:"role"`
	Content string        `json:"content"`
}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for i, msg := range session.Messages {
		line := jsonlLine{
			Session: session.ID,
			Index:   i,
			Role:    msg.Role,
			Content: msg.Text,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
