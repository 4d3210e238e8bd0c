package export

import (
	"fmt"
	"io"

	"github.com/iksnae/doc-chat/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports the transcript as a YAML document
type YAMLExporter struct{}

// Export exports a session to YAML format
func (e *YAMLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(newTranscript(session)); err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", session.ID, err)
	}
	return enc.Close()
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
