package export

import "github.com/iksnae/doc-chat/internal"

// transcript is the document shape shared by the JSON and YAML exports. Messages
// use the backend's role/content keys so an export can be replayed as history.
type transcript struct {
	ChatID     string              `json:"chat_id" yaml:"chat_id"`
	DocumentID string              `json:"document_id" yaml:"document_id"`
	Document   string              `json:"document" yaml:"document"`
	Questions  int                 `json:"questions" yaml:"questions"`
	Messages   []transcriptMessage `json:"messages" yaml:"messages"`
}

type transcriptMessage struct {
	Index   int           `json:"index" yaml:"index"`
	Role    internal.Role `json:"role" yaml:"role"`
	Content string        `json:"content" yaml:"content"`
}

func newTranscript(session *internal.Session) transcript {
	t := transcript{
		ChatID:     session.ID,
		DocumentID: session.DocumentID,
		Document:   session.DisplayName(),
		Messages:   make([]transcriptMessage, 0, len(session.Messages)),
	}
	for i, msg := range session.Messages {
		if msg.Role == internal.RoleUser {
			t.Questions++
		}
		t.Messages = append(t.Messages, transcriptMessage{Index: i, Role: msg.Role, Content: msg.Text})
	}
	return t
}
