package internal

import "strings"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a backend role string onto a Role; unknown roles are treated as assistant turns
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleUser)) {
		return RoleUser
	}
	return RoleAssistant
}

// Session represents one conversation about an uploaded document
type Session struct {
	ID         string    `json:"id" yaml:"id"`
	DocumentID string    `json:"document_id" yaml:"document_id"`
	Name       string    `json:"name,omitempty" yaml:"name,omitempty"`
	Messages   []Message `json:"messages" yaml:"messages"`

	// Loaded is true once the transcript has been fetched from the backend in this process
	Loaded bool `json:"-" yaml:"-"`
	// Generation changes every time a session with this ID is (re)created in a directory
	Generation uint64 `json:"-" yaml:"-"`
}

// Message represents a single transcript entry
type Message struct {
	Role Role   `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// DisplayName returns the session name or a placeholder
func (s *Session) DisplayName() string {
	if strings.TrimSpace(s.Name) == "" {
		return "Untitled Chat"
	}
	return s.Name
}

// Clone returns a deep copy so callers can never alias directory-owned slices
func (s Session) Clone() Session {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}
