package internal

// CreateTestSession creates a test session with a short two-turn transcript
func CreateTestSession(id string) *Session {
	return &Session{
		ID:         id,
		DocumentID: "doc-" + id,
		Name:       "Test Conversation.pdf",
		Messages: []Message{
			{
				Role: RoleUser,
				Text: "What is this document about?",
			},
			{
				Role: RoleAssistant,
				Text: "It describes the **quarterly** results.",
			},
		},
		Loaded: true,
	}
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(id string, messages []Message) *Session {
	return &Session{
		ID:         id,
		DocumentID: "doc-" + id,
		Messages:   messages,
	}
}
