package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SampleChat is a fixture conversation with its stored history
type SampleChat struct {
	Chat  Chat
	Turns []Turn
}

// SampleChats returns two conversations; the first has a short history
func SampleChats() []SampleChat {
	return []SampleChat{
		{
			Chat: Chat{ID: "chat-1", Name: "report.pdf", DocumentID: "doc-1"},
			Turns: []Turn{
				{Role: "user", Content: "What is the revenue?"},
				{Role: "assistant", Content: "Revenue grew 12%."},
			},
		},
		{
			Chat: Chat{ID: "chat-2", Name: "manual.pdf", DocumentID: "doc-2"},
		},
	}
}

// SeedSampleChats adds SampleChats to the backend
func SeedSampleChats(b *FakeBackend) {
	for _, s := range SampleChats() {
		b.AddChat(s.Chat, s.Turns...)
	}
}

// ProgressRecord formats one upload-progress record
func ProgressRecord(payload string) string {
	return "data: " + payload + "\n\n"
}

// ProgressStream builds a complete stream: one record per status followed by
// the terminal record for documentID
func ProgressStream(documentID string, statuses ...string) []string {
	records := make([]string, 0, len(statuses)+1)
	for _, s := range statuses {
		records = append(records, ProgressRecord(fmt.Sprintf(`{"status":%q}`, s)))
	}
	if documentID != "" {
		records = append(records, ProgressRecord(fmt.Sprintf(`{"status":"Done","documentId":%q}`, documentID)))
	}
	return records
}

// WriteTempDocument writes a small document into a test temp dir and returns its path
func WriteTempDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write document %s: %v", name, err)
	}
	return path
}

// JoinRecords concatenates records into one payload
func JoinRecords(records []string) string {
	return strings.Join(records, "")
}
