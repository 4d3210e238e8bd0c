package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/doc-chat/internal"
)

func TestMarkdownExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		session *internal.Session
		want    []string
		notWant []string
	}{
		{
			name:    "basic session",
			session: internal.CreateTestSession("test1"),
			want: []string{
				"# Test Conversation.pdf",
				"**Chat:** test1",
				"**Document:** doc-test1",
				"**Messages:** 2",
				"**You:**",
				"What is this document about?",
				"**Assistant:**",
				"It describes the **quarterly** results.",
			},
		},
		{
			name:    "untitled session",
			session: internal.CreateTestSessionWithMessages("test2", nil),
			want:    []string{"# Untitled Chat", "**Messages:** 0"},
		},
		{
			name: "user markdown is escaped",
			session: internal.CreateTestSessionWithMessages("test3", []internal.Message{
				{Role: internal.RoleUser, Text: "Is **this** bold?\n# heading"},
			}),
			want:    []string{"Is \\*\\*this\\*\\* bold?", "\\# heading"},
			notWant: []string{"Is **this** bold?"},
		},
		{
			name: "code blocks are kept",
			session: internal.CreateTestSessionWithMessages("test4", []internal.Message{
				{Role: internal.RoleUser, Text: "```\nx = a**b\n```"},
			}),
			want: []string{"x = a**b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&MarkdownExporter{}).Export(tt.session, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("Export() output missing %q\n%s", want, output)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(output, nw) {
					t.Errorf("Export() output should not contain %q", nw)
				}
			}
		})
	}
}

func TestMarkdownExporter_Separators(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(internal.CreateTestSession("s"), &buf); err != nil {
		t.Fatal(err)
	}
	// one after the header and one between the two messages
	if got := strings.Count(buf.String(), "---\n"); got != 2 {
		t.Errorf("separator count = %d, want 2", got)
	}
}

func TestMarkdownExporter_Extension(t *testing.T) {
	if got := (&MarkdownExporter{}).Extension(); got != "md" {
		t.Errorf("Extension() = %v, want md", got)
	}
}
