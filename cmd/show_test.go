package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/testutil"
)

func TestShowCommand(t *testing.T) {
	backend := newCLIBackend(t)

	res := runCLI(t, backend, "", "show", "chat-1")
	require.NoError(t, res.Err)

	out := res.Stdout
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "Messages: 2")
	assert.Contains(t, out, "What is the revenue?")
	assert.Contains(t, out, "Revenue grew 12%.")
	assert.Contains(t, out, "[2/2]")
	assert.Less(t, strings.Index(out, "What is the revenue?"), strings.Index(out, "Revenue grew 12%."))
}

func TestShowCommand_ByDocumentAndPrefix(t *testing.T) {
	backend := newCLIBackend(t)

	for _, ref := range []string{"doc-2", "chat-2"} {
		res := runCLI(t, backend, "", "show", ref)
		require.NoError(t, res.Err, ref)
		assert.Contains(t, res.Stdout, "manual.pdf")
		assert.Contains(t, res.Stdout, "Messages: 0")
	}
}

func TestShowCommand_Limit(t *testing.T) {
	backend := newCLIBackend(t)

	res := runCLI(t, backend, "", "show", "chat-1", "--limit", "1")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "What is the revenue?")
	assert.NotContains(t, res.Stdout, "Revenue grew 12%.")
	assert.Contains(t, res.Stdout, "1 more message(s)")
}

func TestShowCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		prepare func(*testutil.FakeBackend)
		check   func(*testing.T, error)
	}{
		{
			name: "unknown chat",
			args: []string{"show", "nope"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, internal.ErrNotFound))
			},
		},
		{
			name: "ambiguous prefix",
			args: []string{"show", "chat-"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "matches 2 chats")
			},
		},
		{
			name: "history unavailable",
			args: []string{"show", "chat-1"},
			prepare: func(b *testutil.FakeBackend) {
				b.Fail(testutil.RouteHistory, http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, internal.IsTransport(err))
			},
		},
		{
			name: "missing argument",
			args: []string{"show"},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "accepts 1 arg")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newCLIBackend(t)
			if tt.prepare != nil {
				tt.prepare(backend)
			}
			res := runCLI(t, backend, "", tt.args...)
			require.Error(t, res.Err)
			tt.check(t, res.Err)
		})
	}
}

func TestDisplayMessage_Empty(t *testing.T) {
	var buf bytes.Buffer
	displayMessage(&buf, 1, internal.Message{Role: internal.RoleAssistant}, 1)
	assert.Contains(t, buf.String(), "(empty message)")
	assert.Contains(t, buf.String(), "Assistant")
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "short line", 80, "short line"},
		{"word boundaries", "aaa bbb ccc", 7, "aaa bbb\nccc"},
		{"long word is split", "abcdefghij", 4, "abcd\nefgh\nij"},
		{"wide runes", "日本 語", 4, "日本\n語"},
		{"keeps newlines", "one\ntwo", 80, "one\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			assert.Equal(t, tt.want, got)
			for _, line := range strings.Split(got, "\n") {
				assert.LessOrEqual(t, runewidth.StringWidth(line), tt.width)
			}
		})
	}
}
