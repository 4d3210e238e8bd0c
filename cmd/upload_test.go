package cmd

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/upload"
	"github.com/iksnae/doc-chat/testutil"
)

func TestUploadCommand(t *testing.T) {
	backend := newCLIBackend(t)
	backend.SetUpload(
		testutil.ProgressStream("doc-3", "Uploading", "Extracting text", "Indexing"),
		&testutil.Chat{ID: "chat-3", Name: "paper.pdf", DocumentID: "doc-3"},
	)
	path := testutil.WriteTempDocument(t, "paper.pdf", "%PDF-1.4 paper")

	res := runCLI(t, backend, "", "upload", path)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Ready: paper.pdf (chat chat-3)")

	name, data := backend.Uploaded()
	assert.Equal(t, "paper.pdf", name)
	assert.Equal(t, "%PDF-1.4 paper", string(data))
}

func TestUploadCommand_BackendDoesNotListChat(t *testing.T) {
	backend := newCLIBackend(t)
	backend.SetUpload(testutil.ProgressStream("doc-9"), nil)
	path := testutil.WriteTempDocument(t, "notes.pdf", "x")

	res := runCLI(t, backend, "", "upload", path)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "Ready: notes.pdf (chat doc-9)")
}

func TestUploadCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(*testing.T) string
		prepare func(*testutil.FakeBackend)
		check   func(*testing.T, *testutil.FakeBackend, error)
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.pdf") },
			check: func(t *testing.T, b *testutil.FakeBackend, err error) {
				assert.True(t, errors.Is(err, internal.ErrNoFile))
				assert.Zero(t, b.Calls(testutil.RouteUpload))
			},
		},
		{
			name: "stream ends without document id",
			path: func(t *testing.T) string { return testutil.WriteTempDocument(t, "cut.pdf", "x") },
			prepare: func(b *testutil.FakeBackend) {
				b.SetUpload(testutil.ProgressStream("", "Uploading"), nil)
			},
			check: func(t *testing.T, b *testutil.FakeBackend, err error) {
				assert.Contains(t, err.Error(), "upload of cut.pdf failed")
				assert.True(t, errors.Is(err, upload.ErrIncompleteStream))
			},
		},
		{
			name: "rejected by server",
			path: func(t *testing.T) string { return testutil.WriteTempDocument(t, "big.pdf", "x") },
			prepare: func(b *testutil.FakeBackend) {
				b.Fail(testutil.RouteUpload, http.StatusRequestEntityTooLarge)
			},
			check: func(t *testing.T, b *testutil.FakeBackend, err error) {
				var te *internal.TransportError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, http.StatusRequestEntityTooLarge, te.StatusCode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newCLIBackend(t)
			if tt.prepare != nil {
				tt.prepare(backend)
			}
			res := runCLI(t, backend, "", "upload", tt.path(t))
			require.Error(t, res.Err)
			tt.check(t, backend, res.Err)
			assert.NotContains(t, res.Stdout, "Ready")
		})
	}
}
