package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// Route names used by Fail and Calls
const (
	RouteList    = "list"
	RouteHistory = "history"
	RouteQuery   = "query"
	RouteUpload  = "upload"
	RouteDelete  = "delete"
)

// Chat is a conversation held by the fake backend
type Chat struct {
	ID         string
	Name       string
	DocumentID string
}

// Turn is one stored history entry in wire form
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FakeBackend is an in-memory document-chat server on httptest
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	chats    []Chat
	history  map[string][]Turn
	failures map[string]int
	calls    map[string]int

	answer    func(documentID, question string) string
	gate      chan struct{}
	lastQuery url.Values

	uploadRecords []string
	uploadChat    *Chat
	uploadName    string
	uploadData    []byte
	legacyKeys    bool
}

// NewFakeBackend starts a fake backend that is closed when the test ends
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		history:  make(map[string][]Turn),
		failures: make(map[string]int),
		calls:    make(map[string]int),
		answer: func(_, question string) string {
			return "Answer to: " + question
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", b.handleChats)
	mux.HandleFunc("GET /api/conversations/{doc}", b.handleHistory)
	mux.HandleFunc("POST /api/query", b.handleQuery)
	mux.HandleFunc("POST /api/upload-stream", b.handleUpload)
	mux.HandleFunc("DELETE /api/chat/{id}", b.handleDelete)

	b.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		b.Release()
		b.Server.Close()
	})
	return b
}

// URL returns the API base URL
func (b *FakeBackend) URL() string {
	return b.Server.URL + "/api"
}

// AddChat stores a conversation and its history
func (b *FakeBackend) AddChat(c Chat, turns ...Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats = append(b.chats, c)
	b.history[c.DocumentID] = append([]Turn(nil), turns...)
}

// Chats returns the stored conversations
func (b *FakeBackend) Chats() []Chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Chat(nil), b.chats...)
}

// History returns the stored history for a document
func (b *FakeBackend) History(documentID string) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Turn(nil), b.history[documentID]...)
}

// UseLegacyKeys makes GET /chats answer with _id, doc_id and file_name
func (b *FakeBackend) UseLegacyKeys() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.legacyKeys = true
}

// SetAnswer replaces the answer function used by POST /query
func (b *FakeBackend) SetAnswer(fn func(documentID, question string) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answer = fn
}

// Fail makes every request to route answer with status until Fail(route, 0)
func (b *FakeBackend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Calls returns how many requests reached route
func (b *FakeBackend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// BlockQueries holds every POST /query until Release is called
func (b *FakeBackend) BlockQueries() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate == nil {
		b.gate = make(chan struct{})
	}
}

// Release lets blocked queries complete
func (b *FakeBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

// LastQuery returns the form of the most recent query
func (b *FakeBackend) LastQuery() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastQuery
}

// SetUpload configures the raw records streamed by POST /upload-stream. When
// chat is non-nil it is stored before the stream is written.
func (b *FakeBackend) SetUpload(records []string, chat *Chat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadRecords = records
	b.uploadChat = chat
}

// Uploaded returns the file name and content of the last upload
func (b *FakeBackend) Uploaded() (string, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploadName, b.uploadData
}

// enter counts the call and reports an injected failure status
func (b *FakeBackend) enter(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[route]++
	return b.failures[route]
}

func (b *FakeBackend) handleChats(w http.ResponseWriter, r *http.Request) {
	if status := b.enter(RouteList); status != 0 {
		http.Error(w, "list failed", status)
		return
	}

	b.mu.Lock()
	out := make([]map[string]string, 0, len(b.chats))
	for _, c := range b.chats {
		if b.legacyKeys {
			out = append(out, map[string]string{"_id": c.ID, "file_name": c.Name, "doc_id": c.DocumentID})
		} else {
			out = append(out, map[string]string{"id": c.ID, "name": c.Name, "documentId": c.DocumentID})
		}
	}
	b.mu.Unlock()

	writeJSON(w, map[string]any{"chats": out})
}

func (b *FakeBackend) handleHistory(w http.ResponseWriter, r *http.Request) {
	if status := b.enter(RouteHistory); status != 0 {
		http.Error(w, "history failed", status)
		return
	}

	doc := r.PathValue("doc")
	b.mu.Lock()
	turns, ok := b.history[doc]
	turns = append([]Turn{}, turns...)
	b.mu.Unlock()

	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"history": turns})
}

func (b *FakeBackend) handleQuery(w http.ResponseWriter, r *http.Request) {
	if status := b.enter(RouteQuery); status != 0 {
		http.Error(w, "query failed", status)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.lastQuery = r.PostForm
	gate := b.gate
	answer := b.answer
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	doc := r.PostForm.Get("documentId")
	if doc == "" {
		doc = r.PostForm.Get("doc_id")
	}
	question := r.PostForm.Get("question")

	b.mu.Lock()
	_, ok := b.history[doc]
	var text string
	if ok {
		text = answer(doc, question)
		b.history[doc] = append(b.history[doc],
			Turn{Role: "user", Content: question},
			Turn{Role: "assistant", Content: text})
	}
	b.mu.Unlock()

	if !ok {
		http.Error(w, fmt.Sprintf("unknown document %q", doc), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"answer": text})
}

func (b *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if status := b.enter(RouteUpload); status != 0 {
		http.Error(w, "upload failed", status)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.uploadName = header.Filename
	b.uploadData = data
	records := b.uploadRecords
	chat := b.uploadChat
	b.mu.Unlock()

	// the conversation exists before the terminal record is sent
	if chat != nil {
		b.AddChat(*chat)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, rec := range records {
		if _, err := io.WriteString(w, rec); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (b *FakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	if status := b.enter(RouteDelete); status != 0 {
		http.Error(w, "delete failed", status)
		return
	}

	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.chats {
		if c.ID == id {
			b.chats = append(b.chats[:i], b.chats[i+1:]...)
			delete(b.history, c.DocumentID)
			writeJSON(w, map[string]string{"message": "deleted"})
			return
		}
	}
	http.Error(w, "chat not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
