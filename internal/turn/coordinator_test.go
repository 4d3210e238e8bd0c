package turn

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/api"
	"github.com/iksnae/doc-chat/internal/directory"
	"github.com/iksnae/doc-chat/internal/reveal"
	"github.com/iksnae/doc-chat/testutil"
)

type harness struct {
	c       *Coordinator
	backend *testutil.FakeBackend
	dir     *directory.Directory
}

func newHarness(t *testing.T, interval time.Duration, opts Options) *harness {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	testutil.SeedSampleChats(backend)

	client, err := api.NewClient(backend.URL(), 5*time.Second)
	require.NoError(t, err)

	dir := directory.New()
	c := New(dir, reveal.New(interval, 1), client, opts)
	t.Cleanup(c.Close)

	_, err = c.Sync(context.Background())
	require.NoError(t, err)
	return &harness{c: c, backend: backend, dir: dir}
}

func texts(s internal.Session) []string {
	out := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = string(m.Role) + ":" + m.Text
	}
	return out
}

func (h *harness) session(t *testing.T, id string) internal.Session {
	t.Helper()
	s, ok := h.dir.Get(id)
	require.True(t, ok, "session %s", id)
	return s
}

func TestSync_ActivatesFirstChat(t *testing.T) {
	h := newHarness(t, 0, Options{})

	assert.Equal(t, 2, h.dir.Len())
	active, ok := h.dir.GetActive()
	require.True(t, ok)
	assert.Equal(t, "chat-1", active.ID)
	assert.Equal(t, "doc-1", active.DocumentID)

	added, err := h.c.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestSync_LegacyKeysAndFailure(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.UseLegacyKeys()
	h.backend.AddChat(testutil.Chat{ID: "chat-3", Name: "old.pdf", DocumentID: "doc-3"})

	added, err := h.c.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, "doc-3", h.session(t, "chat-3").DocumentID)

	h.backend.Fail(testutil.RouteList, http.StatusBadGateway)
	_, err = h.c.Sync(context.Background())
	assert.True(t, internal.IsTransport(err))
	assert.Contains(t, h.c.Status(), "Failed to list chats")
}

func TestAsk_EmptyQuestionIsNoop(t *testing.T) {
	h := newHarness(t, 0, Options{})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := h.c.Ask(context.Background(), "chat-2", q)
		assert.ErrorIs(t, err, internal.ErrEmptyQuestion)
	}

	assert.Empty(t, h.session(t, "chat-2").Messages)
	assert.Zero(t, h.backend.Calls(testutil.RouteQuery))
}

func TestAsk_RequiresSession(t *testing.T) {
	h := newHarness(t, 0, Options{})

	_, err := h.c.Ask(context.Background(), "", "hello")
	assert.ErrorIs(t, err, internal.ErrNoSession)

	_, err = h.c.Ask(context.Background(), "ghost", "hello")
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.Zero(t, h.backend.Calls(testutil.RouteQuery))
}

func TestAsk_RevealsAndCommitsAnswer(t *testing.T) {
	var mu sync.Mutex
	var prefixes []string
	h := newHarness(t, 0, Options{OnStep: func(id, p string) {
		mu.Lock()
		defer mu.Unlock()
		prefixes = append(prefixes, id+":"+p)
	}})

	job, err := h.c.Ask(context.Background(), "chat-2", "  Who?  ")
	require.NoError(t, err)
	require.NoError(t, job.Err())

	assert.Equal(t, []string{"user:Who?", "assistant:Answer to: Who?"}, texts(h.session(t, "chat-2")))
	assert.Equal(t, "doc-2", h.backend.LastQuery().Get("documentId"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, prefixes, len("Answer to: Who?"))
	assert.Equal(t, "chat-2:A", prefixes[0])
	assert.Equal(t, "chat-2:Answer to: Who?", prefixes[len(prefixes)-1])
}

func TestAsk_SecondCallWhileInFlightIsNoop(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.BlockQueries()

	type result struct {
		job *reveal.Job
		err error
	}
	first := make(chan result, 1)
	go func() {
		job, err := h.c.Ask(context.Background(), "chat-2", "first")
		first <- result{job, err}
	}()

	require.Eventually(t, func() bool { return h.backend.Calls(testutil.RouteQuery) == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, h.c.InFlight("chat-2"))

	_, err := h.c.Ask(context.Background(), "chat-2", "second")
	assert.ErrorIs(t, err, internal.ErrQueryInFlight)

	h.backend.Release()
	res := <-first
	require.NoError(t, res.err)
	require.NoError(t, res.job.Err())

	assert.Equal(t, 1, h.backend.Calls(testutil.RouteQuery))
	assert.Equal(t, []string{"user:first", "assistant:Answer to: first"}, texts(h.session(t, "chat-2")))
	assert.False(t, h.c.InFlight("chat-2"))
}

func TestAsk_FailureKeepsQuestionOnly(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.Fail(testutil.RouteQuery, http.StatusInternalServerError)

	job, err := h.c.Ask(context.Background(), "chat-2", "why?")
	assert.Nil(t, job)
	assert.True(t, internal.IsTransport(err))

	assert.Equal(t, []string{"user:why?"}, texts(h.session(t, "chat-2")))
	assert.False(t, h.c.InFlight("chat-2"))
	assert.Contains(t, h.c.Status(), "Query failed")

	// retry is a fresh call
	h.backend.Fail(testutil.RouteQuery, 0)
	job, err = h.c.Ask(context.Background(), "chat-2", "why?")
	require.NoError(t, err)
	require.NoError(t, job.Err())
	assert.Len(t, h.session(t, "chat-2").Messages, 3)
}

func TestAsk_NewQuestionCommitsRunningReveal(t *testing.T) {
	h := newHarness(t, time.Hour, Options{})

	first, err := h.c.Ask(context.Background(), "chat-2", "one")
	require.NoError(t, err)
	assert.True(t, h.c.Renderer().Active("chat-2"))

	second, err := h.c.Ask(context.Background(), "chat-2", "two")
	require.NoError(t, err)
	require.NoError(t, first.Err())

	second.Cancel()
	assert.Equal(t, []string{
		"user:one", "assistant:Answer to: one",
		"user:two", "assistant:Answer to: two",
	}, texts(h.session(t, "chat-2")))
}

func TestAsk_LateCompletionAfterDeleteIsDiscarded(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.BlockQueries()

	done := make(chan error, 1)
	go func() {
		_, err := h.c.Ask(context.Background(), "chat-2", "still there?")
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.Calls(testutil.RouteQuery) == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, h.c.Delete(context.Background(), "chat-2"))
	h.backend.AddChat(testutil.Chat{ID: "chat-2", DocumentID: "doc-2"})
	_, err := h.dir.Create(internal.Session{ID: "chat-2", DocumentID: "doc-2"})
	require.NoError(t, err)

	h.backend.Release()
	assert.ErrorIs(t, <-done, internal.ErrStale)

	assert.Empty(t, h.session(t, "chat-2").Messages, "re-created session must not receive the old answer")
}

func TestLoad_RefusedWhileQuestionPending(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.BlockQueries()

	done := make(chan *reveal.Job, 1)
	go func() {
		job, err := h.c.Ask(context.Background(), "chat-1", "what is it?")
		assert.NoError(t, err)
		done <- job
	}()
	require.Eventually(t, func() bool { return h.backend.Calls(testutil.RouteQuery) == 1 }, 2*time.Second, time.Millisecond)

	err := h.c.Load(context.Background(), "chat-1")
	assert.ErrorIs(t, err, internal.ErrQueryInFlight)
	assert.Zero(t, h.backend.Calls(testutil.RouteHistory))

	// selecting the session keeps the pending question and skips the fetch
	require.NoError(t, h.c.Select(context.Background(), "chat-1"))
	assert.False(t, h.c.Hydrated("chat-1"))

	h.backend.Release()
	job := <-done
	require.NotNil(t, job)
	require.NoError(t, job.Err())

	assert.Equal(t, []string{"user:what is it?", "assistant:Answer to: what is it?"}, texts(h.session(t, "chat-1")))
	assert.False(t, h.c.InFlight("chat-1"))

	// once settled, loading works again
	require.NoError(t, h.c.Load(context.Background(), "chat-1"))
	assert.True(t, h.c.Hydrated("chat-1"))
}

func TestAsk_LeftSessionStaysQuiet(t *testing.T) {
	var mu sync.Mutex
	var steps, statuses []string
	h := newHarness(t, 0, Options{
		OnStep: func(id, p string) {
			mu.Lock()
			defer mu.Unlock()
			steps = append(steps, id+":"+p)
		},
		OnStatus: func(s string) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, s)
		},
	})
	ctx := context.Background()
	require.Equal(t, "chat-1", h.dir.ActiveID())
	h.backend.BlockQueries()

	done := make(chan *reveal.Job, 1)
	go func() {
		job, err := h.c.Ask(ctx, "chat-1", "slow one")
		assert.NoError(t, err)
		done <- job
	}()
	require.Eventually(t, func() bool { return h.backend.Calls(testutil.RouteQuery) == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, h.c.Select(ctx, "chat-2"))
	mu.Lock()
	seen := len(statuses)
	mu.Unlock()

	h.backend.Release()
	job := <-done
	require.NotNil(t, job)
	require.NoError(t, job.Err())

	mu.Lock()
	assert.Len(t, statuses, seen, "answer for a left session must not touch status")
	assert.Empty(t, steps)
	mu.Unlock()

	// the answer is still committed to its own session
	assert.Equal(t, []string{"user:slow one", "assistant:Answer to: slow one"}, texts(h.session(t, "chat-1")))
}

func TestLoad_ReplacesMessagesWholesale(t *testing.T) {
	h := newHarness(t, 0, Options{})
	s := h.session(t, "chat-1")
	require.NoError(t, h.dir.Append("chat-1", s.Generation, internal.Message{Role: internal.RoleUser, Text: "local only"}))

	require.NoError(t, h.c.Load(context.Background(), "chat-1"))

	got := h.session(t, "chat-1")
	assert.True(t, got.Loaded)
	assert.Equal(t, []string{"user:What is the revenue?", "assistant:Revenue grew 12%."}, texts(got))
	assert.True(t, h.c.Hydrated("chat-1"))
}

func TestLoad_FailureLeavesMessages(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.Fail(testutil.RouteHistory, http.StatusServiceUnavailable)

	err := h.c.Load(context.Background(), "chat-1")
	assert.True(t, internal.IsTransport(err))
	assert.False(t, h.session(t, "chat-1").Loaded)
	assert.False(t, h.c.Hydrated("chat-1"))
}

func TestSelect_HydratesOnceUntilExpiry(t *testing.T) {
	h := newHarness(t, 0, Options{HistoryTTL: 30 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, h.c.Select(ctx, "chat-1"))
	require.NoError(t, h.c.Select(ctx, "chat-2"))
	require.NoError(t, h.c.Select(ctx, "chat-1"))
	assert.Equal(t, 2, h.backend.Calls(testutil.RouteHistory))

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, h.c.Select(ctx, "chat-1"))
	assert.Equal(t, 3, h.backend.Calls(testutil.RouteHistory))

	assert.ErrorIs(t, h.c.Select(ctx, "missing"), internal.ErrNotFound)
	assert.Equal(t, "chat-1", h.dir.ActiveID())
}

func TestSelect_CancelsPreviousReveal(t *testing.T) {
	h := newHarness(t, time.Hour, Options{})
	ctx := context.Background()
	require.NoError(t, h.c.Select(ctx, "chat-2"))

	job, err := h.c.Ask(ctx, "chat-2", "long answer please")
	require.NoError(t, err)

	require.NoError(t, h.c.Select(ctx, "chat-1"))
	select {
	case <-job.Done():
	default:
		t.Fatal("switching sessions must finish the previous reveal")
	}
	assert.Equal(t, []string{"user:long answer please", "assistant:Answer to: long answer please"},
		texts(h.session(t, "chat-2")))
}

func TestDelete_BackendFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.Fail(testutil.RouteDelete, http.StatusInternalServerError)

	err := h.c.Delete(context.Background(), "chat-1")
	assert.True(t, internal.IsTransport(err))

	assert.Equal(t, 2, h.dir.Len())
	assert.Equal(t, "chat-1", h.dir.ActiveID())
	assert.Contains(t, h.c.Status(), "Delete failed")
}

func TestDelete_RemovesActiveSession(t *testing.T) {
	h := newHarness(t, 0, Options{})

	require.NoError(t, h.c.Delete(context.Background(), "chat-1"))

	_, ok := h.dir.Get("chat-1")
	assert.False(t, ok)
	assert.Empty(t, h.dir.ActiveID())
	assert.Len(t, h.backend.Chats(), 1)

	assert.ErrorIs(t, h.c.Delete(context.Background(), "chat-1"), internal.ErrNotFound)
}

func TestAdoptUpload_UsesBackendID(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.AddChat(testutil.Chat{ID: "chat-9", Name: "", DocumentID: "doc-9"})

	s, err := h.c.AdoptUpload(context.Background(), "doc-9", "fresh.pdf")
	require.NoError(t, err)

	assert.Equal(t, "chat-9", s.ID)
	assert.Equal(t, "fresh.pdf", s.Name)
	assert.True(t, s.Loaded)
	assert.Equal(t, "chat-9", h.dir.ActiveID())
	assert.True(t, h.c.Hydrated("chat-9"))
	assert.Zero(t, h.backend.Calls(testutil.RouteHistory))
}

func TestAdoptUpload_FallsBackToDocumentID(t *testing.T) {
	h := newHarness(t, 0, Options{})
	h.backend.Fail(testutil.RouteList, http.StatusInternalServerError)

	s, err := h.c.AdoptUpload(context.Background(), "doc-x", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc-x", s.ID)
	assert.Equal(t, "doc-x", s.DocumentID)
	assert.Equal(t, "doc-x", h.dir.ActiveID())

	// adopting the same document again selects the existing session
	again, err := h.c.AdoptUpload(context.Background(), "doc-x", "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
	assert.Equal(t, 3, h.dir.Len())
}

func TestStatusObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	h := newHarness(t, 0, Options{OnStatus: func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}})

	require.NoError(t, h.c.Load(context.Background(), "chat-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "Loading report.pdf...")
}
