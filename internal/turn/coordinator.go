// Package turn coordinates question/answer turns between the session
// directory, the backend and the reveal renderer.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/api"
	"github.com/iksnae/doc-chat/internal/directory"
	"github.com/iksnae/doc-chat/internal/reveal"
)

// Backend is the subset of the API client the coordinator needs
type Backend interface {
	ListChats(ctx context.Context) ([]api.Chat, error)
	History(ctx context.Context, documentID string) ([]internal.Message, error)
	Query(ctx context.Context, documentID, question string) (string, error)
	DeleteChat(ctx context.Context, id string) error
}

// StatusFunc observes user-visible status changes
type StatusFunc func(status string)

// StepFunc observes each revealed prefix of an answer
type StepFunc func(sessionID, prefix string)

// Options configure a Coordinator
type Options struct {
	// HistoryTTL is how long a fetched transcript counts as fresh; 0 never expires
	HistoryTTL time.Duration
	OnStatus   StatusFunc
	OnStep     StepFunc
}

// Coordinator serializes turns per session. It is safe for concurrent use.
type Coordinator struct {
	dir     *directory.Directory
	rev     *reveal.Renderer
	backend Backend

	// hydrated maps session id to the generation whose transcript was fetched
	hydrated *cache.Cache

	mu       sync.Mutex
	inFlight map[string]bool
	status   string
	onStatus StatusFunc
	onStep   StepFunc
}

// New creates a coordinator over dir and rev
func New(dir *directory.Directory, rev *reveal.Renderer, backend Backend, opts Options) *Coordinator {
	ttl, cleanup := cache.NoExpiration, time.Duration(0)
	if opts.HistoryTTL > 0 {
		ttl, cleanup = opts.HistoryTTL, 2*opts.HistoryTTL
	}

	return &Coordinator{
		dir:      dir,
		rev:      rev,
		backend:  backend,
		hydrated: cache.New(ttl, cleanup),
		inFlight: make(map[string]bool),
		onStatus: opts.OnStatus,
		onStep:   opts.OnStep,
	}
}

// Directory returns the session directory
func (c *Coordinator) Directory() *directory.Directory {
	return c.dir
}

// Renderer returns the reveal renderer
func (c *Coordinator) Renderer() *reveal.Renderer {
	return c.rev
}

// Status returns the last user-visible status
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStep replaces the reveal observer
func (c *Coordinator) OnStep(fn StepFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStep = fn
}

func (c *Coordinator) setStatus(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	c.status = msg
	fn := c.onStatus
	c.mu.Unlock()

	internal.LogDebug("status: %s", msg)
	if fn != nil {
		fn(msg)
	}
}

// InFlight reports whether a query is outstanding for sessionID
func (c *Coordinator) InFlight(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[sessionID]
}

func (c *Coordinator) acquire(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[sessionID] {
		return false
	}
	c.inFlight[sessionID] = true
	return true
}

func (c *Coordinator) releaseQuery(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, sessionID)
}

// Ask appends question to the session, queries the backend and starts
// revealing the answer. The returned job commits the answer to the session
// when it finishes or is canceled.
func (c *Coordinator) Ask(ctx context.Context, sessionID, question string) (*reveal.Job, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, internal.NewValidationError("question", internal.ErrEmptyQuestion)
	}
	if sessionID == "" {
		return nil, internal.NewValidationError("session", internal.ErrNoSession)
	}

	s, ok := c.dir.Get(sessionID)
	if !ok {
		return nil, &internal.ValidationError{Field: "session", Reason: "no session with id " + sessionID, Err: internal.ErrNotFound}
	}

	if !c.acquire(sessionID) {
		return nil, internal.NewValidationError("question", internal.ErrQueryInFlight)
	}
	defer c.releaseQuery(sessionID)

	// once the user moves away from this session its late effects stay quiet
	wasActive := c.dir.ActiveID() == sessionID
	left := func() bool { return wasActive && c.dir.ActiveID() != sessionID }

	// the previous answer lands ahead of the new question
	c.rev.Cancel(sessionID)

	if err := c.dir.Append(sessionID, s.Generation, internal.Message{Role: internal.RoleUser, Text: question}); err != nil {
		return nil, err
	}

	c.setStatus("Thinking...")
	answer, err := c.backend.Query(ctx, s.DocumentID, question)
	if err != nil {
		if !left() {
			c.setStatus("Query failed: %v", err)
		}
		return nil, err
	}

	if cur, ok := c.dir.Get(sessionID); !ok || cur.Generation != s.Generation {
		internal.LogDebug("discarding answer for removed session %s", sessionID)
		return nil, internal.ErrStale
	}

	if !left() {
		c.setStatus("")
	}
	gen := s.Generation
	commit := func(text string) error {
		return c.dir.Append(sessionID, gen, internal.Message{Role: internal.RoleAssistant, Text: text})
	}
	return c.rev.Start(sessionID, answer, commit, c.stepFor(sessionID, left)), nil
}

// stepFor forwards revealed prefixes to the observer until left reports true
func (c *Coordinator) stepFor(sessionID string, left func() bool) reveal.StepFunc {
	c.mu.Lock()
	fn := c.onStep
	c.mu.Unlock()
	if fn == nil {
		return nil
	}
	return func(prefix string) {
		if left() {
			return
		}
		fn(sessionID, prefix)
	}
}

// Load fetches the session's transcript and replaces its messages wholesale.
// It refuses while a question for the session is outstanding, since the
// fetched transcript would drop that question.
func (c *Coordinator) Load(ctx context.Context, sessionID string) error {
	s, ok := c.dir.Get(sessionID)
	if !ok {
		return &internal.ValidationError{Field: "session", Reason: "no session with id " + sessionID, Err: internal.ErrNotFound}
	}

	if !c.acquire(sessionID) {
		return internal.NewValidationError("session", internal.ErrQueryInFlight)
	}
	defer c.releaseQuery(sessionID)

	c.setStatus("Loading %s...", s.DisplayName())
	msgs, err := c.backend.History(ctx, s.DocumentID)
	if err != nil {
		c.setStatus("Failed to load history: %v", err)
		return err
	}

	// a running reveal would append its answer after the fetched transcript
	c.rev.Cancel(sessionID)
	if err := c.dir.ReplaceMessages(sessionID, s.Generation, msgs); err != nil {
		return err
	}

	c.hydrated.SetDefault(sessionID, s.Generation)
	c.setStatus("")
	return nil
}

// Hydrated reports whether the session's transcript is fresh
func (c *Coordinator) Hydrated(sessionID string) bool {
	s, ok := c.dir.Get(sessionID)
	if !ok {
		return false
	}
	gen, found := c.hydrated.Get(sessionID)
	return found && gen.(uint64) == s.Generation
}

// Select makes sessionID active, canceling the previous session's reveal and
// fetching the transcript if it is not fresh
func (c *Coordinator) Select(ctx context.Context, sessionID string) error {
	if prev := c.dir.ActiveID(); prev != "" && prev != sessionID {
		c.rev.Cancel(prev)
	}
	if err := c.dir.SetActive(sessionID); err != nil {
		return err
	}
	if c.Hydrated(sessionID) {
		return nil
	}
	err := c.Load(ctx, sessionID)
	if errors.Is(err, internal.ErrQueryInFlight) {
		// the local transcript already holds the pending question; hydrate on a later select
		internal.LogDebug("skipping history load for %s while a question is pending", sessionID)
		return nil
	}
	return err
}

// Delete removes the conversation from the backend and then locally. A backend
// failure leaves local state untouched.
func (c *Coordinator) Delete(ctx context.Context, sessionID string) error {
	s, ok := c.dir.Get(sessionID)
	if !ok {
		return &internal.ValidationError{Field: "session", Reason: "no session with id " + sessionID, Err: internal.ErrNotFound}
	}

	if err := c.backend.DeleteChat(ctx, s.ID); err != nil {
		c.setStatus("Delete failed: %v", err)
		return err
	}

	c.rev.Cancel(sessionID)
	c.hydrated.Delete(sessionID)
	if err := c.dir.Remove(sessionID); err != nil {
		return err
	}

	c.setStatus("Deleted %s", s.DisplayName())
	return nil
}

// Sync adds every backend conversation not yet in the directory. When nothing
// is active afterwards, the first session becomes active.
func (c *Coordinator) Sync(ctx context.Context) (int, error) {
	chats, err := c.backend.ListChats(ctx)
	if err != nil {
		c.setStatus("Failed to list chats: %v", err)
		return 0, err
	}

	added := 0
	for _, chat := range chats {
		s := chat.Session()
		if s.ID == "" {
			internal.LogWarn("skipping chat without id or document id")
			continue
		}
		if _, exists := c.dir.Get(s.ID); exists {
			continue
		}
		if _, err := c.dir.Create(s); err != nil {
			return added, err
		}
		added++
	}

	if c.dir.ActiveID() == "" {
		if list := c.dir.List(); len(list) > 0 {
			_ = c.dir.SetActive(list[0].ID)
		}
	}

	internal.LogDebug("synced %d chats, %d new", len(chats), added)
	return added, nil
}

// AdoptUpload registers the conversation created by a completed upload and
// makes it active. The backend id is looked up in GET /chats; the document id
// stands in when the backend does not list it.
func (c *Coordinator) AdoptUpload(ctx context.Context, documentID, name string) (internal.Session, error) {
	if documentID == "" {
		return internal.Session{}, internal.NewValidationError("document", internal.ErrNoFile)
	}

	if existing, ok := c.dir.FindByDocument(documentID); ok {
		return existing, c.Select(ctx, existing.ID)
	}

	s := internal.Session{ID: documentID, DocumentID: documentID, Name: name}
	if chats, err := c.backend.ListChats(ctx); err != nil {
		internal.LogWarn("could not refresh chats after upload: %v", err)
	} else {
		for _, chat := range chats {
			if chat.DocumentID == documentID {
				s = chat.Session()
				if s.Name == "" {
					s.Name = name
				}
				break
			}
		}
	}

	created, err := c.dir.Create(s)
	switch {
	case errors.Is(err, internal.ErrConflict):
		created, _ = c.dir.Get(s.ID)
	case err != nil:
		return internal.Session{}, err
	default:
		// a fresh upload has no history yet
		if err := c.dir.ReplaceMessages(created.ID, created.Generation, nil); err == nil {
			c.hydrated.SetDefault(created.ID, created.Generation)
		}
	}

	if prev := c.dir.ActiveID(); prev != "" && prev != created.ID {
		c.rev.Cancel(prev)
	}
	if err := c.dir.SetActive(created.ID); err != nil {
		return internal.Session{}, err
	}

	c.setStatus("Ready: %s", created.DisplayName())
	out, _ := c.dir.Get(created.ID)
	return out, nil
}

// Close commits every running reveal
func (c *Coordinator) Close() {
	c.rev.CancelAll()
}
