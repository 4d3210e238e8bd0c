// Package directory is the in-memory registry of conversation sessions and the
// single active-session pointer.
package directory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/iksnae/doc-chat/internal"
)

// Directory owns every Session. All methods are safe for concurrent use and
// each one is atomic with respect to the others. Sessions handed out are
// copies; mutations go through the directory.
type Directory struct {
	mu       sync.Mutex
	order    []string
	sessions map[string]*internal.Session
	active   string
	nextGen  uint64
}

// New creates an empty directory
func New() *Directory {
	return &Directory{sessions: make(map[string]*internal.Session)}
}

// List returns a snapshot of every session in creation order
func (d *Directory) List() []internal.Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]internal.Session, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.sessions[id].Clone())
	}
	return out
}

// Len returns the number of sessions
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Get returns a copy of the session with id
func (d *Directory) Get(id string) (internal.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		return internal.Session{}, false
	}
	return s.Clone(), true
}

// FindByDocument returns the first session bound to documentID
func (d *Directory) FindByDocument(documentID string) (internal.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.order {
		if s := d.sessions[id]; s.DocumentID == documentID {
			return s.Clone(), true
		}
	}
	return internal.Session{}, false
}

// Create inserts s. An empty ID is replaced with a fresh UUID. The stored copy
// gets a new generation, which is returned along with the id.
func (d *Directory) Create(s internal.Session) (internal.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := d.sessions[s.ID]; exists {
		return internal.Session{}, &internal.ValidationError{
			Field:  "session",
			Reason: "id " + s.ID + " already exists",
			Err:    internal.ErrConflict,
		}
	}

	d.nextGen++
	stored := s.Clone()
	stored.Generation = d.nextGen
	d.sessions[stored.ID] = &stored
	d.order = append(d.order, stored.ID)

	internal.LogDebug("directory: created session %s (generation %d)", stored.ID, stored.Generation)
	return stored.Clone(), nil
}

// Remove deletes the session. Removing the active session leaves no session active.
func (d *Directory) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return notFound(id)
	}

	delete(d.sessions, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	if d.active == id {
		d.active = ""
	}

	internal.LogDebug("directory: removed session %s", id)
	return nil
}

// SetActive makes id the active session
func (d *Directory) SetActive(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return notFound(id)
	}
	d.active = id
	return nil
}

// ClearActive leaves no session active
func (d *Directory) ClearActive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = ""
}

// GetActive returns the active session, if any
func (d *Directory) GetActive() (internal.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == "" {
		return internal.Session{}, false
	}
	return d.sessions[d.active].Clone(), true
}

// ActiveID returns the active session id or ""
func (d *Directory) ActiveID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Append adds msg to the session if it still has generation gen
func (d *Directory) Append(id string, gen uint64, msg internal.Message) error {
	return d.mutate(id, gen, func(s *internal.Session) {
		s.Messages = append(s.Messages, msg)
	})
}

// ReplaceMessages swaps the whole transcript and marks the session loaded
func (d *Directory) ReplaceMessages(id string, gen uint64, msgs []internal.Message) error {
	return d.mutate(id, gen, func(s *internal.Session) {
		s.Messages = append([]internal.Message(nil), msgs...)
		s.Loaded = true
	})
}

// Rename changes the display name
func (d *Directory) Rename(id, name string) error {
	return d.mutate(id, 0, func(s *internal.Session) {
		s.Name = name
	})
}

// mutate applies fn to the session. gen 0 skips the generation check.
func (d *Directory) mutate(id string, gen uint64, fn func(*internal.Session)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		if gen != 0 {
			return internal.ErrStale
		}
		return notFound(id)
	}
	if gen != 0 && s.Generation != gen {
		return internal.ErrStale
	}
	fn(s)
	return nil
}

func notFound(id string) error {
	return &internal.ValidationError{
		Field:  "session",
		Reason: "no session with id " + id,
		Err:    internal.ErrNotFound,
	}
}
