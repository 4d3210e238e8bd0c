// Package reveal paces the display of an already known answer as a sequence of
// growing prefixes. Every job ends by committing the full text exactly once,
// whether it ran to completion or was canceled.
package reveal

import (
	"sync"
	"time"

	"github.com/iksnae/doc-chat/internal"
)

// Defaults match the original typing speed of one character every 15ms
const (
	DefaultInterval = 15 * time.Millisecond
	DefaultUnit     = 1
)

// CommitFunc persists the full text. It runs exactly once per job.
type CommitFunc func(fullText string) error

// StepFunc receives each revealed prefix. It must not call back into the Renderer.
type StepFunc func(prefix string)

// Renderer runs at most one Job per session id
type Renderer struct {
	Interval time.Duration
	Unit     int

	mu   sync.Mutex
	jobs map[string]*Job
}

// New creates a renderer with the given pacing; non-positive unit means DefaultUnit
func New(interval time.Duration, unit int) *Renderer {
	if unit < 1 {
		unit = DefaultUnit
	}
	if interval < 0 {
		interval = 0
	}
	return &Renderer{Interval: interval, Unit: unit, jobs: make(map[string]*Job)}
}

// Job is one running reveal
type Job struct {
	SessionID string
	FullText  string

	r        *Renderer
	steps    []string
	step     StepFunc
	commit   CommitFunc
	interval time.Duration

	// mu serializes step delivery against Cancel
	mu       sync.Mutex
	revealed int
	canceled bool
	once     sync.Once
	err      error
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Start begins revealing text for sessionID. A job already running for the
// same session is canceled, and therefore committed, first.
func (r *Renderer) Start(sessionID, text string, commit CommitFunc, step StepFunc) *Job {
	j := &Job{
		SessionID: sessionID,
		FullText:  text,
		r:         r,
		steps:     prefixes(text, r.unit()),
		step:      step,
		commit:    commit,
		interval:  r.Interval,
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}

	r.mu.Lock()
	if r.jobs == nil {
		r.jobs = make(map[string]*Job)
	}
	prev := r.jobs[sessionID]
	r.jobs[sessionID] = j
	r.mu.Unlock()

	// the displaced job commits before the new one can deliver anything
	if prev != nil {
		prev.Cancel()
	}
	go j.run()
	return j
}

// Cancel stops the session's job and commits its full text before returning.
// It reports whether a job was running.
func (r *Renderer) Cancel(sessionID string) bool {
	r.mu.Lock()
	j := r.jobs[sessionID]
	r.mu.Unlock()

	if j == nil {
		return false
	}
	j.Cancel()
	return true
}

// CancelAll cancels every running job
func (r *Renderer) CancelAll() {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
}

// Active reports whether a job is running for sessionID
func (r *Renderer) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[sessionID]
	return ok
}

// Wait blocks until the session's current job, if any, has committed
func (r *Renderer) Wait(sessionID string) {
	r.mu.Lock()
	j := r.jobs[sessionID]
	r.mu.Unlock()

	if j != nil {
		<-j.done
	}
}

func (r *Renderer) unit() int {
	if r.Unit < 1 {
		return DefaultUnit
	}
	return r.Unit
}

func (r *Renderer) release(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[j.SessionID] == j {
		delete(r.jobs, j.SessionID)
	}
}

// Cancel discards the remaining steps and commits the full text. No step is
// delivered after Cancel returns.
func (j *Job) Cancel() {
	j.stopOnce.Do(func() { close(j.stop) })

	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()

	j.finish()
}

// Done is closed once the job has committed
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err waits for the commit and returns its error
func (j *Job) Err() error {
	<-j.done
	return j.err
}

// Steps returns the number of prefixes the job emits when not canceled
func (j *Job) Steps() int {
	return len(j.steps)
}

// Revealed returns how many steps have been delivered so far
func (j *Job) Revealed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.revealed
}

func (j *Job) run() {
	var timer *time.Timer
	for i := range j.steps {
		if i > 0 {
			if timer == nil {
				timer = time.NewTimer(j.interval)
				defer timer.Stop()
			} else {
				timer.Reset(j.interval)
			}
			select {
			case <-j.stop:
				return
			case <-timer.C:
			}
		}
		if !j.deliver(i) {
			return
		}
	}
	j.finish()
}

// deliver emits step i unless the job has been canceled
func (j *Job) deliver(i int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.canceled {
		return false
	}
	if j.step != nil {
		j.step(j.steps[i])
	}
	j.revealed = i + 1
	return true
}

// finish commits the full text once and releases the session slot
func (j *Job) finish() {
	j.once.Do(func() {
		if j.commit != nil {
			j.err = j.commit(j.FullText)
			if j.err != nil {
				internal.LogWarn("reveal commit for session %s failed: %v", j.SessionID, j.err)
			}
		}
		j.r.release(j)
		close(j.done)
	})
}

// prefixes splits text into growing rune prefixes, unit runes longer each step
func prefixes(text string, unit int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+unit-1)/unit)
	for end := unit; ; end += unit {
		if end >= len(runes) {
			if len(runes) > 0 {
				out = append(out, text)
			}
			break
		}
		out = append(out, string(runes[:end]))
	}
	return out
}
