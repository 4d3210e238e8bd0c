// Package upload drives one document upload from request to terminal event.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/stream"
)

// ErrIncompleteStream is reported when the body ends before a terminal event
var ErrIncompleteStream = errors.New("stream ended before upload completed")

const readSize = 4096

// State is the lifecycle position of an upload job
type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Streaming:
		return "streaming"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is a snapshot of one upload attempt
type Job struct {
	File       string
	State      State
	DocumentID string // set in Complete
	Reason     string // set in Failed
	Status     string // last progress status from the backend
	Dropped    int    // malformed progress records skipped
}

// Terminal reports whether the job has finished, successfully or not
func (j Job) Terminal() bool {
	return j.State == Complete || j.State == Failed
}

// Uploader sends the document and returns the progress stream
type Uploader interface {
	UploadStream(ctx context.Context, filename string, r io.Reader) (io.ReadCloser, error)
}

// StatusFunc observes every job transition and status update
type StatusFunc func(Job)

// Controller runs at most one upload at a time
type Controller struct {
	uploader Uploader

	mu       sync.Mutex
	job      Job
	onStatus StatusFunc
}

// NewController creates an idle controller
func NewController(u Uploader) *Controller {
	return &Controller{uploader: u}
}

// OnStatus registers fn to observe job changes; nil unregisters
func (c *Controller) OnStatus(fn StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Job returns a snapshot of the current job
func (c *Controller) Job() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Reset acknowledges a finished job and returns the controller to Idle. It
// reports false if a job is still running.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.State != Idle && !c.job.Terminal() {
		return false
	}
	c.job = Job{}
	return true
}

// Start uploads the file at path and blocks until the job is terminal. The
// returned job is Complete or Failed unless the start itself was rejected, in
// which case the controller is unchanged and a *internal.ValidationError is
// returned.
func (c *Controller) Start(ctx context.Context, path string) (Job, error) {
	if path == "" {
		return c.Job(), internal.NewValidationError("file", internal.ErrNoFile)
	}

	c.mu.Lock()
	if c.job.State != Idle && !c.job.Terminal() {
		job := c.job
		c.mu.Unlock()
		return job, internal.NewValidationError("file", internal.ErrUploadInProgress)
	}

	f, err := os.Open(path)
	if err != nil {
		job := c.job
		c.mu.Unlock()
		return job, &internal.ValidationError{Field: "file", Reason: err.Error(), Err: internal.ErrNoFile}
	}
	defer f.Close()

	c.job = Job{File: path, State: Requesting}
	c.mu.Unlock()
	c.notify()

	internal.LogInfo("uploading %s", filepath.Base(path))
	body, err := c.uploader.UploadStream(ctx, filepath.Base(path), f)
	if err != nil {
		return c.fail(asTransport(err))
	}
	defer body.Close()

	c.update(func(j *Job) { j.State = Streaming })
	return c.consume(ctx, body)
}

func (c *Controller) consume(ctx context.Context, body io.Reader) (Job, error) {
	dec := stream.NewDecoder()
	buf := make([]byte, readSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for ev := range dec.FeedBytes(buf[:n]) {
				if ev.Terminal() {
					return c.complete(ev, dec.Dropped())
				}
				c.update(func(j *Job) {
					j.Status = ev.Status
					j.Dropped = dec.Dropped()
				})
			}
		}

		if readErr == io.EOF {
			return c.fail(asTransport(ErrIncompleteStream))
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = ctxErr
			}
			return c.fail(asTransport(readErr))
		}
	}
}

func (c *Controller) complete(ev stream.ProgressEvent, dropped int) (Job, error) {
	job := c.update(func(j *Job) {
		j.State = Complete
		j.DocumentID = ev.DocumentID
		j.Dropped = dropped
		if ev.Status != "" {
			j.Status = ev.Status
		}
	})
	internal.LogInfo("upload complete: document %s", ev.DocumentID)
	return job, nil
}

func (c *Controller) fail(err error) (Job, error) {
	job := c.update(func(j *Job) {
		j.State = Failed
		j.Reason = reason(err)
	})
	internal.LogWarn("upload failed: %v", err)
	return job, err
}

// update mutates the job under the lock and notifies the observer outside it
func (c *Controller) update(fn func(*Job)) Job {
	c.mu.Lock()
	fn(&c.job)
	job := c.job
	c.mu.Unlock()

	c.notify()
	return job
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn, job := c.onStatus, c.job
	c.mu.Unlock()
	if fn != nil {
		fn(job)
	}
}

func asTransport(err error) error {
	var te *internal.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &internal.TransportError{Op: "upload", Err: err}
}

// reason returns the innermost message, without the transport prefix
func reason(err error) string {
	var te *internal.TransportError
	if errors.As(err, &te) {
		if te.StatusCode != 0 {
			return fmt.Sprintf("HTTP %d: %v", te.StatusCode, te.Err)
		}
		if te.Err != nil {
			return te.Err.Error()
		}
	}
	return err.Error()
}
