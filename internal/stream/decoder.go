// Package stream decodes the upload-progress event stream.
//
// The backend answers POST /upload-stream with records of the form
//
//	data: {"status":"Extracting text..."}\n\n
//	data: {"documentId":"abc123"}\n\n
//
// Records may arrive split across arbitrary read boundaries. A Decoder buffers
// the partial tail between calls, so the events it yields are identical no
// matter how the bytes were chunked. CRLF line endings are accepted.
package stream

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/iksnae/doc-chat/internal"
)

const (
	// Delimiter separates records
	Delimiter = "\n\n"
	// DataPrefix marks a record the decoder accepts
	DataPrefix = "data:"
)

// ProgressEvent is one decoded record. It is terminal when DocumentID is set.
type ProgressEvent struct {
	Status     string `json:"status,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// Terminal reports whether the event signals upload completion
func (e ProgressEvent) Terminal() bool {
	return e.DocumentID != ""
}

type payload struct {
	Status     string `json:"status"`
	DocumentID string `json:"documentId"`
	LegacyID   string `json:"doc_id"`
}

// Decoder turns an incrementally arriving stream into ProgressEvents.
// It is not safe for concurrent use; one decoder serves one stream.
type Decoder struct {
	buf     string
	done    bool
	dropped int
	lastErr error
}

// NewDecoder creates an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffer and returns the events of every record the
// chunk completed. Records are split off eagerly; their payloads are parsed
// while the caller iterates, and records left unvisited when the caller stops
// early are discarded.
func (d *Decoder) Feed(chunk string) iter.Seq[ProgressEvent] {
	if d.done {
		return func(func(ProgressEvent) bool) {}
	}

	// CRLF folds into LF; a pair split across chunks rejoins in the buffer
	d.buf = strings.ReplaceAll(d.buf+chunk, "\r\n", "\n")
	parts := strings.Split(d.buf, Delimiter)
	d.buf = parts[len(parts)-1]
	records := parts[:len(parts)-1]

	return func(yield func(ProgressEvent) bool) {
		for _, record := range records {
			if d.done {
				return
			}
			ev, ok := d.decode(record)
			if !ok {
				continue
			}
			if ev.Terminal() {
				d.done = true
				d.buf = ""
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// FeedBytes is Feed for raw read buffers
func (d *Decoder) FeedBytes(chunk []byte) iter.Seq[ProgressEvent] {
	return d.Feed(string(chunk))
}

// Done reports whether a terminal event has been emitted
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped returns how many records carried the data prefix but failed to parse
func (d *Decoder) Dropped() int {
	return d.dropped
}

// LastError returns the most recent *internal.DecodeError, if any
func (d *Decoder) LastError() error {
	return d.lastErr
}

// Pending returns the buffered, not yet delimited tail
func (d *Decoder) Pending() string {
	return d.buf
}

func (d *Decoder) decode(record string) (ProgressEvent, bool) {
	record = strings.TrimLeft(record, "\r\n")
	if !strings.HasPrefix(record, DataPrefix) {
		return ProgressEvent{}, false
	}

	body := strings.TrimSpace(strings.TrimPrefix(record, DataPrefix))
	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		d.dropped++
		d.lastErr = &internal.DecodeError{Record: record, Err: err}
		internal.LogDebug("dropping malformed progress record: %v", d.lastErr)
		return ProgressEvent{}, false
	}

	ev := ProgressEvent{Status: p.Status, DocumentID: p.DocumentID}
	if ev.DocumentID == "" {
		ev.DocumentID = p.LegacyID
	}
	return ev, true
}
