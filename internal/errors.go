package internal

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrNoSession        = errors.New("no session selected")
	ErrNotFound         = errors.New("session not found")
	ErrConflict         = errors.New("session already exists")
	ErrQueryInFlight    = errors.New("a question is already in flight for this session")
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrNoFile           = errors.New("no file selected")

	// ErrStale is returned when an effect targets a session that was removed or re-created
	ErrStale = errors.New("session changed while the operation was running")
)

// ValidationError represents a request rejected locally before reaching the network
type ValidationError struct {
	Field  string // "question", "session", "id", "file"
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a sentinel with the offending field
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// TransportError represents a failed request or an aborted response stream
type TransportError struct {
	Op         string // "list", "history", "query", "upload", "delete"
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error [%s] %s: HTTP %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error [%s] %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError represents a progress record that carried the data prefix but an unparseable payload
type DecodeError struct {
	Record string
	Err    error
}

func (e *DecodeError) Error() string {
	record := e.Record
	if len(record) > 64 {
		record = record[:61] + "..."
	}
	return fmt.Sprintf("decode error %q: %v", record, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was rejected locally
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransport reports whether err came from the network
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
