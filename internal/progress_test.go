package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestShowProgress(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		message string
		fn      func() error
		wantErr bool
	}{
		{
			name:    "successful function",
			message: "Testing",
			fn: func() error {
				return nil
			},
			wantErr: false,
		},
		{
			name:    "function with error",
			message: "Testing error",
			fn: func() error {
				return errors.New("test error")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShowProgress(ctx, tt.message, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("ShowProgress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShowProgress_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	err := ShowProgress(ctx, "Testing", func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ShowProgress() error = %v, want deadline exceeded", err)
	}
}

func TestStatusLine_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	line := NewStatusLine(&buf, "Uploading")

	line.Start(context.Background())
	line.Update("Extracting text")
	line.Update("Extracting text")
	line.Stop(true)

	// Second Stop is a no-op
	line.Stop(false)

	if buf.Len() != 0 {
		t.Errorf("non-terminal status line should not draw a spinner, got %q", buf.String())
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(bytes.Buffer) = true, want false")
	}
}

func TestFprintHelpers_PlainOutput(t *testing.T) {
	tests := []struct {
		name string
		fn   func(w io.Writer, msg string)
		want string
	}{
		{"success", FprintSuccess, "done\n"},
		{"info", FprintInfo, "done\n"},
		{"warning", FprintWarning, "WARNING: done\n"},
		{"error", FprintError, "ERROR: done\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(&buf, "done")
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
