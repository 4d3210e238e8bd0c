package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ShowProgress runs fn behind a spinner labelled with message
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	line := NewStatusLine(os.Stderr, message)
	line.Start(ctx)

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		line.Stop(err == nil)
		return err
	case <-ctx.Done():
		line.Stop(false)
		return ctx.Err()
	}
}

// StatusLine is a single spinner line whose label can change while it runs.
// On a non-terminal writer it degrades to one log line per label change.
type StatusLine struct {
	w   io.Writer
	tty bool

	mu      sync.Mutex
	message string
	stop    chan struct{}
	stopped chan struct{}
}

// NewStatusLine creates a status line writing to w
func NewStatusLine(w io.Writer, message string) *StatusLine {
	return &StatusLine{
		w:       w,
		tty:     isTerminal(w),
		message: message,
	}
}

// Start begins animating; it is a no-op when already started
func (s *StatusLine) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	if !s.tty {
		LogInfo(s.message)
		close(s.stopped)
		return
	}

	go s.spin(ctx, s.stop, s.stopped)
}

func (s *StatusLine) spin(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			char := spinnerChars[i%len(spinnerChars)]
			fmt.Fprintf(s.w, "\r\033[K%s %s", progressStyle.Render(char), msg)
			i++
		}
	}
}

// Update replaces the label
func (s *StatusLine) Update(message string) {
	s.mu.Lock()
	changed := s.message != message
	s.message = message
	tty := s.tty
	s.mu.Unlock()

	if changed && !tty {
		LogInfo(message)
	}
}

// Stop ends the animation and prints a final success or failure mark
func (s *StatusLine) Stop(ok bool) {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	msg := s.message
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped

	if !s.tty {
		return
	}
	mark := successStyle.Render("✓")
	if !ok {
		mark = errorStyle.Render("✗")
	}
	fmt.Fprintf(s.w, "\r\033[K%s %s\n", mark, msg)
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// IsTerminal reports whether w is attached to a terminal
func IsTerminal(w io.Writer) bool {
	return isTerminal(w)
}

// FprintSuccess writes a success message to w
func FprintSuccess(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Fprintln(w, message)
	}
}

// FprintError writes an error message to w
func FprintError(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(w, "ERROR: %s\n", message)
	}
}

// FprintInfo writes an info message to w
func FprintInfo(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Fprintln(w, message)
	}
}

// FprintWarning writes a warning message to w
func FprintWarning(w io.Writer, message string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(w, "WARNING: %s\n", message)
	}
}
