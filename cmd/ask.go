package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/reveal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/spf13/cobra"
)

var noReveal bool

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <chat-id> <question...>",
	Short: "Ask a single question about a document",
	Long: `Send one question to a conversation and print the answer.

The answer is typed out as it is revealed; use --no-reveal to print it at once.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printer := newRevealPrinter(out)

		opts := turn.Options{}
		if !noReveal {
			opts.OnStep = printer.step
		}
		a, err := newApp(opts)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := a.sync(ctx); err != nil {
			return err
		}
		s, err := a.resolve(args[0])
		if err != nil {
			return err
		}

		question := strings.Join(args[1:], " ")
		line := internal.NewStatusLine(cmd.ErrOrStderr(), fmt.Sprintf("Asking %s...", s.DisplayName()))
		line.Start(ctx)
		job, err := a.turns.Ask(ctx, s.ID, question)
		line.Stop(err == nil)
		if err != nil {
			return fmt.Errorf("failed to ask question: %w", err)
		}

		if noReveal {
			job.Cancel()
		}
		return awaitReveal(ctx, job, printer)
	},
}

// awaitReveal blocks until job finishes or ctx is done, then prints whatever
// part of the answer has not been shown yet
func awaitReveal(ctx context.Context, job *reveal.Job, printer *revealPrinter) error {
	select {
	case <-job.Done():
	case <-ctx.Done():
		job.Cancel()
	}

	printer.finish(job.FullText)
	if err := job.Err(); err != nil {
		internal.LogWarn("answer was not saved: %v", err)
	}
	return nil
}

// revealPrinter writes each revealed prefix as a delta so the terminal shows
// the answer being typed
type revealPrinter struct {
	out io.Writer
	// label is written once before each answer
	label string

	mu      sync.Mutex
	started bool
	printed int
}

func newRevealPrinter(out io.Writer) *revealPrinter {
	return &revealPrinter{out: out}
}

func (p *revealPrinter) step(_ string, prefix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begin()
	if len(prefix) > p.printed {
		fmt.Fprint(p.out, prefix[p.printed:])
		p.printed = len(prefix)
	}
}

// finish prints the rest of full and ends the line, then resets for the next answer
func (p *revealPrinter) finish(full string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.begin()
	if len(full) > p.printed {
		fmt.Fprint(p.out, full[p.printed:])
	}
	fmt.Fprintln(p.out)
	p.started = false
	p.printed = 0
}

func (p *revealPrinter) begin() {
	if !p.started {
		fmt.Fprint(p.out, p.label)
		p.started = true
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&noReveal, "no-reveal", false, "Print the whole answer at once")
}
