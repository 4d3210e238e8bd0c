package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/reveal"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/spf13/cobra"
)

const maxLineBytes = 1 << 20

var (
	youLabel       = color.New(color.FgCyan, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
	hintColor      = color.New(color.FgHiBlack).SprintFunc()
)

const chatHelp = `Commands:
  /list            List conversations
  /use <id>        Switch to a conversation
  /history         Show the active transcript
  /upload <file>   Upload a document and switch to it
  /delete <id>     Delete a conversation
  /refresh         Reload the conversation list
  /help            Show this help
  /quit            Leave (also /exit or Ctrl-D)

Anything else is asked as a question about the active document.
Pressing Enter while an answer is being typed shows it in full.`

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [chat-id]",
	Short: "Interactive conversation with your documents",
	Long: `Start an interactive session. Type questions about the active document
and switch between documents with slash commands (see /help).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printer := newRevealPrinter(out)
		printer.label = assistantLabel("assistant> ")

		a, err := newApp(turn.Options{OnStep: printer.step})
		if err != nil {
			return err
		}
		defer a.turns.Close()

		ctx := cmd.Context()
		if err := a.sync(ctx); err != nil {
			return err
		}

		r := &repl{a: a, out: out, printer: printer}
		if len(args) == 1 {
			if err := r.use(ctx, args[0]); err != nil {
				return err
			}
		} else if id := a.turns.Directory().ActiveID(); id != "" {
			if err := r.use(ctx, id); err != nil {
				internal.FprintWarning(out, err.Error())
			}
		} else {
			internal.FprintInfo(out, "No conversations yet. Upload one with /upload <file>.")
		}
		fmt.Fprintln(out, hintColor("Type /help for commands."))

		stop := make(chan struct{})
		defer close(stop)
		return r.run(ctx, readLines(cmd.InOrStdin(), stop))
	},
}

// repl is the interactive loop. Only one answer is revealed at a time; any
// input line settles it before being handled.
type repl struct {
	a       *app
	out     io.Writer
	printer *revealPrinter
	job     *reveal.Job
}

func (r *repl) run(ctx context.Context, lines <-chan string) error {
	r.prompt()
	for {
		var done <-chan struct{}
		if r.job != nil {
			done = r.job.Done()
		}

		select {
		case <-ctx.Done():
			r.settle()
			return nil
		case <-done:
			r.settle()
			r.prompt()
		case line, ok := <-lines:
			r.settle()
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			quit, err := r.handle(ctx, line)
			if err != nil {
				internal.FprintError(r.out, err.Error())
			}
			if quit {
				return nil
			}
			if r.job == nil {
				r.prompt()
			}
		}
	}
}

// settle finishes the running reveal, committing and printing the full answer
func (r *repl) settle() {
	if r.job == nil {
		return
	}
	r.job.Cancel()
	r.printer.finish(r.job.FullText)
	if err := r.job.Err(); err != nil && !errors.Is(err, internal.ErrStale) {
		internal.LogWarn("answer was not saved: %v", err)
	}
	r.job = nil
}

func (r *repl) prompt() {
	label := "you"
	if s, ok := r.a.turns.Directory().GetActive(); ok {
		label = truncate(s.DisplayName(), 24)
	}
	fmt.Fprint(r.out, youLabel(label+"> "))
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.ask(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	dir := r.a.turns.Directory()

	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/list":
		displaySessions(r.out, dir.List(), dir.ActiveID(), false)
	case "/refresh":
		added, err := r.a.turns.Sync(ctx)
		if err != nil {
			return false, err
		}
		internal.FprintInfo(r.out, fmt.Sprintf("%d new conversation(s)", added))
	case "/use":
		if arg == "" {
			return false, fmt.Errorf("usage: /use <id>")
		}
		return false, r.use(ctx, arg)
	case "/history":
		s, ok := dir.GetActive()
		if !ok {
			return false, internal.NewValidationError("session", internal.ErrNoSession)
		}
		r.transcript(s)
	case "/upload":
		if arg == "" {
			return false, fmt.Errorf("usage: /upload <file>")
		}
		s, err := uploadDocument(ctx, r.a, r.out, arg)
		if err != nil {
			return false, err
		}
		internal.FprintSuccess(r.out, fmt.Sprintf("Ready: %s. Ask away!", s.DisplayName()))
	case "/delete":
		if arg == "" {
			return false, fmt.Errorf("usage: /delete <id>")
		}
		s, err := r.a.resolve(arg)
		if err != nil {
			return false, err
		}
		if err := r.a.turns.Delete(ctx, s.ID); err != nil {
			return false, err
		}
		internal.FprintSuccess(r.out, fmt.Sprintf("Deleted %s", s.DisplayName()))
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", command)
	}
	return false, nil
}

func (r *repl) ask(ctx context.Context, question string) error {
	id := r.a.turns.Directory().ActiveID()
	if id == "" {
		return internal.NewValidationError("session", internal.ErrNoSession)
	}

	job, err := r.a.turns.Ask(ctx, id, question)
	if err != nil {
		return err
	}
	r.job = job
	return nil
}

func (r *repl) use(ctx context.Context, ref string) error {
	s, err := r.a.resolve(ref)
	if err != nil {
		return err
	}
	if err := r.a.turns.Select(ctx, s.ID); err != nil {
		return err
	}
	s, _ = r.a.turns.Directory().Get(s.ID)
	internal.FprintInfo(r.out, fmt.Sprintf("Chatting with %s (%d message(s))", s.DisplayName(), len(s.Messages)))
	return nil
}

func (r *repl) transcript(s internal.Session) {
	displaySessionHeader(r.out, &s)
	for i, msg := range s.Messages {
		displayMessage(r.out, i+1, msg, len(s.Messages))
	}
}

// readLines delivers input lines until EOF or stop is closed
func readLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			internal.LogWarn("reading input: %v", err)
		}
	}()
	return lines
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
