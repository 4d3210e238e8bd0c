package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/doc-chat/internal/turn"
	"github.com/spf13/cobra"
)

var healthcheckDetails bool

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that doc-chat can reach the backend",
	Long: `Check the health of doc-chat by verifying:
  • Configuration is valid
  • The backend answers GET /chats
  • Conversation histories are readable (with --details)

This command is useful for debugging connection and configuration issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 doc-chat Health Check"))
		fmt.Fprintln(out)

		// Step 1: configuration, already loaded and validated by the root command
		fmt.Fprintln(out, infoStyle.Render("Step 1: Checking configuration..."))
		fmt.Fprintln(out, successStyle.Render("✅ Configuration valid"))
		source := cfg.Source
		if source == "" {
			source = "(defaults and environment)"
		}
		fmt.Fprintf(out, "   Source: %s\n", source)
		fmt.Fprintf(out, "   Server: %s\n", cfg.Server)
		fmt.Fprintf(out, "   Timeout: %s, reveal: %d rune(s) every %s\n", cfg.Timeout, cfg.Reveal.Unit, cfg.Reveal.Interval)
		fmt.Fprintln(out)

		a, err := newApp(turn.Options{})
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Invalid server URL:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}

		// Step 2: reachability
		fmt.Fprintln(out, infoStyle.Render("Step 2: Contacting backend..."))
		start := time.Now()
		if err := a.sync(cmd.Context()); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Backend unreachable:"), err)
			fmt.Fprintln(out)
			fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • Is the server running at "+a.client.BaseURL()+"?")
			fmt.Fprintln(out, "   • Override it with --server or DOC_CHAT_SERVER")
			return fmt.Errorf("health check failed: backend unreachable")
		}
		sessions := a.turns.Directory().List()
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Backend answered in %s", time.Since(start).Round(time.Millisecond))))
		fmt.Fprintln(out)

		// Step 3: histories
		unreadable := 0
		if healthcheckDetails {
			fmt.Fprintln(out, infoStyle.Render("Step 3: Reading conversation histories..."))
			unreadable = checkHistories(cmd, a, out)
			fmt.Fprintln(out)
		}

		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		switch {
		case unreadable > 0:
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  %d of %d conversation(s) could not be read", unreadable, len(sessions))))
			return fmt.Errorf("health check failed: %d unreadable conversation(s)", unreadable)
		case len(sessions) > 0:
			fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			fmt.Fprintln(out, successStyle.Render("   • Backend: Reachable"))
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Conversations: %d found", len(sessions))))
		default:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Backend reachable but no conversations found"))
			fmt.Fprintln(out, "   • Upload a document with `doc-chat upload <file>`")
		}
		return nil
	},
}

func checkHistories(cmd *cobra.Command, a *app, out io.Writer) int {
	failed := 0
	for _, s := range a.turns.Directory().List() {
		if err := a.turns.Load(cmd.Context(), s.ID); err != nil {
			fmt.Fprintln(out, errorStyle.Render("   ❌ "+s.DisplayName()+":"), err)
			failed++
			continue
		}
		loaded, _ := a.turns.Directory().Get(s.ID)
		fmt.Fprintf(out, "   • %s: %d message(s)\n", truncate(loaded.DisplayName(), nameWidth), len(loaded.Messages))
	}
	return failed
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckDetails, "details", false, "Also read every conversation history")
}
