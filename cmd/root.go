package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/iksnae/doc-chat/internal"
	"github.com/iksnae/doc-chat/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	serverURL  string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"

	// cfg is resolved before every subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "doc-chat",
	Short: "Chat with your documents from the terminal",
	Long: `A command-line client for a document question-answering backend.

Upload a PDF, then ask questions about it. Answers are revealed as they
are typed out, and every conversation stays available on the server.

Features:
  • Streaming upload with live progress
  • One-shot questions or an interactive chat session
  • Conversation history per document
  • Export transcripts (JSONL, Markdown, YAML, JSON, HTML)

Quick Start:
  doc-chat upload report.pdf            # Upload and start a conversation
  doc-chat list                         # List conversations
  doc-chat ask <chat-id> "Summarize"    # Ask a single question
  doc-chat chat                         # Interactive session

Configuration is read from $XDG_CONFIG_HOME/doc-chat/config.yaml, a .env file
and DOC_CHAT_* environment variables; --server overrides them all.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{
			Path:    configPath,
			Server:  serverURL,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		cfg = loaded

		internal.SetLogOutput(cmd.ErrOrStderr(), cfg.Log.File)
		internal.SetVerbose(cfg.Log.Verbose)
		if cfg.Source != "" {
			internal.LogDebug("loaded config from %s", cfg.Source)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.SyncLogs()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend API base URL (default "+config.DefaultServer+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/doc-chat/config.yaml)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
