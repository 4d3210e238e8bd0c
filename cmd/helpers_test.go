package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/iksnae/doc-chat/internal/config"
	"github.com/iksnae/doc-chat/testutil"
)

// cliResult holds the captured streams of one command run
type cliResult struct {
	Stdout string
	Stderr string
	Err    error
}

// newCLIBackend starts a fake backend seeded with the sample chats
func newCLIBackend(t *testing.T) *testutil.FakeBackend {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	testutil.SeedSampleChats(backend)
	return backend
}

// runCLI executes rootCmd against backend with isolated config and fresh flags
func runCLI(t *testing.T, backend *testutil.FakeBackend, stdin string, args ...string) cliResult {
	t.Helper()

	isolateConfig(t)
	resetFlags(rootCmd)
	color.NoColor = true

	if backend != nil {
		args = append([]string{"--server", backend.URL()}, args...)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))

	err := rootCmd.Execute()
	return cliResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	testutil.Setenv(t, map[string]string{
		config.EnvServer:         "",
		config.EnvTimeout:        "5s",
		config.EnvRevealInterval: "0s",
		config.EnvRevealUnit:     "",
		config.EnvHistoryTTL:     "",
		config.EnvLogFile:        "",
	})
}

// resetFlags restores every flag to its default so runs do not leak into each other
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
