package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// testEnv is a throwaway config with every state path under one temp dir.
type testEnv struct {
	dir         string
	configPath  string
	historyPath string
	eventsPath  string
	credsPath   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:         dir,
		configPath:  filepath.Join(dir, "config.toml"),
		historyPath: filepath.Join(dir, "state", "history.json"),
		eventsPath:  filepath.Join(dir, "state", "events.db"),
		credsPath:   filepath.Join(dir, "state", "credentials.json"),
	}
	content := fmt.Sprintf(`
[auth]
credentials_path = %q

[download]
root = %q

[history]
path = %q

[events]
path = %q
`, env.credsPath, filepath.Join(dir, "music"), env.historyPath, env.eventsPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

// resetFlags puts every flag of cmd and its children back to its default,
// since cobra keeps flag values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with args and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	resetFlags(rootCmd)
	return out.String(), err
}
