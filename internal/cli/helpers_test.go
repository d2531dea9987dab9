package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetCommand restores every flag to its default and installs ctx on the
// whole tree so commands can run repeatedly against the shared root command.
// cobra otherwise keeps the first context a subcommand ran with.
func resetCommand(cmd *cobra.Command, ctx context.Context) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		resetCommand(sub, ctx)
	}
}

// executeCommand runs the root command with args and stdin, returning stdout.
func executeCommand(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	ctx := context.Background()
	resetCommand(cmd, ctx)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// writeTestConfig writes a config file rooted in a temp data dir. overrides
// are merged over the base document at the top level.
func writeTestConfig(t *testing.T, overrides map[string]any) (string, string) {
	t.Helper()
	for _, name := range []string{
		"DAISY_GEMINI_API_KEY", "GEMINI_API_KEY",
		"DAISY_TOOLS_IMAGE_API_KEY", "DAISY_TOGETHER_API_KEY",
		"DAISY_TOOLS_SEARCH_API_KEY", "DAISY_GOOGLE_SEARCH_API_KEY",
		"DAISY_TOOLS_EMAIL_PASSWORD", "DAISY_EMAIL_PASSWORD",
		"DAISY_GATEWAY_SHARED_SECRET",
	} {
		t.Setenv(name, "")
	}

	dataDir := t.TempDir()
	doc := map[string]any{
		"data_dir": dataDir,
		"logging":  map[string]any{"level": "error"},
	}
	for k, v := range overrides {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dataDir, "daisy.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path, dataDir
}

func hasCommand(name string) bool {
	for _, c := range GetRootCmd().Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}
