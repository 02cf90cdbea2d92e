package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/config"
	"github.com/vk/mathgrid/internal/ctxlog"
)

func parseFlags(t *testing.T, args ...string) (*options, *pflag.FlagSet) {
	t.Helper()
	opts := &options{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.bind(fs)
	fs.IntVar(&opts.port, "port", 0, "")
	fs.StringVar(&opts.relayURL, "relay-url", "", "")
	require.NoError(t, fs.Parse(args))
	return opts, fs
}

func writeSettings(t *testing.T, src string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "settings.hcl")
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func TestOptions_FlagsOverrideSettings(t *testing.T) {
	// --- Arrange ---
	settings := writeSettings(t, `
archive_roots = ["/from/file"]
log { level = "warn" }
queue {
  mode    = "counting"
  permits = 8
}
`)
	opts, fs := parseFlags(t,
		"--config", settings,
		"--root", "/a", "--root", "/b",
		"--queue", "linear",
		"--store", "/var/lib/mathgrid",
		"--port", "8080",
	)

	// --- Act ---
	cfg, err := opts.config(testContext(), fs)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, cfg.ArchiveRoots)
	assert.Equal(t, "warn", cfg.Log.Level, "unset flags keep the file's value")
	assert.Equal(t, config.QueueLinear, cfg.Queue.Mode)
	assert.Equal(t, 8, cfg.Queue.Permits)
	assert.Equal(t, "/var/lib/mathgrid", cfg.TripleStore.Path)
	assert.False(t, cfg.TripleStore.InMemory)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestOptions_InvalidValuesAreUsageErrors(t *testing.T) {
	// --- Arrange ---
	opts, fs := parseFlags(t, "--config", writeSettings(t, ""), "--permits", "0")

	// --- Act ---
	_, err := opts.config(testContext(), fs)

	// --- Assert ---
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "permits")
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	// --- Arrange & Act ---
	root := NewRootCommand(os.Stdout)

	// --- Assert ---
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"build", "status", "query", "serve"})
	assert.NotNil(t, root.PersistentFlags().Lookup("root"))
}
