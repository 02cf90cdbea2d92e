package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/ctxlog"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.ArchiveRoots, 1)
	assert.Equal(t, "MathHub", filepath.Base(cfg.ArchiveRoots[0]))
	assert.Equal(t, QueueCounting, cfg.Queue.Mode)
	assert.Positive(t, cfg.Queue.Permits)
	assert.Equal(t, 500, cfg.Cache.EvictionThreshold)
	assert.Zero(t, cfg.Server.Port)
	assert.Empty(t, cfg.Relay.URL)
	assert.True(t, cfg.TripleStore.InMemory)
}

func TestParse_OverridesOnlyWhatIsSet(t *testing.T) {
	// --- Arrange ---
	t.Setenv("MATHGRID_TEST_ROOT", "/data/archives")
	src := `
archive_roots = ["${home}/MathHub", env.MATHGRID_TEST_ROOT]

log {
  level = "debug"
}

queue {
  mode = "linear"
}

server { port = 8080 }

relay {
  url = "http://localhost:3000"
}
`
	cfg := Default()

	// --- Act ---
	err := Parse([]byte(src), "settings.hcl", cfg)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home(), "MathHub"), "/data/archives"}, cfg.ArchiveRoots)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset attributes keep their default")
	assert.Equal(t, QueueLinear, cfg.Queue.Mode)
	assert.Equal(t, Default().Queue.Permits, cfg.Queue.Permits)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3000", cfg.Relay.URL)
	assert.Equal(t, "/", cfg.Relay.Namespace)
	assert.Equal(t, 500, cfg.Cache.EvictionThreshold, "absent blocks keep their defaults")
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "syntax", src: `log {`, wantErr: "failed to parse"},
		{name: "unknown attribute", src: `colour = "red"`, wantErr: "failed to decode"},
		{name: "wrong type", src: `queue { permits = "many" }`, wantErr: "failed to decode"},
		{name: "unknown variable", src: `archive_roots = [nowhere]`, wantErr: "failed to decode"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Parse([]byte(tc.src), "settings.hcl", Default())
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Queue.Mode = "random"
	cfg.Queue.Permits = 0
	cfg.Cache.EvictionThreshold = -1
	cfg.Server.Port = 70000
	cfg.TripleStore = TripleStoreConfig{}

	err := cfg.Validate()

	require.Error(t, err)
	for _, want := range []string{"log level", "log format", "queue mode", "permits", "eviction threshold", "server port", "triple store"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`cache { eviction_threshold = 42 }`), 0o644))

		cfg, err := Load(testContext(), path)

		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Cache.EvictionThreshold)
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := Load(testContext(), filepath.Join(t.TempDir(), "missing.hcl"))
		assert.ErrorContains(t, err, "failed to read settings file")
	})

	t.Run("missing default file means defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())

		cfg, err := Load(testContext(), "")

		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`queue { permits = 0 }`), 0o644))

		_, err := Load(testContext(), path)
		assert.ErrorContains(t, err, "permits")
	})
}
