package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/mathgrid/internal/config"
	"github.com/vk/mathgrid/internal/formats"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance for system testing. A nil cfg
// means the defaults with an in-memory triple store and no archive roots.
func SetupAppTest(t *testing.T, cfg *config.Config, modules ...formats.Module) (*App, *SafeBuffer) {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
		cfg.ArchiveRoots = nil
	}
	cfg.Log.Level = "debug"
	cfg.TripleStore.InMemory = true

	logBuffer := &SafeBuffer{}
	testApp, err := NewApp(logBuffer, cfg, modules...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("MATHGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
