package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/config"
	"github.com/vk/mathgrid/internal/formats"
	"github.com/vk/mathgrid/internal/queue"
	"github.com/vk/mathgrid/internal/triples"
	"github.com/vk/mathgrid/internal/uri"
	"github.com/vk/mathgrid/modules/mhcl"
	"github.com/vk/mathgrid/modules/pipeline"
)

var geometryID = uri.MustArchiveID("math/geometry")

// writeArchive lays out a small mhcl archive under a fresh root and
// returns the root.
func writeArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "geometry")
	files := map[string]string{
		archives.ManifestPath: "id: math/geometry\nurl-base: http://example.org\n",
		filepath.Join(archives.SourceDir, "Points.mhcl"): `
module "Points" {
  symbol "x" {}
}
`,
		filepath.Join(archives.SourceDir, "Triangle.mhcl"): `
module "Triangle" {
  imports = ["Points"]
  symbol "area" {}
}
`,
	}
	for name, src := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return root
}

func testConfig(roots ...string) *config.Config {
	cfg := config.Default()
	cfg.ArchiveRoots = roots
	cfg.Queue.Mode = config.QueueLinear
	return cfg
}

func TestNewApp_RegistersCoreFormats(t *testing.T) {
	// --- Arrange & Act ---
	a, logs := SetupAppTest(t, nil)

	// --- Assert ---
	for _, name := range []string{"x.mhcl", "x.tex"} {
		_, ok := a.Registry().FromExtension(name)
		assert.True(t, ok, name)
	}
	assert.True(t, a.Registry().Sealed())
	assert.Contains(t, logs.String(), "All modules registered.")
}

func TestNewApp_LimiterFollowsQueueMode(t *testing.T) {
	// --- Arrange ---
	counting := testConfig()
	counting.Queue.Mode = config.QueueCounting
	counting.Queue.Permits = 3

	// --- Act ---
	linearApp, _ := SetupAppTest(t, testConfig())
	countingApp, _ := SetupAppTest(t, counting)

	// --- Assert ---
	assert.Equal(t, "linear", linearApp.Queue().Limiter().String())
	assert.Equal(t, "counting(3)", countingApp.Queue().Limiter().String())
}

func TestApp_BuildAndQuery(t *testing.T) {
	// --- Arrange ---
	a, logs := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))

	// --- Act ---
	tasks, err := a.Build(ctx, BuildRequest{Archive: geometryID})

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, queue.Succeeded, task.State(), task.Err())
	}
	assert.Contains(t, logs.String(), "Build finished.")

	tri := uri.MustBaseURI("http://example.org").Archive(geometryID).Module(uri.MustName("Triangle"), uri.English)
	rs, err := a.Query(ctx, triples.NewIRI(tri.String()).String()+" "+triples.Imports.String()+" ?m")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Contains(t, rs.Rows[0][0].Value, "Points")
}

func TestApp_BuildNothingStale(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))
	_, err := a.Build(ctx, BuildRequest{Archive: geometryID})
	require.NoError(t, err)

	// --- Act ---
	tasks, err := a.Build(ctx, BuildRequest{Archive: geometryID})

	// --- Assert ---
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestApp_BuildSinglePathWithGoal(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))

	// --- Act ---
	tasks, err := a.Build(ctx, BuildRequest{
		Archive: geometryID,
		Paths:   []string{"Points.mhcl"},
		Goal:    formats.UncheckedDocument,
	})

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.Succeeded, tasks[0].State(), tasks[0].Err())
	var targets []buildgraph.TargetID
	for _, s := range tasks[0].Steps() {
		targets = append(targets, s.Target)
	}
	assert.Equal(t, []buildgraph.TargetID{mhcl.ParseTarget}, targets)
}

func TestApp_BuildUnknownPath(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))

	// --- Act ---
	_, err := a.Build(ctx, BuildRequest{Archive: geometryID, Paths: []string{"Nope.mhcl"}})

	// --- Assert ---
	assert.ErrorIs(t, err, queue.ErrFileNotFound)
}

func TestStatusServer_Routes(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))
	tasks, err := a.Build(ctx, BuildRequest{Archive: geometryID})
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	srv := httptest.NewServer(a.statusHandler(a.logger))
	t.Cleanup(srv.Close)

	get := func(path string) (int, []byte) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	t.Run("health", func(t *testing.T) {
		code, body := get("/health")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "OK\n", string(body))
	})

	t.Run("archives", func(t *testing.T) {
		code, body := get("/archives")
		require.Equal(t, http.StatusOK, code)
		var views []archiveView
		require.NoError(t, json.Unmarshal(body, &views))
		require.Len(t, views, 1)
		assert.Equal(t, "math/geometry", views[0].ID)
	})

	t.Run("archive files", func(t *testing.T) {
		code, body := get("/archive/math/geometry")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(body), "Triangle.mhcl")
		assert.Contains(t, string(body), "up-to-date")
	})

	t.Run("unknown archive", func(t *testing.T) {
		code, _ := get("/archive/math/algebra")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("queue status", func(t *testing.T) {
		code, body := get("/queues/global")
		require.Equal(t, http.StatusOK, code)
		var status struct {
			ID     string         `json:"id"`
			Counts map[string]int `json:"counts"`
		}
		require.NoError(t, json.Unmarshal(body, &status))
		assert.Equal(t, "global", status.ID)
		assert.Equal(t, 2, status.Counts["succeeded"])
	})

	t.Run("unknown queue", func(t *testing.T) {
		code, _ := get("/queues/nope")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("task", func(t *testing.T) {
		code, body := get("/tasks/" + tasks[0].ID.String())
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(body), tasks[0].Path)
	})

	t.Run("bad task id", func(t *testing.T) {
		code, _ := get("/tasks/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("query", func(t *testing.T) {
		code, body := get("/query?q=" + url.QueryEscape("?m "+triples.Declares.String()+" ?s"))
		require.Equal(t, http.StatusOK, code)
		var rs triples.ResultSet
		require.NoError(t, json.Unmarshal(body, &rs))
		assert.Equal(t, []string{"m", "s"}, rs.Vars)
		assert.NotEmpty(t, rs.Rows)
	})

	t.Run("query without text", func(t *testing.T) {
		code, _ := get("/query")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get("/metrics")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(body), "mathgrid_queue_tasks_total")
	})
}

func TestStatusServer_StartAndClose(t *testing.T) {
	// --- Arrange ---
	a, logs := SetupAppTest(t, testConfig())
	ctx := a.Context(context.Background())

	// --- Act ---
	require.NoError(t, a.startStatusServer(ctx, 0))
	err := a.startStatusServer(ctx, 0)
	closeErr := a.closeStatusServer(ctx)

	// --- Assert ---
	assert.Error(t, err, "second start must fail")
	assert.NoError(t, closeErr)
	assert.NoError(t, a.closeStatusServer(ctx), "closing twice is a no-op")
	assert.Contains(t, logs.String(), "Shutting down status server")
}

func TestApp_ServeBuildsStaleFilesUntilCancelled(t *testing.T) {
	// --- Arrange ---
	a, _ := SetupAppTest(t, testConfig(writeArchive(t)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Load(ctx))

	done := make(chan error, 1)

	// --- Act ---
	go func() { done <- a.Serve(ctx) }()

	// --- Assert ---
	require.Eventually(t, func() bool {
		built := false
		a.Archives().WithArchive(geometryID, func(ar *archives.Archive) {
			built = ar.FileState("Triangle.mhcl", pipeline.RelationsTarget).Kind == archives.UpToDate
		})
		return built
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
