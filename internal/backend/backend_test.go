package backend

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/cache"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

var (
	archiveID = uri.MustArchiveID("math/geometry")
	geometry  = uri.MustBaseURI("http://example.org").Archive(archiveID)
)

func moduleURI(name string) uri.ModuleURI {
	return geometry.Module(uri.MustName(name), uri.English)
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

// setup creates one archive, saves the given unchecked modules into its
// binary cache and returns a backend over it.
func setup(t *testing.T, modules ...*content.UncheckedModule) *Backend {
	t.Helper()
	ctx := testContext()
	root := t.TempDir()
	dir := filepath.Join(root, "geometry")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "META-INF"), 0o755))
	manifest := "id: math/geometry\nurl-base: http://example.org\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, archives.ManifestPath), []byte(manifest), 0o644))

	mgr := archives.NewManager(buildgraph.New(ctxlog.Discard()), nil)
	require.NoError(t, mgr.Load(ctx, root))
	require.True(t, mgr.WithArchive(archiveID, func(a *archives.Archive) {
		for _, m := range modules {
			require.NoError(t, a.SaveModule(m))
		}
	}))
	return New(mgr, cache.New(100))
}

func importing(name string, imports ...string) *content.UncheckedModule {
	um := &content.UncheckedModule{URI: moduleURI(name)}
	um.Declarations = append(um.Declarations, content.UncheckedSymbol{URI: um.URI.Symbol(uri.MustName("s"))})
	for _, imp := range imports {
		um.Declarations = append(um.Declarations, content.UncheckedImport{Target: moduleURI(imp)})
	}
	return um
}

func TestGetModule_LoadsChecksAndCaches(t *testing.T) {
	// --- Arrange ---
	b := setup(t, importing("Points"), importing("Triangle", "Points"))
	ctx := testContext()

	// --- Act ---
	tri, ok := b.GetModule(ctx, moduleURI("Triangle"))

	// --- Assert ---
	require.True(t, ok)
	imp := tri.Declarations()[1].(*content.Import)
	require.True(t, imp.Target.Resolved())
	assert.Equal(t, 2, b.Cache().Len(), "the dependency is cached too")

	again, ok := b.GetModule(ctx, moduleURI("Triangle"))
	require.True(t, ok)
	assert.Same(t, tri, again)

	points, ok := b.GetModule(ctx, moduleURI("Points"))
	require.True(t, ok)
	assert.Same(t, points, imp.Target.Target())
	// cache + Triangle's import + this caller
	assert.EqualValues(t, 3, points.Holders())
}

func TestGetModule_Missing(t *testing.T) {
	b := setup(t)

	_, ok := b.GetModule(testContext(), moduleURI("Nothing"))
	assert.False(t, ok)

	other := uri.MustBaseURI("http://example.org").Archive(uri.MustArchiveID("other")).Module(uri.MustName("X"), uri.English)
	_, ok = b.GetModule(testContext(), other)
	assert.False(t, ok)
}

func TestGetModule_CycleDegradesToDanglingReference(t *testing.T) {
	b := setup(t, importing("A", "B"), importing("B", "A"))

	a, ok := b.GetModule(testContext(), moduleURI("A"))

	require.True(t, ok)
	toB := a.Declarations()[1].(*content.Import)
	require.True(t, toB.Target.Resolved())
	backToA := toB.Target.Target().Declarations()[1].(*content.Import)
	assert.False(t, backToA.Target.Resolved())
	assert.Equal(t, moduleURI("A"), backToA.Target.URI())
}

func TestGetModule_Nested(t *testing.T) {
	top := moduleURI("Triangle")
	inner := top.Nested(uri.MustName("Inner"))
	b := setup(t, &content.UncheckedModule{
		URI: top,
		Declarations: []content.UncheckedDeclaration{
			content.UncheckedNestedModule{URI: inner},
		},
	})

	m, ok := b.GetModule(testContext(), inner)

	require.True(t, ok)
	assert.Equal(t, inner, m.URI())
	assert.True(t, m.IsNested())
	assert.EqualValues(t, 2, m.Holders(), "cache and caller, counted on the root")
}

func TestInvalidate(t *testing.T) {
	b := setup(t, importing("Points"))
	ctx := testContext()
	first, ok := b.GetModule(ctx, moduleURI("Points"))
	require.True(t, ok)

	b.Invalidate(moduleURI("Points"))
	second, ok := b.GetModule(ctx, moduleURI("Points"))

	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 1, first.Holders(), "the old copy stays alive for its holder")
}

func TestInvalidate_DropsDependents(t *testing.T) {
	// --- Arrange ---
	b := setup(t,
		importing("Points"),
		importing("Triangle", "Points"),
		importing("Prism", "Triangle"),
		importing("Lines"),
	)
	ctx := testContext()
	oldPrism, ok := b.GetModule(ctx, moduleURI("Prism"))
	require.True(t, ok)
	lines, ok := b.GetModule(ctx, moduleURI("Lines"))
	require.True(t, ok)
	oldPoints := oldPrism.Declarations()[1].(*content.Import).Target.Target().
		Declarations()[1].(*content.Import).Target.Target()
	require.Equal(t, 4, b.Cache().Len())

	// --- Act ---
	n := b.Invalidate(moduleURI("Points"))

	// --- Assert ---
	assert.Equal(t, 3, n, "Points and every module importing it, transitively")
	assert.Equal(t, 1, b.Cache().Len())
	assert.True(t, b.Cache().HasModule(moduleURI("Lines")))

	tri, ok := b.GetModule(ctx, moduleURI("Triangle"))
	require.True(t, ok)
	newPoints := tri.Declarations()[1].(*content.Import).Target.Target()
	assert.NotSame(t, oldPoints, newPoints, "rechecked importers see the reloaded module")

	again, ok := b.GetModule(ctx, moduleURI("Lines"))
	require.True(t, ok)
	assert.Same(t, lines, again, "unrelated modules stay cached")
	assert.EqualValues(t, 1, oldPrism.Holders(), "the old copy stays alive for its holder")
}

func TestGetModule_ConcurrentMissesAgree(t *testing.T) {
	b := setup(t, importing("Points"), importing("Triangle", "Points"))
	ctx := testContext()

	var (
		wg  sync.WaitGroup
		got [8]*content.Module
	)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, ok := b.GetModule(ctx, moduleURI("Triangle"))
			if ok {
				got[i] = m
			}
		}()
	}
	wg.Wait()

	for _, m := range got {
		require.NotNil(t, m)
		assert.Same(t, got[0], m, "every caller ends up with the cached copy")
	}
}

func TestGetDocument(t *testing.T) {
	b := setup(t, importing("Points"))
	doc := geometry.Document(uri.Name{}, uri.MustName("Intro"), uri.English)
	mgr := b.archives.(*archives.Manager)
	require.True(t, mgr.WithArchive(archiveID, func(a *archives.Archive) {
		require.NoError(t, a.SaveDocument(&content.UncheckedDocument{
			URI:      doc,
			Title:    "Intro",
			Elements: []content.UncheckedElement{content.UncheckedUseModule{Target: moduleURI("Points")}},
		}))
	}))

	d, ok := b.GetDocument(testContext(), doc)

	require.True(t, ok)
	assert.Equal(t, "Intro", d.Title())
	assert.True(t, d.Elements()[0].(*content.UseModule).Target.Resolved())

	_, ok = b.GetDocument(testContext(), geometry.Document(uri.Name{}, uri.MustName("Missing"), uri.English))
	assert.False(t, ok)
}
