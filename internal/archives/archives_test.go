package archives

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/uri"
)

var parse = buildgraph.NewTargetID("pars")

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

// testRegistry knows one format, "tex", built into umod by "pars".
func testRegistry(t *testing.T) *buildgraph.Registry {
	t.Helper()
	texs := buildgraph.NewArtifactTypeID("texs")
	umod := buildgraph.NewArtifactTypeID("umod")
	r := buildgraph.New(ctxlog.Discard())
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: texs})
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: umod})
	r.MustRegisterFormat(buildgraph.SourceFormat{
		ID:         buildgraph.NewFormatID("stex"),
		Extensions: []string{"tex"},
		Entry:      texs,
		Goals:      []buildgraph.ArtifactTypeID{umod},
	})
	r.MustRegisterTarget(buildgraph.Target{
		ID:      parse,
		Inputs:  []buildgraph.ArtifactTypeID{texs},
		Outputs: []buildgraph.ArtifactTypeID{umod},
		Run:     func(context.Context, *buildgraph.StepInput) buildgraph.Result { return buildgraph.None() },
	})
	require.NoError(t, r.Seal())
	return r
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

// makeArchive creates an archive directory below root. An empty id leaves
// the manifest without one.
func makeArchive(t *testing.T, root, dir, manifest string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(dir))
	writeFile(t, filepath.Join(path, ManifestPath), manifest)
	return path
}

func TestFileState_Lifecycle(t *testing.T) {
	// --- Arrange ---
	ctx := testContext()
	root := t.TempDir()
	dir := makeArchive(t, root, "math/geometry", "id: math/geometry\n")
	rel := "geometry/Triangle.en.tex"
	src := filepath.Join(dir, SourceDir, filepath.FromSlash(rel))
	writeFile(t, src, `\begin{smodule}{Triangle}\end{smodule}`)

	modified := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, modified, modified))

	id := uri.MustArchiveID("math/geometry")
	m := NewManager(testRegistry(t), nil)
	require.NoError(t, m.Load(ctx, root))

	state := func() FileState {
		var s FileState
		require.True(t, m.WithArchive(id, func(a *Archive) { s = a.FileState(rel, parse) }))
		return s
	}

	// --- Act & Assert: never built ---
	assert.Equal(t, New, state().Kind)
	assert.True(t, state().NeedsBuild())

	// --- Act & Assert: built after the last change ---
	t0 := modified.Add(time.Hour)
	require.NoError(t, m.RecordBuild(id, rel, parse, t0))
	s := state()
	assert.Equal(t, UpToDate, s.Kind)
	assert.True(t, s.LastBuilt.Equal(t0))

	changes, err := m.Rescan(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, UpToDate, state().Kind)

	// --- Act & Assert: changed after the build ---
	t1 := t0.Add(time.Hour)
	require.NoError(t, os.Chtimes(src, t1, t1))
	changes, err = m.Rescan(ctx, id)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, UpToDate, changes[0].From.Kind)
	assert.Equal(t, Stale, changes[0].To.Kind)

	s = state()
	assert.Equal(t, Stale, s.Kind)
	assert.True(t, s.LastBuilt.Equal(t0), "last built %s", s.LastBuilt)
	assert.True(t, s.LastChanged.Equal(t1), "last changed %s", s.LastChanged)
	assert.True(t, s.NeedsBuild())
}

func TestFileState_DeletedAndReclaimed(t *testing.T) {
	// --- Arrange ---
	ctx := testContext()
	root := t.TempDir()
	dir := makeArchive(t, root, "sets", "id: sets\n")
	rel := "Union.tex"
	src := filepath.Join(dir, SourceDir, rel)
	writeFile(t, src, "content")

	id := uri.MustArchiveID("sets")
	bus := notify.New()
	defer bus.Close()
	sub := bus.Subscribe(16)

	m := NewManager(testRegistry(t), bus)
	require.NoError(t, m.Load(ctx, root))
	require.NoError(t, m.RecordBuild(id, rel, parse, time.Now()))

	// --- Act ---
	require.NoError(t, os.Remove(src))
	_, err := m.Rescan(ctx, id)
	require.NoError(t, err)

	// --- Assert ---
	var a *Archive
	require.True(t, m.WithArchive(id, func(x *Archive) { a = x }))
	assert.Equal(t, Deleted, a.FileState(rel, parse).Kind)
	files := a.Files()
	require.Len(t, files, 1)
	assert.Equal(t, rel, files[0].Path)

	var kinds []notify.Kind
	for {
		e, ok := sub.Poll()
		if !ok {
			break
		}
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, notify.ArchivesLoaded)
	assert.Contains(t, kinds, notify.FileStateChanged)

	// --- Act: reclaim the record ---
	require.NoError(t, a.Reclaim(rel))
	_, err = m.Rescan(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, a.Files())
	assert.Error(t, a.Reclaim(rel), "a file without records cannot be reclaimed")
}

func TestLoad_MissingRootIsEmpty(t *testing.T) {
	m := NewManager(testRegistry(t), nil)

	err := m.Load(testContext(), filepath.Join(t.TempDir(), "does-not-exist"))

	require.NoError(t, err)
	assert.Empty(t, m.Archives())
}

func TestLoad_BuildsForest(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	makeArchive(t, root, "smglom/meta-inf", "title: meta\n")
	makeArchive(t, root, "smglom/sets", "title: sets\n")
	makeArchive(t, root, "smglom/algebra/groups", "title: groups\n")
	makeArchive(t, root, "standalone", "title: standalone\n")
	m := NewManager(testRegistry(t), nil)

	// --- Act ---
	require.NoError(t, m.Load(testContext(), root))

	// --- Assert ---
	ids := make([]string, 0)
	for _, id := range m.Archives() {
		ids = append(ids, id.String())
	}
	assert.Equal(t, []string{"smglom/algebra/groups", "smglom/meta-inf", "smglom/sets", "standalone"}, ids)

	m.WithTree(func(tree *Tree) {
		roots := tree.Roots()
		require.Len(t, roots, 2)
		smglom, ok := roots[0].(*Group)
		require.True(t, ok, "smglom should be a group")
		assert.Equal(t, "smglom", smglom.ID().String())
		_, ok = roots[1].(*Archive)
		assert.True(t, ok, "standalone should be an archive")

		var children []string
		for _, c := range smglom.Children() {
			children = append(children, c.ID().String())
		}
		assert.Equal(t, []string{"smglom/algebra", "smglom/meta-inf", "smglom/sets"}, children)

		meta, ok := smglom.Meta()
		require.True(t, ok)
		assert.True(t, meta.ID().IsMeta())

		entry, ok := tree.Lookup(uri.MustArchiveID("smglom/algebra"))
		require.True(t, ok)
		_, isGroup := entry.(*Group)
		assert.True(t, isGroup)
		_, ok = tree.Lookup(uri.MustArchiveID("smglom/nothing"))
		assert.False(t, ok)
	})
}

func TestLoad_RejectsNestedArchive(t *testing.T) {
	root := t.TempDir()
	makeArchive(t, root, "outer", "id: outer\n")
	makeArchive(t, root, "elsewhere", "id: outer/inner\n")
	m := NewManager(testRegistry(t), nil)

	err := m.Load(testContext(), root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested inside archive outer")
	assert.Len(t, m.Archives(), 1)
}

func TestScan_IgnorePatternsAndFormats(t *testing.T) {
	ctx := testContext()
	root := t.TempDir()
	dir := makeArchive(t, root, "notes", "id: notes\nignore: \"drafts/**\"\n")
	writeFile(t, filepath.Join(dir, SourceDir, "Kept.tex"), "x")
	writeFile(t, filepath.Join(dir, SourceDir, "drafts", "Skipped.tex"), "x")
	writeFile(t, filepath.Join(dir, SourceDir, "README.txt"), "x")
	m := NewManager(testRegistry(t), nil)

	require.NoError(t, m.Load(ctx, root))

	m.WithArchive(uri.MustArchiveID("notes"), func(a *Archive) {
		files := a.Files()
		require.Len(t, files, 1)
		assert.Equal(t, "Kept.tex", files[0].Path)
		assert.Equal(t, "stex", files[0].Format.String())
	})
}

func TestReadManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestPath), "id: smglom/sets\ndependencies: smglom/meta-inf, smglom/logic\nignore: \"*.bak, old/**\"\n")

	mf, err := ReadManifest(root)

	require.NoError(t, err)
	assert.Equal(t, "smglom/sets", mf.ID)
	assert.Equal(t, DefaultURLBase, mf.URLBase)
	assert.Equal(t, []string{"smglom/meta-inf", "smglom/logic"}, mf.DependencyIDs())
	assert.Equal(t, []string{"*.bak", "old/**"}, mf.IgnorePatterns())
}

func TestArchive_DocumentURIAndModuleFile(t *testing.T) {
	ctx := testContext()
	root := t.TempDir()
	dir := makeArchive(t, root, "math/geometry", "id: math/geometry\nurl-base: http://example.org\n")
	writeFile(t, filepath.Join(dir, SourceDir, "geometry", "Triangle.en.tex"), "x")
	writeFile(t, filepath.Join(dir, SourceDir, "geometry", "Triangle.de.tex"), "x")
	m := NewManager(testRegistry(t), nil)
	require.NoError(t, m.Load(ctx, root))

	m.WithArchive(uri.MustArchiveID("math/geometry"), func(a *Archive) {
		d, err := a.DocumentURI("geometry/Triangle.de.tex")
		require.NoError(t, err)
		assert.Equal(t, "http://example.org?a=math/geometry&p=geometry&d=Triangle&l=de", d.String())

		mod := a.URI().Module(uri.MustName("Triangle"), uri.German)
		rel, ok := a.FileForModule(mod)
		require.True(t, ok)
		assert.Equal(t, "geometry/Triangle.de.tex", rel)

		_, ok = a.FileForModule(a.URI().Module(uri.MustName("Square"), uri.English))
		assert.False(t, ok)
	})
}

func TestArchive_SaveAndLoadModule(t *testing.T) {
	ctx := testContext()
	root := t.TempDir()
	makeArchive(t, root, "sets", "id: sets\n")
	m := NewManager(testRegistry(t), nil)
	require.NoError(t, m.Load(ctx, root))

	m.WithArchive(uri.MustArchiveID("sets"), func(a *Archive) {
		mod := a.URI().Module(uri.MustName("Union"), uri.English)
		um := &content.UncheckedModule{
			URI: mod,
			Declarations: []content.UncheckedDeclaration{
				content.UncheckedSymbol{URI: mod.Symbol(uri.MustName("union")), Arity: 2, Macro: "union"},
			},
		}

		require.NoError(t, a.SaveModule(um))
		got, err := a.LoadModule(uri.MustName("Union"), uri.English)
		require.NoError(t, err)
		assert.Equal(t, um.URI, got.URI)
		require.Len(t, got.Declarations, 1)
		assert.Equal(t, um.Declarations[0], got.Declarations[0])

		nested := &content.UncheckedModule{URI: mod.Nested(uri.MustName("Inner"))}
		assert.Error(t, a.SaveModule(nested))
	})
}
