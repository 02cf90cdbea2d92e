package formats

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

var (
	archiveID = uri.MustArchiveID("math/geometry")
	geometry  = uri.MustBaseURI("http://example.org").Archive(archiveID)
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func module(name string) uri.ModuleURI {
	return geometry.Module(uri.MustName(name), uri.English)
}

func TestReferences(t *testing.T) {
	// --- Arrange ---
	tri := module("Triangle")
	doc := &content.UncheckedDocument{
		Modules: []content.UncheckedModule{{
			URI:  tri,
			Meta: ptr(module("Meta")),
			Declarations: []content.UncheckedDeclaration{
				content.UncheckedImport{Target: module("Points")},
				content.UncheckedNestedModule{
					URI:          tri.Nested(uri.MustName("Inner")),
					Declarations: []content.UncheckedDeclaration{content.UncheckedImport{Target: module("Lines")}},
				},
				content.UncheckedMorphism{Domain: module("Points").Nested(uri.MustName("Sub"))},
				content.UncheckedExtension{Target: module("Shapes").Symbol(uri.MustName("shape"))},
				// Self references are not dependencies.
				content.UncheckedImport{Target: tri.Nested(uri.MustName("Inner"))},
			},
		}},
		Elements: []content.UncheckedElement{
			content.UncheckedModuleElement{Module: tri},
			content.UncheckedSection{Children: []content.UncheckedElement{
				content.UncheckedUseModule{Target: module("Angles")},
			}},
		},
	}

	// --- Act ---
	refs := References(doc)

	// --- Assert ---
	assert.Equal(t, []uri.ModuleURI{
		module("Meta"), module("Points"), module("Lines"), module("Shapes"), module("Angles"),
	}, refs)
}

func ptr[T any](v T) *T { return &v }

// setupArchive creates math/geometry with the given source files, known
// to a registry with a single "mhcl" format.
func setupArchive(t *testing.T, files ...string) *archives.Manager {
	t.Helper()
	src := buildgraph.NewArtifactTypeID("hcls")
	reg := buildgraph.New(ctxlog.Discard())
	reg.MustRegisterArtifactType(buildgraph.ArtifactType{ID: src})
	reg.MustRegisterFormat(buildgraph.SourceFormat{ID: buildgraph.NewFormatID("mhcl"), Extensions: []string{"mhcl"}, Entry: src})
	require.NoError(t, reg.Seal())

	root := t.TempDir()
	dir := filepath.Join(root, "geometry")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "META-INF"), 0o755))
	manifest := "id: math/geometry\nurl-base: http://example.org\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, archives.ManifestPath), []byte(manifest), 0o644))
	for _, f := range files {
		p := filepath.Join(dir, archives.SourceDir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}

	m := archives.NewManager(reg, nil)
	require.NoError(t, m.Load(testContext(), root))
	return m
}

func TestDependencies(t *testing.T) {
	// --- Arrange ---
	mgr := setupArchive(t, "Triangle.mhcl", "Points.mhcl", "lines/Lines.de.mhcl", "lines/Lines.mhcl")
	parser := ParserFunc(func(_ context.Context, path string, _ []byte, d uri.DocumentURI) (*content.UncheckedDocument, error) {
		assert.Equal(t, "Triangle.mhcl", path)
		return &content.UncheckedDocument{
			URI: d,
			Modules: []content.UncheckedModule{{
				URI: module("Triangle"),
				Declarations: []content.UncheckedDeclaration{
					content.UncheckedImport{Target: module("Points")},
					content.UncheckedImport{Target: module("Lines")},
					content.UncheckedImport{Target: module("Unknown")},
					content.UncheckedImport{Target: module("Points").Nested(uri.MustName("Sub"))},
				},
			}},
		}, nil
	})
	in := &buildgraph.StepInput{Archive: archiveID, Path: "Triangle.mhcl"}
	require.True(t, mgr.WithArchive(archiveID, func(a *archives.Archive) {
		in.Source = a.SourcePath(in.Path)
	}))

	// --- Act ---
	deps, err := Dependencies(mgr, parser)(testContext(), in)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []buildgraph.Dependency{
		{Archive: archiveID, Path: "Points.mhcl"},
		{Archive: archiveID, Path: "lines/Lines.mhcl"},
	}, deps)
}

func TestParseStep(t *testing.T) {
	mgr := setupArchive(t, "Triangle.mhcl")
	in := &buildgraph.StepInput{Archive: archiveID, Path: "Triangle.mhcl"}
	require.True(t, mgr.WithArchive(archiveID, func(a *archives.Archive) {
		in.Source = a.SourcePath(in.Path)
	}))

	t.Run("hands the document on", func(t *testing.T) {
		want := &content.UncheckedDocument{Title: "t"}
		var got []byte
		step := ParseStep(ParserFunc(func(_ context.Context, _ string, src []byte, _ uri.DocumentURI) (*content.UncheckedDocument, error) {
			got = src
			return want, nil
		}))

		res := step(testContext(), in)

		assert.Equal(t, buildgraph.ResultIntermediate, res.Kind())
		assert.Same(t, want, res.Artifact())
		assert.Equal(t, "Triangle.mhcl", string(got))
	})

	t.Run("parse errors fail the step", func(t *testing.T) {
		step := ParseStep(ParserFunc(func(context.Context, string, []byte, uri.DocumentURI) (*content.UncheckedDocument, error) {
			return nil, errors.New("unbalanced braces")
		}))

		res := step(testContext(), in)

		assert.True(t, res.Failed())
		assert.Equal(t, "unbalanced braces", res.Message())
	})

	t.Run("no parser", func(t *testing.T) {
		res := ParseStep(nil)(testContext(), in)

		assert.True(t, res.Failed())
		assert.Equal(t, "no parser configured", res.Message())
	})

	t.Run("missing source", func(t *testing.T) {
		missing := &buildgraph.StepInput{Archive: archiveID, Path: "Gone.mhcl", Source: filepath.Join(t.TempDir(), "Gone.mhcl")}
		res := ParseStep(ParserFunc(func(context.Context, string, []byte, uri.DocumentURI) (*content.UncheckedDocument, error) {
			return &content.UncheckedDocument{}, nil
		}))(testContext(), missing)

		assert.True(t, res.Failed())
		assert.Contains(t, res.Message(), "reading Gone.mhcl")
	})
}
