package stex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/formats"
	"github.com/vk/mathgrid/internal/uri"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func register(t *testing.T, m *Module) *buildgraph.Registry {
	t.Helper()
	r := buildgraph.New(ctxlog.Discard())
	for _, id := range []buildgraph.ArtifactTypeID{formats.UncheckedDocument, formats.CheckedDocument, formats.Relations} {
		r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: id})
	}
	m.Register(r)
	require.NoError(t, r.Seal())
	return r
}

func TestRegister(t *testing.T) {
	r := register(t, &Module{})

	id, ok := r.FromExtension("geometry/Triangle.en.tex")
	require.True(t, ok)
	assert.Equal(t, FormatID, id)

	plan, err := r.Plan(FormatID, formats.UncheckedDocument)
	require.NoError(t, err)
	assert.Equal(t, []buildgraph.TargetID{ParseTarget}, plan)

	f, _ := r.Format(FormatID)
	assert.Nil(t, f.Dependencies, "no dependency scan without a parser")
}

func TestParse_WithoutParserFails(t *testing.T) {
	r := register(t, &Module{})
	target, ok := r.Target(ParseTarget)
	require.True(t, ok)

	res := target.Run(testContext(), &buildgraph.StepInput{Path: "Triangle.tex", Source: "/nonexistent/Triangle.tex"})

	assert.True(t, res.Failed())
	assert.Equal(t, "no parser configured", res.Message())
}

func TestParse_DelegatesToParser(t *testing.T) {
	want := &content.UncheckedDocument{Title: "Triangles"}
	var gotPath string
	p := formats.ParserFunc(func(_ context.Context, path string, _ []byte, _ uri.DocumentURI) (*content.UncheckedDocument, error) {
		gotPath = path
		return want, nil
	})
	r := register(t, &Module{Parser: p})
	target, _ := r.Target(ParseTarget)

	src := filepath.Join(t.TempDir(), "Triangle.tex")
	require.NoError(t, writeFile(src, `\begin{smodule}{Triangle}\end{smodule}`))
	res := target.Run(testContext(), &buildgraph.StepInput{Path: "Triangle.tex", Source: src})

	require.False(t, res.Failed(), res.Message())
	assert.Same(t, want, res.Artifact())
	assert.Equal(t, "Triangle.tex", gotPath)
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}
