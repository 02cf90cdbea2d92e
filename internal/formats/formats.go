// Package formats holds what the built-in source formats and build targets
// share: the artifact types flowing between targets, the parser contract
// and the helpers turning a parser into build steps.
package formats

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

// Artifact types produced by the shared pipeline.
var (
	// UncheckedDocument artifacts are *content.UncheckedDocument.
	UncheckedDocument = buildgraph.NewArtifactTypeID("udoc")
	// CheckedDocument artifacts are *content.Document.
	CheckedDocument = buildgraph.NewArtifactTypeID("cdoc")
	// Relations is the final artifact: triples stored and rel.ttl written.
	Relations = buildgraph.NewArtifactTypeID("relt")
)

// Module registers formats, artifact types or targets.
type Module interface {
	Register(r *buildgraph.Registry)
}

// Parser turns a source file into its unchecked document.
type Parser interface {
	Parse(ctx context.Context, path string, src []byte, doc uri.DocumentURI) (*content.UncheckedDocument, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, path string, src []byte, doc uri.DocumentURI) (*content.UncheckedDocument, error)

func (f ParserFunc) Parse(ctx context.Context, path string, src []byte, doc uri.DocumentURI) (*content.UncheckedDocument, error) {
	return f(ctx, path, src, doc)
}

// ArchiveLookup gives scoped access to physical archives.
type ArchiveLookup interface {
	WithArchive(id uri.ArchiveID, f func(*archives.Archive)) bool
}

func parseSource(ctx context.Context, p Parser, in *buildgraph.StepInput) (*content.UncheckedDocument, error) {
	if p == nil {
		return nil, fmt.Errorf("no parser configured")
	}
	src, err := os.ReadFile(in.Source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", in.Path, err)
	}
	return p.Parse(ctx, in.Path, src, in.Document)
}

// ParseStep returns a step that parses the task's source file with p and
// hands the unchecked document to the next step. A nil p makes every run
// fail with "no parser configured".
func ParseStep(p Parser) buildgraph.StepFunc {
	return func(ctx context.Context, in *buildgraph.StepInput) buildgraph.Result {
		doc, err := parseSource(ctx, p, in)
		if err != nil {
			return buildgraph.Err(err.Error())
		}
		ctxlog.FromContext(ctx).Debug("Formats: Parsed source.", "path", in.Path, "modules", len(doc.Modules))
		return buildgraph.Intermediate(doc)
	}
}

// References lists the modules d refers to that it does not declare
// itself, in order of first appearance.
func References(d *content.UncheckedDocument) []uri.ModuleURI {
	declared := make(map[uri.ModuleURI]bool)
	for _, m := range d.Modules {
		declared[m.URI.TopLevel()] = true
	}
	seen := make(map[uri.ModuleURI]bool)
	var out []uri.ModuleURI
	add := func(u uri.ModuleURI) {
		top := u.TopLevel()
		if declared[top] || seen[top] {
			return
		}
		seen[top] = true
		out = append(out, top)
	}

	var decls func([]content.UncheckedDeclaration)
	decls = func(ds []content.UncheckedDeclaration) {
		for _, d := range ds {
			switch d := d.(type) {
			case content.UncheckedImport:
				add(d.Target)
			case content.UncheckedNestedModule:
				decls(d.Declarations)
			case content.UncheckedMathStructure:
				decls(d.Declarations)
			case content.UncheckedExtension:
				add(d.Target.Module())
				decls(d.Declarations)
			case content.UncheckedMorphism:
				add(d.Domain)
			}
		}
	}
	for _, m := range d.Modules {
		if m.Meta != nil {
			add(*m.Meta)
		}
		decls(m.Declarations)
	}

	var elems func([]content.UncheckedElement)
	elems = func(es []content.UncheckedElement) {
		for _, e := range es {
			switch e := e.(type) {
			case content.UncheckedSection:
				elems(e.Children)
			case content.UncheckedUseModule:
				add(e.Target)
			case content.UncheckedModuleElement:
				add(e.Module)
			}
		}
	}
	elems(d.Elements)
	return out
}

// Dependencies returns a dependency function that parses the source file
// with p and maps every referenced module to the source file declaring it.
// References that no known file declares are left to the checker.
func Dependencies(lookup ArchiveLookup, p Parser) buildgraph.DependencyFunc {
	return func(ctx context.Context, in *buildgraph.StepInput) ([]buildgraph.Dependency, error) {
		doc, err := parseSource(ctx, p, in)
		if err != nil {
			return nil, err
		}
		var deps []buildgraph.Dependency
		seen := make(map[buildgraph.Dependency]bool)
		for _, ref := range References(doc) {
			id := ref.Archive().ID()
			var (
				rel   string
				found bool
			)
			lookup.WithArchive(id, func(a *archives.Archive) { rel, found = a.FileForModule(ref) })
			dep := buildgraph.Dependency{Archive: id, Path: rel}
			if !found || seen[dep] || (id == in.Archive && rel == in.Path) {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
		}
		return deps, nil
	}
}
