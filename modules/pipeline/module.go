// Package pipeline registers the format-independent build targets: checking
// an unchecked document and extracting its relations.
package pipeline

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/artifacts"
	"github.com/vk/mathgrid/internal/backend"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/checker"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/formats"
	"github.com/vk/mathgrid/internal/triples"
)

var (
	CheckTarget     = buildgraph.NewTargetID("chck")
	RelationsTarget = buildgraph.NewTargetID("rels")
)

// RelationsFile is the name of the Turtle dump written next to a
// document's binary cache.
const RelationsFile = "rel.ttl"

// Module implements the formats.Module interface for this package.
type Module struct {
	Archives formats.ArchiveLookup
	Backend  *backend.Backend
	// Triples receives the extracted relations; nil skips the store and
	// only writes rel.ttl.
	Triples *triples.Store
}

// Register registers the shared artifact types and targets.
func (m *Module) Register(r *buildgraph.Registry) {
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: formats.UncheckedDocument, Description: "unchecked document"})
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: formats.CheckedDocument, Description: "checked document"})
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: formats.Relations, Description: "relations in the triple store"})
	r.MustRegisterTarget(buildgraph.Target{
		ID:          CheckTarget,
		Description: "Save the binary cache and check the document",
		Inputs:      []buildgraph.ArtifactTypeID{formats.UncheckedDocument},
		Outputs:     []buildgraph.ArtifactTypeID{formats.CheckedDocument},
		Run:         m.check,
	})
	r.MustRegisterTarget(buildgraph.Target{
		ID:          RelationsTarget,
		Description: "Extract relations into the triple store and rel.ttl",
		Inputs:      []buildgraph.ArtifactTypeID{formats.CheckedDocument},
		Outputs:     []buildgraph.ArtifactTypeID{formats.Relations},
		Run:         m.relations,
	})
}

func (m *Module) check(ctx context.Context, in *buildgraph.StepInput) buildgraph.Result {
	logger := ctxlog.FromContext(ctx)
	ud, ok := in.Input.(*content.UncheckedDocument)
	if !ok {
		return buildgraph.Errf("expected an unchecked document, got %T", in.Input)
	}

	var err error
	if !m.Archives.WithArchive(in.Archive, func(a *archives.Archive) { err = a.SaveDocument(ud) }) {
		return buildgraph.Errf("archive %s not found", in.Archive)
	}
	if err != nil {
		return buildgraph.Errf("saving %s: %v", in.Path, err)
	}

	// Drop stale copies, and whatever imports them, so the check sees what was just saved.
	m.Backend.Invalidate(ud.URI)
	for _, mod := range ud.Modules {
		m.Backend.Invalidate(mod.URI)
	}
	d, ok := m.Backend.GetDocument(ctx, ud.URI)
	if !ok {
		return buildgraph.Errf("document %s could not be loaded after saving", ud.URI)
	}
	if broken := checker.ReportDocument(d); len(broken) > 0 {
		logger.Warn("Document has broken references.", "document", ud.URI.String(), "count", len(broken))
	}
	return buildgraph.Intermediate(d)
}

func (m *Module) relations(ctx context.Context, in *buildgraph.StepInput) buildgraph.Result {
	logger := ctxlog.FromContext(ctx)
	d, ok := in.Input.(*content.Document)
	if !ok {
		return buildgraph.Errf("expected a checked document, got %T", in.Input)
	}

	ts := triples.FromDocument(d)
	for _, e := range d.Elements() {
		if me, ok := e.(*content.ModuleElement); ok && me.Module.Resolved() {
			ts = append(ts, triples.FromModule(me.Module.Target())...)
		}
	}

	if m.Triples != nil {
		if err := m.Triples.Load(ctx, d.URI().String(), ts); err != nil {
			return buildgraph.Errf("storing relations: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := triples.WriteTurtle(&buf, ts); err != nil {
		return buildgraph.Errf("rendering relations: %v", err)
	}
	var err error
	m.Archives.WithArchive(in.Archive, func(a *archives.Archive) {
		err = artifacts.WriteFile(filepath.Join(a.DocumentDir(d.URI()), RelationsFile), buf.Bytes())
	})
	if err != nil {
		return buildgraph.Errf("writing %s: %v", RelationsFile, err)
	}
	logger.Debug("Pipeline: Relations extracted.", "document", d.URI().String(), "triples", len(ts))
	return buildgraph.Final()
}
