// Package stex registers the sTeX source format. Parsing sTeX needs an
// external parser; without one every build of a .tex file fails with "no
// parser configured".
package stex

import (
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/formats"
)

var (
	FormatID    = buildgraph.NewFormatID("stex")
	Source      = buildgraph.NewArtifactTypeID("texs")
	ParseTarget = buildgraph.NewTargetID("ltex")
)

// Module implements the formats.Module interface for this package.
type Module struct {
	Parser   formats.Parser
	Archives formats.ArchiveLookup
}

// Register registers the format, its source artifact type and its parse
// target.
func (m *Module) Register(r *buildgraph.Registry) {
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: Source, Description: "sTeX source file"})
	f := buildgraph.SourceFormat{
		ID:          FormatID,
		Description: "sTeX documents",
		Extensions:  []string{"tex"},
		Entry:       Source,
		Goals:       []buildgraph.ArtifactTypeID{formats.Relations},
	}
	if m.Parser != nil && m.Archives != nil {
		f.Dependencies = formats.Dependencies(m.Archives, m.Parser)
	}
	r.MustRegisterFormat(f)
	r.MustRegisterTarget(buildgraph.Target{
		ID:          ParseTarget,
		Description: "Parse sTeX into an unchecked document",
		Inputs:      []buildgraph.ArtifactTypeID{Source},
		Outputs:     []buildgraph.ArtifactTypeID{formats.UncheckedDocument},
		Run:         formats.ParseStep(m.Parser),
	})
}
