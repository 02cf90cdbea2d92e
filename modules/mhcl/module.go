package mhcl

import (
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/formats"
)

var (
	// FormatID is the HCL-syntax document format.
	FormatID = buildgraph.NewFormatID("mhcl")
	// Source is the artifact type of an mhcl file on disk.
	Source = buildgraph.NewArtifactTypeID("hcls")
	// ParseTarget parses an mhcl file into an unchecked document.
	ParseTarget = buildgraph.NewTargetID("pars")
)

// Module implements the formats.Module interface for this package.
type Module struct {
	// Archives maps referenced modules to the files declaring them.
	Archives formats.ArchiveLookup
}

// Register registers the format, its source artifact type and its parse
// target.
func (m *Module) Register(r *buildgraph.Registry) {
	r.MustRegisterArtifactType(buildgraph.ArtifactType{ID: Source, Description: "mhcl source file"})
	f := buildgraph.SourceFormat{
		ID:          FormatID,
		Description: "Documents and modules in HCL syntax",
		Extensions:  []string{"mhcl"},
		Entry:       Source,
		Goals:       []buildgraph.ArtifactTypeID{formats.Relations},
	}
	if m.Archives != nil {
		f.Dependencies = formats.Dependencies(m.Archives, Parser{})
	}
	r.MustRegisterFormat(f)
	r.MustRegisterTarget(buildgraph.Target{
		ID:          ParseTarget,
		Description: "Parse mhcl into an unchecked document",
		Inputs:      []buildgraph.ArtifactTypeID{Source},
		Outputs:     []buildgraph.ArtifactTypeID{formats.UncheckedDocument},
		Run:         formats.ParseStep(Parser{}),
	})
}
