package app

import (
	"github.com/vk/mathgrid/internal/formats"
	"github.com/vk/mathgrid/modules/mhcl"
	"github.com/vk/mathgrid/modules/pipeline"
	"github.com/vk/mathgrid/modules/stex"
)

// coreModules is the definitive list of formats and targets compiled into
// the mathgrid binary. The shared pipeline registers the artifact types the
// formats build towards, so it comes first.
func (a *App) coreModules() []formats.Module {
	return []formats.Module{
		&pipeline.Module{Archives: a.archives, Backend: a.backend, Triples: a.triples},
		&mhcl.Module{Archives: a.archives},
		&stex.Module{Archives: a.archives},
	}
}
