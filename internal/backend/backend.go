// Package backend resolves URIs to checked content. It consults the cache
// first; on a miss it loads the unchecked structure from its archive, checks
// it and caches the result.
package backend

import (
	"context"
	"errors"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/artifacts"
	"github.com/vk/mathgrid/internal/cache"
	"github.com/vk/mathgrid/internal/checker"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

// Archives gives scoped access to physical archives.
type Archives interface {
	WithArchive(id uri.ArchiveID, f func(*archives.Archive)) bool
}

// Backend is the content facade.
type Backend struct {
	archives Archives
	cache    *cache.Cache
}

// New creates a backend reading from archives and caching in c.
func New(a Archives, c *cache.Cache) *Backend {
	return &Backend{archives: a, cache: c}
}

// Cache exposes the backing cache.
func (b *Backend) Cache() *cache.Cache { return b.cache }

type loadingKey struct{}

// loading is the chain of top-level modules being loaded by the current
// call stack.
type loading struct {
	parent *loading
	module uri.ModuleURI
}

func (l *loading) contains(u uri.ModuleURI) bool {
	for ; l != nil; l = l.parent {
		if l.module == u {
			return true
		}
	}
	return false
}

// GetModule returns a retained checked module. Nested module URIs are
// answered from their top-level module. A module that is already being
// loaded further up the call stack resolves to nothing, which turns
// import cycles into dangling references. The caller must Release the
// result.
func (b *Backend) GetModule(ctx context.Context, u uri.ModuleURI) (*content.Module, bool) {
	if m, ok := b.cache.GetModule(u); ok {
		return m, true
	}

	logger := ctxlog.FromContext(ctx)
	top := u.TopLevel()
	chain, _ := ctx.Value(loadingKey{}).(*loading)
	if chain.contains(top) {
		logger.Warn("Cyclic module reference.", "module", top.String())
		return nil, false
	}

	var (
		um  *content.UncheckedModule
		err error
	)
	found := b.archives.WithArchive(top.Archive().ID(), func(a *archives.Archive) {
		um, err = a.LoadModule(top.Name(), top.Language())
	})
	switch {
	case !found:
		logger.Debug("Backend: Archive not found.", "module", top.String())
		return nil, false
	case errors.Is(err, artifacts.ErrNotFound):
		logger.Debug("Backend: Module not built.", "module", top.String())
		return nil, false
	case err != nil:
		logger.Warn("Cannot load module.", "module", top.String(), "error", err)
		return nil, false
	}

	ctx = context.WithValue(ctx, loadingKey{}, &loading{parent: chain, module: top})
	m := b.cache.InsertModule(checker.CheckModule(ctx, um, b))
	if u.IsTopLevel() {
		return m, true
	}
	defer m.Release()
	nested, ok := m.Find(u)
	if !ok {
		return nil, false
	}
	return nested.Retain(), true
}

// ResolveModule lets the checker resolve references through the backend.
func (b *Backend) ResolveModule(ctx context.Context, u uri.ModuleURI) (*content.Module, bool) {
	return b.GetModule(ctx, u)
}

// GetDocument returns a retained checked document. The caller must Release
// the result.
func (b *Backend) GetDocument(ctx context.Context, u uri.DocumentURI) (*content.Document, bool) {
	if d, ok := b.cache.GetDocument(u); ok {
		return d, true
	}

	logger := ctxlog.FromContext(ctx)
	var (
		ud  *content.UncheckedDocument
		err error
	)
	found := b.archives.WithArchive(u.Archive().ID(), func(a *archives.Archive) {
		ud, err = a.LoadDocument(u.Path(), u.Name(), u.Language())
	})
	switch {
	case !found:
		logger.Debug("Backend: Archive not found.", "document", u.String())
		return nil, false
	case errors.Is(err, artifacts.ErrNotFound):
		logger.Debug("Backend: Document not built.", "document", u.String())
		return nil, false
	case err != nil:
		logger.Warn("Cannot load document.", "document", u.String(), "error", err)
		return nil, false
	}
	return b.cache.InsertDocument(checker.CheckDocument(ctx, ud, b)), true
}

// Invalidate drops the cached artifact for a module or document URI and
// every cached artifact that references a dropped module, so the next
// request reloads and rechecks them. Holders of the old artifacts keep them.
func (b *Backend) Invalidate(u uri.URI) int {
	return b.cache.RemoveWithDependents(u)
}
