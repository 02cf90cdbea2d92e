package archives

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/fsutil"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/uri"
)

// ErrArchiveNotFound is returned for ids that name no physical archive.
var ErrArchiveNotFound = errors.New("archive not found")

// Manager owns the archive forest.
type Manager struct {
	registry *buildgraph.Registry
	bus      *notify.Bus

	mu    sync.RWMutex
	tree  *Tree
	roots []string

	reportMu sync.Mutex
	reported map[string]bool
}

// NewManager creates a manager with an empty tree. bus may be nil.
func NewManager(registry *buildgraph.Registry, bus *notify.Bus) *Manager {
	return &Manager{
		registry: registry,
		bus:      bus,
		tree:     emptyTree(),
		reported: make(map[string]bool),
	}
}

// Load walks every root once, reads the manifests of all archives found and
// scans their files, then replaces the forest. Missing roots are reported
// once and contribute nothing. Archives with unreadable manifests or
// conflicting ids are skipped; their errors are returned together after
// the tree has been replaced.
func (m *Manager) Load(ctx context.Context, roots ...string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Archives: Starting discovery.", "roots", roots)

	var dirs []string
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			m.reportMissing(ctx, root, err)
			continue
		}
		found, err := fsutil.FindDirsContaining(root, ManifestPath)
		if err != nil {
			return fmt.Errorf("walking archive root %s: %w", root, err)
		}
		dirs = append(dirs, found...)
	}

	type loaded struct {
		archive *Archive
		err     error
	}
	results := make([]loaded, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, dir := range dirs {
		g.Go(func() error {
			a, err := m.openArchive(gctx, roots, dir)
			results[i] = loaded{archive: a, err: err}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var (
		opened []*Archive
		errs   *multierror.Error
	)
	for _, r := range results {
		if r.err != nil {
			logger.Warn("Skipping archive.", "error", r.err)
			errs = multierror.Append(errs, r.err)
			continue
		}
		opened = append(opened, r.archive)
	}
	tree, treeErrs := buildTree(opened)
	for _, err := range treeErrs {
		logger.Warn("Skipping archive.", "error", err)
		errs = multierror.Append(errs, err)
	}

	m.mu.Lock()
	m.tree = tree
	m.roots = append([]string(nil), roots...)
	m.mu.Unlock()

	logger.Info("📚 Archives loaded.", "archives", tree.Len(), "roots", len(roots))
	m.publish(notify.Event{Kind: notify.ArchivesLoaded, Message: fmt.Sprintf("%d archives", tree.Len())})
	return errs.ErrorOrNil()
}

// Reload repeats the last Load.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.RLock()
	roots := append([]string(nil), m.roots...)
	m.mu.RUnlock()
	return m.Load(ctx, roots...)
}

func (m *Manager) reportMissing(ctx context.Context, root string, err error) {
	m.reportMu.Lock()
	defer m.reportMu.Unlock()
	if m.reported[root] {
		return
	}
	m.reported[root] = true
	ctxlog.FromContext(ctx).Warn("Archive root is not accessible; treating it as empty.", "root", root, "error", err)
}

// openArchive reads one archive's manifest and scans it. Without an id in
// the manifest, the id is the directory's path below its root.
func (m *Manager) openArchive(ctx context.Context, roots []string, dir string) (*Archive, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	idText := manifest.ID
	if idText == "" {
		idText = relativeID(roots, dir)
	}
	id, err := uri.ParseArchiveID(idText)
	if err != nil {
		return nil, fmt.Errorf("archive at %s: invalid id %q: %w", dir, idText, err)
	}
	a, err := newArchive(dir, id, manifest)
	if err != nil {
		return nil, err
	}
	if _, err := a.scan(ctx, m.registry); err != nil {
		return nil, err
	}
	return a, nil
}

func relativeID(roots []string, dir string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, dir); err == nil && rel != "." && !filepath.IsAbs(rel) && rel[0] != '.' {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(dir)
}

// WithTree runs f with read access to the forest.
func (m *Manager) WithTree(f func(*Tree)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f(m.tree)
}

// WithArchive runs f with read access to one physical archive. It reports
// whether the archive exists.
func (m *Manager) WithArchive(id uri.ArchiveID, f func(*Archive)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.tree.Archive(id)
	if !ok {
		return false
	}
	f(a)
	return true
}

// Archives lists the ids of all physical archives.
func (m *Manager) Archives() []uri.ArchiveID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.tree.Archives()
	out := make([]uri.ArchiveID, len(all))
	for i, a := range all {
		out[i] = a.id
	}
	return out
}

// Rescan recomputes one archive's file states and publishes every changed
// state.
func (m *Manager) Rescan(ctx context.Context, id uri.ArchiveID) ([]Change, error) {
	m.mu.RLock()
	a, ok := m.tree.Archive(id)
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, id)
	}
	changes, err := a.scan(ctx, m.registry)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		m.publish(notify.Event{
			Kind:    notify.FileStateChanged,
			Archive: id.String(),
			Path:    c.Path,
			Message: fmt.Sprintf("%s: %s -> %s", c.Target, c.From.Kind, c.To.Kind),
		})
	}
	return changes, nil
}

// RecordBuild records a successful step and publishes the new state.
func (m *Manager) RecordBuild(id uri.ArchiveID, rel string, target buildgraph.TargetID, at time.Time) error {
	var err error
	if !m.WithArchive(id, func(a *Archive) { err = a.RecordBuild(rel, target, at) }) {
		return fmt.Errorf("%w: %s", ErrArchiveNotFound, id)
	}
	if err != nil {
		return err
	}
	m.publish(notify.Event{
		Kind:    notify.FileStateChanged,
		Archive: id.String(),
		Path:    rel,
		Message: fmt.Sprintf("%s: %s", target, UpToDate),
	})
	return nil
}

func (m *Manager) publish(e notify.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
