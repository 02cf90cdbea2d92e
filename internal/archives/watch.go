package archives

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/fsutil"
	"github.com/vk/mathgrid/internal/uri"
)

// DefaultDebounce is the quiet period Watch waits for before rescanning.
const DefaultDebounce = 500 * time.Millisecond

// Watch observes the source directories of all loaded archives and rescans
// an archive once its files have been quiet for debounce. It blocks until
// ctx is done.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	sources := make(map[string]uri.ArchiveID)
	m.WithTree(func(t *Tree) {
		for _, a := range t.Archives() {
			sources[a.SourceDir()] = a.id
		}
	})
	for dir := range sources {
		if err := addRecursive(watcher, dir); err != nil {
			logger.Warn("Cannot watch archive sources.", "dir", dir, "error", err)
		}
	}
	logger.Info("👀 Watching archives.", "archives", len(sources))

	dirty := make(map[uri.ArchiveID]bool)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			id, found := owningArchive(sources, event.Name)
			if !found {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			dirty[id] = true
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)

		case <-timerC:
			timerC = nil
			for id := range dirty {
				if _, err := m.Rescan(ctx, id); err != nil {
					logger.Warn("Rescan failed.", "archive", id.String(), "error", err)
				}
			}
			clear(dirty)
		}
	}
}

func owningArchive(sources map[string]uri.ArchiveID, path string) (uri.ArchiveID, bool) {
	for dir, id := range sources {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return id, true
		}
	}
	return uri.ArchiveID{}, false
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fsutil.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
