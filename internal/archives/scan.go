package archives

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/fsutil"
)

// Change is one state transition observed by a scan.
type Change struct {
	Path   string
	Target buildgraph.TargetID
	From   FileState
	To     FileState
}

// scan recomputes the file states of a from disk and returns the
// transitions. A vanished source directory turns every recorded file into
// Deleted.
func (a *Archive) scan(ctx context.Context, reg *buildgraph.Registry) ([]Change, error) {
	logger := ctxlog.FromContext(ctx).With("archive", a.id.String())
	patterns := a.manifest.IgnorePatterns()

	sources, err := fsutil.FindFiles(a.SourceDir(), func(rel string) bool {
		if ignored(patterns, rel) {
			return false
		}
		_, ok := reg.FromExtension(path.Base(rel))
		return ok
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", a.SourceDir(), err)
	}

	next := make(map[string]*SourceFile, len(sources))
	for _, rel := range sources {
		info, err := os.Stat(a.SourcePath(rel))
		if err != nil {
			logger.Warn("Source file vanished during scan.", "path", rel, "error", err)
			continue
		}
		format, _ := reg.FromExtension(path.Base(rel))
		f := &SourceFile{
			Path:     rel,
			Format:   format,
			Modified: info.ModTime(),
			States:   make(map[buildgraph.TargetID]FileState),
		}
		plan, err := reg.PlanGoals(format)
		if err != nil {
			logger.Warn("No build plan for source file.", "path", rel, "format", format.String(), "error", err)
		}
		for _, target := range plan {
			built, recorded, err := a.readRecord(rel, target)
			if err != nil {
				logger.Warn("Ignoring unreadable build record.", "path", rel, "target", target.String(), "error", err)
			}
			f.States[target] = stateFor(f.Modified, built, recorded)
		}
		next[rel] = f
	}

	records, err := a.recordedFiles()
	if err != nil {
		return nil, err
	}
	for rel, targets := range records {
		if _, ok := next[rel]; ok {
			continue
		}
		f := &SourceFile{Path: rel, States: make(map[buildgraph.TargetID]FileState)}
		for _, target := range targets {
			f.States[target] = FileState{Kind: Deleted}
		}
		next[rel] = f
	}

	a.mu.Lock()
	prev := a.files
	a.files = next
	a.mu.Unlock()

	changes := diffStates(prev, next)
	logger.Debug("Archive scanned.", "files", len(sources), "changes", len(changes))
	return changes, nil
}

// recordedFiles lists the build records under the cache directory, keyed by
// source-relative path.
func (a *Archive) recordedFiles() (map[string][]buildgraph.TargetID, error) {
	dir := filepath.Join(a.CacheDir(), buildDir)
	records, err := fsutil.FindFiles(dir, func(rel string) bool {
		return strings.HasSuffix(rel, recordSuffix)
	})
	if err != nil {
		return nil, fmt.Errorf("listing build records: %w", err)
	}
	out := make(map[string][]buildgraph.TargetID)
	for _, rec := range records {
		file := path.Dir(rec)
		code, err := buildgraph.ParseCode(strings.TrimSuffix(path.Base(rec), recordSuffix))
		if err != nil || file == "." {
			continue
		}
		out[file] = append(out[file], buildgraph.TargetID(code))
	}
	return out, nil
}

func diffStates(prev, next map[string]*SourceFile) []Change {
	var changes []Change
	for rel, f := range next {
		for target, to := range f.States {
			from := FileState{Kind: New}
			known := false
			if p, ok := prev[rel]; ok {
				from, known = p.States[target]
			}
			if !known || from.Kind != to.Kind {
				changes = append(changes, Change{Path: rel, Target: target, From: from, To: to})
			}
		}
	}
	return changes
}
