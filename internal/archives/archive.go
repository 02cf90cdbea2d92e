package archives

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vk/mathgrid/internal/artifacts"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/uri"
)

const (
	// SourceDir holds an archive's inputs.
	SourceDir = "source"
	// CacheDir holds everything derived from the inputs.
	CacheDir = ".mathgrid"

	buildDir     = "build"
	moduleDir    = "mod"
	documentDir  = "doc"
	recordSuffix = ".built"
	cacheSuffix  = ".bin"
)

// SourceFile is one input file and its per-target build state.
type SourceFile struct {
	Path     string // slash-separated, relative to the source directory
	Format   buildgraph.FormatID
	Modified time.Time
	States   map[buildgraph.TargetID]FileState
}

// Archive is a physical archive.
type Archive struct {
	id       uri.ArchiveID
	uri      uri.ArchiveURI
	root     string
	manifest Manifest

	mu    sync.RWMutex
	files map[string]*SourceFile
}

func newArchive(root string, id uri.ArchiveID, m Manifest) (*Archive, error) {
	base, err := uri.ParseBaseURI(m.URLBase)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", id, err)
	}
	return &Archive{
		id:       id,
		uri:      base.Archive(id),
		root:     root,
		manifest: m,
		files:    make(map[string]*SourceFile),
	}, nil
}

func (a *Archive) ID() uri.ArchiveID   { return a.id }
func (a *Archive) URI() uri.ArchiveURI { return a.uri }
func (a *Archive) Root() string        { return a.root }
func (a *Archive) Manifest() Manifest  { return a.manifest }
func (a *Archive) SourceDir() string   { return filepath.Join(a.root, SourceDir) }
func (a *Archive) CacheDir() string    { return filepath.Join(a.root, CacheDir) }
func (a *Archive) SourcePath(rel string) string {
	return filepath.Join(a.SourceDir(), filepath.FromSlash(rel))
}

func (*Archive) entry() {}

// RelPath converts an absolute path inside the source directory into a
// source-relative slash path.
func (a *Archive) RelPath(abs string) (string, bool) {
	rel, err := filepath.Rel(a.SourceDir(), abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Files returns a snapshot of the known source files, including deleted
// ones whose records are retained, sorted by path.
func (a *Archive) Files() []SourceFile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SourceFile, 0, len(a.files))
	for _, f := range a.files {
		out = append(out, f.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// File returns a snapshot of one source file.
func (a *Archive) File(rel string) (SourceFile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.files[rel]
	if !ok {
		return SourceFile{}, false
	}
	return f.clone(), true
}

// FileState reports the state of rel for target. Unknown files are New.
func (a *Archive) FileState(rel string, target buildgraph.TargetID) FileState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if f, ok := a.files[rel]; ok {
		if s, ok := f.States[target]; ok {
			return s
		}
	}
	return FileState{Kind: New}
}

func (f *SourceFile) clone() SourceFile {
	c := *f
	c.States = make(map[buildgraph.TargetID]FileState, len(f.States))
	for k, v := range f.States {
		c.States[k] = v
	}
	return c
}

// DocumentURI names the document produced from a source file:
// "geometry/Triangle.en.tex" becomes path "geometry", name "Triangle",
// language en.
func (a *Archive) DocumentURI(rel string) (uri.DocumentURI, error) {
	dir := path.Dir(rel)
	stem, lang := uri.SplitFileName(rel)
	name, err := uri.NewName(stem)
	if err != nil {
		return uri.DocumentURI{}, fmt.Errorf("file %s: %w", rel, err)
	}
	var p uri.Name
	if dir != "." {
		if p, err = uri.NewName(dir); err != nil {
			return uri.DocumentURI{}, fmt.Errorf("file %s: %w", rel, err)
		}
	}
	return a.uri.Document(p, name, lang), nil
}

// FileForModule guesses the source file declaring a top-level module: the
// file whose stem equals the module name, preferring the module's language.
func (a *Archive) FileForModule(m uri.ModuleURI) (string, bool) {
	want := m.Name().First().String()
	a.mu.RLock()
	defer a.mu.RUnlock()

	var candidates []string
	for rel, f := range a.files {
		if isDeleted(f) {
			continue
		}
		stem, lang := uri.SplitFileName(rel)
		if stem != want {
			continue
		}
		if lang == m.Language() {
			return rel, true
		}
		candidates = append(candidates, rel)
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

func isDeleted(f *SourceFile) bool {
	for _, s := range f.States {
		if s.Kind == Deleted {
			return true
		}
	}
	return false
}

func (a *Archive) recordPath(rel string, target buildgraph.TargetID) string {
	return filepath.Join(a.CacheDir(), buildDir, filepath.FromSlash(rel), target.String()+recordSuffix)
}

// RecordBuild stores a successful build of rel for target at t, making the
// pair UpToDate(t).
func (a *Archive) RecordBuild(rel string, target buildgraph.TargetID, t time.Time) error {
	if err := artifacts.WriteFile(a.recordPath(rel, target), []byte(t.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("recording build of %s: %w", rel, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.files[rel]
	if !ok {
		f = &SourceFile{Path: rel, States: make(map[buildgraph.TargetID]FileState)}
		a.files[rel] = f
	}
	f.States[target] = FileState{Kind: UpToDate, LastBuilt: t}
	return nil
}

// readRecord returns the recorded build time of rel for target.
func (a *Archive) readRecord(rel string, target buildgraph.TargetID) (time.Time, bool, error) {
	data, err := os.ReadFile(a.recordPath(rel, target))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt build record for %s: %w", rel, err)
	}
	return t, true, nil
}

// Reclaim removes the retained build records of a deleted file.
func (a *Archive) Reclaim(rel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.files[rel]
	if !ok || !isDeleted(f) {
		return fmt.Errorf("file %s is not deleted", rel)
	}
	if err := os.RemoveAll(filepath.Join(a.CacheDir(), buildDir, filepath.FromSlash(rel))); err != nil {
		return fmt.Errorf("reclaiming %s: %w", rel, err)
	}
	delete(a.files, rel)
	return nil
}

func (a *Archive) modulePath(name uri.Name, lang uri.Language) string {
	return filepath.Join(a.CacheDir(), moduleDir, filepath.FromSlash(name.String()), lang.String()+cacheSuffix)
}

func (a *Archive) documentDir(d uri.DocumentURI) string {
	return filepath.Join(a.CacheDir(), documentDir, filepath.FromSlash(d.Path().String()), d.Name().String(), d.Language().String())
}

// DocumentDir is the directory holding every artifact derived for d.
func (a *Archive) DocumentDir(d uri.DocumentURI) string { return a.documentDir(d) }

// LoadModule reads the unchecked top-level module name in lang from the
// binary cache. It neither caches nor checks.
func (a *Archive) LoadModule(name uri.Name, lang uri.Language) (*content.UncheckedModule, error) {
	data, err := artifacts.ReadFile(a.modulePath(name, lang))
	if err != nil {
		return nil, err
	}
	return artifacts.DecodeModule(data)
}

// LoadDocument reads an unchecked document from the binary cache.
func (a *Archive) LoadDocument(p, name uri.Name, lang uri.Language) (*content.UncheckedDocument, error) {
	d := a.uri.Document(p, name, lang)
	data, err := artifacts.ReadFile(filepath.Join(a.documentDir(d), "document"+cacheSuffix))
	if err != nil {
		return nil, err
	}
	return artifacts.DecodeDocument(data)
}

// SaveModule writes the binary cache of a top-level module.
func (a *Archive) SaveModule(m *content.UncheckedModule) error {
	if !m.URI.IsTopLevel() {
		return fmt.Errorf("module %s is nested; save its top-level module", m.URI)
	}
	data, err := artifacts.EncodeModule(m, artifacts.CompressionLZ4)
	if err != nil {
		return err
	}
	return artifacts.WriteFile(a.modulePath(m.URI.Name(), m.URI.Language()), data)
}

// SaveDocument writes the binary cache of a document and of every module it
// declares.
func (a *Archive) SaveDocument(d *content.UncheckedDocument) error {
	for i := range d.Modules {
		if err := a.SaveModule(&d.Modules[i]); err != nil {
			return err
		}
	}
	data, err := artifacts.EncodeDocument(d, artifacts.CompressionZstd)
	if err != nil {
		return err
	}
	return artifacts.WriteFile(filepath.Join(a.documentDir(d.URI), "document"+cacheSuffix), data)
}
