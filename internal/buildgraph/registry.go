package buildgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/vk/mathgrid/internal/uri"
)

var (
	// ErrDuplicateCode is returned when a code is registered twice.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrCycle is returned by Seal when the artifact graph has a cycle.
	ErrCycle = errors.New("cycle in build graph")
	// ErrUnsatisfiableGraph is returned by Plan when no chain of targets
	// produces the requested artifact type.
	ErrUnsatisfiableGraph = errors.New("unsatisfiable build graph")
	// ErrSealed is returned by registrations after Seal.
	ErrSealed = errors.New("registry is sealed")
)

// StepInput is what a target's step function sees.
type StepInput struct {
	Archive  uri.ArchiveID
	Path     string // slash-separated, relative to the archive's source directory
	Source   string // absolute path of the source file
	Document uri.DocumentURI
	Target   TargetID
	// Input is the artifact of the preceding Intermediate result, or nil.
	Input any
}

// StepFunc runs one target for one file.
type StepFunc func(ctx context.Context, in *StepInput) Result

// Dependency is another source file whose artifacts must be current before
// a file can be built.
type Dependency struct {
	Archive uri.ArchiveID
	Path    string
}

// DependencyFunc discovers the dependencies of a source file.
type DependencyFunc func(ctx context.Context, in *StepInput) ([]Dependency, error)

// ArtifactType is a vertex of the build graph.
type ArtifactType struct {
	ID          ArtifactTypeID
	Description string
}

// SourceFormat binds file extensions to an entry artifact type.
type SourceFormat struct {
	ID          FormatID
	Description string
	Extensions  []string
	Entry       ArtifactTypeID
	// Goals are the artifact types built when a task names no goal.
	Goals        []ArtifactTypeID
	Dependencies DependencyFunc
}

// Target transforms its input artifact types into its output types.
type Target struct {
	ID          TargetID
	Description string
	Inputs      []ArtifactTypeID
	Outputs     []ArtifactTypeID
	Run         StepFunc
}

// Registry is the process-wide table of formats, targets and artifact
// types. Register everything during startup, then Seal.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger
	sealed bool

	artifacts     map[ArtifactTypeID]*ArtifactType
	artifactOrder []ArtifactTypeID
	formats       map[FormatID]*SourceFormat
	formatOrder   []FormatID
	targets       map[TargetID]*Target
	targetOrder   []TargetID
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		artifacts: make(map[ArtifactTypeID]*ArtifactType),
		formats:   make(map[FormatID]*SourceFormat),
		targets:   make(map[TargetID]*Target),
	}
}

// RegisterArtifactType adds an artifact type.
func (r *Registry) RegisterArtifactType(a ArtifactType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.artifacts[a.ID]; exists {
		return fmt.Errorf("%w: artifact type '%s' already registered", ErrDuplicateCode, a.ID)
	}
	r.logger.Debug("Registering artifact type.", "id", a.ID.String())
	r.artifacts[a.ID] = &a
	r.artifactOrder = append(r.artifactOrder, a.ID)
	return nil
}

// RegisterFormat adds a source format.
func (r *Registry) RegisterFormat(f SourceFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.formats[f.ID]; exists {
		return fmt.Errorf("%w: format '%s' already registered", ErrDuplicateCode, f.ID)
	}
	if len(f.Extensions) == 0 {
		return fmt.Errorf("format '%s' declares no file extensions", f.ID)
	}
	r.logger.Debug("Registering source format.", "id", f.ID.String(), "extensions", f.Extensions)
	r.formats[f.ID] = &f
	r.formatOrder = append(r.formatOrder, f.ID)
	return nil
}

// RegisterTarget adds a build target.
func (r *Registry) RegisterTarget(t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.targets[t.ID]; exists {
		return fmt.Errorf("%w: target '%s' already registered", ErrDuplicateCode, t.ID)
	}
	if len(t.Outputs) == 0 {
		return fmt.Errorf("target '%s' declares no outputs", t.ID)
	}
	if t.Run == nil {
		return fmt.Errorf("target '%s' has no step function", t.ID)
	}
	r.logger.Debug("Registering build target.", "id", t.ID.String(), "inputs", len(t.Inputs), "outputs", len(t.Outputs))
	r.targets[t.ID] = &t
	r.targetOrder = append(r.targetOrder, t.ID)
	return nil
}

// MustRegisterArtifactType panics if registration fails.
func (r *Registry) MustRegisterArtifactType(a ArtifactType) {
	if err := r.RegisterArtifactType(a); err != nil {
		panic(err.Error())
	}
}

// MustRegisterFormat panics if registration fails.
func (r *Registry) MustRegisterFormat(f SourceFormat) {
	if err := r.RegisterFormat(f); err != nil {
		panic(err.Error())
	}
}

// MustRegisterTarget panics if registration fails.
func (r *Registry) MustRegisterTarget(t Target) {
	if err := r.RegisterTarget(t); err != nil {
		panic(err.Error())
	}
}

// Seal validates the graph and freezes the registry. Unknown artifact types
// and cycles are errors; unreachable targets are only logged.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result *multierror.Error
	known := func(owner string, id ArtifactTypeID) {
		if _, ok := r.artifacts[id]; !ok {
			result = multierror.Append(result, fmt.Errorf("%s references unknown artifact type '%s'", owner, id))
		}
	}
	for _, id := range r.formatOrder {
		f := r.formats[id]
		known("format '"+id.String()+"'", f.Entry)
		for _, g := range f.Goals {
			known("format '"+id.String()+"'", g)
		}
	}
	for _, id := range r.targetOrder {
		t := r.targets[id]
		for _, a := range t.Inputs {
			known("target '"+id.String()+"'", a)
		}
		for _, a := range t.Outputs {
			known("target '"+id.String()+"'", a)
		}
	}
	if err := r.detectCycles(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("build graph validation failed: %w", err)
	}

	for _, id := range r.unreachableTargets() {
		r.logger.Warn("Build target inputs can never be produced; plans needing it will fail.", "target", id.String())
	}
	r.sealed = true
	r.logger.Debug("Build graph sealed.", "formats", len(r.formats), "targets", len(r.targets), "artifactTypes", len(r.artifacts))
	return nil
}

// detectCycles runs a depth-first search over artifact types, following
// target edges from inputs to outputs. Called with r.mu held.
func (r *Registry) detectCycles() error {
	edges := make(map[ArtifactTypeID][]ArtifactTypeID)
	for _, id := range r.targetOrder {
		t := r.targets[id]
		for _, in := range t.Inputs {
			edges[in] = append(edges[in], t.Outputs...)
		}
	}

	permanent := make(map[ArtifactTypeID]bool)
	temporary := make(map[ArtifactTypeID]bool)

	var visit func(a ArtifactTypeID) error
	visit = func(a ArtifactTypeID) error {
		if permanent[a] {
			return nil
		}
		if temporary[a] {
			return fmt.Errorf("%w involving artifact type '%s'", ErrCycle, a)
		}
		temporary[a] = true
		for _, next := range edges[a] {
			if err := visit(next); err != nil {
				return err
			}
		}
		delete(temporary, a)
		permanent[a] = true
		return nil
	}

	for _, a := range r.artifactOrder {
		if err := visit(a); err != nil {
			return err
		}
	}
	// Edges may mention types that were never registered.
	for _, id := range r.targetOrder {
		for _, a := range r.targets[id].Inputs {
			if err := visit(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// unreachableTargets lists targets that no format can ever feed. Called with
// r.mu held.
func (r *Registry) unreachableTargets() []TargetID {
	available := make(map[ArtifactTypeID]bool)
	for _, id := range r.formatOrder {
		available[r.formats[id].Entry] = true
	}
	fired := make(map[TargetID]bool)
	for changed := true; changed; {
		changed = false
		for _, id := range r.targetOrder {
			t := r.targets[id]
			if fired[id] || !allAvailable(t.Inputs, available) {
				continue
			}
			fired[id] = true
			changed = true
			for _, o := range t.Outputs {
				available[o] = true
			}
		}
	}
	var out []TargetID
	for _, id := range r.targetOrder {
		if !fired[id] {
			out = append(out, id)
		}
	}
	return out
}

func allAvailable(ids []ArtifactTypeID, available map[ArtifactTypeID]bool) bool {
	for _, id := range ids {
		if !available[id] {
			return false
		}
	}
	return true
}

// Sealed reports whether Seal succeeded.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// FromExtension finds the format for a file name or bare extension by
// case-insensitive suffix match. The longest matching extension wins;
// registration order breaks ties.
func (r *Registry) FromExtension(name string) (FormatID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(name)
	var (
		best    FormatID
		bestLen = -1
	)
	for _, id := range r.formatOrder {
		for _, ext := range r.formats[id].Extensions {
			e := strings.ToLower(strings.TrimPrefix(ext, "."))
			if lower != e && lower != "."+e && !strings.HasSuffix(lower, "."+e) {
				continue
			}
			if len(e) > bestLen {
				best, bestLen = id, len(e)
			}
		}
	}
	return best, bestLen >= 0
}

// Format returns a registered format.
func (r *Registry) Format(id FormatID) (SourceFormat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[id]
	if !ok {
		return SourceFormat{}, false
	}
	return *f, true
}

// Target returns a registered target.
func (r *Registry) Target(id TargetID) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return Target{}, false
	}
	return *t, true
}

// Formats lists formats in registration order.
func (r *Registry) Formats() []SourceFormat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceFormat, 0, len(r.formatOrder))
	for _, id := range r.formatOrder {
		out = append(out, *r.formats[id])
	}
	return out
}

// Extensions lists every registered extension, lower-cased and sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range r.formatOrder {
		for _, ext := range r.formats[id].Extensions {
			out = append(out, strings.ToLower(strings.TrimPrefix(ext, ".")))
		}
	}
	sort.Strings(out)
	return out
}
