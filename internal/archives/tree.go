package archives

import (
	"fmt"
	"sort"

	"github.com/vk/mathgrid/internal/uri"
)

// Entry is a node of the archive forest: a *Group or an *Archive.
type Entry interface {
	ID() uri.ArchiveID
	entry()
}

// Group aggregates child groups and archives.
type Group struct {
	id       uri.ArchiveID
	children []Entry
}

func (g *Group) ID() uri.ArchiveID { return g.id }

// Children returns the direct children sorted by id.
func (g *Group) Children() []Entry { return g.children }

// Meta returns the group's meta archive, if it has one.
func (g *Group) Meta() (*Archive, bool) {
	for _, c := range g.children {
		if a, ok := c.(*Archive); ok && a.id.IsMeta() {
			return a, true
		}
	}
	return nil, false
}

func (*Group) entry() {}

// Tree is the archive forest.
type Tree struct {
	roots    []Entry
	archives map[uri.ArchiveID]*Archive
	groups   map[uri.ArchiveID]*Group
}

func emptyTree() *Tree {
	return &Tree{
		archives: make(map[uri.ArchiveID]*Archive),
		groups:   make(map[uri.ArchiveID]*Group),
	}
}

// buildTree arranges archives into groups by id. An archive whose id is
// also needed as a group (or is a duplicate) is rejected.
func buildTree(archives []*Archive) (*Tree, []error) {
	t := emptyTree()
	var errs []error

	sort.Slice(archives, func(i, j int) bool { return archives[i].id.String() < archives[j].id.String() })
	for _, a := range archives {
		if prev, dup := t.archives[a.id]; dup {
			errs = append(errs, fmt.Errorf("archive id %s used by both %s and %s", a.id, prev.root, a.root))
			continue
		}
		if _, clash := t.groups[a.id]; clash {
			errs = append(errs, fmt.Errorf("archive %s at %s clashes with a group of the same id", a.id, a.root))
			continue
		}
		if err := t.insert(a); err != nil {
			errs = append(errs, err)
		}
	}
	t.sortChildren(t.roots)
	return t, errs
}

func (t *Tree) insert(a *Archive) error {
	// Check every ancestor before mutating anything.
	for g := a.id.Group(); !g.IsZero(); g = g.Group() {
		if _, clash := t.archives[g]; clash {
			return fmt.Errorf("archive %s at %s is nested inside archive %s", a.id, a.root, g)
		}
	}

	t.archives[a.id] = a
	var child Entry = a
	for g := a.id.Group(); !g.IsZero(); g = g.Group() {
		group, exists := t.groups[g]
		if !exists {
			group = &Group{id: g}
			t.groups[g] = group
		}
		group.children = append(group.children, child)
		if exists {
			return nil
		}
		child = group
	}
	t.roots = append(t.roots, child)
	return nil
}

func (t *Tree) sortChildren(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID().String() < entries[j].ID().String() })
	for _, e := range entries {
		if g, ok := e.(*Group); ok {
			t.sortChildren(g.children)
		}
	}
}

// Roots returns the top-level entries sorted by id.
func (t *Tree) Roots() []Entry { return t.roots }

// Archive looks up a physical archive.
func (t *Tree) Archive(id uri.ArchiveID) (*Archive, bool) {
	a, ok := t.archives[id]
	return a, ok
}

// Group looks up a group.
func (t *Tree) Group(id uri.ArchiveID) (*Group, bool) {
	g, ok := t.groups[id]
	return g, ok
}

// Lookup resolves an id to whichever entry it names.
func (t *Tree) Lookup(id uri.ArchiveID) (Entry, bool) {
	if a, ok := t.archives[id]; ok {
		return a, true
	}
	if g, ok := t.groups[id]; ok {
		return g, true
	}
	return nil, false
}

// Archives lists every physical archive sorted by id.
func (t *Tree) Archives() []*Archive {
	out := make([]*Archive, 0, len(t.archives))
	for _, a := range t.archives {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// Len is the number of physical archives.
func (t *Tree) Len() int { return len(t.archives) }
