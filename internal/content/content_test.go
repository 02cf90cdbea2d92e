package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/uri"
)

func moduleURI(name string) uri.ModuleURI {
	return uri.MustBaseURI("http://example.org").
		Archive(uri.MustArchiveID("math/geometry")).
		Module(uri.MustName(name), uri.DefaultLanguage)
}

func TestHolders_ReleaseCascades(t *testing.T) {
	// --- Arrange ---
	points := NewModuleBuilder(moduleURI("Points")).Finish()
	b := NewModuleBuilder(moduleURI("Triangle"))
	b.Add(&Import{Target: ResolvedModule(points.Retain())})
	b.Hold(points)
	triangle := b.Finish()
	require.EqualValues(t, 2, points.Holders())

	// --- Act ---
	triangle.Release()

	// --- Assert ---
	assert.EqualValues(t, 0, triangle.Holders())
	assert.EqualValues(t, 1, points.Holders(), "the import's hold is dropped with its owner")
}

func TestHolders_NestedForwardsToRoot(t *testing.T) {
	b := NewModuleBuilder(moduleURI("Triangle"))
	nb := b.Nested(moduleURI("Triangle").Nested(uri.MustName("Inner")))
	inner := nb.Finish()
	b.Add(&NestedModule{Module: inner})
	root := b.Finish()

	inner.Retain()
	assert.EqualValues(t, 2, root.Holders())
	assert.Same(t, root, inner.Root())
	assert.True(t, inner.IsNested())

	inner.Release()
	assert.EqualValues(t, 1, root.Holders())
}

func TestHolders_RetainAfterFinalReleasePanics(t *testing.T) {
	m := NewModuleBuilder(moduleURI("Gone")).Finish()
	m.Release()
	assert.Panics(t, func() { m.Retain() })
}

func TestModule_LookupAndFind(t *testing.T) {
	// --- Arrange ---
	top := moduleURI("Triangle")
	innerURI := top.Nested(uri.MustName("Inner"))
	area := top.Symbol(uri.MustName("area"))
	side := innerURI.Symbol(uri.MustName("side"))

	b := NewModuleBuilder(top)
	b.Add(&Symbol{URI: area, Arity: 1})
	nb := b.Nested(innerURI)
	nb.Add(&Symbol{URI: side})
	b.Add(&NestedModule{Module: nb.Finish()})
	m := b.Finish()

	// --- Act & Assert ---
	found, ok := m.Find(innerURI)
	require.True(t, ok)
	assert.Equal(t, innerURI, found.URI())

	v, ok := m.Lookup(area)
	require.True(t, ok)
	assert.Same(t, m, v.Owner())
	assert.Equal(t, area, v.Declaration().(*Symbol).URI)

	v, ok = m.Lookup(side)
	require.True(t, ok)
	assert.Same(t, m, v.Owner())
	assert.Same(t, found, v.Container())

	_, ok = m.Lookup(top.Symbol(uri.MustName("missing")))
	assert.False(t, ok)
	_, ok = m.Find(moduleURI("Other"))
	assert.False(t, ok)
}

func TestRefs(t *testing.T) {
	u := moduleURI("Nowhere")
	dangling := DanglingModule(u)
	assert.True(t, dangling.IsSet())
	assert.False(t, dangling.Resolved())
	assert.Nil(t, dangling.Target())
	assert.Equal(t, u, dangling.URI())

	var unset ModuleRef
	assert.False(t, unset.IsSet())

	sym := DanglingSymbol(u.Symbol(uri.MustName("x")))
	_, ok := sym.View()
	assert.False(t, ok)
	assert.True(t, sym.IsSet())
}

func TestKinds(t *testing.T) {
	assert.Equal(t, "import", (&Import{}).Kind().String())
	assert.Equal(t, "extension", UncheckedExtension{}.Kind().String())
	assert.Equal(t, "symref", (&SymbolReference{}).Kind().String())
	assert.Equal(t, "section", UncheckedSection{}.Kind().String())
}

func TestDocument_Holders(t *testing.T) {
	docURI := uri.MustBaseURI("http://example.org").
		Archive(uri.MustArchiveID("math/geometry")).
		Document(uri.Name{}, uri.MustName("Triangle"), uri.DefaultLanguage)
	used := NewModuleBuilder(moduleURI("Triangle")).Finish()

	b := NewDocumentBuilder(docURI, "Triangles")
	b.Add(&UseModule{Target: ResolvedModule(used.Retain())})
	b.Hold(used)
	d := b.Finish()

	assert.Equal(t, "Triangles", d.Title())
	assert.Len(t, d.Elements(), 1)
	assert.EqualValues(t, 2, used.Holders())
	d.Release()
	assert.EqualValues(t, 1, used.Holders())
}
