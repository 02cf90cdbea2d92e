package content

import "github.com/vk/mathgrid/internal/uri"

// Module is a checked module. Top-level modules are roots and carry the
// holder count; nested modules forward Retain and Release to their root.
type Module struct {
	holders

	uri       uri.ModuleURI
	root      *Module
	meta      ModuleRef
	signature ModuleRef
	decls     []Declaration
}

func (m *Module) URI() uri.ModuleURI { return m.uri }

// Root returns the top-level module owning m, or m itself.
func (m *Module) Root() *Module {
	if m.root == nil {
		return m
	}
	return m.root
}

// IsNested reports whether m is declared inside another module.
func (m *Module) IsNested() bool { return m.root != nil }

// Meta is the meta-theory reference; unset when none was declared.
func (m *Module) Meta() ModuleRef { return m.meta }

// Signature is the reference to the module m translates; unset when none
// was declared.
func (m *Module) Signature() ModuleRef { return m.signature }

// Declarations returns the checked declarations in source order. The slice
// must not be modified.
func (m *Module) Declarations() []Declaration { return m.decls }

// Retain adds a hold on the root module and returns m.
func (m *Module) Retain() *Module {
	m.Root().retain()
	return m
}

// Release drops a hold on the root module.
func (m *Module) Release() {
	m.Root().release()
}

// References reports whether m's module tree holds a resolved reference
// into the module tree of target.
func (m *Module) References(target uri.ModuleURI) bool {
	return m.Root().refersTo(heldModule(target.TopLevel()))
}

func heldModule(top uri.ModuleURI) func(Releaser) bool {
	return func(r Releaser) bool {
		m, ok := r.(*Module)
		return ok && m.Root().URI() == top
	}
}

// Holders reports the root module's current holder count.
func (m *Module) Holders() int64 { return m.Root().count() }

// Lookup finds the declaration whose URI is sym among m's own declarations,
// descending into nested modules named by sym's module.
func (m *Module) Lookup(sym uri.SymbolURI) (DeclView, bool) {
	container, ok := m.Find(sym.Module())
	if !ok {
		return DeclView{}, false
	}
	for i, d := range container.decls {
		if declaresSymbol(d, sym) {
			return DeclView{owner: m.Root(), container: container, index: i}, true
		}
	}
	return DeclView{}, false
}

// Find returns the module named u if it is m or nested in m.
func (m *Module) Find(u uri.ModuleURI) (*Module, bool) {
	if u == m.uri {
		return m, true
	}
	if u.Archive() != m.uri.Archive() || u.Language() != m.uri.Language() || !u.Name().HasPrefix(m.uri.Name()) {
		return nil, false
	}
	for _, d := range m.decls {
		if nm, ok := d.(*NestedModule); ok {
			if found, ok := nm.Module.Find(u); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func declaresSymbol(d Declaration, sym uri.SymbolURI) bool {
	switch d := d.(type) {
	case *Symbol:
		return d.URI == sym
	case *MathStructure:
		return d.URI == sym
	case *Extension:
		return d.URI == sym
	case *Morphism:
		return d.URI == sym
	default:
		return false
	}
}

// Declaration is one of *Symbol, *NestedModule, *Import, *MathStructure,
// *Extension or *Morphism.
type Declaration interface {
	Kind() DeclKind
	declaration()
}

type Symbol struct {
	URI   uri.SymbolURI
	Arity int
	Macro string
	Type  string
}

type NestedModule struct {
	Module *Module
}

type Import struct {
	Target ModuleRef
}

type MathStructure struct {
	URI          uri.SymbolURI
	Macro        string
	Declarations []Declaration
}

type Extension struct {
	URI          uri.SymbolURI
	Target       SymbolRef
	Declarations []Declaration
}

type Morphism struct {
	URI         uri.SymbolURI
	Domain      ModuleRef
	Total       bool
	Assignments []Assignment
}

// Assignment maps a domain symbol to a definiens.
type Assignment struct {
	Symbol    SymbolRef
	Definiens string
}

func (*Symbol) Kind() DeclKind        { return KindSymbol }
func (*NestedModule) Kind() DeclKind  { return KindNestedModule }
func (*Import) Kind() DeclKind        { return KindImport }
func (*MathStructure) Kind() DeclKind { return KindMathStructure }
func (*Extension) Kind() DeclKind     { return KindExtension }
func (*Morphism) Kind() DeclKind      { return KindMorphism }

func (*Symbol) declaration()        {}
func (*NestedModule) declaration()  {}
func (*Import) declaration()        {}
func (*MathStructure) declaration() {}
func (*Extension) declaration()     {}
func (*Morphism) declaration()      {}
