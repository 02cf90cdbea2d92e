package content

import "github.com/vk/mathgrid/internal/uri"

// ModuleRef is a checked cross-reference to a module: resolved to the shared
// module, or degraded to the URI that failed to resolve. The zero ModuleRef
// means no reference was declared.
type ModuleRef struct {
	target *Module
	uri    uri.ModuleURI
}

// ResolvedModule wraps a resolved target.
func ResolvedModule(m *Module) ModuleRef {
	return ModuleRef{target: m, uri: m.URI()}
}

// DanglingModule records a reference that could not be resolved.
func DanglingModule(u uri.ModuleURI) ModuleRef {
	return ModuleRef{uri: u}
}

// IsSet reports whether a reference was declared at all.
func (r ModuleRef) IsSet() bool { return !r.uri.IsZero() }

// Resolved reports whether the reference points at a checked module.
func (r ModuleRef) Resolved() bool { return r.target != nil }

// Target is the resolved module, or nil.
func (r ModuleRef) Target() *Module { return r.target }

// URI is the referenced URI, whether or not it resolved.
func (r ModuleRef) URI() uri.ModuleURI { return r.uri }

// DeclView addresses one declaration inside a module tree. It keeps the
// owning root module next to the position so the declaration cannot outlive
// the artifact it lives in.
type DeclView struct {
	owner     *Module
	container *Module
	index     int
}

// Owner is the root module the declaration belongs to.
func (v DeclView) Owner() *Module { return v.owner }

// Container is the (possibly nested) module directly declaring it.
func (v DeclView) Container() *Module { return v.container }

// Declaration returns the viewed declaration.
func (v DeclView) Declaration() Declaration {
	return v.container.decls[v.index]
}

// SymbolRef is a checked reference to a declaration named by a SymbolURI.
type SymbolRef struct {
	view DeclView
	ok   bool
	uri  uri.SymbolURI
}

// ResolvedSymbol wraps a view found for u.
func ResolvedSymbol(u uri.SymbolURI, v DeclView) SymbolRef {
	return SymbolRef{view: v, ok: true, uri: u}
}

// DanglingSymbol records a symbol reference that could not be resolved.
func DanglingSymbol(u uri.SymbolURI) SymbolRef {
	return SymbolRef{uri: u}
}

func (r SymbolRef) IsSet() bool        { return !r.uri.IsZero() }
func (r SymbolRef) Resolved() bool     { return r.ok }
func (r SymbolRef) URI() uri.SymbolURI { return r.uri }

// View returns the resolved declaration view.
func (r SymbolRef) View() (DeclView, bool) { return r.view, r.ok }
