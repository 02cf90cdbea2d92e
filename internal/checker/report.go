package checker

import "github.com/vk/mathgrid/internal/content"

// BrokenRef is a reference that checking could not resolve.
type BrokenRef struct {
	// Kind names what the reference was: "meta", "signature", "import",
	// "extension", "morphism", "assignment", "for", "use", "module" or
	// "reference".
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Report lists the dangling references of m and its nested modules in
// declaration order.
func Report(m *content.Module) []BrokenRef {
	var r reporter
	r.module(m.Meta(), "meta")
	r.module(m.Signature(), "signature")
	r.declarations(m.Declarations())
	return r.out
}

// ReportDocument lists the dangling references of d in element order.
func ReportDocument(d *content.Document) []BrokenRef {
	var r reporter
	r.elements(d.Elements())
	return r.out
}

type reporter struct {
	out []BrokenRef
}

func (r *reporter) module(ref content.ModuleRef, kind string) {
	if ref.IsSet() && !ref.Resolved() {
		r.out = append(r.out, BrokenRef{Kind: kind, Target: ref.URI().String()})
	}
}

func (r *reporter) symbol(ref content.SymbolRef, kind string) {
	if ref.IsSet() && !ref.Resolved() {
		r.out = append(r.out, BrokenRef{Kind: kind, Target: ref.URI().String()})
	}
}

func (r *reporter) declarations(decls []content.Declaration) {
	for _, d := range decls {
		switch d := d.(type) {
		case *content.Symbol:
		case *content.NestedModule:
			r.declarations(d.Module.Declarations())
		case *content.Import:
			r.module(d.Target, "import")
		case *content.MathStructure:
			r.declarations(d.Declarations)
		case *content.Extension:
			r.symbol(d.Target, "extension")
			r.declarations(d.Declarations)
		case *content.Morphism:
			r.module(d.Domain, "morphism")
			for _, a := range d.Assignments {
				r.symbol(a.Symbol, "assignment")
			}
		}
	}
}

func (r *reporter) elements(elems []content.Element) {
	for _, e := range elems {
		switch e := e.(type) {
		case *content.Section:
			r.elements(e.Children)
		case *content.Paragraph:
			for _, f := range e.Fors {
				r.symbol(f, "for")
			}
		case *content.ModuleElement:
			r.module(e.Module, "module")
		case *content.UseModule:
			r.module(e.Target, "use")
		case *content.SymbolReference:
			r.symbol(e.Target, "reference")
		}
	}
}
