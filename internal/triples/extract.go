package triples

import (
	"github.com/vk/mathgrid/internal/content"
)

// FromModule derives the relations of a checked module and the modules
// nested in it. References are recorded by URI whether or not they
// resolved.
func FromModule(m *content.Module) []Triple {
	var e extractor
	e.module(m)
	return e.out
}

// FromDocument derives the relations of a checked document.
func FromDocument(d *content.Document) []Triple {
	var e extractor
	self := NewIRI(d.URI().String())
	e.add(self, Type, Document)
	e.elements(self, d.Elements())
	return e.out
}

type extractor struct {
	out []Triple
}

func (e *extractor) add(s, p, o Term) {
	e.out = append(e.out, Triple{Subject: s, Predicate: p, Object: o})
}

func (e *extractor) module(m *content.Module) {
	self := NewIRI(m.URI().String())
	e.add(self, Type, Theory)
	if ref := m.Meta(); ref.IsSet() {
		e.add(self, MetaTheory, NewIRI(ref.URI().String()))
	}
	if ref := m.Signature(); ref.IsSet() {
		e.add(self, Translation, NewIRI(ref.URI().String()))
	}
	e.declarations(self, m.Declarations())
}

func (e *extractor) declarations(self Term, decls []content.Declaration) {
	for _, d := range decls {
		switch d := d.(type) {
		case *content.Symbol:
			s := NewIRI(d.URI.String())
			e.add(self, Declares, s)
			e.add(s, Type, Constant)
		case *content.NestedModule:
			e.add(self, Contains, NewIRI(d.Module.URI().String()))
			e.module(d.Module)
		case *content.Import:
			e.add(self, Imports, NewIRI(d.Target.URI().String()))
		case *content.MathStructure:
			s := NewIRI(d.URI.String())
			e.add(self, Declares, s)
			e.add(s, Type, Structure)
			e.declarations(s, d.Declarations)
		case *content.Extension:
			s := NewIRI(d.URI.String())
			e.add(self, Declares, s)
			e.add(s, Type, Structure)
			e.add(s, Extends, NewIRI(d.Target.URI().String()))
			e.declarations(s, d.Declarations)
		case *content.Morphism:
			s := NewIRI(d.URI.String())
			e.add(self, Declares, s)
			e.add(s, Type, Morphism)
			e.add(s, Domain, NewIRI(d.Domain.URI().String()))
			e.add(s, Codomain, self)
		}
	}
}

func (e *extractor) elements(parent Term, elems []content.Element) {
	for _, el := range elems {
		switch el := el.(type) {
		case *content.Section:
			s := NewIRI(el.URI.String())
			e.add(parent, Contains, s)
			e.add(s, Type, Section)
			e.elements(s, el.Children)
		case *content.Paragraph:
			p := NewIRI(el.URI.String())
			e.add(parent, Contains, p)
			e.add(p, Type, Paragraph)
			if el.Role != "" {
				e.add(p, Role, NewLiteral(el.Role))
			}
			for _, f := range el.Fors {
				e.add(p, Defines, NewIRI(f.URI().String()))
			}
		case *content.ModuleElement:
			e.add(parent, Contains, NewIRI(el.Module.URI().String()))
		case *content.UseModule:
			e.add(parent, Uses, NewIRI(el.Target.URI().String()))
		case *content.SymbolReference:
			e.add(parent, CrossRefs, NewIRI(el.Target.URI().String()))
		}
	}
}
