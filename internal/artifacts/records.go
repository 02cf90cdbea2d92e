package artifacts

import (
	"fmt"

	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/uri"
)

// The record types are the wire shape of the content sum types. Integer map
// keys keep the encoding compact.

type moduleRecord struct {
	URI       uri.ModuleURI  `cbor:"1,keyasint"`
	Meta      *uri.ModuleURI `cbor:"2,keyasint,omitempty"`
	Signature *uri.Language  `cbor:"3,keyasint,omitempty"`
	Decls     []declRecord   `cbor:"4,keyasint,omitempty"`
}

type declRecord struct {
	Kind        content.DeclKind `cbor:"1,keyasint"`
	Symbol      *uri.SymbolURI   `cbor:"2,keyasint,omitempty"`
	Module      *uri.ModuleURI   `cbor:"3,keyasint,omitempty"`
	Target      *uri.SymbolURI   `cbor:"4,keyasint,omitempty"`
	Arity       int              `cbor:"5,keyasint,omitempty"`
	Macro       string           `cbor:"6,keyasint,omitempty"`
	Type        string           `cbor:"7,keyasint,omitempty"`
	Total       bool             `cbor:"8,keyasint,omitempty"`
	Decls       []declRecord     `cbor:"9,keyasint,omitempty"`
	Assignments []assignRecord   `cbor:"10,keyasint,omitempty"`
}

type assignRecord struct {
	Symbol    uri.SymbolURI `cbor:"1,keyasint"`
	Definiens string        `cbor:"2,keyasint,omitempty"`
}

type documentRecord struct {
	URI      uri.DocumentURI `cbor:"1,keyasint"`
	Title    string          `cbor:"2,keyasint,omitempty"`
	Elements []elementRecord `cbor:"3,keyasint,omitempty"`
	Modules  []moduleRecord  `cbor:"4,keyasint,omitempty"`
}

type elementRecord struct {
	Kind     content.ElementKind     `cbor:"1,keyasint"`
	Element  *uri.DocumentElementURI `cbor:"2,keyasint,omitempty"`
	Module   *uri.ModuleURI          `cbor:"3,keyasint,omitempty"`
	Symbol   *uri.SymbolURI          `cbor:"4,keyasint,omitempty"`
	Title    string                  `cbor:"5,keyasint,omitempty"`
	Role     string                  `cbor:"6,keyasint,omitempty"`
	Text     string                  `cbor:"7,keyasint,omitempty"`
	Fors     []uri.SymbolURI         `cbor:"8,keyasint,omitempty"`
	Children []elementRecord         `cbor:"9,keyasint,omitempty"`
}

func toModuleRecord(m *content.UncheckedModule) moduleRecord {
	return moduleRecord{
		URI:       m.URI,
		Meta:      m.Meta,
		Signature: m.Signature,
		Decls:     toDeclRecords(m.Declarations),
	}
}

func toDeclRecords(decls []content.UncheckedDeclaration) []declRecord {
	if len(decls) == 0 {
		return nil
	}
	out := make([]declRecord, 0, len(decls))
	for _, d := range decls {
		r := declRecord{Kind: d.Kind()}
		switch d := d.(type) {
		case content.UncheckedSymbol:
			r.Symbol, r.Arity, r.Macro, r.Type = &d.URI, d.Arity, d.Macro, d.Type
		case content.UncheckedNestedModule:
			r.Module, r.Decls = &d.URI, toDeclRecords(d.Declarations)
		case content.UncheckedImport:
			r.Module = &d.Target
		case content.UncheckedMathStructure:
			r.Symbol, r.Macro, r.Decls = &d.URI, d.Macro, toDeclRecords(d.Declarations)
		case content.UncheckedExtension:
			r.Symbol, r.Target, r.Decls = &d.URI, &d.Target, toDeclRecords(d.Declarations)
		case content.UncheckedMorphism:
			r.Symbol, r.Module, r.Total = &d.URI, &d.Domain, d.Total
			for _, a := range d.Assignments {
				r.Assignments = append(r.Assignments, assignRecord{Symbol: a.Symbol, Definiens: a.Definiens})
			}
		}
		out = append(out, r)
	}
	return out
}

func fromModuleRecord(r moduleRecord) (*content.UncheckedModule, error) {
	decls, err := fromDeclRecords(r.Decls)
	if err != nil {
		return nil, err
	}
	return &content.UncheckedModule{
		URI:          r.URI,
		Meta:         r.Meta,
		Signature:    r.Signature,
		Declarations: decls,
	}, nil
}

func fromDeclRecords(rs []declRecord) ([]content.UncheckedDeclaration, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	out := make([]content.UncheckedDeclaration, 0, len(rs))
	for _, r := range rs {
		children, err := fromDeclRecords(r.Decls)
		if err != nil {
			return nil, err
		}
		var d content.UncheckedDeclaration
		switch r.Kind {
		case content.KindSymbol:
			if r.Symbol == nil {
				return nil, missing(r.Kind, "uri")
			}
			d = content.UncheckedSymbol{URI: *r.Symbol, Arity: r.Arity, Macro: r.Macro, Type: r.Type}
		case content.KindNestedModule:
			if r.Module == nil {
				return nil, missing(r.Kind, "uri")
			}
			d = content.UncheckedNestedModule{URI: *r.Module, Declarations: children}
		case content.KindImport:
			if r.Module == nil {
				return nil, missing(r.Kind, "target")
			}
			d = content.UncheckedImport{Target: *r.Module}
		case content.KindMathStructure:
			if r.Symbol == nil {
				return nil, missing(r.Kind, "uri")
			}
			d = content.UncheckedMathStructure{URI: *r.Symbol, Macro: r.Macro, Declarations: children}
		case content.KindExtension:
			if r.Symbol == nil || r.Target == nil {
				return nil, missing(r.Kind, "uri or target")
			}
			d = content.UncheckedExtension{URI: *r.Symbol, Target: *r.Target, Declarations: children}
		case content.KindMorphism:
			if r.Symbol == nil || r.Module == nil {
				return nil, missing(r.Kind, "uri or domain")
			}
			m := content.UncheckedMorphism{URI: *r.Symbol, Domain: *r.Module, Total: r.Total}
			for _, a := range r.Assignments {
				m.Assignments = append(m.Assignments, content.UncheckedAssignment{Symbol: a.Symbol, Definiens: a.Definiens})
			}
			d = m
		default:
			return nil, fmt.Errorf("%w: unknown declaration kind %d", ErrCorrupt, r.Kind)
		}
		out = append(out, d)
	}
	return out, nil
}

func missing(kind fmt.Stringer, field string) error {
	return fmt.Errorf("%w: %s record without %s", ErrCorrupt, kind, field)
}

func toDocumentRecord(d *content.UncheckedDocument) documentRecord {
	r := documentRecord{URI: d.URI, Title: d.Title, Elements: toElementRecords(d.Elements)}
	for i := range d.Modules {
		r.Modules = append(r.Modules, toModuleRecord(&d.Modules[i]))
	}
	return r
}

func toElementRecords(elems []content.UncheckedElement) []elementRecord {
	if len(elems) == 0 {
		return nil
	}
	out := make([]elementRecord, 0, len(elems))
	for _, e := range elems {
		r := elementRecord{Kind: e.Kind()}
		switch e := e.(type) {
		case content.UncheckedSection:
			r.Element, r.Title, r.Children = &e.URI, e.Title, toElementRecords(e.Children)
		case content.UncheckedParagraph:
			r.Element, r.Role, r.Fors, r.Text = &e.URI, e.Role, e.Fors, e.Text
		case content.UncheckedModuleElement:
			r.Module = &e.Module
		case content.UncheckedUseModule:
			r.Module = &e.Target
		case content.UncheckedSymbolReference:
			r.Symbol, r.Text = &e.Target, e.Text
		}
		out = append(out, r)
	}
	return out
}

func fromDocumentRecord(r documentRecord) (*content.UncheckedDocument, error) {
	elems, err := fromElementRecords(r.Elements)
	if err != nil {
		return nil, err
	}
	d := &content.UncheckedDocument{URI: r.URI, Title: r.Title, Elements: elems}
	for _, mr := range r.Modules {
		m, err := fromModuleRecord(mr)
		if err != nil {
			return nil, err
		}
		d.Modules = append(d.Modules, *m)
	}
	return d, nil
}

func fromElementRecords(rs []elementRecord) ([]content.UncheckedElement, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	out := make([]content.UncheckedElement, 0, len(rs))
	for _, r := range rs {
		children, err := fromElementRecords(r.Children)
		if err != nil {
			return nil, err
		}
		var e content.UncheckedElement
		switch r.Kind {
		case content.KindSection:
			if r.Element == nil {
				return nil, missing(r.Kind, "uri")
			}
			e = content.UncheckedSection{URI: *r.Element, Title: r.Title, Children: children}
		case content.KindParagraph:
			if r.Element == nil {
				return nil, missing(r.Kind, "uri")
			}
			e = content.UncheckedParagraph{URI: *r.Element, Role: r.Role, Fors: r.Fors, Text: r.Text}
		case content.KindModuleElement:
			if r.Module == nil {
				return nil, missing(r.Kind, "module")
			}
			e = content.UncheckedModuleElement{Module: *r.Module}
		case content.KindUseModule:
			if r.Module == nil {
				return nil, missing(r.Kind, "target")
			}
			e = content.UncheckedUseModule{Target: *r.Module}
		case content.KindSymbolReference:
			if r.Symbol == nil {
				return nil, missing(r.Kind, "target")
			}
			e = content.UncheckedSymbolReference{Target: *r.Symbol, Text: r.Text}
		default:
			return nil, fmt.Errorf("%w: unknown element kind %d", ErrCorrupt, r.Kind)
		}
		out = append(out, e)
	}
	return out, nil
}
