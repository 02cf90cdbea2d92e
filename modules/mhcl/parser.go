package mhcl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

// Parser reads documents written in HCL syntax:
//
//	title = "Triangles (${language})"
//
//	module "Triangle" {
//	  imports = ["Points"]
//	  symbol "area" { arity = 1 }
//	}
//
//	section "intro" {
//	  paragraph "def" {
//	    role = "definition"
//	    for  = ["Triangle#area"]
//	  }
//	}
//
// Module references are either full URIs or module names in the document's
// archive and language; symbol references are full URIs or "Module#symbol".
// The variables archive, path, file and language are available in
// expressions.
type Parser struct{}

type fileAttrs struct {
	Title  string   `hcl:"title,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type moduleAttrs struct {
	Meta      string   `hcl:"meta,optional"`
	Signature string   `hcl:"signature,optional"`
	Imports   []string `hcl:"imports,optional"`
	Remain    hcl.Body `hcl:",remain"`
}

type symbolAttrs struct {
	Arity int    `hcl:"arity,optional"`
	Macro string `hcl:"macro,optional"`
	Type  string `hcl:"type,optional"`
}

type structureAttrs struct {
	Macro  string   `hcl:"macro,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type extensionAttrs struct {
	Target string   `hcl:"target"`
	Remain hcl.Body `hcl:",remain"`
}

type morphismAttrs struct {
	Domain string            `hcl:"domain"`
	Total  bool              `hcl:"total,optional"`
	Assign map[string]string `hcl:"assign,optional"`
}

type sectionAttrs struct {
	Title  string   `hcl:"title,optional"`
	Remain hcl.Body `hcl:",remain"`
}

type paragraphAttrs struct {
	Role string   `hcl:"role,optional"`
	For  []string `hcl:"for,optional"`
	Text string   `hcl:"text,optional"`
}

type referenceAttrs struct {
	Text string `hcl:"text,optional"`
}

type parser struct {
	doc     uri.DocumentURI
	evalCtx *hcl.EvalContext
}

// Parse implements formats.Parser.
func (Parser) Parse(ctx context.Context, path string, src []byte, doc uri.DocumentURI) (*content.UncheckedDocument, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("mhcl: Parsing document.", "path", path)

	file, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s: not native HCL syntax", path)
	}

	p := &parser{
		doc: doc,
		evalCtx: &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"archive":  cty.StringVal(doc.Archive().ID().String()),
				"path":     cty.StringVal(path),
				"file":     cty.StringVal(doc.Name().String()),
				"language": cty.StringVal(doc.Language().String()),
			},
		},
	}

	var attrs fileAttrs
	if diags := gohcl.DecodeBody(body, p.evalCtx, &attrs); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}
	out := &content.UncheckedDocument{URI: doc, Title: attrs.Title}
	elems, err := p.elements(body.Blocks, out, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out.Elements = elems
	logger.Debug("mhcl: Parsed document.", "path", path, "elements", len(out.Elements), "modules", len(out.Modules))
	return out, nil
}

func (p *parser) decode(b *hclsyntax.Block, target any) error {
	if diags := gohcl.DecodeBody(b.Body, p.evalCtx, target); diags.HasErrors() {
		return diags
	}
	return nil
}

func label(b *hclsyntax.Block) (uri.Name, error) {
	if len(b.Labels) != 1 {
		return uri.Name{}, fmt.Errorf("%s: %s block needs exactly one label", b.DefRange(), b.Type)
	}
	n, err := uri.NewName(b.Labels[0])
	if err != nil {
		return uri.Name{}, fmt.Errorf("%s: %w", b.DefRange(), err)
	}
	return n, nil
}

// elements converts document-level or section-level blocks. parent is the
// enclosing section, or nil at the top.
func (p *parser) elements(blocks hclsyntax.Blocks, doc *content.UncheckedDocument, parent *uri.DocumentElementURI) ([]content.UncheckedElement, error) {
	var out []content.UncheckedElement
	elementURI := func(n uri.Name) uri.DocumentElementURI {
		if parent != nil {
			return parent.Child(n)
		}
		return p.doc.Element(n)
	}

	for _, b := range blocks {
		switch b.Type {
		case "module":
			if parent != nil {
				return nil, fmt.Errorf("%s: modules must be declared at the top level", b.DefRange())
			}
			name, err := label(b)
			if err != nil {
				return nil, err
			}
			if !name.IsSimple() {
				return nil, fmt.Errorf("%s: top-level module name %q must be a single segment", b.DefRange(), name)
			}
			m, err := p.module(b, p.doc.Archive().Module(name, p.doc.Language()))
			if err != nil {
				return nil, err
			}
			doc.Modules = append(doc.Modules, *m)
			out = append(out, content.UncheckedModuleElement{Module: m.URI})

		case "section":
			name, err := label(b)
			if err != nil {
				return nil, err
			}
			var attrs sectionAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			u := elementURI(name)
			children, err := p.elements(b.Body.Blocks, doc, &u)
			if err != nil {
				return nil, err
			}
			out = append(out, content.UncheckedSection{URI: u, Title: attrs.Title, Children: children})

		case "paragraph":
			name, err := label(b)
			if err != nil {
				return nil, err
			}
			var attrs paragraphAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			para := content.UncheckedParagraph{URI: elementURI(name), Role: attrs.Role, Text: attrs.Text}
			for _, f := range attrs.For {
				s, err := p.symbolRef(f)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
				}
				para.Fors = append(para.Fors, s)
			}
			out = append(out, para)

		case "use":
			if len(b.Labels) != 1 {
				return nil, fmt.Errorf("%s: use block needs exactly one label", b.DefRange())
			}
			if err := p.decode(b, &struct{}{}); err != nil {
				return nil, err
			}
			m, err := p.moduleRef(b.Labels[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
			}
			out = append(out, content.UncheckedUseModule{Target: m})

		case "reference":
			if len(b.Labels) != 1 {
				return nil, fmt.Errorf("%s: reference block needs exactly one label", b.DefRange())
			}
			var attrs referenceAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			s, err := p.symbolRef(b.Labels[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
			}
			out = append(out, content.UncheckedSymbolReference{Target: s, Text: attrs.Text})

		default:
			return nil, fmt.Errorf("%s: unexpected %s block", b.DefRange(), b.Type)
		}
	}
	return out, nil
}

func (p *parser) module(b *hclsyntax.Block, u uri.ModuleURI) (*content.UncheckedModule, error) {
	var attrs moduleAttrs
	if err := p.decode(b, &attrs); err != nil {
		return nil, err
	}
	m := &content.UncheckedModule{URI: u}
	if attrs.Meta != "" {
		meta, err := p.moduleRef(attrs.Meta)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
		}
		m.Meta = &meta
	}
	if attrs.Signature != "" {
		lang, err := uri.ParseLanguage(attrs.Signature)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
		}
		m.Signature = &lang
	}
	for _, imp := range attrs.Imports {
		target, err := p.moduleRef(imp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
		}
		m.Declarations = append(m.Declarations, content.UncheckedImport{Target: target})
	}
	decls, err := p.declarations(b.Body.Blocks, u, uri.Name{})
	if err != nil {
		return nil, err
	}
	m.Declarations = append(m.Declarations, decls...)
	return m, nil
}

// declarations converts the blocks of a module body. prefix is the name of
// the enclosing structure, if any; member symbols are named below it.
func (p *parser) declarations(blocks hclsyntax.Blocks, mod uri.ModuleURI, prefix uri.Name) ([]content.UncheckedDeclaration, error) {
	var out []content.UncheckedDeclaration
	symbolURI := func(n uri.Name) uri.SymbolURI {
		if prefix.IsZero() {
			return mod.Symbol(n)
		}
		return mod.Symbol(prefix.Append(n))
	}

	for _, b := range blocks {
		name, err := label(b)
		if err != nil {
			return nil, err
		}
		switch b.Type {
		case "symbol":
			var attrs symbolAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			out = append(out, content.UncheckedSymbol{URI: symbolURI(name), Arity: attrs.Arity, Macro: attrs.Macro, Type: attrs.Type})

		case "module":
			if !prefix.IsZero() {
				return nil, fmt.Errorf("%s: modules cannot be declared inside structures", b.DefRange())
			}
			nested, err := p.module(b, mod.Nested(name))
			if err != nil {
				return nil, err
			}
			out = append(out, content.UncheckedNestedModule{URI: nested.URI, Declarations: nested.Declarations})

		case "structure":
			var attrs structureAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			s := symbolURI(name)
			members, err := p.declarations(b.Body.Blocks, mod, s.Name())
			if err != nil {
				return nil, err
			}
			out = append(out, content.UncheckedMathStructure{URI: s, Macro: attrs.Macro, Declarations: members})

		case "extension":
			var attrs extensionAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			target, err := p.symbolRef(attrs.Target)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
			}
			s := symbolURI(name)
			members, err := p.declarations(b.Body.Blocks, mod, s.Name())
			if err != nil {
				return nil, err
			}
			out = append(out, content.UncheckedExtension{URI: s, Target: target, Declarations: members})

		case "morphism":
			var attrs morphismAttrs
			if err := p.decode(b, &attrs); err != nil {
				return nil, err
			}
			domain, err := p.moduleRef(attrs.Domain)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
			}
			morph := content.UncheckedMorphism{URI: symbolURI(name), Domain: domain, Total: attrs.Total}
			keys := make([]string, 0, len(attrs.Assign))
			for k := range attrs.Assign {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sym, err := uri.NewName(k)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", b.DefRange(), err)
				}
				morph.Assignments = append(morph.Assignments, content.UncheckedAssignment{Symbol: domain.Symbol(sym), Definiens: attrs.Assign[k]})
			}
			out = append(out, morph)

		default:
			return nil, fmt.Errorf("%s: unexpected %s block", b.DefRange(), b.Type)
		}
	}
	return out, nil
}

func isFullURI(s string) bool { return strings.Contains(s, "://") }

func (p *parser) moduleRef(s string) (uri.ModuleURI, error) {
	if isFullURI(s) {
		return uri.ParseModuleURI(s)
	}
	name, err := uri.NewName(s)
	if err != nil {
		return uri.ModuleURI{}, fmt.Errorf("module reference %q: %w", s, err)
	}
	return p.doc.Archive().Module(name, p.doc.Language()), nil
}

func (p *parser) symbolRef(s string) (uri.SymbolURI, error) {
	if isFullURI(s) {
		return uri.ParseSymbolURI(s)
	}
	mod, sym, ok := strings.Cut(s, "#")
	if !ok {
		return uri.SymbolURI{}, fmt.Errorf("symbol reference %q must be a URI or Module#symbol", s)
	}
	m, err := p.moduleRef(mod)
	if err != nil {
		return uri.SymbolURI{}, err
	}
	name, err := uri.NewName(sym)
	if err != nil {
		return uri.SymbolURI{}, fmt.Errorf("symbol reference %q: %w", s, err)
	}
	return m.Symbol(name), nil
}
