// Package checker turns unchecked modules and documents into checked ones.
//
// Checking never fails. Every cross-reference is resolved through a
// Resolver; a reference that cannot be resolved is kept as a dangling
// reference carrying its original URI and is logged.
package checker

import (
	"context"
	"log/slog"

	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

// Resolver supplies the checked modules a module or document refers to.
type Resolver interface {
	// ResolveModule returns a retained module; the checker takes over the
	// hold.
	ResolveModule(ctx context.Context, u uri.ModuleURI) (*content.Module, bool)
}

type holder interface {
	Hold(content.Releaser)
}

type checker struct {
	ctx      context.Context
	logger   *slog.Logger
	resolver Resolver
	from     string
	holds    holder

	// open lists the modules being checked, innermost last. References into
	// them resolve against the in-progress module and take no hold.
	open []*content.Module
}

// CheckModule checks um. Declarations are checked in source order, so a
// reference to a declaration of um itself resolves only once that
// declaration has been checked. The result carries one hold owned by the
// caller.
func CheckModule(ctx context.Context, um *content.UncheckedModule, r Resolver) *content.Module {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Checker: Checking module.", "module", um.URI.String())

	b := content.NewModuleBuilder(um.URI)
	c := &checker{
		ctx:      ctx,
		logger:   logger,
		resolver: r,
		from:     um.URI.String(),
		holds:    b,
		open:     []*content.Module{b.Module()},
	}
	if um.Meta != nil {
		b.SetMeta(c.module(*um.Meta))
	}
	if um.Signature != nil {
		b.SetSignature(c.module(um.URI.WithLanguage(*um.Signature)))
	}
	c.moduleBody(b, um.Declarations)
	return b.Finish()
}

func (c *checker) moduleBody(b *content.ModuleBuilder, decls []content.UncheckedDeclaration) {
	for _, d := range decls {
		b.Add(c.declaration(b, d))
	}
}

func (c *checker) declarations(b *content.ModuleBuilder, decls []content.UncheckedDeclaration) []content.Declaration {
	if len(decls) == 0 {
		return nil
	}
	out := make([]content.Declaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, c.declaration(b, d))
	}
	return out
}

func (c *checker) declaration(b *content.ModuleBuilder, d content.UncheckedDeclaration) content.Declaration {
	switch d := d.(type) {
	case content.UncheckedSymbol:
		return &content.Symbol{URI: d.URI, Arity: d.Arity, Macro: d.Macro, Type: d.Type}

	case content.UncheckedNestedModule:
		nb := b.Nested(d.URI)
		c.open = append(c.open, nb.Module())
		c.moduleBody(nb, d.Declarations)
		c.open = c.open[:len(c.open)-1]
		return &content.NestedModule{Module: nb.Finish()}

	case content.UncheckedImport:
		return &content.Import{Target: c.module(d.Target)}

	case content.UncheckedMathStructure:
		return &content.MathStructure{
			URI:          d.URI,
			Macro:        d.Macro,
			Declarations: c.declarations(b, d.Declarations),
		}

	case content.UncheckedExtension:
		return &content.Extension{
			URI:          d.URI,
			Target:       c.symbol(d.Target),
			Declarations: c.declarations(b, d.Declarations),
		}

	case content.UncheckedMorphism:
		m := &content.Morphism{URI: d.URI, Domain: c.module(d.Domain), Total: d.Total}
		for _, a := range d.Assignments {
			m.Assignments = append(m.Assignments, content.Assignment{Symbol: c.symbol(a.Symbol), Definiens: a.Definiens})
		}
		return m

	default:
		panic("checker: unknown declaration type")
	}
}

// self finds u among the modules being checked.
func (c *checker) self(u uri.ModuleURI) (*content.Module, bool) {
	for i := len(c.open) - 1; i >= 0; i-- {
		if m, ok := c.open[i].Find(u); ok {
			return m, true
		}
	}
	return nil, false
}

func (c *checker) isSelf(u uri.ModuleURI) bool {
	return len(c.open) > 0 && u.TopLevel() == c.open[0].URI().TopLevel()
}

func (c *checker) module(u uri.ModuleURI) content.ModuleRef {
	if c.isSelf(u) {
		if m, ok := c.self(u); ok {
			return content.ResolvedModule(m)
		}
		c.dangling("module", u.String())
		return content.DanglingModule(u)
	}
	m, ok := c.resolver.ResolveModule(c.ctx, u)
	if !ok {
		c.dangling("module", u.String())
		return content.DanglingModule(u)
	}
	c.holds.Hold(m)
	return content.ResolvedModule(m)
}

func (c *checker) symbol(s uri.SymbolURI) content.SymbolRef {
	ref := c.module(s.Module())
	if !ref.Resolved() {
		return content.DanglingSymbol(s)
	}
	v, ok := ref.Target().Lookup(s)
	if !ok {
		c.dangling("symbol", s.String())
		return content.DanglingSymbol(s)
	}
	return content.ResolvedSymbol(s, v)
}

func (c *checker) dangling(kind, target string) {
	c.logger.Warn("Dangling reference.", "from", c.from, "kind", kind, "target", target)
}

// CheckDocument checks ud. Modules declared by the document are resolved
// through r like any other module. The result carries one hold owned by
// the caller.
func CheckDocument(ctx context.Context, ud *content.UncheckedDocument, r Resolver) *content.Document {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Checker: Checking document.", "document", ud.URI.String())

	b := content.NewDocumentBuilder(ud.URI, ud.Title)
	c := &checker{ctx: ctx, logger: logger, resolver: r, from: ud.URI.String(), holds: b}
	for _, e := range ud.Elements {
		b.Add(c.element(e))
	}
	return b.Finish()
}

func (c *checker) element(e content.UncheckedElement) content.Element {
	switch e := e.(type) {
	case content.UncheckedSection:
		s := &content.Section{URI: e.URI, Title: e.Title}
		for _, child := range e.Children {
			s.Children = append(s.Children, c.element(child))
		}
		return s

	case content.UncheckedParagraph:
		p := &content.Paragraph{URI: e.URI, Role: e.Role, Text: e.Text}
		for _, f := range e.Fors {
			p.Fors = append(p.Fors, c.symbol(f))
		}
		return p

	case content.UncheckedModuleElement:
		return &content.ModuleElement{Module: c.module(e.Module)}

	case content.UncheckedUseModule:
		return &content.UseModule{Target: c.module(e.Target)}

	case content.UncheckedSymbolReference:
		return &content.SymbolReference{Target: c.symbol(e.Target), Text: e.Text}

	default:
		panic("checker: unknown element type")
	}
}
