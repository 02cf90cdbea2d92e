package content

import "github.com/vk/mathgrid/internal/uri"

// Releaser is a hold that an artifact under construction takes over.
type Releaser interface {
	Release()
}

// ModuleBuilder assembles a checked module. The module pointer exists from
// the start so declarations can refer to the module being built; it must not
// be handed to anyone else before Finish.
type ModuleBuilder struct {
	m *Module
}

// NewModuleBuilder starts a root module. The finished module carries one
// hold, owned by the caller.
func NewModuleBuilder(u uri.ModuleURI) *ModuleBuilder {
	m := &Module{uri: u}
	m.init()
	return &ModuleBuilder{m: m}
}

// Nested starts a module declared inside the one being built.
func (b *ModuleBuilder) Nested(u uri.ModuleURI) *ModuleBuilder {
	return &ModuleBuilder{m: &Module{uri: u, root: b.m.Root()}}
}

// Module returns the in-progress module.
func (b *ModuleBuilder) Module() *Module { return b.m }

func (b *ModuleBuilder) SetMeta(r ModuleRef)      { b.m.meta = r }
func (b *ModuleBuilder) SetSignature(r ModuleRef) { b.m.signature = r }

// Add appends a declaration.
func (b *ModuleBuilder) Add(d Declaration) {
	b.m.decls = append(b.m.decls, d)
}

// Hold transfers a hold on a referenced artifact to the root module; it is
// dropped when the root's last holder releases it.
func (b *ModuleBuilder) Hold(r Releaser) {
	b.m.Root().hold(r)
}

// Finish returns the completed module.
func (b *ModuleBuilder) Finish() *Module { return b.m }

// DocumentBuilder assembles a checked document.
type DocumentBuilder struct {
	d *Document
}

// NewDocumentBuilder starts a document; the finished document carries one
// hold, owned by the caller.
func NewDocumentBuilder(u uri.DocumentURI, title string) *DocumentBuilder {
	d := &Document{uri: u, title: title}
	d.init()
	return &DocumentBuilder{d: d}
}

// Add appends a top-level element.
func (b *DocumentBuilder) Add(e Element) {
	b.d.elements = append(b.d.elements, e)
}

// Hold transfers a hold on a referenced artifact to the document.
func (b *DocumentBuilder) Hold(r Releaser) { b.d.hold(r) }

// Finish returns the completed document.
func (b *DocumentBuilder) Finish() *Document { return b.d }
