package content

import "github.com/vk/mathgrid/internal/uri"

// Document is a checked document. Documents are always roots.
type Document struct {
	holders

	uri      uri.DocumentURI
	title    string
	elements []Element
}

func (d *Document) URI() uri.DocumentURI { return d.uri }
func (d *Document) Title() string        { return d.title }

// Elements returns the checked elements in source order. The slice must not
// be modified.
func (d *Document) Elements() []Element { return d.elements }

// Retain adds a hold and returns d.
func (d *Document) Retain() *Document {
	d.retain()
	return d
}

// Release drops a hold.
func (d *Document) Release() { d.release() }

// Holders reports the current holder count.
func (d *Document) Holders() int64 { return d.count() }

// References reports whether d holds a resolved reference into the module
// tree of target.
func (d *Document) References(target uri.ModuleURI) bool {
	return d.refersTo(heldModule(target.TopLevel()))
}

// Element is one of *Section, *Paragraph, *ModuleElement, *UseModule or
// *SymbolReference.
type Element interface {
	Kind() ElementKind
	element()
}

type Section struct {
	URI      uri.DocumentElementURI
	Title    string
	Children []Element
}

type Paragraph struct {
	URI  uri.DocumentElementURI
	Role string
	Fors []SymbolRef
	Text string
}

type ModuleElement struct {
	Module ModuleRef
}

type UseModule struct {
	Target ModuleRef
}

type SymbolReference struct {
	Target SymbolRef
	Text   string
}

func (*Section) Kind() ElementKind         { return KindSection }
func (*Paragraph) Kind() ElementKind       { return KindParagraph }
func (*ModuleElement) Kind() ElementKind   { return KindModuleElement }
func (*UseModule) Kind() ElementKind       { return KindUseModule }
func (*SymbolReference) Kind() ElementKind { return KindSymbolReference }

func (*Section) element()         {}
func (*Paragraph) element()       {}
func (*ModuleElement) element()   {}
func (*UseModule) element()       {}
func (*SymbolReference) element() {}
