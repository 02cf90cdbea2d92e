package content

import "github.com/vk/mathgrid/internal/uri"

// UncheckedModule is a module as a parser produced it.
type UncheckedModule struct {
	URI uri.ModuleURI
	// Meta is the meta-theory, if declared.
	Meta *uri.ModuleURI
	// Signature is the language of the module this one translates, if any.
	Signature    *uri.Language
	Declarations []UncheckedDeclaration
}

// UncheckedDeclaration is one of UncheckedSymbol, UncheckedNestedModule,
// UncheckedImport, UncheckedMathStructure, UncheckedExtension or
// UncheckedMorphism.
type UncheckedDeclaration interface {
	Kind() DeclKind
	uncheckedDeclaration()
}

type UncheckedSymbol struct {
	URI   uri.SymbolURI
	Arity int
	Macro string
	Type  string
}

type UncheckedNestedModule struct {
	URI          uri.ModuleURI
	Declarations []UncheckedDeclaration
}

type UncheckedImport struct {
	Target uri.ModuleURI
}

type UncheckedMathStructure struct {
	URI          uri.SymbolURI
	Macro        string
	Declarations []UncheckedDeclaration
}

type UncheckedExtension struct {
	URI uri.SymbolURI
	// Target is the structure being extended.
	Target       uri.SymbolURI
	Declarations []UncheckedDeclaration
}

type UncheckedMorphism struct {
	URI         uri.SymbolURI
	Domain      uri.ModuleURI
	Total       bool
	Assignments []UncheckedAssignment
}

// UncheckedAssignment maps a symbol of a morphism's domain to a definiens.
type UncheckedAssignment struct {
	Symbol    uri.SymbolURI
	Definiens string
}

func (UncheckedSymbol) Kind() DeclKind        { return KindSymbol }
func (UncheckedNestedModule) Kind() DeclKind  { return KindNestedModule }
func (UncheckedImport) Kind() DeclKind        { return KindImport }
func (UncheckedMathStructure) Kind() DeclKind { return KindMathStructure }
func (UncheckedExtension) Kind() DeclKind     { return KindExtension }
func (UncheckedMorphism) Kind() DeclKind      { return KindMorphism }

func (UncheckedSymbol) uncheckedDeclaration()        {}
func (UncheckedNestedModule) uncheckedDeclaration()  {}
func (UncheckedImport) uncheckedDeclaration()        {}
func (UncheckedMathStructure) uncheckedDeclaration() {}
func (UncheckedExtension) uncheckedDeclaration()     {}
func (UncheckedMorphism) uncheckedDeclaration()      {}

// UncheckedDocument is a document as a parser produced it, together with
// the modules the document declares.
type UncheckedDocument struct {
	URI      uri.DocumentURI
	Title    string
	Elements []UncheckedElement
	Modules  []UncheckedModule
}

// UncheckedElement is one of UncheckedSection, UncheckedParagraph,
// UncheckedModuleElement, UncheckedUseModule or UncheckedSymbolReference.
type UncheckedElement interface {
	Kind() ElementKind
	uncheckedElement()
}

type UncheckedSection struct {
	URI      uri.DocumentElementURI
	Title    string
	Children []UncheckedElement
}

type UncheckedParagraph struct {
	URI  uri.DocumentElementURI
	Role string
	Fors []uri.SymbolURI
	Text string
}

// UncheckedModuleElement marks where a module declared in the document
// appears.
type UncheckedModuleElement struct {
	Module uri.ModuleURI
}

type UncheckedUseModule struct {
	Target uri.ModuleURI
}

type UncheckedSymbolReference struct {
	Target uri.SymbolURI
	Text   string
}

func (UncheckedSection) Kind() ElementKind         { return KindSection }
func (UncheckedParagraph) Kind() ElementKind       { return KindParagraph }
func (UncheckedModuleElement) Kind() ElementKind   { return KindModuleElement }
func (UncheckedUseModule) Kind() ElementKind       { return KindUseModule }
func (UncheckedSymbolReference) Kind() ElementKind { return KindSymbolReference }

func (UncheckedSection) uncheckedElement()         {}
func (UncheckedParagraph) uncheckedElement()       {}
func (UncheckedModuleElement) uncheckedElement()   {}
func (UncheckedUseModule) uncheckedElement()       {}
func (UncheckedSymbolReference) uncheckedElement() {}
