package content

// DeclKind tags the variants of Declaration and UncheckedDeclaration.
type DeclKind uint8

const (
	KindSymbol DeclKind = iota
	KindNestedModule
	KindImport
	KindMathStructure
	KindExtension
	KindMorphism
)

func (k DeclKind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindNestedModule:
		return "module"
	case KindImport:
		return "import"
	case KindMathStructure:
		return "structure"
	case KindExtension:
		return "extension"
	case KindMorphism:
		return "morphism"
	default:
		return "unknown"
	}
}

// ElementKind tags the variants of Element and UncheckedElement.
type ElementKind uint8

const (
	KindSection ElementKind = iota
	KindParagraph
	KindModuleElement
	KindUseModule
	KindSymbolReference
)

func (k ElementKind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindParagraph:
		return "paragraph"
	case KindModuleElement:
		return "module"
	case KindUseModule:
		return "use"
	case KindSymbolReference:
		return "symref"
	default:
		return "unknown"
	}
}
