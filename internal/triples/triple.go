// Package triples stores the relations extracted from checked content and
// answers single-pattern queries over them.
package triples

import (
	"strings"
)

// TermKind distinguishes IRIs from literals.
type TermKind uint8

const (
	IRI TermKind = iota + 1
	Literal
)

// Term is one position of a triple.
type Term struct {
	Kind  TermKind `json:"kind"`
	Value string   `json:"value"`
}

func NewIRI(v string) Term     { return Term{Kind: IRI, Value: v} }
func NewLiteral(v string) Term { return Term{Kind: Literal, Value: v} }

// String renders the term in Turtle syntax.
func (t Term) String() string {
	if t.Kind == Literal {
		return `"` + literalEscaper.Replace(t.Value) + `"`
	}
	return "<" + t.Value + ">"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// Triple is a subject-predicate-object statement.
type Triple struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
}

func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}

// Vocabulary.
const (
	ULO = "http://mathhub.info/ulo#"
	RDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

var (
	Type = NewIRI(RDF + "type")

	Document    = NewIRI(ULO + "document")
	Section     = NewIRI(ULO + "section")
	Paragraph   = NewIRI(ULO + "para")
	Theory      = NewIRI(ULO + "theory")
	Constant    = NewIRI(ULO + "constant")
	Structure   = NewIRI(ULO + "structure")
	Morphism    = NewIRI(ULO + "morphism")
	Contains    = NewIRI(ULO + "contains")
	Declares    = NewIRI(ULO + "declares")
	Imports     = NewIRI(ULO + "imports")
	Extends     = NewIRI(ULO + "extends")
	Domain      = NewIRI(ULO + "domain")
	Codomain    = NewIRI(ULO + "codomain")
	MetaTheory  = NewIRI(ULO + "has-meta-theory")
	Translation = NewIRI(ULO + "translation-of")
	Defines     = NewIRI(ULO + "defines")
	Uses        = NewIRI(ULO + "uses")
	CrossRefs   = NewIRI(ULO + "crossrefs")
	Role        = NewIRI(ULO + "role")
)
