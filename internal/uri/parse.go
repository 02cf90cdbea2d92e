// internal/uri/parse.go
package uri

import (
	"fmt"
	"strings"
)

// URI is implemented by every address type in this package. The set is
// closed; switch over the concrete types.
type URI interface {
	fmt.Stringer
	Base() BaseURI
	isURI()
}

const (
	keyArchive  = "a"
	keyPath     = "p"
	keyDocument = "d"
	keyModule   = "m"
	keyLanguage = "l"
	keySymbol   = "c"
	keyElement  = "e"
)

// query holds the raw values of a split query string, keyed by reserved key.
type query struct {
	input  string
	base   BaseURI
	values map[string]string
}

func splitQuery(s string) (*query, error) {
	rawBase, rawQuery, ok := strings.Cut(s, "?")
	if !ok {
		return nil, &ParseError{Kind: ErrMissingPart, Part: keyArchive, Input: s}
	}
	base, err := ParseBaseURI(rawBase)
	if err != nil {
		pe := err.(*ParseError)
		pe.Input = s
		return nil, pe
	}

	q := &query{input: s, base: base, values: make(map[string]string, 4)}
	for _, frag := range strings.Split(rawQuery, "&") {
		key, value, ok := strings.Cut(frag, "=")
		if !ok {
			return nil, &ParseError{Kind: ErrUnrecognizedQueryFragment, Part: frag, Input: s}
		}
		switch key {
		case keyArchive, keyPath, keyDocument, keyModule, keyLanguage, keySymbol, keyElement:
		default:
			return nil, &ParseError{Kind: ErrUnrecognizedQueryFragment, Part: frag, Input: s}
		}
		if _, dup := q.values[key]; dup {
			return nil, &ParseError{Kind: ErrTooManyParts, Part: key, Input: s}
		}
		q.values[key] = value
	}
	return q, nil
}

// only fails with ErrTooManyParts if q has a key outside allowed.
func (q *query) only(allowed ...string) error {
	for key := range q.values {
		found := false
		for _, a := range allowed {
			if a == key {
				found = true
				break
			}
		}
		if !found {
			return &ParseError{Kind: ErrTooManyParts, Part: key, Input: q.input}
		}
	}
	return nil
}

func (q *query) name(key string, required bool) (Name, error) {
	v, ok := q.values[key]
	if !ok || v == "" {
		if required || ok {
			return Name{}, &ParseError{Kind: ErrMissingPart, Part: key, Input: q.input}
		}
		return Name{}, nil
	}
	n, err := NewName(v)
	if err != nil {
		return Name{}, &ParseError{Kind: ErrUnrecognizedQueryFragment, Part: key + "=" + v, Input: q.input, Err: err}
	}
	return n, nil
}

func (q *query) language() (Language, error) {
	v, ok := q.values[keyLanguage]
	if !ok {
		return DefaultLanguage, nil
	}
	lang, err := ParseLanguage(v)
	if err != nil {
		return 0, &ParseError{Kind: ErrInvalidLanguage, Part: keyLanguage, Input: q.input}
	}
	return lang, nil
}

func (q *query) archive() (ArchiveURI, error) {
	id, err := q.name(keyArchive, true)
	if err != nil {
		return ArchiveURI{}, err
	}
	return q.base.Archive(ArchiveID{Name: id}), nil
}

func (q *query) module() (ModuleURI, error) {
	a, err := q.archive()
	if err != nil {
		return ModuleURI{}, err
	}
	name, err := q.name(keyModule, true)
	if err != nil {
		return ModuleURI{}, err
	}
	lang, err := q.language()
	if err != nil {
		return ModuleURI{}, err
	}
	return a.Module(name, lang), nil
}

func (q *query) document() (DocumentURI, error) {
	a, err := q.archive()
	if err != nil {
		return DocumentURI{}, err
	}
	path, err := q.name(keyPath, false)
	if err != nil {
		return DocumentURI{}, err
	}
	name, err := q.name(keyDocument, true)
	if err != nil {
		return DocumentURI{}, err
	}
	lang, err := q.language()
	if err != nil {
		return DocumentURI{}, err
	}
	return a.Document(path, name, lang), nil
}

// ParseArchiveURI parses "<base>?a=<id>".
func ParseArchiveURI(s string) (ArchiveURI, error) {
	q, err := splitQuery(s)
	if err != nil {
		return ArchiveURI{}, err
	}
	if err := q.only(keyArchive); err != nil {
		return ArchiveURI{}, err
	}
	return q.archive()
}

// ParseModuleURI parses "<archive uri>&m=<name>[&l=<lang>]".
func ParseModuleURI(s string) (ModuleURI, error) {
	q, err := splitQuery(s)
	if err != nil {
		return ModuleURI{}, err
	}
	if err := q.only(keyArchive, keyModule, keyLanguage); err != nil {
		return ModuleURI{}, err
	}
	return q.module()
}

// ParseSymbolURI parses "<module uri>&c=<name>".
func ParseSymbolURI(s string) (SymbolURI, error) {
	q, err := splitQuery(s)
	if err != nil {
		return SymbolURI{}, err
	}
	if err := q.only(keyArchive, keyModule, keyLanguage, keySymbol); err != nil {
		return SymbolURI{}, err
	}
	m, err := q.module()
	if err != nil {
		return SymbolURI{}, err
	}
	name, err := q.name(keySymbol, true)
	if err != nil {
		return SymbolURI{}, err
	}
	return m.Symbol(name), nil
}

// ParseDocumentURI parses "<archive uri>[&p=<path>]&d=<name>[&l=<lang>]".
func ParseDocumentURI(s string) (DocumentURI, error) {
	q, err := splitQuery(s)
	if err != nil {
		return DocumentURI{}, err
	}
	if err := q.only(keyArchive, keyPath, keyDocument, keyLanguage); err != nil {
		return DocumentURI{}, err
	}
	return q.document()
}

// ParseDocumentElementURI parses "<document uri>&e=<name>".
func ParseDocumentElementURI(s string) (DocumentElementURI, error) {
	q, err := splitQuery(s)
	if err != nil {
		return DocumentElementURI{}, err
	}
	if err := q.only(keyArchive, keyPath, keyDocument, keyLanguage, keyElement); err != nil {
		return DocumentElementURI{}, err
	}
	d, err := q.document()
	if err != nil {
		return DocumentElementURI{}, err
	}
	name, err := q.name(keyElement, true)
	if err != nil {
		return DocumentElementURI{}, err
	}
	return d.Element(name), nil
}

// Parse parses any URI, choosing the type from the deepest key present.
// A string without a query parses as a BaseURI.
func Parse(s string) (URI, error) {
	if !strings.Contains(s, "?") {
		return nonNil(ParseBaseURI(s))
	}
	q, err := splitQuery(s)
	if err != nil {
		return nil, err
	}
	if q.has(keyModule) && q.has(keyDocument) {
		return nil, &ParseError{Kind: ErrTooManyParts, Part: keyDocument, Input: s}
	}
	switch {
	case q.has(keyElement):
		return nonNil(ParseDocumentElementURI(s))
	case q.has(keySymbol):
		return nonNil(ParseSymbolURI(s))
	case q.has(keyDocument) || q.has(keyPath):
		return nonNil(ParseDocumentURI(s))
	case q.has(keyModule):
		return nonNil(ParseModuleURI(s))
	default:
		return nonNil(ParseArchiveURI(s))
	}
}

// nonNil keeps a failed parse from returning a typed zero value inside a
// non-nil interface.
func nonNil[T URI](u T, err error) (URI, error) {
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *query) has(key string) bool {
	_, ok := q.values[key]
	return ok
}
