package mhcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/uri"
)

var (
	geometry = uri.MustBaseURI("http://example.org").Archive(uri.MustArchiveID("math/geometry"))
	docURI   = geometry.Document(uri.MustName("shapes"), uri.MustName("Triangle"), uri.German)
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func parse(t *testing.T, src string) *content.UncheckedDocument {
	t.Helper()
	doc, err := Parser{}.Parse(testContext(), "shapes/Triangle.de.mhcl", []byte(src), docURI)
	require.NoError(t, err)
	return doc
}

func module(name string) uri.ModuleURI {
	return geometry.Module(uri.MustName(name), uri.German)
}

func TestParse_Modules(t *testing.T) {
	// --- Arrange ---
	src := `
title = "Dreiecke"

module "Triangle" {
  meta      = "http://example.org?a=math/meta-inf&m=Meta&l=en"
  signature = "en"
  imports   = ["Points"]

  symbol "area" {
    arity = 1
    macro = "area"
  }

  structure "shape" {
    symbol "corner" {}
  }

  extension "more" {
    target = "Triangle#shape"
    symbol "edge" {}
  }

  morphism "view" {
    domain = "Points"
    total  = true
    assign = { y = "b", x = "a" }
  }

  module "Inner" {
    symbol "hidden" {}
  }
}
`

	// --- Act ---
	doc := parse(t, src)

	// --- Assert ---
	assert.Equal(t, "Dreiecke", doc.Title)
	require.Len(t, doc.Modules, 1)
	m := doc.Modules[0]
	tri := module("Triangle")
	assert.Equal(t, tri, m.URI)
	require.NotNil(t, m.Meta)
	assert.Equal(t, "Meta", m.Meta.Name().String())
	require.NotNil(t, m.Signature)
	assert.Equal(t, uri.English, *m.Signature)

	require.Len(t, m.Declarations, 6)
	assert.Equal(t, content.UncheckedImport{Target: module("Points")}, m.Declarations[0])
	assert.Equal(t, content.UncheckedSymbol{URI: tri.Symbol(uri.MustName("area")), Arity: 1, Macro: "area"}, m.Declarations[1])

	st := m.Declarations[2].(content.UncheckedMathStructure)
	assert.Equal(t, tri.Symbol(uri.MustName("shape")), st.URI)
	require.Len(t, st.Declarations, 1)
	assert.Equal(t, "shape/corner", st.Declarations[0].(content.UncheckedSymbol).URI.Name().String())

	ext := m.Declarations[3].(content.UncheckedExtension)
	assert.Equal(t, tri.Symbol(uri.MustName("shape")), ext.Target)

	morph := m.Declarations[4].(content.UncheckedMorphism)
	assert.Equal(t, module("Points"), morph.Domain)
	assert.True(t, morph.Total)
	require.Len(t, morph.Assignments, 2)
	assert.Equal(t, "x", morph.Assignments[0].Symbol.Name().String(), "assignments are sorted")
	assert.Equal(t, "a", morph.Assignments[0].Definiens)

	nested := m.Declarations[5].(content.UncheckedNestedModule)
	assert.Equal(t, tri.Nested(uri.MustName("Inner")), nested.URI)
	require.Len(t, nested.Declarations, 1)

	require.Len(t, doc.Elements, 1)
	assert.Equal(t, content.UncheckedModuleElement{Module: tri}, doc.Elements[0])
}

func TestParse_DocumentElements(t *testing.T) {
	// --- Arrange ---
	src := `
section "intro" {
  title = "Intro to ${file} (${language})"

  paragraph "def" {
    role = "definition"
    for  = ["Triangle#area"]
    text = "from ${archive}"
  }
}

use "Points" {}

reference "Points#x" {
  text = "the x"
}
`

	// --- Act ---
	doc := parse(t, src)

	// --- Assert ---
	require.Len(t, doc.Elements, 3)
	sec := doc.Elements[0].(content.UncheckedSection)
	assert.Equal(t, "Intro to Triangle (de)", sec.Title)
	assert.Equal(t, docURI.Element(uri.MustName("intro")), sec.URI)

	require.Len(t, sec.Children, 1)
	para := sec.Children[0].(content.UncheckedParagraph)
	assert.Equal(t, docURI.Element(uri.MustName("intro")).Child(uri.MustName("def")), para.URI)
	assert.Equal(t, "definition", para.Role)
	assert.Equal(t, "from math/geometry", para.Text)
	assert.Equal(t, []uri.SymbolURI{module("Triangle").Symbol(uri.MustName("area"))}, para.Fors)

	assert.Equal(t, content.UncheckedUseModule{Target: module("Points")}, doc.Elements[1])
	assert.Equal(t, content.UncheckedSymbolReference{Target: module("Points").Symbol(uri.MustName("x")), Text: "the x"}, doc.Elements[2])
}

func TestParse_Deterministic(t *testing.T) {
	src := `module "M" {
  morphism "v" {
    domain = "N"
    assign = { c = "3", a = "1", b = "2" }
  }
}`
	assert.Equal(t, parse(t, src), parse(t, src))
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "syntax", src: `module "M" {`, wantErr: "failed to parse"},
		{name: "unknown block", src: `chapter "one" {}`, wantErr: "unexpected chapter block"},
		{name: "missing label", src: `section {}`, wantErr: "exactly one label"},
		{name: "nested module name", src: `module "A/B" {}`, wantErr: "single segment"},
		{name: "module in section", src: `section "s" { module "M" {} }`, wantErr: "top level"},
		{name: "bad symbol reference", src: `reference "nohash" {}`, wantErr: "Module#symbol"},
		{name: "bad signature", src: `module "M" { signature = "xx" }`, wantErr: "invalid language"},
		{name: "module in structure", src: `module "M" { structure "s" { module "N" {} } }`, wantErr: "inside structures"},
		{name: "missing required attribute", src: `module "M" { morphism "v" {} }`, wantErr: "domain"},
		{name: "unknown variable", src: `title = "${nope}"`, wantErr: "failed to decode"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parser{}.Parse(testContext(), "x.mhcl", []byte(tc.src), docURI)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
