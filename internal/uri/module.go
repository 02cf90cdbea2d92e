package uri

import "strings"

// ModuleURI addresses a module. Nested modules carry a multi-segment name
// whose first segment is the top-level module.
type ModuleURI struct {
	archive ArchiveURI
	name    Name
	lang    Language
}

func (m ModuleURI) Archive() ArchiveURI { return m.archive }
func (m ModuleURI) Base() BaseURI       { return m.archive.base }
func (m ModuleURI) Name() Name          { return m.name }
func (m ModuleURI) Language() Language  { return m.lang }

// IsZero reports whether m is unset.
func (m ModuleURI) IsZero() bool { return m.name.IsZero() }

// IsTopLevel reports whether m is not nested in another module.
func (m ModuleURI) IsTopLevel() bool { return m.name.IsSimple() }

// TopLevel returns the outermost module enclosing m, or m itself.
func (m ModuleURI) TopLevel() ModuleURI {
	m.name = m.name.First()
	return m
}

// Symbol composes the URI of a symbol declared in m.
func (m ModuleURI) Symbol(name Name) SymbolURI {
	return SymbolURI{module: m, name: name}
}

// Nested composes the URI of a module declared inside m.
func (m ModuleURI) Nested(name Name) ModuleURI {
	m.name = m.name.Append(name)
	return m
}

// WithLanguage returns m in another language.
func (m ModuleURI) WithLanguage(lang Language) ModuleURI {
	m.lang = lang
	return m
}

func (m ModuleURI) String() string {
	var sb strings.Builder
	m.write(&sb)
	return sb.String()
}

func (m ModuleURI) write(sb *strings.Builder) {
	m.archive.write(sb)
	sb.WriteString("&m=")
	sb.WriteString(m.name.String())
	sb.WriteString("&l=")
	sb.WriteString(m.lang.String())
}

func (ModuleURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (m ModuleURI) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ModuleURI) UnmarshalText(b []byte) error {
	v, err := ParseModuleURI(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SymbolURI addresses a symbol declared in a module.
type SymbolURI struct {
	module ModuleURI
	name   Name
}

func (s SymbolURI) Module() ModuleURI { return s.module }
func (s SymbolURI) Base() BaseURI     { return s.module.Base() }
func (s SymbolURI) Name() Name        { return s.name }

// IsZero reports whether s is unset.
func (s SymbolURI) IsZero() bool { return s.name.IsZero() }

func (s SymbolURI) String() string {
	var sb strings.Builder
	s.module.write(&sb)
	sb.WriteString("&c=")
	sb.WriteString(s.name.String())
	return sb.String()
}

func (SymbolURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (s SymbolURI) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SymbolURI) UnmarshalText(b []byte) error {
	v, err := ParseSymbolURI(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
