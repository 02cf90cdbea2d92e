package uri

import "strings"

// DocumentURI addresses a document. The path is the directory of the
// source file relative to the archive's source directory and may be absent.
type DocumentURI struct {
	archive ArchiveURI
	path    Name
	name    Name
	lang    Language
}

func (d DocumentURI) Archive() ArchiveURI { return d.archive }
func (d DocumentURI) Base() BaseURI       { return d.archive.base }
func (d DocumentURI) Path() Name          { return d.path }
func (d DocumentURI) Name() Name          { return d.name }
func (d DocumentURI) Language() Language  { return d.lang }

// IsZero reports whether d is unset.
func (d DocumentURI) IsZero() bool { return d.name.IsZero() }

// Element composes the URI of an element of d.
func (d DocumentURI) Element(name Name) DocumentElementURI {
	return DocumentElementURI{document: d, name: name}
}

// Module composes the URI of a module declared in d's archive.
func (d DocumentURI) Module(name Name) ModuleURI {
	return d.archive.Module(name, d.lang)
}

func (d DocumentURI) String() string {
	var sb strings.Builder
	d.write(&sb)
	return sb.String()
}

func (d DocumentURI) write(sb *strings.Builder) {
	d.archive.write(sb)
	if !d.path.IsZero() {
		sb.WriteString("&p=")
		sb.WriteString(d.path.String())
	}
	sb.WriteString("&d=")
	sb.WriteString(d.name.String())
	sb.WriteString("&l=")
	sb.WriteString(d.lang.String())
}

func (DocumentURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (d DocumentURI) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DocumentURI) UnmarshalText(b []byte) error {
	v, err := ParseDocumentURI(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DocumentElementURI addresses an element (section, paragraph, ...) of a
// document. Nested elements use multi-segment names.
type DocumentElementURI struct {
	document DocumentURI
	name     Name
}

func (e DocumentElementURI) Document() DocumentURI { return e.document }
func (e DocumentElementURI) Base() BaseURI         { return e.document.Base() }
func (e DocumentElementURI) Name() Name            { return e.name }

// Child composes the URI of an element nested in e.
func (e DocumentElementURI) Child(name Name) DocumentElementURI {
	e.name = e.name.Append(name)
	return e
}

func (e DocumentElementURI) String() string {
	var sb strings.Builder
	e.document.write(&sb)
	sb.WriteString("&e=")
	sb.WriteString(e.name.String())
	return sb.String()
}

func (DocumentElementURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (e DocumentElementURI) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *DocumentElementURI) UnmarshalText(b []byte) error {
	v, err := ParseDocumentElementURI(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
