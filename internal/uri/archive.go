package uri

import "strings"

// MetaSegment names the meta-information child of an archive group.
const MetaSegment = "meta-inf"

// ArchiveID is the "/"-separated path of an archive in the archive forest,
// e.g. "math/geometry".
type ArchiveID struct {
	Name
}

// ParseArchiveID parses an archive id.
func ParseArchiveID(s string) (ArchiveID, error) {
	n, err := NewName(s)
	if err != nil {
		return ArchiveID{}, err
	}
	return ArchiveID{Name: n}, nil
}

// MustArchiveID is like ParseArchiveID but panics on error.
func MustArchiveID(s string) ArchiveID {
	return ArchiveID{Name: MustName(s)}
}

// Steps returns the id's segments as strings, root first.
func (id ArchiveID) Steps() []string {
	if id.IsZero() {
		return nil
	}
	return strings.Split(id.String(), "/")
}

// IsMeta reports whether id addresses a group's meta archive.
func (id ArchiveID) IsMeta() bool {
	return !id.IsZero() && id.Last().String() == MetaSegment
}

// Meta returns the meta archive of the group containing id. For
// "math/geometry" that is "math/meta-inf".
func (id ArchiveID) Meta() ArchiveID {
	if id.IsMeta() {
		return id
	}
	return ArchiveID{Name: id.Parent().Append(MustName(MetaSegment))}
}

// Group returns the id of the enclosing group, or the zero id for a
// top-level archive.
func (id ArchiveID) Group() ArchiveID {
	return ArchiveID{Name: id.Parent()}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ArchiveID) UnmarshalText(b []byte) error {
	return id.Name.UnmarshalText(b)
}

// ArchiveURI addresses an archive.
type ArchiveURI struct {
	base BaseURI
	id   ArchiveID
}

// Base returns the base the archive lives under.
func (a ArchiveURI) Base() BaseURI { return a.base }

// ID returns the archive id.
func (a ArchiveURI) ID() ArchiveID { return a.id }

// IsZero reports whether a is unset.
func (a ArchiveURI) IsZero() bool { return a.base.IsZero() }

func (a ArchiveURI) String() string {
	var sb strings.Builder
	a.write(&sb)
	return sb.String()
}

func (a ArchiveURI) write(sb *strings.Builder) {
	sb.WriteString(a.base.String())
	sb.WriteString("?a=")
	sb.WriteString(a.id.String())
}

// Module composes a module URI.
func (a ArchiveURI) Module(name Name, lang Language) ModuleURI {
	return ModuleURI{archive: a, name: name, lang: lang}
}

// Document composes a document URI. path may be the zero Name for a
// document directly under the archive's source directory.
func (a ArchiveURI) Document(path, name Name, lang Language) DocumentURI {
	return DocumentURI{archive: a, path: path, name: name, lang: lang}
}

func (ArchiveURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (a ArchiveURI) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ArchiveURI) UnmarshalText(b []byte) error {
	v, err := ParseArchiveURI(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
