package uri

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vk/mathgrid/internal/intern"
)

// BaseURI is an absolute scheme, host and optional path without query or
// fragment. A trailing slash is dropped.
type BaseURI struct {
	h intern.Handle
}

// ParseBaseURI validates and interns a base.
func ParseBaseURI(s string) (BaseURI, error) {
	u, err := url.Parse(s)
	if err != nil {
		return BaseURI{}, &ParseError{Kind: ErrInvalidBase, Input: s, Err: err}
	}
	switch {
	case u.Scheme == "" || u.Host == "":
		return BaseURI{}, &ParseError{Kind: ErrInvalidBase, Input: s, Err: fmt.Errorf("base must be absolute")}
	case u.RawQuery != "" || u.ForceQuery:
		return BaseURI{}, &ParseError{Kind: ErrInvalidBase, Input: s, Err: fmt.Errorf("base must not carry a query")}
	case u.Fragment != "":
		return BaseURI{}, &ParseError{Kind: ErrInvalidBase, Input: s, Err: fmt.Errorf("base must not carry a fragment")}
	}
	return BaseURI{h: intern.String(strings.TrimRight(s, "/"))}, nil
}

// MustBaseURI is like ParseBaseURI but panics on error.
func MustBaseURI(s string) BaseURI {
	b, err := ParseBaseURI(s)
	if err != nil {
		panic(err)
	}
	return b
}

func (b BaseURI) String() string { return b.h.String() }

// IsZero reports whether b is unset.
func (b BaseURI) IsZero() bool { return b.h.IsZero() }

// Base returns b itself, satisfying URI.
func (b BaseURI) Base() BaseURI { return b }

// Archive composes an archive URI.
func (b BaseURI) Archive(id ArchiveID) ArchiveURI {
	return ArchiveURI{base: b, id: id}
}

func (BaseURI) isURI() {}

// MarshalText implements encoding.TextMarshaler.
func (b BaseURI) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BaseURI) UnmarshalText(text []byte) error {
	v, err := ParseBaseURI(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
