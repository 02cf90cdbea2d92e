package buildgraph

import "fmt"

// Code is a four-byte ASCII identifier.
type Code [4]byte

// ParseCode validates a four-character printable ASCII code.
func ParseCode(s string) (Code, error) {
	var c Code
	if len(s) != len(c) {
		return c, fmt.Errorf("code %q must be exactly %d ASCII characters", s, len(c))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return c, fmt.Errorf("code %q contains non-printable or non-ASCII byte at %d", s, i)
		}
		c[i] = s[i]
	}
	return c, nil
}

// MustCode is like ParseCode but panics. Codes are compile-time constants in
// practice.
func MustCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Code) String() string { return string(c[:]) }

// FormatID names a source format.
type FormatID Code

// TargetID names a build target.
type TargetID Code

// ArtifactTypeID names an artifact type.
type ArtifactTypeID Code

func NewFormatID(s string) FormatID             { return FormatID(MustCode(s)) }
func NewTargetID(s string) TargetID             { return TargetID(MustCode(s)) }
func NewArtifactTypeID(s string) ArtifactTypeID { return ArtifactTypeID(MustCode(s)) }

func (id FormatID) String() string       { return Code(id).String() }
func (id TargetID) String() string       { return Code(id).String() }
func (id ArtifactTypeID) String() string { return Code(id).String() }

// MarshalText renders ids as their four characters in JSON.
func (id FormatID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id TargetID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id ArtifactTypeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
