package uri

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vk/mathgrid/internal/intern"
)

// reserved lists the characters a name segment may not contain. They
// delimit the query form of every URI.
const reserved = "&?#=/"

type nameEntry struct {
	full string
	segs []intern.Handle
}

// Name is a non-empty sequence of interned segments, written joined by "/".
// Names are interned as a whole: two Names built from equal segment
// sequences are the same value. The zero Name is the absent name.
type Name struct {
	e *nameEntry
}

var names = struct {
	sync.RWMutex
	m map[string]*nameEntry
}{m: make(map[string]*nameEntry)}

// NewName parses a "/"-separated name.
func NewName(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("name cannot be empty")
	}

	names.RLock()
	e, ok := names.m[s]
	names.RUnlock()
	if ok {
		return Name{e: e}, nil
	}

	parts := strings.Split(s, "/")
	segs := make([]intern.Handle, len(parts))
	for i, p := range parts {
		if err := validSegment(p); err != nil {
			return Name{}, err
		}
		segs[i] = intern.String(p)
	}

	names.Lock()
	defer names.Unlock()
	if e, ok := names.m[s]; ok {
		return Name{e: e}, nil
	}
	e = &nameEntry{full: strings.Clone(s), segs: segs}
	names.m[e.full] = e
	return Name{e: e}, nil
}

// MustName is like NewName but panics on invalid input. It is intended for
// constants and tests.
func MustName(s string) Name {
	n, err := NewName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func validSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("name contains an empty segment")
	}
	if i := strings.IndexAny(seg, reserved); i >= 0 {
		return fmt.Errorf("name segment %q contains reserved character %q", seg, seg[i])
	}
	return nil
}

// IsZero reports whether n is the absent name.
func (n Name) IsZero() bool { return n.e == nil }

// String returns the "/"-joined form.
func (n Name) String() string {
	if n.e == nil {
		return ""
	}
	return n.e.full
}

// Segments returns the interned segments. The slice is a copy.
func (n Name) Segments() []intern.Handle {
	if n.e == nil {
		return nil
	}
	out := make([]intern.Handle, len(n.e.segs))
	copy(out, n.e.segs)
	return out
}

// Len is the number of segments.
func (n Name) Len() int {
	if n.e == nil {
		return 0
	}
	return len(n.e.segs)
}

// IsSimple reports whether n has exactly one segment.
func (n Name) IsSimple() bool { return n.Len() == 1 }

// First returns the first segment as a simple name.
func (n Name) First() Name {
	if n.Len() <= 1 {
		return n
	}
	return MustName(n.e.segs[0].String())
}

// Last returns the final segment as a simple name.
func (n Name) Last() Name {
	if n.Len() <= 1 {
		return n
	}
	return MustName(n.e.segs[len(n.e.segs)-1].String())
}

// Parent drops the final segment. The parent of a simple name is the zero
// Name.
func (n Name) Parent() Name {
	if n.Len() <= 1 {
		return Name{}
	}
	return MustName(n.e.full[:strings.LastIndexByte(n.e.full, '/')])
}

// Append returns n extended by child. Appending to the zero Name yields
// child.
func (n Name) Append(child Name) Name {
	if n.IsZero() {
		return child
	}
	if child.IsZero() {
		return n
	}
	return MustName(n.e.full + "/" + child.e.full)
}

// HasPrefix reports whether prefix is a leading run of n's segments.
func (n Name) HasPrefix(prefix Name) bool {
	if prefix.IsZero() {
		return true
	}
	if prefix.Len() > n.Len() {
		return false
	}
	for i, s := range prefix.e.segs {
		if n.e.segs[i] != s {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text decodes to
// the zero Name.
func (n *Name) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*n = Name{}
		return nil
	}
	v, err := NewName(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
