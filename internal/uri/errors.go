package uri

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyParts reports a duplicated query key or a key that belongs
	// to a deeper URI type than the one being parsed.
	ErrTooManyParts = errors.New("too many parts")
	// ErrMissingPart reports a required query key that is absent or empty.
	ErrMissingPart = errors.New("missing part")
	// ErrInvalidLanguage reports an unknown language code.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrUnrecognizedQueryFragment reports a query fragment that is not one
	// of the reserved keys or whose value is not a valid name.
	ErrUnrecognizedQueryFragment = errors.New("unrecognized query fragment")
	// ErrInvalidBase reports a base URL that is not absolute or carries a
	// query or fragment.
	ErrInvalidBase = errors.New("invalid base uri")
)

// ParseError is returned by every Parse function in this package. Kind is
// one of the sentinel errors above; errors.Is matches against it.
type ParseError struct {
	Kind  error
	Part  string // the query key involved, when there is one
	Input string
	Err   error // underlying cause, e.g. from net/url
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Part != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Part)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("parsing uri %q: %s", e.Input, msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
