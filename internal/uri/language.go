package uri

import (
	"path/filepath"
	"strings"
)

// Language is the natural language of a module or document.
type Language uint8

const (
	English Language = iota
	German
	French
	Romanian
	Arabic
	Bulgarian
	Russian
	Finnish
	Turkish
	Slovenian
)

// DefaultLanguage applies wherever a URI or file name leaves it out.
const DefaultLanguage = English

var languageCodes = [...]string{
	English:   "en",
	German:    "de",
	French:    "fr",
	Romanian:  "ro",
	Arabic:    "ar",
	Bulgarian: "bg",
	Russian:   "ru",
	Finnish:   "fi",
	Turkish:   "tr",
	Slovenian: "sl",
}

// Languages lists every supported language in code order.
func Languages() []Language {
	out := make([]Language, len(languageCodes))
	for i := range languageCodes {
		out[i] = Language(i)
	}
	return out
}

func (l Language) String() string {
	if int(l) < len(languageCodes) {
		return languageCodes[l]
	}
	return "invalid"
}

// ParseLanguage parses a two-letter language code.
func ParseLanguage(s string) (Language, error) {
	for i, c := range languageCodes {
		if c == s {
			return Language(i), nil
		}
	}
	return 0, &ParseError{Kind: ErrInvalidLanguage, Input: s}
}

// MarshalText implements encoding.TextMarshaler.
func (l Language) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Language) UnmarshalText(b []byte) error {
	v, err := ParseLanguage(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// SplitFileName splits a source file name such as "Triangle.en.tex" into
// its stem and language. A name without a language infix gets the default
// language: "Triangle.tex" yields ("Triangle", en).
func SplitFileName(file string) (string, Language) {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		if lang, err := ParseLanguage(stem[i+1:]); err == nil {
			return stem[:i], lang
		}
	}
	return stem, DefaultLanguage
}
