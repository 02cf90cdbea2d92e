package triples

import (
	"context"
	"fmt"
	"strings"
)

// QueryError reports a malformed query.
type QueryError struct {
	Pos int
	Msg string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query: %s at offset %d", e.Msg, e.Pos)
}

// ResultSet holds the bindings of a query. Rows are in the order of Vars.
type ResultSet struct {
	Vars []string `json:"vars"`
	Rows [][]Term `json:"rows"`
}

// slot is one parsed position of a pattern: a variable or a fixed term.
type slot struct {
	variable string
	term     Term
}

// parseQuery parses a single triple pattern such as
//
//	?s <http://mathhub.info/ulo#imports> ?o .
//
// Terms are variables (?name), IRIs (<...>) or string literals ("...").
// The trailing dot is optional.
func parseQuery(text string) ([3]slot, error) {
	var (
		out [3]slot
		n   int
		i   int
	)
	for {
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		if i == len(text) {
			break
		}
		if text[i] == '.' && n == 3 {
			i++
			continue
		}
		if n == 3 {
			return out, &QueryError{Pos: i, Msg: "expected end of pattern"}
		}
		s, next, err := parseSlot(text, i)
		if err != nil {
			return out, err
		}
		if s.term.Kind == Literal && n != 2 {
			return out, &QueryError{Pos: i, Msg: "literal allowed only in object position"}
		}
		out[n] = s
		n++
		i = next
	}
	if n != 3 {
		return out, &QueryError{Pos: len(text), Msg: fmt.Sprintf("expected 3 terms, got %d", n)}
	}
	return out, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func parseSlot(text string, i int) (slot, int, error) {
	switch text[i] {
	case '?':
		j := i + 1
		for j < len(text) && isNameByte(text[j]) {
			j++
		}
		if j == i+1 {
			return slot{}, 0, &QueryError{Pos: i, Msg: "empty variable name"}
		}
		return slot{variable: text[i+1 : j]}, j, nil

	case '<':
		end := strings.IndexByte(text[i:], '>')
		if end < 0 {
			return slot{}, 0, &QueryError{Pos: i, Msg: "unterminated IRI"}
		}
		iri := text[i+1 : i+end]
		if iri == "" || strings.ContainsAny(iri, " \t\n\r") {
			return slot{}, 0, &QueryError{Pos: i, Msg: "invalid IRI"}
		}
		return slot{term: NewIRI(iri)}, i + end + 1, nil

	case '"':
		var sb strings.Builder
		for j := i + 1; j < len(text); j++ {
			switch c := text[j]; c {
			case '"':
				return slot{term: NewLiteral(sb.String())}, j + 1, nil
			case '\\':
				if j+1 == len(text) {
					return slot{}, 0, &QueryError{Pos: j, Msg: "dangling escape"}
				}
				j++
				switch text[j] {
				case 'n':
					sb.WriteByte('\n')
				case 'r':
					sb.WriteByte('\r')
				case 't':
					sb.WriteByte('\t')
				case '"', '\\':
					sb.WriteByte(text[j])
				default:
					return slot{}, 0, &QueryError{Pos: j, Msg: fmt.Sprintf("unknown escape \\%c", text[j])}
				}
			default:
				sb.WriteByte(c)
			}
		}
		return slot{}, 0, &QueryError{Pos: i, Msg: "unterminated literal"}

	default:
		return slot{}, 0, &QueryError{Pos: i, Msg: fmt.Sprintf("unexpected %q", text[i])}
	}
}

func isNameByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Query answers a single triple pattern over all graphs. Each distinct
// binding of the pattern's variables is one row; a variable used twice
// must bind the same term in both positions.
func (s *Store) Query(ctx context.Context, text string) (*ResultSet, error) {
	slots, err := parseQuery(text)
	if err != nil {
		return nil, err
	}

	var (
		p    Pattern
		rs   = &ResultSet{Vars: []string{}, Rows: [][]Term{}}
		vars = make(map[string]int)
	)
	fixed := []*Term{&p.Subject, &p.Predicate, &p.Object}
	for i, sl := range slots {
		if sl.variable == "" {
			*fixed[i] = sl.term
			continue
		}
		if _, ok := vars[sl.variable]; !ok {
			vars[sl.variable] = len(rs.Vars)
			rs.Vars = append(rs.Vars, sl.variable)
		}
	}

	matches, err := s.Match(ctx, p)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, t := range matches {
		row := make([]Term, len(rs.Vars))
		set := make([]bool, len(rs.Vars))
		ok := true
		for i, term := range []Term{t.Subject, t.Predicate, t.Object} {
			v := slots[i].variable
			if v == "" {
				continue
			}
			idx := vars[v]
			if set[idx] && row[idx] != term {
				ok = false
				break
			}
			row[idx], set[idx] = term, true
		}
		if !ok {
			continue
		}
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func rowKey(row []Term) string {
	var sb strings.Builder
	for _, t := range row {
		sb.Write(encodeTerm(t))
		sb.WriteByte(sep)
	}
	return sb.String()
}
