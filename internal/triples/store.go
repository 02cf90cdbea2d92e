package triples

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Each triple is stored under four keys, one per index. A key is the index
// byte followed by its parts, each preceded by sep:
//
//	s: subject, predicate, object, graph
//	p: predicate, object, subject, graph
//	o: object, subject, predicate, graph
//	g: graph, subject, predicate, object
const (
	indexSPO = 's'
	indexPOS = 'p'
	indexOSP = 'o'
	indexG   = 'g'

	sep = 0x00
)

// Config selects where the store keeps its data.
type Config struct {
	// Path is the database directory; ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives badger's own log output; nil silences it.
	Logger *slog.Logger
}

// Store is a quad store on badger.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("triple store path is required unless in_memory is set")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating triple store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening triple store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func encodeTerm(t Term) []byte {
	b := make([]byte, 0, len(t.Value)+1)
	b = append(b, byte(t.Kind))
	return append(b, t.Value...)
}

func decodeTerm(b []byte) (Term, error) {
	if len(b) == 0 || (TermKind(b[0]) != IRI && TermKind(b[0]) != Literal) {
		return Term{}, fmt.Errorf("corrupt term %q", b)
	}
	return Term{Kind: TermKind(b[0]), Value: string(b[1:])}, nil
}

func makeKey(index byte, parts ...Term) []byte {
	k := []byte{index}
	for _, p := range parts {
		k = append(k, sep)
		k = append(k, encodeTerm(p)...)
	}
	return k
}

// prefixKey is makeKey with a trailing separator, so the last part matches
// exactly.
func prefixKey(index byte, parts ...Term) []byte {
	return append(makeKey(index, parts...), sep)
}

func keysFor(graph Term, t Triple) [4][]byte {
	return [4][]byte{
		makeKey(indexSPO, t.Subject, t.Predicate, t.Object, graph),
		makeKey(indexPOS, t.Predicate, t.Object, t.Subject, graph),
		makeKey(indexOSP, t.Object, t.Subject, t.Predicate, graph),
		makeKey(indexG, graph, t.Subject, t.Predicate, t.Object),
	}
}

// decodeKey returns the triple and graph stored under key.
func decodeKey(key []byte) (Triple, Term, error) {
	if len(key) < 2 {
		return Triple{}, Term{}, fmt.Errorf("corrupt key %q", key)
	}
	raw := bytes.Split(key[2:], []byte{sep})
	if len(raw) != 4 {
		return Triple{}, Term{}, fmt.Errorf("corrupt key %q", key)
	}
	var parts [4]Term
	for i, r := range raw {
		t, err := decodeTerm(r)
		if err != nil {
			return Triple{}, Term{}, err
		}
		parts[i] = t
	}
	switch key[0] {
	case indexSPO:
		return Triple{parts[0], parts[1], parts[2]}, parts[3], nil
	case indexPOS:
		return Triple{parts[2], parts[0], parts[1]}, parts[3], nil
	case indexOSP:
		return Triple{parts[1], parts[2], parts[0]}, parts[3], nil
	case indexG:
		return Triple{parts[1], parts[2], parts[3]}, parts[0], nil
	default:
		return Triple{}, Term{}, fmt.Errorf("unknown index %q", key[0])
	}
}

func validTerm(t Term) error {
	if t.Kind != IRI && t.Kind != Literal {
		return fmt.Errorf("term %q has no kind", t.Value)
	}
	if strings.IndexByte(t.Value, sep) >= 0 {
		return fmt.Errorf("term %q contains a NUL byte", t.Value)
	}
	return nil
}

// scan calls f for every key with prefix.
func (s *Store) scan(ctx context.Context, prefix []byte, f func(key []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load replaces the contents of graph with triples.
func (s *Store) Load(ctx context.Context, graph string, triples []Triple) error {
	g := NewIRI(graph)
	if err := validTerm(g); err != nil {
		return err
	}
	for _, t := range triples {
		for _, term := range []Term{t.Subject, t.Predicate, t.Object} {
			if err := validTerm(term); err != nil {
				return fmt.Errorf("graph %s: %w", graph, err)
			}
		}
	}

	var stale [][]byte
	err := s.scan(ctx, prefixKey(indexG, g), func(key []byte) error {
		t, _, err := decodeKey(key)
		if err != nil {
			return err
		}
		keys := keysFor(g, t)
		stale = append(stale, keys[:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading graph %s: %w", graph, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	for _, t := range triples {
		for _, k := range keysFor(g, t) {
			if err := wb.Set(k, nil); err != nil {
				return err
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("writing graph %s: %w", graph, err)
	}
	return nil
}

// Graphs lists the names of all non-empty graphs.
func (s *Store) Graphs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := s.scan(ctx, []byte{indexG, sep}, func(key []byte) error {
		_, g, err := decodeKey(key)
		if err != nil {
			return err
		}
		seen[g.Value] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

// Pattern selects triples. A zero Term matches anything.
type Pattern struct {
	Subject, Predicate, Object Term
}

func bound(t Term) bool { return t.Kind != 0 }

func (p Pattern) matches(t Triple) bool {
	return (!bound(p.Subject) || p.Subject == t.Subject) &&
		(!bound(p.Predicate) || p.Predicate == t.Predicate) &&
		(!bound(p.Object) || p.Object == t.Object)
}

// prefix picks the index serving the most bound leading positions.
func (p Pattern) prefix() []byte {
	switch {
	case bound(p.Subject) && bound(p.Predicate) && bound(p.Object):
		return prefixKey(indexSPO, p.Subject, p.Predicate, p.Object)
	case bound(p.Subject) && bound(p.Predicate):
		return prefixKey(indexSPO, p.Subject, p.Predicate)
	case bound(p.Subject) && bound(p.Object):
		return prefixKey(indexOSP, p.Object, p.Subject)
	case bound(p.Subject):
		return prefixKey(indexSPO, p.Subject)
	case bound(p.Predicate) && bound(p.Object):
		return prefixKey(indexPOS, p.Predicate, p.Object)
	case bound(p.Predicate):
		return prefixKey(indexPOS, p.Predicate)
	case bound(p.Object):
		return prefixKey(indexOSP, p.Object)
	default:
		return []byte{indexSPO, sep}
	}
}

// Match returns the distinct triples matching p across all graphs.
func (s *Store) Match(ctx context.Context, p Pattern) ([]Triple, error) {
	seen := make(map[Triple]bool)
	var out []Triple
	err := s.scan(ctx, p.prefix(), func(key []byte) error {
		t, _, err := decodeKey(key)
		if err != nil {
			return err
		}
		if p.matches(t) && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
		return nil
	})
	return out, err
}
