// Package intern deduplicates strings into process-lifetime handles.
//
// A Handle is a pointer to a table entry, so two handles compare equal with
// == exactly when they were produced from equal strings. Entries are never
// removed; the table only grows for the lifetime of the process. This is the
// storage underneath every URI segment and name in mathgrid.
package intern

import "sync"

type entry struct {
	s string
}

// Handle is an interned string. The zero Handle is the empty handle and
// resolves to "".
type Handle struct {
	e *entry
}

// String resolves the handle back to its string.
func (h Handle) String() string {
	if h.e == nil {
		return ""
	}
	return h.e.s
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.e == nil }

// Table is a thread-safe get-or-intern table.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewTable creates an empty table. Most callers want Get instead.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Intern returns the handle for s, creating it on first use.
func (t *Table) Intern(s string) Handle {
	t.mu.RLock()
	e, ok := t.entries[s]
	t.mu.RUnlock()
	if ok {
		return Handle{e: e}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another goroutine may have won the race between the two locks.
	if e, ok := t.entries[s]; ok {
		return Handle{e: e}
	}
	// Clone so the table never pins a larger buffer the caller sliced s from.
	e = &entry{s: cloneString(s)}
	t.entries[e.s] = e
	return Handle{e: e}
}

// Lookup returns the handle for s if it was interned before.
func (t *Table) Lookup(s string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[s]
	return Handle{e: e}, ok
}

// Len reports the number of distinct interned strings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func cloneString(s string) string {
	b := make([]byte, len(s))
	copy(b, s)
	return string(b)
}

var (
	global     *Table
	globalOnce sync.Once
)

// Get returns the process-wide table, creating it on first use.
func Get() *Table {
	globalOnce.Do(func() {
		global = NewTable()
	})
	return global
}

// String interns s in the process-wide table.
func String(s string) Handle {
	return Get().Intern(s)
}
