package archives

import (
	"fmt"
	"time"
)

// StateKind is the build state of one source file for one target.
type StateKind uint8

const (
	New StateKind = iota
	Stale
	UpToDate
	Deleted
)

func (k StateKind) String() string {
	switch k {
	case New:
		return "new"
	case Stale:
		return "stale"
	case UpToDate:
		return "up-to-date"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (k StateKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// FileState is the state of a (file, target) pair. LastBuilt is set for
// Stale and UpToDate; LastChanged only for Stale.
type FileState struct {
	Kind        StateKind `json:"kind"`
	LastBuilt   time.Time `json:"last_built,omitzero"`
	LastChanged time.Time `json:"last_changed,omitzero"`
}

func (s FileState) String() string {
	switch s.Kind {
	case Stale:
		return fmt.Sprintf("stale(%s, %s)", s.LastBuilt.Format(time.RFC3339Nano), s.LastChanged.Format(time.RFC3339Nano))
	case UpToDate:
		return fmt.Sprintf("up-to-date(%s)", s.LastBuilt.Format(time.RFC3339Nano))
	default:
		return s.Kind.String()
	}
}

// NeedsBuild reports whether the pair must be (re)built.
func (s FileState) NeedsBuild() bool {
	return s.Kind == New || s.Kind == Stale
}

// stateFor derives the state of an existing source file from its
// modification time and the recorded build time, if any.
func stateFor(modified time.Time, lastBuilt time.Time, recorded bool) FileState {
	switch {
	case !recorded:
		return FileState{Kind: New}
	case modified.After(lastBuilt):
		return FileState{Kind: Stale, LastBuilt: lastBuilt, LastChanged: modified}
	default:
		return FileState{Kind: UpToDate, LastBuilt: lastBuilt}
	}
}
