package content

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// holders is the explicit shared-ownership count embedded in every root
// artifact.
type holders struct {
	n atomic.Int64

	mu  sync.Mutex
	out []Releaser
}

func (h *holders) init() { h.n.Store(1) }

func (h *holders) retain() {
	if h.n.Add(1) <= 1 {
		panic("content: retain of a released artifact")
	}
}

// release drops one hold. It reports whether that was the last one, in which
// case every outgoing hold has been dropped as well.
func (h *holders) release() bool {
	n := h.n.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("content: holder count dropped to %d", n))
	}
	if n > 0 {
		return false
	}
	h.mu.Lock()
	out := h.out
	h.out = nil
	h.mu.Unlock()
	for _, r := range out {
		r.Release()
	}
	return true
}

// hold records a reference this artifact keeps alive.
func (h *holders) hold(r Releaser) {
	h.mu.Lock()
	h.out = append(h.out, r)
	h.mu.Unlock()
}

// refersTo reports whether one of the outgoing holds satisfies match.
func (h *holders) refersTo(match func(Releaser) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.out {
		if match(r) {
			return true
		}
	}
	return false
}

func (h *holders) count() int64 { return h.n.Load() }
