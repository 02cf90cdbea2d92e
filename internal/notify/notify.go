// Package notify is the change-notification bus. Publishers never block:
// each subscriber owns a bounded buffer, and an event that does not fit is
// dropped for that subscriber only. Listeners treat an event as "something
// changed, re-query" rather than as a complete log.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	ArchivesLoaded   Kind = "archives_loaded"
	FileStateChanged Kind = "file_state_changed"
	TaskStateChanged Kind = "task_state_changed"
	QueueFinished    Kind = "queue_finished"
)

// Event is a single notification. Fields that do not apply to a kind are
// left empty.
type Event struct {
	Kind    Kind      `json:"kind"`
	Archive string    `json:"archive,omitempty"`
	Path    string    `json:"path,omitempty"`
	Queue   string    `json:"queue,omitempty"`
	Task    string    `json:"task,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// ErrClosed is returned by Read once the subscription or bus is closed and
// drained.
var ErrClosed = errors.New("notify: subscription closed")

// DefaultBuffer is the per-subscriber buffer used when Subscribe is given a
// non-positive size.
const DefaultBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a listener with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{
		ID:  uuid.NewString(),
		bus: b,
		ch:  make(chan Event, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s.ID] = s
	return s
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close closes every subscription. Buffered events stay readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.ID]; ok {
		delete(b.subs, s.ID)
		close(s.ch)
	}
}

// Subscription is one listener's view of the bus.
type Subscription struct {
	ID      string
	bus     *Bus
	ch      chan Event
	dropped atomic.Uint64
}

// Read blocks until an event arrives, ctx is done or the subscription is
// closed.
func (s *Subscription) Read(ctx context.Context) (Event, error) {
	select {
	case e, ok := <-s.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return e, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Poll returns the next buffered event without blocking.
func (s *Subscription) Poll() (Event, bool) {
	select {
	case e, ok := <-s.ch:
		return e, ok
	default:
		return Event{}, false
	}
}

// Dropped reports how many events did not fit this subscriber's buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes.
func (s *Subscription) Close() { s.bus.remove(s) }
