package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	sent   []notify.Event
	closed bool
}

func (r *recorder) emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.sent = append(r.sent, payload.(notify.Event))
}

func (r *recorder) close()     { r.closed = true }
func (r *recorder) id() string { return "test" }

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func TestRun_ForwardsUntilClosed(t *testing.T) {
	// --- Arrange ---
	bus := notify.New()
	sub := bus.Subscribe(8)
	rec := &recorder{}
	r := newRelay(rec, "")
	bus.Publish(notify.Event{Kind: notify.FileStateChanged, Archive: "math/geometry", Path: "Triangle.mhcl"})
	bus.Publish(notify.Event{Kind: notify.QueueFinished, Queue: "global"})
	bus.Close()

	// --- Act ---
	err := r.Run(testContext(), sub)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultEvent, DefaultEvent}, rec.events)
	require.Len(t, rec.sent, 2)
	assert.Equal(t, notify.FileStateChanged, rec.sent[0].Kind)
	assert.Equal(t, "Triangle.mhcl", rec.sent[0].Path)
	assert.Equal(t, notify.QueueFinished, rec.sent[1].Kind)
}

func TestRun_StopsOnCancel(t *testing.T) {
	bus := notify.New()
	sub := bus.Subscribe(1)
	r := newRelay(&recorder{}, "builds")
	ctx, cancel := context.WithCancel(testContext())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, sub) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClose(t *testing.T) {
	rec := &recorder{}
	newRelay(rec, "x").Close()
	assert.True(t, rec.closed)
}

func TestDial_RejectsBadURL(t *testing.T) {
	_, err := Dial(testContext(), Config{URL: "not a url"})
	assert.ErrorContains(t, err, "scheme and host")
}
