package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := New()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(Event{Kind: ArchivesLoaded, Message: "2 archives"})

	for _, s := range []*Subscription{a, b} {
		e, ok := s.Poll()
		require.True(t, ok)
		assert.Equal(t, ArchivesLoaded, e.Kind)
		assert.False(t, e.Time.IsZero())
	}
}

func TestBus_LossyUnderOverflow(t *testing.T) {
	// --- Arrange ---
	bus := New()
	slow := bus.Subscribe(2)

	// --- Act ---
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Kind: FileStateChanged})
	}

	// --- Assert ---
	assert.EqualValues(t, 3, slow.Dropped())
	_, ok := slow.Poll()
	assert.True(t, ok)
	_, ok = slow.Poll()
	assert.True(t, ok)
	_, ok = slow.Poll()
	assert.False(t, ok)
}

func TestSubscription_ReadBlocksUntilPublish(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(1)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	go func() {
		defer wg.Done()
		e, err := sub.Read(context.Background())
		assert.NoError(t, err)
		got = e
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Publish(Event{Kind: QueueFinished, Queue: "global"})
	wg.Wait()
	assert.Equal(t, "global", got.Queue)
}

func TestSubscription_ReadHonorsContext(t *testing.T) {
	sub := New().Subscribe(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := sub.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(2)
	bus.Publish(Event{Kind: TaskStateChanged})

	sub.Close()
	sub.Close()

	e, err := sub.Read(context.Background())
	require.NoError(t, err, "buffered events survive close")
	assert.Equal(t, TaskStateChanged, e.Kind)
	_, err = sub.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	bus.Close()
	late := bus.Subscribe(1)
	_, err = late.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	bus.Publish(Event{Kind: ArchivesLoaded})
}
