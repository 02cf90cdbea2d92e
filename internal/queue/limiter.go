package queue

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many tasks run at once. Use Linear or Counting.
type Limiter interface {
	acquire(ctx context.Context) error
	release()
	// inline reports whether tasks run one after another on the caller's
	// goroutine.
	inline() bool
	String() string
}

type linear struct{}

// Linear runs tasks strictly one at a time on the goroutine draining the
// queue. Useful for deterministic and test environments.
func Linear() Limiter { return linear{} }

func (linear) acquire(context.Context) error { return nil }
func (linear) release()                      {}
func (linear) inline() bool                  { return true }
func (linear) String() string                { return "linear" }

type counting struct {
	sem     *semaphore.Weighted
	permits int64
}

// Counting runs up to permits tasks in parallel. Permits are shared by all
// queues of a manager; acquiring one may block.
func Counting(permits int) Limiter {
	if permits < 1 {
		panic("queue: counting limiter needs at least one permit")
	}
	return &counting{sem: semaphore.NewWeighted(int64(permits)), permits: int64(permits)}
}

func (c *counting) acquire(ctx context.Context) error { return c.sem.Acquire(ctx, 1) }
func (c *counting) release()                          { c.sem.Release(1) }
func (c *counting) inline() bool                      { return false }
func (c *counting) String() string                    { return fmt.Sprintf("counting(%d)", c.permits) }
