package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/queue"
	"github.com/vk/mathgrid/internal/relay"
	"github.com/vk/mathgrid/internal/triples"
	"github.com/vk/mathgrid/internal/uri"
)

// Load discovers the archives under the configured roots.
func (a *App) Load(ctx context.Context) error {
	ctx = a.Context(ctx)
	return a.archives.Load(ctx, a.config.ArchiveRoots...)
}

// BuildRequest selects what Build builds. No Paths means every file of the
// archive that needs a build; a zero Goal means the format's own goals.
type BuildRequest struct {
	Archive uri.ArchiveID
	Paths   []string
	Goal    buildgraph.ArtifactTypeID
}

// Build enqueues the requested files on the global queue and runs it. It
// returns the tasks in enqueue order; failed tasks are reported through
// their state, not the error.
func (a *App) Build(ctx context.Context, req BuildRequest) ([]*queue.Task, error) {
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)

	var tasks []*queue.Task
	if len(req.Paths) == 0 {
		stale, err := a.queue.EnqueueStale(ctx, queue.Global, req.Archive)
		if err != nil {
			return nil, err
		}
		tasks = stale
	}
	for _, p := range req.Paths {
		t, err := a.queue.Enqueue(ctx, queue.Global, req.Archive, p, req.Goal)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		logger.Info("Nothing to build.", "archive", req.Archive.String())
		return nil, nil
	}

	logger.Info("🚀 Starting build...", "archive", req.Archive.String(), "tasks", len(tasks))
	if err := a.queue.StartQueue(ctx, queue.Global); err != nil {
		return tasks, err
	}
	logger.Info("🏁 Build finished.")
	return tasks, nil
}

// Query answers a triple pattern against the relations of all built
// documents.
func (a *App) Query(ctx context.Context, text string) (*triples.ResultSet, error) {
	return a.triples.Query(a.Context(ctx), text)
}

// Serve runs until ctx is done: it watches the archives, rebuilds what
// goes stale, and runs the status server and relay when configured.
func (a *App) Serve(ctx context.Context) error {
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)
	g, ctx := errgroup.WithContext(ctx)

	if a.config.Server.Port > 0 {
		if err := a.startStatusServer(ctx, a.config.Server.Port); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return a.closeStatusServer(context.Background())
		})
	}

	if a.config.Relay.URL != "" {
		r, err := relay.Dial(ctx, relay.Config{
			URL:       a.config.Relay.URL,
			Namespace: a.config.Relay.Namespace,
			Event:     a.config.Relay.Event,
		})
		if err != nil {
			logger.Warn("Relay disabled.", "error", err)
		} else {
			sub := a.bus.Subscribe(notify.DefaultBuffer)
			g.Go(func() error {
				defer r.Close()
				defer sub.Close()
				if err := r.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("relay: %w", err)
				}
				return nil
			})
		}
	}

	rebuild := a.bus.Subscribe(notify.DefaultBuffer)
	g.Go(func() error {
		defer rebuild.Close()
		return a.rebuildLoop(ctx, rebuild, archives.DefaultDebounce)
	})
	g.Go(func() error { return a.archives.Watch(ctx, archives.DefaultDebounce) })

	// Bring everything up to date once before waiting for changes.
	for _, id := range a.archives.Archives() {
		if _, err := a.queue.EnqueueStale(ctx, queue.Global, id); err != nil {
			logger.Warn("Cannot enqueue stale files.", "archive", id.String(), "error", err)
		}
	}
	g.Go(func() error { return a.drain(ctx) })

	return g.Wait()
}

// rebuildLoop enqueues the stale files of every archive that reported a
// changed file state, once changes have been quiet for debounce.
func (a *App) rebuildLoop(ctx context.Context, sub *notify.Subscription, debounce time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	dirty := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	events := make(chan notify.Event)
	go func() {
		defer close(events)
		for {
			e, err := sub.Read(ctx)
			if err != nil {
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Kind != notify.FileStateChanged || e.Archive == "" {
				continue
			}
			dirty[e.Archive] = true
			timer.Reset(debounce)
		case <-timer.C:
			for name := range dirty {
				id, err := uri.ParseArchiveID(name)
				if err != nil {
					continue
				}
				if _, err := a.queue.EnqueueStale(ctx, queue.Global, id); err != nil {
					logger.Warn("Cannot enqueue stale files.", "archive", name, "error", err)
				}
			}
			clear(dirty)
			if err := a.drain(ctx); err != nil {
				return err
			}
		}
	}
}

// drain runs the global queue unless it is already running.
func (a *App) drain(ctx context.Context) error {
	err := a.queue.StartQueue(ctx, queue.Global)
	switch {
	case errors.Is(err, queue.ErrQueueRunning), errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}
