package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/backend"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/cache"
	"github.com/vk/mathgrid/internal/config"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/formats"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/queue"
	"github.com/vk/mathgrid/internal/triples"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *config.Config

	bus      *notify.Bus
	registry *buildgraph.Registry
	archives *archives.Manager
	cache    *cache.Cache
	backend  *backend.Backend
	triples  *triples.Store
	queue    *queue.Manager

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// wired App with its own logger, registry and stores. modules replace the
// built-in formats when given. A build graph that fails validation is a
// programmer error and panics.
func NewApp(outW io.Writer, cfg *config.Config, modules ...formats.Module) (*App, error) {
	logger := newLogger(cfg.Log, outW)
	logger.Debug("Logger configured successfully.")

	store, err := triples.Open(triples.Config{
		Path:     cfg.TripleStore.Path,
		InMemory: cfg.TripleStore.InMemory,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open triple store: %w", err)
	}

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		bus:      notify.New(),
		registry: buildgraph.New(logger),
		cache:    cache.New(cfg.Cache.EvictionThreshold),
		triples:  store,
	}
	a.archives = archives.NewManager(a.registry, a.bus)
	a.backend = backend.New(a.archives, a.cache)

	if len(modules) == 0 {
		modules = a.coreModules()
	}
	for _, mod := range modules {
		mod.Register(a.registry)
	}
	logger.Debug("All modules registered.", "count", len(modules))

	if err := a.registry.Seal(); err != nil {
		_ = store.Close()
		panic(err)
	}
	logger.Debug("Build graph validation passed.")

	var limiter queue.Limiter
	if cfg.Queue.Mode == config.QueueLinear {
		limiter = queue.Linear()
	} else {
		limiter = queue.Counting(cfg.Queue.Permits)
	}
	a.queue = queue.New(queue.Options{
		Limiter:  limiter,
		Registry: a.registry,
		Archives: a.archives,
		Bus:      a.bus,
	})
	return a, nil
}

// Context returns ctx carrying the app's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) Registry() *buildgraph.Registry { return a.registry }
func (a *App) Archives() *archives.Manager     { return a.archives }
func (a *App) Backend() *backend.Backend       { return a.backend }
func (a *App) Queue() *queue.Manager           { return a.queue }
func (a *App) Triples() *triples.Store         { return a.triples }
func (a *App) Bus() *notify.Bus                { return a.bus }

// Close releases the stores and stops the status server if it runs.
func (a *App) Close() error {
	a.logger.Debug("Closing app.")
	var errs []error
	if err := a.closeStatusServer(context.Background()); err != nil {
		errs = append(errs, err)
	}
	a.queue.Clear()
	a.bus.Close()
	if err := a.triples.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing triple store: %w", err))
	}
	return errors.Join(errs...)
}
