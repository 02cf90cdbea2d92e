// Package cache keeps checked modules and documents in memory, keyed by URI.
//
// The cache is one holder of every artifact it stores. Entries that nobody
// else holds any more are dropped by Sweep, which runs automatically every
// threshold insertions.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/uri"
)

// DefaultThreshold is the number of insertions between automatic sweeps.
const DefaultThreshold = 500

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mathgrid_cache_lookups_total",
		Help: "Cache lookups by artifact kind and result",
	}, []string{"kind", "result"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mathgrid_cache_evictions_total",
		Help: "Entries removed by sweeps",
	})

	entriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mathgrid_cache_entries",
		Help: "Artifacts currently cached",
	})
)

// Cache maps URIs to checked artifacts.
type Cache struct {
	threshold  int64
	insertions atomic.Int64

	mu        sync.RWMutex
	modules   map[uri.ModuleURI]*content.Module
	documents map[uri.DocumentURI]*content.Document
}

// New creates an empty cache that sweeps every threshold insertions. A
// non-positive threshold selects DefaultThreshold.
func New(threshold int) *Cache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Cache{
		threshold: int64(threshold),
		modules:   make(map[uri.ModuleURI]*content.Module),
		documents: make(map[uri.DocumentURI]*content.Document),
	}
}

// GetModule returns a retained module. Nested module URIs are answered from
// their cached top-level module. The caller must Release the result.
func (c *Cache) GetModule(u uri.ModuleURI) (*content.Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.modules[u.TopLevel()]
	if ok && !u.IsTopLevel() {
		m, ok = m.Find(u)
	}
	if !ok {
		lookupsTotal.WithLabelValues("module", "miss").Inc()
		return nil, false
	}
	lookupsTotal.WithLabelValues("module", "hit").Inc()
	return m.Retain(), true
}

// HasModule reports whether the top-level module of u is cached, without
// retaining it.
func (c *Cache) HasModule(u uri.ModuleURI) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modules[u.TopLevel()]
	return ok
}

// InsertModule stores a top-level module, taking over the caller's hold on
// it, and returns a retained handle for the caller. If the URI is already
// cached the first insertion wins: m is released and the cached module is
// returned instead.
func (c *Cache) InsertModule(m *content.Module) *content.Module {
	root := m.Root()
	c.mu.Lock()
	if prev, ok := c.modules[root.URI()]; ok {
		prev = prev.Retain()
		c.mu.Unlock()
		root.Release()
		return prev
	}
	c.modules[root.URI()] = root
	entriesGauge.Inc()
	root = root.Retain()
	c.mu.Unlock()

	c.inserted()
	return root
}

// GetDocument returns a retained document. The caller must Release it.
func (c *Cache) GetDocument(u uri.DocumentURI) (*content.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.documents[u]
	if !ok {
		lookupsTotal.WithLabelValues("document", "miss").Inc()
		return nil, false
	}
	lookupsTotal.WithLabelValues("document", "hit").Inc()
	return d.Retain(), true
}

// InsertDocument behaves like InsertModule for documents.
func (c *Cache) InsertDocument(d *content.Document) *content.Document {
	c.mu.Lock()
	if prev, ok := c.documents[d.URI()]; ok {
		prev = prev.Retain()
		c.mu.Unlock()
		d.Release()
		return prev
	}
	c.documents[d.URI()] = d
	entriesGauge.Inc()
	d = d.Retain()
	c.mu.Unlock()

	c.inserted()
	return d
}

func (c *Cache) inserted() {
	if c.insertions.Add(1)%c.threshold == 0 {
		c.Sweep()
	}
}

// Remove drops the entry for a module or document URI and releases the
// cache's hold. Other holders keep their artifact alive.
func (c *Cache) Remove(u uri.URI) bool {
	var r content.Releaser
	c.mu.Lock()
	switch u := u.(type) {
	case uri.ModuleURI:
		if m, ok := c.modules[u.TopLevel()]; ok {
			delete(c.modules, u.TopLevel())
			r = m
		}
	case uri.DocumentURI:
		if d, ok := c.documents[u]; ok {
			delete(c.documents, u)
			r = d
		}
	}
	c.mu.Unlock()

	if r == nil {
		return false
	}
	entriesGauge.Dec()
	r.Release()
	return true
}

// RemoveWithDependents drops u like Remove, then every cached module or
// document holding a reference into a dropped module, transitively. A
// module URI cascades even when the module itself is not cached. It returns
// the number of entries dropped.
func (c *Cache) RemoveWithDependents(u uri.URI) int {
	var (
		victims []content.Releaser
		dropped []uri.ModuleURI
	)
	c.mu.Lock()
	switch u := u.(type) {
	case uri.ModuleURI:
		top := u.TopLevel()
		if m, ok := c.modules[top]; ok {
			delete(c.modules, top)
			victims = append(victims, m)
		}
		dropped = append(dropped, top)
	case uri.DocumentURI:
		if d, ok := c.documents[u]; ok {
			delete(c.documents, u)
			victims = append(victims, d)
		}
	}
	for len(dropped) > 0 {
		target := dropped[0]
		dropped = dropped[1:]
		for k, m := range c.modules {
			if m.References(target) {
				delete(c.modules, k)
				victims = append(victims, m)
				dropped = append(dropped, k)
			}
		}
		for k, d := range c.documents {
			if d.References(target) {
				delete(c.documents, k)
				victims = append(victims, d)
			}
		}
	}
	c.mu.Unlock()

	for _, v := range victims {
		v.Release()
	}
	entriesGauge.Sub(float64(len(victims)))
	return len(victims)
}

// Sweep removes every entry only the cache still holds and returns how many
// were removed. Releasing an entry may leave others held only by the cache,
// so it repeats until nothing more qualifies.
func (c *Cache) Sweep() int {
	total := 0
	for {
		var victims []content.Releaser
		c.mu.Lock()
		for u, m := range c.modules {
			if m.Holders() == 1 {
				delete(c.modules, u)
				victims = append(victims, m)
			}
		}
		for u, d := range c.documents {
			if d.Holders() == 1 {
				delete(c.documents, u)
				victims = append(victims, d)
			}
		}
		c.mu.Unlock()

		if len(victims) == 0 {
			return total
		}
		for _, v := range victims {
			v.Release()
		}
		total += len(victims)
		evictionsTotal.Add(float64(len(victims)))
		entriesGauge.Sub(float64(len(victims)))
	}
}

// Len is the number of cached modules and documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules) + len(c.documents)
}
