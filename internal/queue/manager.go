// Package queue schedules build tasks against the build graph. Each named
// queue holds pending tasks; StartQueue drains one queue under the
// manager's Limiter. Failures stay inside the task that produced them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/uri"
)

// QueueID names a queue.
type QueueID string

// Global is the queue that always exists.
const Global QueueID = "global"

var (
	ErrQueueNotFound = errors.New("queue not found")
	ErrQueueExists   = errors.New("queue already exists")
	ErrQueueRunning  = errors.New("queue is already running")
	ErrFileNotFound  = errors.New("source file not found")
)

// Archives is the part of the archive manager the queue needs.
type Archives interface {
	WithArchive(id uri.ArchiveID, f func(*archives.Archive)) bool
	RecordBuild(id uri.ArchiveID, rel string, target buildgraph.TargetID, at time.Time) error
}

// Options configures a Manager.
type Options struct {
	// Limiter defaults to Linear.
	Limiter  Limiter
	Registry *buildgraph.Registry
	Archives Archives
	// Bus is optional.
	Bus *notify.Bus
}

// Queue is a named list of tasks. Access it through Manager.GetQueue.
type Queue struct {
	id QueueID

	mu      sync.Mutex
	pending []*Task
	tasks   []*Task
	running bool
}

// ID returns the queue's name.
func (q *Queue) ID() QueueID { return q.id }

// Tasks returns every task enqueued so far, oldest first.
func (q *Queue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Task(nil), q.tasks...)
}

// Pending is the number of tasks not yet picked up.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running reports whether StartQueue is draining the queue.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

// QueueStatus summarizes a queue.
type QueueStatus struct {
	ID      QueueID           `json:"id"`
	Running bool              `json:"running"`
	Pending int               `json:"pending"`
	Counts  map[TaskState]int `json:"counts"`
	Tasks   []TaskInfo        `json:"tasks"`
}

// Manager owns the queues and the limiter they share.
type Manager struct {
	limiter  Limiter
	registry *buildgraph.Registry
	archives Archives
	bus      *notify.Bus

	mu     sync.RWMutex
	queues map[QueueID]*Queue
	tasks  map[uuid.UUID]*Task
}

var (
	initOnce sync.Once
	instance atomic.Pointer[Manager]
)

// Init creates the process-wide manager. Later calls return the first
// manager and ignore opts.
func Init(opts Options) *Manager {
	initOnce.Do(func() { instance.Store(New(opts)) })
	return instance.Load()
}

// Get returns the manager created by Init. Calling it before Init is a
// wiring bug and panics.
func Get() *Manager {
	m := instance.Load()
	if m == nil {
		panic("queue: Get called before Init")
	}
	return m
}

// New creates an isolated manager with only the Global queue.
func New(opts Options) *Manager {
	if opts.Limiter == nil {
		opts.Limiter = Linear()
	}
	m := &Manager{
		limiter:  opts.Limiter,
		registry: opts.Registry,
		archives: opts.Archives,
		bus:      opts.Bus,
		queues:   make(map[QueueID]*Queue),
		tasks:    make(map[uuid.UUID]*Task),
	}
	m.queues[Global] = &Queue{id: Global}
	return m
}

// Limiter returns the manager's limiter.
func (m *Manager) Limiter() Limiter { return m.limiter }

// NewQueue creates an empty queue.
func (m *Manager) NewQueue(id QueueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[id]; ok {
		return fmt.Errorf("%w: %s", ErrQueueExists, id)
	}
	m.queues[id] = &Queue{id: id}
	return nil
}

// GetQueue runs f with the named queue under the manager's read lock. It
// reports whether the queue exists.
func (m *Manager) GetQueue(id QueueID, f func(*Queue)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[id]
	if !ok {
		return false
	}
	f(q)
	return true
}

// WithGlobal runs f with the Global queue.
func (m *Manager) WithGlobal(f func(*Queue)) {
	m.GetQueue(Global, f)
}

// Queues lists the queue ids, sorted.
func (m *Manager) Queues() []QueueID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QueueID, 0, len(m.queues))
	for id := range m.queues {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) queue(id QueueID) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, id)
	}
	return q, nil
}

// Task looks up a task by id.
func (m *Manager) Task(id uuid.UUID) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Enqueue adds a task building path in archive towards goal. A zero goal
// builds the format's default goals. A pending task for the same file and
// plan is returned instead of a duplicate.
func (m *Manager) Enqueue(ctx context.Context, id QueueID, archive uri.ArchiveID, path string, goal buildgraph.ArtifactTypeID) (*Task, error) {
	logger := ctxlog.FromContext(ctx)
	q, err := m.queue(id)
	if err != nil {
		return nil, err
	}
	t, err := m.newTask(id, archive, path, goal)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	for _, p := range q.pending {
		if p.Fingerprint == t.Fingerprint {
			q.mu.Unlock()
			logger.Debug("Queue: Task already pending.", "queue", id, "task", p.ID, "path", path)
			return p, nil
		}
	}
	q.pending = append(q.pending, t)
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	logger.Debug("Queue: Task enqueued.", "queue", id, "task", t.ID, "archive", archive.String(), "path", path, "steps", len(t.steps))
	m.publish(t, "")
	return t, nil
}

// EnqueueStale enqueues every file of archive that has a target needing a
// build.
func (m *Manager) EnqueueStale(ctx context.Context, id QueueID, archive uri.ArchiveID) ([]*Task, error) {
	var files []archives.SourceFile
	if !m.archives.WithArchive(archive, func(a *archives.Archive) { files = a.Files() }) {
		return nil, fmt.Errorf("%w: %s", archives.ErrArchiveNotFound, archive)
	}
	var out []*Task
	for _, f := range files {
		if !m.needsBuild(archive, f.Path, f.Format) {
			continue
		}
		t, err := m.Enqueue(ctx, id, archive, f.Path, buildgraph.ArtifactTypeID{})
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Manager) newTask(q QueueID, archive uri.ArchiveID, path string, goal buildgraph.ArtifactTypeID) (*Task, error) {
	var (
		file   archives.SourceFile
		found  bool
		doc    uri.DocumentURI
		source string
		docErr error
	)
	ok := m.archives.WithArchive(archive, func(a *archives.Archive) {
		file, found = a.File(path)
		if found {
			source = a.SourcePath(path)
			doc, docErr = a.DocumentURI(path)
		}
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", archives.ErrArchiveNotFound, archive)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s in %s", ErrFileNotFound, path, archive)
	}
	if docErr != nil {
		return nil, docErr
	}

	plan, err := m.plan(file.Format, goal)
	if err != nil {
		return nil, err
	}
	t := newTask(q, archive, path, plan)
	t.Source = source
	t.Document = doc
	t.Format = file.Format
	return t, nil
}

func (m *Manager) plan(format buildgraph.FormatID, goal buildgraph.ArtifactTypeID) ([]buildgraph.TargetID, error) {
	if goal == (buildgraph.ArtifactTypeID{}) {
		return m.registry.PlanGoals(format)
	}
	return m.registry.Plan(format, goal)
}

// needsBuild reports whether any target of the file's default plan is New
// or Stale.
func (m *Manager) needsBuild(archive uri.ArchiveID, path string, format buildgraph.FormatID) bool {
	plan, err := m.registry.PlanGoals(format)
	if err != nil {
		return false
	}
	needed := false
	m.archives.WithArchive(archive, func(a *archives.Archive) {
		for _, id := range plan {
			if a.FileState(path, id).NeedsBuild() {
				needed = true
				return
			}
		}
	})
	return needed
}

// Clear drops the pending tasks of every queue, marking them Skipped.
// Running tasks finish normally.
func (m *Manager) Clear() int {
	m.mu.RLock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	n := 0
	for _, q := range queues {
		q.mu.Lock()
		pending := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, t := range pending {
			if t.transition(Queued, Skipped) {
				t.finish(Skipped, "cleared")
				tasksTotal.WithLabelValues(Skipped.String()).Inc()
				m.publish(t, "cleared")
				n++
			}
		}
	}
	return n
}

// Status summarizes a queue.
func (m *Manager) Status(id QueueID) (QueueStatus, bool) {
	var s QueueStatus
	ok := m.GetQueue(id, func(q *Queue) {
		s = QueueStatus{
			ID:      q.id,
			Running: q.Running(),
			Pending: q.Pending(),
			Counts:  make(map[TaskState]int),
		}
		for _, t := range q.Tasks() {
			info := t.Info()
			s.Counts[info.State]++
			s.Tasks = append(s.Tasks, info)
		}
	})
	return s, ok
}

func (m *Manager) publish(t *Task, msg string) {
	if m.bus == nil {
		return
	}
	if msg == "" {
		msg = t.State().String()
	}
	m.bus.Publish(notify.Event{
		Kind:    notify.TaskStateChanged,
		Archive: t.Archive.String(),
		Path:    t.Path,
		Queue:   string(t.Queue),
		Task:    t.ID.String(),
		Message: msg,
	})
}
