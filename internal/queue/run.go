package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/content"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
	"github.com/vk/mathgrid/internal/uri"
)

// StartQueue drains the queue's pending tasks under the manager's limiter
// and blocks until every started task has finished. Tasks enqueued while
// draining are picked up too, including those enqueued while the last
// started tasks were still running. A cancelled ctx stops taking new tasks;
// the remaining ones stay pending.
func (m *Manager) StartQueue(ctx context.Context, id QueueID) error {
	logger := ctxlog.FromContext(ctx).With("queue", id)
	q, err := m.queue(id)
	if err != nil {
		return err
	}
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrQueueRunning, id)
	}
	q.running = true
	q.mu.Unlock()

	logger.Info("Queue: Starting.", "limiter", m.limiter.String(), "pending", q.Pending())
	ctx = ctxlog.WithLogger(ctx, logger)

	var (
		started int
		runErr  error
	)
	for {
		var n int
		n, runErr = m.drainPending(ctx, q)
		started += n
		if q.stopIfDrained(runErr) {
			break
		}
	}

	logger.Info("Queue: Finished.", "tasks", started)
	if m.bus != nil {
		m.bus.Publish(notify.Event{
			Kind:    notify.QueueFinished,
			Queue:   string(id),
			Message: fmt.Sprintf("%d tasks", started),
		})
	}
	return runErr
}

// drainPending runs pending tasks until none is left or ctx is done, and
// waits for the started ones. The permit is taken before a task leaves the
// pending list, so Clear sees every task that has not started.
func (m *Manager) drainPending(ctx context.Context, q *Queue) (int, error) {
	var (
		wg      sync.WaitGroup
		started int
		runErr  error
	)
	for {
		if m.limiter.inline() {
			t := q.next()
			if t == nil {
				break
			}
			if t.transition(Queued, Running) {
				started++
				m.runTask(ctx, t)
			}
			if runErr = ctx.Err(); runErr != nil {
				break
			}
			continue
		}

		if runErr = m.limiter.acquire(ctx); runErr != nil {
			break
		}
		t := q.next()
		if t == nil {
			m.limiter.release()
			break
		}
		if !t.transition(Queued, Running) {
			m.limiter.release()
			continue
		}
		started++
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			defer m.limiter.release()
			m.runTask(ctx, t)
		}(t)
	}
	wg.Wait()
	return started, runErr
}

// stopIfDrained clears the running flag unless work arrived while the last
// pass was finishing and the pass ended without error. The check and the
// flag change happen under one lock so no enqueue falls in between.
func (q *Queue) stopIfDrained(runErr error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if runErr == nil && len(q.pending) > 0 {
		return false
	}
	q.running = false
	return true
}

func (m *Manager) runTask(ctx context.Context, t *Task) {
	logger := ctxlog.FromContext(ctx).With("task", t.ID, "archive", t.Archive.String(), "path", t.Path)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Starting build task")
	runningTasks.Inc()
	defer runningTasks.Dec()
	m.publish(t, "")

	m.buildDependencies(ctx, t.Archive, t.Path, t.Format, map[string]bool{depKey(t.Archive, t.Path): true})

	state, msg := m.execute(ctx, t.Archive, t.Path, t.targets(), t.setStep)
	t.finish(state, msg)
	tasksTotal.WithLabelValues(state.String()).Inc()
	m.publish(t, "")

	if state == Failed {
		logger.Error("❌ Build task failed", "error", msg)
		return
	}
	logger.Info("✅ Finished build task")
}

func depKey(archive uri.ArchiveID, path string) string {
	return archive.String() + "\x00" + path
}

// buildDependencies brings the dependencies reported by the file's format
// up to date, depth first, on the calling goroutine. visiting guards
// against dependency cycles. Failures are logged and do not fail the
// dependent task.
func (m *Manager) buildDependencies(ctx context.Context, archive uri.ArchiveID, path string, format buildgraph.FormatID, visiting map[string]bool) {
	logger := ctxlog.FromContext(ctx)
	f, ok := m.registry.Format(format)
	if !ok || f.Dependencies == nil {
		return
	}
	in, ok := m.stepInput(archive, path)
	if !ok {
		return
	}
	deps, err := f.Dependencies(ctx, in)
	if err != nil {
		logger.Warn("Could not determine dependencies.", "error", err)
		return
	}

	for _, d := range deps {
		key := depKey(d.Archive, d.Path)
		if visiting[key] {
			continue
		}
		visiting[key] = true

		var (
			file  archives.SourceFile
			found bool
		)
		m.archives.WithArchive(d.Archive, func(a *archives.Archive) { file, found = a.File(d.Path) })
		if !found || !m.needsBuild(d.Archive, d.Path, file.Format) {
			continue
		}
		m.buildDependencies(ctx, d.Archive, d.Path, file.Format, visiting)

		plan, err := m.registry.PlanGoals(file.Format)
		if err != nil {
			logger.Warn("Dependency cannot be built.", "dependency", d.Path, "error", err)
			continue
		}
		depCtx := ctxlog.With(ctx, "dependency", d.Path, "dependency_archive", d.Archive.String())
		ctxlog.FromContext(depCtx).Debug("Building dependency.")
		if state, msg := m.execute(depCtx, d.Archive, d.Path, plan, discardSteps); state == Failed {
			ctxlog.FromContext(depCtx).Warn("Dependency build failed.", "error", msg)
		}
	}
}

func (m *Manager) stepInput(archive uri.ArchiveID, path string) (*buildgraph.StepInput, bool) {
	in := &buildgraph.StepInput{Archive: archive, Path: path}
	var err error
	ok := m.archives.WithArchive(archive, func(a *archives.Archive) {
		in.Source = a.SourcePath(path)
		in.Document, err = a.DocumentURI(path)
	})
	return in, ok && err == nil
}

// stepSink receives the outcome of each step.
type stepSink func(i int, s TaskState, msg string, d time.Duration)

// Dependency builds have no task record.
func discardSteps(int, TaskState, string, time.Duration) {}

// execute runs plan for one file. Each Intermediate artifact becomes the
// next step's input; an artifact that is replaced or left over at the end
// is released if it holds content. Err stops the plan.
func (m *Manager) execute(ctx context.Context, archive uri.ArchiveID, path string, plan []buildgraph.TargetID, sink stepSink) (TaskState, string) {
	logger := ctxlog.FromContext(ctx)
	in, ok := m.stepInput(archive, path)
	if !ok {
		return Failed, fmt.Sprintf("cannot resolve %s in %s", path, archive)
	}

	var artifact any
	defer func() { releaseArtifact(artifact) }()

	for i, id := range plan {
		target, ok := m.registry.Target(id)
		if !ok {
			msg := fmt.Sprintf("unknown target '%s'", id)
			sink(i, Failed, msg, 0)
			return Failed, msg
		}
		sink(i, Running, "", 0)
		in.Target = id
		in.Input = artifact

		stepLogger := logger.With("target", id.String())
		stepLogger.Debug("Running step.")
		start := time.Now()
		res := runStep(ctx, stepLogger, target.Run, in)
		elapsed := time.Since(start)
		stepDuration.WithLabelValues(id.String(), res.Kind().String()).Observe(elapsed.Seconds())

		switch res.Kind() {
		case buildgraph.ResultErr:
			sink(i, Failed, res.Message(), elapsed)
			return Failed, fmt.Sprintf("%s: %s", id, res.Message())
		case buildgraph.ResultIntermediate:
			if prev, ok := artifact.(content.Releaser); ok {
				if next, ok := res.Artifact().(content.Releaser); !ok || next != prev {
					prev.Release()
				}
			}
			artifact = res.Artifact()
		case buildgraph.ResultFinal:
			releaseArtifact(artifact)
			artifact = nil
		}
		sink(i, Succeeded, "", elapsed)
		stepLogger.Debug("Step finished.", "result", res.Kind().String(), "duration", elapsed)

		if err := m.archives.RecordBuild(archive, path, id, start); err != nil {
			stepLogger.Warn("Could not record build.", "error", err)
		}
	}
	return Succeeded, ""
}

// runStep calls run, turning a panic into an Err result so one broken step
// cannot take down the queue.
func runStep(ctx context.Context, logger *slog.Logger, run buildgraph.StepFunc, in *buildgraph.StepInput) (res buildgraph.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Step panicked.", "panic", r, "stack", string(debug.Stack()))
			res = buildgraph.Errf("panic: %v", r)
		}
	}()
	if run == nil {
		return buildgraph.None()
	}
	return run(ctx, in)
}

func releaseArtifact(a any) {
	if r, ok := a.(content.Releaser); ok {
		r.Release()
	}
}
