package queue

import (
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/uri"
)

// TaskState is the life-cycle state of a task or step.
type TaskState int32

const (
	Queued TaskState = iota
	Running
	Succeeded
	Failed
	Skipped
)

func (s TaskState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s TaskState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Finished reports whether the state is final.
func (s TaskState) Finished() bool { return s == Succeeded || s == Failed || s == Skipped }

// StepInfo is the outcome of one step of a task.
type StepInfo struct {
	Target   buildgraph.TargetID `json:"target"`
	State    TaskState           `json:"state"`
	Message  string              `json:"message,omitempty"`
	Duration time.Duration       `json:"duration,omitempty"`
}

// Task builds one source file towards a goal.
type Task struct {
	ID       uuid.UUID
	Queue    QueueID
	Archive  uri.ArchiveID
	Path     string
	Source   string
	Document uri.DocumentURI
	Format   buildgraph.FormatID
	// Fingerprint identifies (archive, path, targets); pending tasks with
	// the same fingerprint are merged.
	Fingerprint string

	state atomic.Int32
	done  chan struct{}

	mu    sync.Mutex
	steps []StepInfo
	err   string
}

func newTask(q QueueID, archive uri.ArchiveID, path string, plan []buildgraph.TargetID) *Task {
	t := &Task{
		ID:          uuid.New(),
		Queue:       q,
		Archive:     archive,
		Path:        path,
		Fingerprint: fingerprint(archive, path, plan),
		done:        make(chan struct{}),
		steps:       make([]StepInfo, len(plan)),
	}
	for i, id := range plan {
		t.steps[i] = StepInfo{Target: id, State: Queued}
	}
	return t
}

func fingerprint(archive uri.ArchiveID, path string, plan []buildgraph.TargetID) string {
	h := blake3.New()
	h.WriteString(archive.String())
	h.Write([]byte{0})
	h.WriteString(path)
	for _, id := range plan {
		h.Write([]byte{0})
		h.WriteString(id.String())
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// State returns the current state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

func (t *Task) transition(from, to TaskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

// Done is closed once the task reaches a final state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the failing step's message, empty unless the task failed.
func (t *Task) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Steps returns a snapshot of the step outcomes in execution order.
func (t *Task) Steps() []StepInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]StepInfo(nil), t.steps...)
}

func (t *Task) targets() []buildgraph.TargetID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]buildgraph.TargetID, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.Target
	}
	return out
}

func (t *Task) setStep(i int, s TaskState, msg string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps[i].State = s
	t.steps[i].Message = msg
	t.steps[i].Duration = d
}

// finish moves the task into its final state. Steps not yet run are marked
// skipped.
func (t *Task) finish(s TaskState, errMsg string) {
	t.mu.Lock()
	t.err = errMsg
	for i := range t.steps {
		if t.steps[i].State == Queued {
			t.steps[i].State = Skipped
		}
	}
	t.mu.Unlock()
	t.state.Store(int32(s))
	close(t.done)
}

// TaskInfo is a serializable snapshot of a task.
type TaskInfo struct {
	ID      uuid.UUID  `json:"id"`
	Queue   QueueID    `json:"queue"`
	Archive string     `json:"archive"`
	Path    string     `json:"path"`
	State   TaskState  `json:"state"`
	Error   string     `json:"error,omitempty"`
	Steps   []StepInfo `json:"steps"`
}

// Info snapshots the task.
func (t *Task) Info() TaskInfo {
	return TaskInfo{
		ID:      t.ID,
		Queue:   t.Queue,
		Archive: t.Archive.String(),
		Path:    t.Path,
		State:   t.State(),
		Error:   t.Err(),
		Steps:   t.Steps(),
	}
}
