package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/cap/regionmap"
	"github.com/joshuapare/capkit/internal/abi"
)

// ErrUnknownTask indicates a signal for a task the registry does not hold.
var ErrUnknownTask = errors.New("task: unknown task")

// State is the lifecycle state of a Task.
type State uint8

const (
	Running State = iota
	Terminating
	Destroyed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Outcome is the result of handling a signal.
type Outcome struct {
	// Finished means the task is done and its owner must destroy it.
	Finished bool
	// Status is returned to the transport. ENOREPLY suppresses the reply.
	Status abi.Status
}

// hooks are the exit-time collaborators shared by all tasks of a registry.
type hooks struct {
	log      *slog.Logger
	sigma0   kernel.Sigma0
	debugger kernel.Debugger
	coverage func()
}

// Task is one child task and the slots it holds.
type Task struct {
	id   string
	name string
	seq  uint64

	taskCap   alloc.Cap
	threadCap alloc.Cap
	rmCap     alloc.Cap
	rm        *regionmap.Map

	h *hooks

	mu       sync.Mutex
	state    State
	exitCode int64
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Name returns the name the task was spawned with.
func (t *Task) Name() string { return t.name }

// TaskCap returns the capability of the task object.
func (t *Task) TaskCap() alloc.Cap { return t.taskCap }

// ThreadCap returns the capability of the main thread.
func (t *Task) ThreadCap() alloc.Cap { return t.threadCap }

// RegionMapCap returns the capability the region map is served under.
func (t *Task) RegionMapCap() alloc.Cap { return t.rmCap }

// RegionMap returns the task's region map.
func (t *Task) RegionMap() *regionmap.Map { return t.rm }

// Caps returns every capability the task holds.
func (t *Task) Caps() []alloc.Cap {
	return []alloc.Cap{t.taskCap, t.threadCap, t.rmCap}
}

// State returns the lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ExitCode returns the exit code once the task has exited.
func (t *Task) ExitCode() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// OnSignal handles a signal from the parent protocol.
//
// Only abi.SignalExit changes anything. It moves a running task to
// Terminating and returns a finished outcome with abi.ENOREPLY: the child
// is gone and must not be answered. Every other signal returns abi.EOK.
// A second exit for the same task is rejected with abi.EINVAL.
func (t *Task) OnSignal(ctx context.Context, sig, val uint64) Outcome {
	if sig != abi.SignalExit {
		return Outcome{Status: abi.EOK}
	}

	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return Outcome{Status: abi.EINVAL}
	}
	t.state = Terminating
	t.exitCode = int64(val)
	t.mu.Unlock()

	if val != 0 {
		t.h.log.Warn("task exited with error", "task", t.id, "name", t.name, "code", int64(val))
	}
	t.dumpCoverage(ctx)

	return Outcome{Finished: true, Status: abi.ENOREPLY}
}

// dumpCoverage runs the coverage hook, then asks sigma0 and the kernel
// debugger, in that order, to dump their coverage data.
func (t *Task) dumpCoverage(ctx context.Context) {
	if t.h.coverage == nil {
		return
	}
	t.h.coverage()
	if t.h.sigma0 != nil {
		if err := t.h.sigma0.DumpCoverage(); err != nil {
			t.h.log.DebugContext(ctx, "sigma0 coverage dump failed", "task", t.id, "err", err)
		}
	}
	if t.h.debugger == nil {
		return
	}

	var mr abi.MsgRegs
	mr[0] = abi.DebuggerDumpCoverage
	tag := abi.NewMsgTag(abi.ProtoDebugger, 1, 0, 0)
	if err := t.h.debugger.Call(abi.DebuggerCap, tag, &mr); err != nil {
		t.h.log.DebugContext(ctx, "coverage dump request failed", "task", t.id, "err", err)
	}
}
