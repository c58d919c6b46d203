package task

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/cap/objpool"
	"github.com/joshuapare/capkit/cap/regionmap"
	"github.com/joshuapare/capkit/internal/abi"
	"github.com/joshuapare/capkit/internal/idgen"
	"github.com/joshuapare/capkit/internal/logger"
	"github.com/joshuapare/capkit/internal/tracing"
)

// Options configures a Registry. A nil *Options selects defaults.
type Options struct {
	// Logger receives exit and teardown diagnostics. Default: logger.For("task").
	Logger *slog.Logger
	// Sigma0 receives the first coverage dump request. Nil skips it.
	Sigma0 kernel.Sigma0
	// Debugger receives the kernel coverage dump request. Nil skips it.
	Debugger kernel.Debugger
	// Coverage is run on every exit before the debugger request. Nil
	// disables the coverage path entirely.
	Coverage func()
	// IDFunc generates task ids. Default: idgen.New.
	IDFunc func() string
}

// Registry owns the child tasks and destroys them when they finish.
type Registry struct {
	a    alloc.Allocator
	pool *objpool.Pool
	h    *hooks
	id   func() string

	mu    sync.Mutex
	tasks map[string]*Task
	seq   uint64
}

// NewRegistry creates a registry allocating task and thread slots from a and
// serving region maps through pool.
func NewRegistry(a alloc.Allocator, pool *objpool.Pool, opts *Options) *Registry {
	if opts == nil {
		opts = &Options{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = logger.For("task")
	}
	id := opts.IDFunc
	if id == nil {
		id = idgen.New
	}
	return &Registry{
		a:    a,
		pool: pool,
		h: &hooks{
			log:      lg,
			sigma0:   opts.Sigma0,
			debugger: opts.Debugger,
			coverage: opts.Coverage,
		},
		id:    id,
		tasks: make(map[string]*Task),
	}
}

// Spawn creates a task: the region map is registered in the object pool,
// then task and thread slots are allocated. On failure everything allocated
// so far is released and the error is returned.
func (r *Registry) Spawn(ctx context.Context, name string) (t *Task, err error) {
	_, sp := tracing.Start(ctx, "task.spawn", attribute.String("task.name", name))
	defer func() { sp.End(err) }()

	r.mu.Lock()
	r.seq++
	t = &Task{
		id:   r.id(),
		name: name,
		seq:  r.seq,
		rm:   regionmap.New(),
		h:    r.h,
	}
	r.mu.Unlock()

	if t.rmCap, err = r.pool.Register(t.rm, name+".rm"); err != nil {
		return nil, fmt.Errorf("task: spawn %s: region map: %w", name, err)
	}
	if t.taskCap, err = r.a.Alloc(t, name+".task"); err != nil {
		r.rollback(t)
		return nil, fmt.Errorf("task: spawn %s: task: %w", name, err)
	}
	t.taskCap = t.taskCap.As(alloc.KindTask)
	if t.threadCap, err = r.a.Alloc(t, name+".thread"); err != nil {
		r.rollback(t)
		return nil, fmt.Errorf("task: spawn %s: thread: %w", name, err)
	}
	t.threadCap = t.threadCap.As(alloc.KindThread)

	r.mu.Lock()
	r.tasks[t.id] = t
	r.mu.Unlock()

	sp.Set(attribute.String("task.id", t.id))
	r.h.log.DebugContext(ctx, "task spawned", "task", t.id, "name", name,
		"task_cap", t.taskCap.Index, "thread_cap", t.threadCap.Index, "rm_cap", t.rmCap.Index)
	return t, nil
}

// rollback releases the slots of a task that never started. No kernel
// objects exist behind them yet.
func (r *Registry) rollback(t *Task) {
	if t.threadCap.Valid() {
		_ = r.a.Free(t.threadCap, alloc.FreeKeepObject)
	}
	if t.taskCap.Valid() {
		_ = r.a.Free(t.taskCap, alloc.FreeKeepObject)
	}
	if t.rmCap.Valid() {
		_ = r.pool.Unregister(t.rmCap, alloc.FreeKeepObject)
	}
	t.state = Destroyed
}

// Signal delivers a signal to task id. When the task finishes it is removed
// from the registry and destroyed before Signal returns.
func (r *Registry) Signal(ctx context.Context, id string, sig, val uint64) (abi.Status, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return abi.ENOENT, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	out := t.OnSignal(ctx, sig, val)
	if !out.Finished {
		return out.Status, nil
	}

	ctx, sp := tracing.Start(ctx, "task.exit",
		attribute.String("task.id", t.id),
		attribute.String("task.name", t.name),
		attribute.Int64("task.exit_code", int64(val)),
	)

	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()

	err := r.destroy(ctx, t)
	sp.End(err)
	return out.Status, nil
}

// destroy releases every slot of t: region map first, then thread and task
// with their kernel objects. Failures are logged and do not stop the
// remaining releases.
func (r *Registry) destroy(ctx context.Context, t *Task) error {
	var errs []error

	if err := r.pool.Unregister(t.rmCap, alloc.FreeDeleteObject); err != nil {
		errs = append(errs, fmt.Errorf("region map %s: %w", t.rmCap, err))
	}
	t.rm.Clear()
	if err := r.a.Free(t.threadCap, alloc.FreeDeleteObject); err != nil {
		errs = append(errs, fmt.Errorf("thread %s: %w", t.threadCap, err))
	}
	if err := r.a.Free(t.taskCap, alloc.FreeDeleteObject); err != nil {
		errs = append(errs, fmt.Errorf("task %s: %w", t.taskCap, err))
	}

	t.mu.Lock()
	t.state = Destroyed
	t.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		r.h.log.ErrorContext(ctx, "task teardown incomplete", "task", t.id, "name", t.name, "err", err)
	} else {
		r.h.log.DebugContext(ctx, "task destroyed", "task", t.id, "name", t.name)
	}
	return err
}

// Lookup returns the running task with the given id.
func (r *Registry) Lookup(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Len returns the number of tasks held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Tasks returns the tasks held, in spawn order.
func (r *Registry) Tasks() []*Task {
	r.mu.Lock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *Task) int { return cmp.Compare(a.seq, b.seq) })
	return out
}
