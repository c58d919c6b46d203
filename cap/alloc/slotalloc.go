package alloc

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joshuapare/capkit/cap/slot"
	"github.com/joshuapare/capkit/internal/logger"
)

// DefaultName is the diagnostic component name of an allocator.
const DefaultName = "Cap_alloc"

// Runtime debug flag for per-slot logging - controlled by CAPKIT_LOG_ALLOC env var.
var logAllocEnv = os.Getenv("CAPKIT_LOG_ALLOC") != ""

// Options configures a SlotAllocator. A nil *Options selects defaults.
type Options struct {
	// Name is the diagnostic component name. Default: DefaultName.
	Name string
	// Logger receives diagnostics. Default: logger.For(Name).
	Logger *slog.Logger
	// Deleter receives non-zero free flags. Nil disables object deletion.
	Deleter ObjectDeleter
	// LogAlloc emits a debug record per Alloc/Free. Also enabled by
	// CAPKIT_LOG_ALLOC.
	LogAlloc bool
}

// SlotAllocator hands out capability slots from a fixed pool
// [base, base+capacity).
type SlotAllocator struct {
	mu sync.Mutex

	base    int
	st      *slot.Storage
	owners  []any
	deleter ObjectDeleter

	log      *slog.Logger
	logAlloc bool

	stats Stats
}

// New creates an allocator managing capacity slots starting at base.
func New(base, capacity int, opts *Options) (*SlotAllocator, error) {
	if base < 0 {
		return nil, fmt.Errorf("alloc: negative base offset %d", base)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("alloc: capacity must be positive, got %d", capacity)
	}
	if opts == nil {
		opts = &Options{}
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	lg := opts.Logger
	if lg == nil {
		lg = logger.For(name)
	} else {
		lg = lg.With("component", name)
	}

	a := &SlotAllocator{
		base:     base,
		st:       slot.New(capacity),
		owners:   make([]any, capacity),
		deleter:  opts.Deleter,
		log:      lg,
		logAlloc: opts.LogAlloc || logAllocEnv,
	}
	a.stats.Base = base
	a.stats.Capacity = capacity
	a.stats.HighWater = base

	lg.Debug("allocator ready", "base", base, "capacity", capacity)
	return a, nil
}

// Base returns the first index of the pool.
func (a *SlotAllocator) Base() int { return a.base }

// Cap returns the pool capacity.
func (a *SlotAllocator) Cap() int { return a.st.Cap() }

// Contains reports whether c falls inside the pool.
func (a *SlotAllocator) Contains(c Cap) bool {
	_, ok := a.index(c)
	return c.Valid() && ok
}

// Alloc implements Allocator.
func (a *SlotAllocator) Alloc(owner any, label string) (Cap, error) {
	if !isComparable(owner) {
		return Invalid, fmt.Errorf("%w: %T", ErrBadOwner, owner)
	}

	a.mu.Lock()
	a.stats.AllocCalls++
	idx, ok := a.st.FindFree()
	if !ok {
		a.stats.Exhausted++
		a.mu.Unlock()
		a.log.Warn("capability slots exhausted", "label", label, "capacity", a.st.Cap())
		return Invalid, fmt.Errorf("%w: %d of %d in use", ErrExhausted, a.st.Cap(), a.st.Cap())
	}
	if err := a.st.MarkAllocated(idx, label); err != nil {
		a.mu.Unlock()
		return Invalid, err
	}
	a.owners[idx] = owner
	c := Cap{Index: a.base + idx, Kind: KindGeneric}
	if c.Index+1 > a.stats.HighWater {
		a.stats.HighWater = c.Index + 1
	}
	a.mu.Unlock()

	if a.logAlloc {
		a.log.Debug("alloc", "cap", c.Index, "label", label)
	}
	return c, nil
}

// Free implements Allocator.
//
// Freeing Invalid is a no-op. A slot inside the pool that was never handed
// out reports ErrInvalidHandle; one that was handed out and already
// returned reports ErrDoubleFree.
func (a *SlotAllocator) Free(c Cap, flags FreeFlags) error {
	if !c.Valid() {
		return nil
	}

	a.mu.Lock()
	a.stats.FreeCalls++
	idx, ok := a.index(c)
	if !ok {
		a.stats.InvalidFrees++
		a.mu.Unlock()
		return fmt.Errorf("%w: %s outside [0x%x, 0x%x)", ErrInvalidHandle, c, a.base, a.base+a.st.Cap())
	}
	rec, err := a.st.Record(idx)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if rec.State != slot.Allocated {
		if rec.Gen == 0 {
			a.stats.InvalidFrees++
			a.mu.Unlock()
			return fmt.Errorf("%w: %s was never allocated", ErrInvalidHandle, c)
		}
		a.stats.DoubleFrees++
		a.mu.Unlock()
		a.log.Error("double free", "cap", c.Index, "label", rec.Tag.String(), "gen", rec.Gen)
		return fmt.Errorf("%w: %s (last label %q)", ErrDoubleFree, c, rec.Tag.String())
	}

	var derr error
	if flags != FreeKeepObject && a.deleter != nil {
		derr = a.deleter.DeleteObject(c.Raw(), uint64(flags))
		if derr != nil {
			a.stats.DeleteErrors++
		}
	}
	if err := a.st.MarkFree(idx); err != nil {
		a.mu.Unlock()
		return err
	}
	a.owners[idx] = nil
	a.mu.Unlock()

	if a.logAlloc {
		a.log.Debug("free", "cap", c.Index, "label", rec.Tag.String(), "flags", uint64(flags))
	}
	if derr != nil {
		a.log.Error("delete object failed", "cap", c.Index, "err", derr)
		return fmt.Errorf("alloc: delete object behind %s: %w", c, derr)
	}
	return nil
}

// Take implements Allocator.
func (a *SlotAllocator) Take(c Cap, owner any) error {
	if !isComparable(owner) {
		return fmt.Errorf("%w: %T", ErrBadOwner, owner)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, err := a.allocatedIndex(c)
	if err != nil {
		return err
	}
	a.owners[idx] = owner
	return nil
}

// ReleaseOwnership implements Allocator.
func (a *SlotAllocator) ReleaseOwnership(c Cap, owner any) error {
	if !isComparable(owner) {
		return fmt.Errorf("%w: %T", ErrBadOwner, owner)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, err := a.allocatedIndex(c)
	if err != nil {
		return err
	}
	if a.owners[idx] != owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, c)
	}
	a.owners[idx] = nil
	return nil
}

// Lookup returns the slot information for c.
func (a *SlotAllocator) Lookup(c Cap) (Info, error) {
	if !c.Valid() {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidHandle, c)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.index(c)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidHandle, c)
	}
	return a.info(idx), nil
}

// Live returns the allocated slots in index order.
func (a *SlotAllocator) Live() []Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Info, 0, a.st.InUse())
	a.st.Each(func(idx int, r slot.Record) bool {
		if r.State == slot.Allocated {
			out = append(out, a.info(idx))
		}
		return true
	})
	return out
}

// Stats returns a snapshot of the allocator counters.
func (a *SlotAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.InUse = a.st.InUse()
	return s
}

func (a *SlotAllocator) index(c Cap) (int, bool) {
	idx := c.Index - a.base
	return idx, idx >= 0 && idx < a.st.Cap()
}

// allocatedIndex maps c to a storage index and checks it is allocated.
// Caller holds a.mu.
func (a *SlotAllocator) allocatedIndex(c Cap) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHandle, c)
	}
	idx, ok := a.index(c)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHandle, c)
	}
	rec, err := a.st.Record(idx)
	if err != nil {
		return 0, err
	}
	if rec.State != slot.Allocated {
		return 0, fmt.Errorf("%w: %s is free", ErrInvalidHandle, c)
	}
	return idx, nil
}

// info builds the Info for idx. Caller holds a.mu.
func (a *SlotAllocator) info(idx int) Info {
	rec, _ := a.st.Record(idx)
	return Info{
		Cap:   Cap{Index: a.base + idx, Kind: KindGeneric},
		State: rec.State,
		Label: rec.Tag.String(),
		Owner: a.owners[idx],
		Gen:   rec.Gen,
	}
}

// isComparable reports whether v can be compared with ==. A comparable
// static type may still hold an uncomparable dynamic value in an interface
// field, which only shows up when the comparison runs.
func isComparable(v any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = v == v
	return true
}

var _ Allocator = (*SlotAllocator)(nil)
