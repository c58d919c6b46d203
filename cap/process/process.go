// Package process owns the process-wide capability allocator.
//
// Startup is explicit and happens in two phases:
//
//  1. Init reserves the pool from the environment record and constructs the
//     allocator. Nothing else that allocates capabilities may run before it.
//  2. Start seals the allocator binding and runs the facilities registered
//     with Register, in registration order, handing each the bound
//     allocator.
//
// Between the two phases Bind may replace the allocator the rest of the
// process uses (for example one shared with a dynamic loader). After Start
// the choice is final.
package process

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshuapare/capkit/cap/alloc"
	"github.com/joshuapare/capkit/cap/env"
	"github.com/joshuapare/capkit/internal/logger"
)

var (
	// ErrNotInitialized indicates use of the allocator before Init.
	ErrNotInitialized = errors.New("process: capability allocator not initialized")

	// ErrAlreadyInitialized indicates a second Init.
	ErrAlreadyInitialized = errors.New("process: capability allocator already initialized")

	// ErrSealed indicates Bind or Register after Start.
	ErrSealed = errors.New("process: allocator binding sealed")
)

// Facility is initialised by Start once the allocator exists.
type Facility struct {
	Name string
	Init func(a alloc.Allocator) error
}

type state struct {
	mu          sync.Mutex
	constructed *alloc.SlotAllocator
	bound       alloc.Allocator
	sealed      bool
	facilities  []Facility
}

var proc state

// Init reserves capacity slots from rec and constructs the process
// allocator.
func Init(rec env.Record, capacity int, opts *alloc.Options) (*alloc.SlotAllocator, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()

	if proc.constructed != nil {
		return nil, ErrAlreadyInitialized
	}
	// A reservation cannot be handed back, so sizes are checked first.
	if capacity <= 0 {
		return nil, fmt.Errorf("process: reserve %d slots: %w", capacity, env.ErrBadReservation)
	}
	base, err := rec.Reserve(capacity)
	if err != nil {
		return nil, fmt.Errorf("process: reserve %d slots: %w", capacity, err)
	}
	a, err := alloc.New(base, capacity, opts)
	if err != nil {
		return nil, err
	}
	proc.constructed = a
	proc.bound = a
	logger.For("process").Debug("capability allocator constructed", "base", base, "capacity", capacity)
	return a, nil
}

// Bind selects the allocator returned by Virtual.
func Bind(a alloc.Allocator) error {
	if a == nil {
		return errors.New("process: cannot bind nil allocator")
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()

	if proc.constructed == nil {
		return ErrNotInitialized
	}
	if proc.sealed {
		return ErrSealed
	}
	proc.bound = a
	return nil
}

// Register queues a facility for Start.
func Register(f Facility) error {
	proc.mu.Lock()
	defer proc.mu.Unlock()

	if proc.sealed {
		return ErrSealed
	}
	proc.facilities = append(proc.facilities, f)
	return nil
}

// Start seals the binding and initialises the registered facilities. The
// first facility error stops the sequence.
func Start() error {
	proc.mu.Lock()
	if proc.constructed == nil {
		proc.mu.Unlock()
		return ErrNotInitialized
	}
	if proc.sealed {
		proc.mu.Unlock()
		return ErrSealed
	}
	proc.sealed = true
	a := proc.bound
	facilities := proc.facilities
	proc.facilities = nil
	proc.mu.Unlock()

	for _, f := range facilities {
		if err := f.Init(a); err != nil {
			return fmt.Errorf("process: start %s: %w", f.Name, err)
		}
	}
	return nil
}

// Allocator returns the allocator constructed by Init.
func Allocator() (*alloc.SlotAllocator, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.constructed == nil {
		return nil, ErrNotInitialized
	}
	return proc.constructed, nil
}

// Virtual returns the allocator the rest of the process should use.
func Virtual() (alloc.Allocator, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.bound == nil {
		return nil, ErrNotInitialized
	}
	return proc.bound, nil
}

// MustVirtual is Virtual for callers that run strictly after Init.
func MustVirtual() alloc.Allocator {
	a, err := Virtual()
	if err != nil {
		panic(err)
	}
	return a
}

// Sealed reports whether Start has run.
func Sealed() bool {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	return proc.sealed
}

// Reset drops all process state so Init can run again. Only for hosts
// that boot more than once in one address space, such as test binaries.
func Reset() {
	proc.mu.Lock()
	defer proc.mu.Unlock()
	proc.constructed = nil
	proc.bound = nil
	proc.sealed = false
	proc.facilities = nil
}
