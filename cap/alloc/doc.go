// Package alloc provides the process capability allocator.
//
// # Overview
//
// Capabilities are named by integer slot indices in the task's private
// capability space. The allocator owns a fixed pool of such slots starting at
// a base offset taken from the environment record, and hands them out one at
// a time:
//
//	a, err := alloc.New(base, 4096, &alloc.Options{Deleter: k})
//	c, err := a.Alloc(rm, "moe-rm")
//	...
//	err = a.Free(c, alloc.FreeDeleteObject)
//
// # Allocator Interface
//
//   - Alloc(owner, label): lowest free slot, ErrExhausted when none is left
//   - Free(cap, flags): return the slot; flags are passed to the kernel
//   - Take(cap, owner): hand logical ownership to another component
//   - ReleaseOwnership(cap, owner): drop logical ownership
//
// # Errors
//
//   - ErrExhausted: no free slot. Never wraps around and never blocks.
//   - ErrDoubleFree: the slot was already free. This is an ownership bug in
//     the caller and is reported at error level.
//   - ErrInvalidHandle: index outside the pool, or a slot never handed out.
//
// Freeing Invalid is a no-op so partially constructed owners can always run
// their teardown.
//
// # Thread Safety
//
// SlotAllocator is safe for concurrent use. A single mutex guards the slot
// storage and the owner table; every operation is bounded. The ObjectDeleter
// runs inside that critical section and must not call back into the
// allocator.
//
// # Related Packages
//
//   - github.com/joshuapare/capkit/cap/slot: the underlying slot storage
//   - github.com/joshuapare/capkit/cap/process: process-wide instance
//   - github.com/joshuapare/capkit/cap/task: releases task slots on exit
package alloc
