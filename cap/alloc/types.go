package alloc

import (
	"fmt"

	"github.com/joshuapare/capkit/cap/slot"
	"github.com/joshuapare/capkit/internal/abi"
)

// Kind is the type of kernel object a capability refers to.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindGeneric
	KindTask
	KindThread
	KindRegionMap
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindGeneric:   "generic",
	KindTask:      "task",
	KindThread:    "thread",
	KindRegionMap: "region-map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Cap is a capability: a slot index plus the kind of object it names.
// The zero value is Invalid.
type Cap struct {
	Index int
	Kind  Kind
}

// Invalid names no capability.
var Invalid = Cap{}

// Valid reports whether c names a slot.
func (c Cap) Valid() bool { return c.Kind != KindInvalid }

// As returns c typed as kind k. Invalid stays invalid.
func (c Cap) As(k Kind) Cap {
	if !c.Valid() || k == KindInvalid {
		return Invalid
	}
	return Cap{Index: c.Index, Kind: k}
}

// Raw returns the kernel selector for c.
func (c Cap) Raw() uint64 {
	if !c.Valid() {
		return abi.InvalidCap
	}
	return uint64(c.Index) << abi.CapShift
}

func (c Cap) String() string {
	if !c.Valid() {
		return "cap(invalid)"
	}
	return fmt.Sprintf("cap(%s:0x%x)", c.Kind, c.Index)
}

// FreeFlags are passed through to the kernel when a slot is freed.
type FreeFlags uint64

const (
	// FreeKeepObject only releases the local slot.
	FreeKeepObject FreeFlags = 0
	// FreeDeleteObject also deletes the kernel object behind the slot.
	FreeDeleteObject = FreeFlags(abi.FPDeleteObj)
)

// Info describes one slot of the pool.
type Info struct {
	Cap   Cap
	State slot.State
	Label string
	Owner any
	// Gen counts how often the slot has been allocated.
	Gen uint32
}

// Stats holds allocator counters.
type Stats struct {
	Base      int // First index of the pool
	Capacity  int // Number of slots
	InUse     int // Currently allocated slots
	HighWater int // One past the highest index ever handed out (Base when none)

	AllocCalls   int // Total Alloc() calls
	FreeCalls    int // Total Free() calls, Invalid excluded
	Exhausted    int // Alloc() calls that found no free slot
	DoubleFrees  int // Free() calls on already free slots
	InvalidFrees int // Free() calls outside the pool or on never allocated slots
	DeleteErrors int // Kernel object deletions that failed
}

// Allocator defines the capability allocation contract.
//
// Implementations:
//   - SlotAllocator: fixed pool with lowest-index-first allocation
type Allocator interface {
	// Alloc allocates a slot on behalf of owner. label is kept for
	// diagnostics.
	Alloc(owner any, label string) (Cap, error)

	// Free makes the slot reusable. flags are passed to the kernel object
	// deletion contract; the slot is freed even if that deletion fails.
	Free(c Cap, flags FreeFlags) error

	// Take transfers logical ownership of an allocated slot to owner
	// without changing its allocation state.
	Take(c Cap, owner any) error

	// ReleaseOwnership drops owner's logical ownership of c.
	ReleaseOwnership(c Cap, owner any) error
}
