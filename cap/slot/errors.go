package slot

import "errors"

var (
	// ErrInvalidIndex indicates an index outside [0, capacity).
	ErrInvalidIndex = errors.New("slot: index out of range")

	// ErrDoubleFree indicates MarkFree on a slot that is already free.
	ErrDoubleFree = errors.New("slot: double free")

	// ErrNotFree indicates MarkAllocated on a slot that is already allocated.
	ErrNotFree = errors.New("slot: slot not free")
)
