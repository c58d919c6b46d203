package alloc

import "errors"

var (
	// ErrExhausted indicates that every slot of the pool is allocated.
	ErrExhausted = errors.New("alloc: capability slots exhausted")

	// ErrDoubleFree indicates a free of a slot that is already free.
	ErrDoubleFree = errors.New("alloc: double free")

	// ErrInvalidHandle indicates a capability outside the pool or one that
	// was never allocated.
	ErrInvalidHandle = errors.New("alloc: invalid capability handle")

	// ErrNotOwner indicates ReleaseOwnership by a component that does not own
	// the capability.
	ErrNotOwner = errors.New("alloc: caller does not own capability")

	// ErrBadOwner indicates an owner value that cannot be compared.
	ErrBadOwner = errors.New("alloc: owner must be comparable")
)
