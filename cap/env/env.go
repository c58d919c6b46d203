// Package env models the process environment record consulted by the
// capability allocator at startup.
//
// The record holds the first capability slot not yet claimed. Each allocator
// reserves its whole pool from the record, which advances the first free slot
// by the pool capacity so allocators sharing a record (for example a parent
// and a child environment) never hand out overlapping ranges.
package env

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Environment variables naming the record's starting values.
const (
	VarFirstFreeCap = "CAPKIT_FIRST_FREE_CAP"
	VarCapMax       = "CAPKIT_CAP_MAX"
)

var (
	// ErrBadReservation indicates a non-positive reservation size.
	ErrBadReservation = errors.New("env: reservation must be positive")

	// ErrOutOfRange indicates a record whose first free slot is negative or
	// would overflow. Reserve leaves such a record untouched.
	ErrOutOfRange = errors.New("env: first free capability out of range")
)

// Record is the environment record interface.
type Record interface {
	// FirstFreeCap returns the first unclaimed capability slot.
	FirstFreeCap() (int, error)
	// Reserve claims n slots and returns the first of them.
	Reserve(n int) (int, error)
}

// Memory is an in-process environment record.
type Memory struct {
	mu        sync.Mutex
	firstFree int
}

// NewMemory creates a record whose first free slot is firstFree.
func NewMemory(firstFree int) *Memory {
	return &Memory{firstFree: firstFree}
}

// FirstFreeCap implements Record.
func (m *Memory) FirstFreeCap() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstFree, nil
}

// Reserve implements Record.
func (m *Memory) Reserve(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadReservation, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.firstFree
	if base < 0 || base > math.MaxInt-n {
		return 0, fmt.Errorf("%w: %d + %d", ErrOutOfRange, base, n)
	}
	m.firstFree += n
	return base, nil
}
