// Package regionmap tracks the virtual memory regions attached to a task.
//
// The root task keeps one Map per child. The map is served to the child
// under its own capability; on task teardown it is cleared and its slot is
// returned with the task's other capabilities.
package regionmap

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/joshuapare/capkit/cap/alloc"
)

var (
	// ErrOverlap indicates an attach overlapping an existing region.
	ErrOverlap = errors.New("regionmap: region overlaps existing region")

	// ErrEmpty indicates a zero-sized region or one that wraps the address space.
	ErrEmpty = errors.New("regionmap: empty or wrapping region")

	// ErrNotFound indicates no region starts at the given address.
	ErrNotFound = errors.New("regionmap: no region at address")
)

// Region is one attached range [Start, Start+Size).
type Region struct {
	Start uint64
	Size  uint64
	Name  string
}

// End returns the exclusive end address.
func (r Region) End() uint64 { return r.Start + r.Size }

// Map is a sorted set of non-overlapping regions. It is safe for concurrent
// use.
type Map struct {
	mu      sync.RWMutex
	regions []Region // sorted by Start
}

// New returns an empty map.
func New() *Map { return &Map{} }

// ObjectKind implements objpool.Object.
func (m *Map) ObjectKind() alloc.Kind { return alloc.KindRegionMap }

// Attach adds a region.
func (m *Map) Attach(start, size uint64, name string) error {
	if size == 0 || start+size < start {
		return fmt.Errorf("%w: start=0x%x size=0x%x", ErrEmpty, start, size)
	}
	r := Region{Start: start, Size: size, Name: name}

	m.mu.Lock()
	defer m.mu.Unlock()

	i, _ := slices.BinarySearchFunc(m.regions, start, func(e Region, t uint64) int {
		switch {
		case e.Start < t:
			return -1
		case e.Start > t:
			return 1
		}
		return 0
	})
	if i > 0 && m.regions[i-1].End() > start {
		return fmt.Errorf("%w: %q at 0x%x", ErrOverlap, m.regions[i-1].Name, m.regions[i-1].Start)
	}
	if i < len(m.regions) && m.regions[i].Start < r.End() {
		return fmt.Errorf("%w: %q at 0x%x", ErrOverlap, m.regions[i].Name, m.regions[i].Start)
	}
	m.regions = slices.Insert(m.regions, i, r)
	return nil
}

// Detach removes the region starting at start and returns it.
func (m *Map) Detach(start uint64) (Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.search(start)
	if !ok || m.regions[i].Start != start {
		return Region{}, fmt.Errorf("%w: 0x%x", ErrNotFound, start)
	}
	r := m.regions[i]
	m.regions = slices.Delete(m.regions, i, i+1)
	return r, nil
}

// Find returns the region containing addr.
func (m *Map) Find(addr uint64) (Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.search(addr)
	if !ok {
		return Region{}, false
	}
	return m.regions[i], true
}

// Regions returns a copy of the attached regions in address order.
func (m *Map) Regions() []Region {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.regions)
}

// Len returns the number of attached regions.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regions)
}

// Clear detaches every region and returns how many there were.
func (m *Map) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.regions)
	m.regions = nil
	return n
}

// search finds the region containing addr by binary search. Caller holds
// m.mu.
func (m *Map) search(addr uint64) (int, bool) {
	lo, hi := 0, len(m.regions)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		r := m.regions[mid]

		if addr < r.Start {
			hi = mid - 1
		} else if addr >= r.End() {
			lo = mid + 1
		} else {
			return mid, true
		}
	}
	return 0, false
}
