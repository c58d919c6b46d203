package slot

import (
	"container/heap"
	"fmt"

	"github.com/joshuapare/capkit/internal/label"
)

// State is the allocation state of one slot.
type State uint8

const (
	Free State = iota
	Allocated
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Allocated:
		return "allocated"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Record is one slot of the pool.
type Record struct {
	State State
	Tag   label.Tag
	// Gen counts allocations of this slot. Zero means the slot was never
	// handed out.
	Gen uint32
}

// Storage is a fixed-capacity array of slot records.
type Storage struct {
	records []Record
	free    freeHeap
	// pos[i] is the position of index i in free, -1 when allocated.
	pos []int
}

// New creates a storage of capacity free slots. It panics if capacity is not
// positive.
func New(capacity int) *Storage {
	if capacity <= 0 {
		panic(fmt.Sprintf("slot: capacity must be positive, got %d", capacity))
	}
	s := &Storage{
		records: make([]Record, capacity),
		pos:     make([]int, capacity),
	}
	s.free = freeHeap{idx: make([]int, capacity), pos: s.pos}
	// An ascending slice already satisfies the heap property.
	for i := range capacity {
		s.free.idx[i] = i
		s.pos[i] = i
	}
	return s
}

// Cap returns the fixed capacity.
func (s *Storage) Cap() int { return len(s.records) }

// InUse returns the number of allocated slots.
func (s *Storage) InUse() int { return len(s.records) - s.free.Len() }

// FindFree returns the lowest free index, or false when all slots are
// allocated.
func (s *Storage) FindFree() (int, bool) {
	if s.free.Len() == 0 {
		return 0, false
	}
	return s.free.idx[0], true
}

// MarkAllocated transitions idx from Free to Allocated and records tag.
func (s *Storage) MarkAllocated(idx int, tag string) error {
	if !s.valid(idx) {
		return fmt.Errorf("%w: %d (capacity %d)", ErrInvalidIndex, idx, len(s.records))
	}
	r := &s.records[idx]
	if r.State != Free {
		return fmt.Errorf("%w: %d", ErrNotFree, idx)
	}
	heap.Remove(&s.free, s.pos[idx])
	r.State = Allocated
	r.Tag = label.Encode(tag)
	r.Gen++
	return nil
}

// MarkFree transitions idx from Allocated to Free. The debug tag is kept
// until the slot is allocated again.
func (s *Storage) MarkFree(idx int) error {
	if !s.valid(idx) {
		return fmt.Errorf("%w: %d (capacity %d)", ErrInvalidIndex, idx, len(s.records))
	}
	r := &s.records[idx]
	if r.State != Allocated {
		return fmt.Errorf("%w: %d", ErrDoubleFree, idx)
	}
	r.State = Free
	heap.Push(&s.free, idx)
	return nil
}

// Record returns a copy of the record at idx.
func (s *Storage) Record(idx int) (Record, error) {
	if !s.valid(idx) {
		return Record{}, fmt.Errorf("%w: %d (capacity %d)", ErrInvalidIndex, idx, len(s.records))
	}
	return s.records[idx], nil
}

// Each calls fn for every slot in index order until fn returns false.
func (s *Storage) Each(fn func(idx int, r Record) bool) {
	for i, r := range s.records {
		if !fn(i, r) {
			return
		}
	}
}

func (s *Storage) valid(idx int) bool {
	return idx >= 0 && idx < len(s.records)
}

// freeHeap is a min-heap of free indices. pos is shared with Storage so
// MarkAllocated can remove an arbitrary index in O(log N).
type freeHeap struct {
	idx []int
	pos []int
}

func (h *freeHeap) Len() int           { return len(h.idx) }
func (h *freeHeap) Less(i, j int) bool { return h.idx[i] < h.idx[j] }

func (h *freeHeap) Swap(i, j int) {
	h.idx[i], h.idx[j] = h.idx[j], h.idx[i]
	h.pos[h.idx[i]] = i
	h.pos[h.idx[j]] = j
}

func (h *freeHeap) Push(x any) {
	i := x.(int)
	h.pos[i] = len(h.idx)
	h.idx = append(h.idx, i)
}

func (h *freeHeap) Pop() any {
	n := len(h.idx)
	i := h.idx[n-1]
	h.idx = h.idx[:n-1]
	h.pos[i] = -1
	return i
}
