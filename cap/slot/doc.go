// Package slot provides the fixed-capacity storage behind the capability
// allocator.
//
// # Overview
//
// A Storage holds N slot records created up front. Each record is either
// Free or Allocated and carries a short debug tag. The pool never grows.
//
//	st := slot.New(64)
//	idx, ok := st.FindFree()   // lowest free index
//	st.MarkAllocated(idx, "moe-rm")
//	...
//	st.MarkFree(idx)
//
// # Free Index Heap
//
// FindFree always answers the lowest free index. Free indices are kept in a
// min-heap so lookups are O(1) and transitions O(log N); the observable
// result is the same as a linear scan from index 0.
//
// # Errors
//
// MarkFree on a free slot reports ErrDoubleFree. It is never ignored: it
// means some owner released a slot it no longer held.
//
// # Thread Safety
//
// Storage is not thread-safe. The allocator in package alloc serialises
// access with its own lock.
package slot
