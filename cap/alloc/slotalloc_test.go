package alloc

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/capkit/cap/kernel"
	"github.com/joshuapare/capkit/cap/slot"
	"github.com/joshuapare/capkit/internal/abi"
	"github.com/joshuapare/capkit/internal/logger"
)

func newTestAllocator(t *testing.T, base, capacity int) *SlotAllocator {
	t.Helper()
	a, err := New(base, capacity, &Options{Logger: logger.Discard()})
	require.NoError(t, err)
	return a
}

// TestConcreteScenario: capacity=4, base=10.
func TestConcreteScenario(t *testing.T) {
	a := newTestAllocator(t, 10, 4)

	var got []int
	for range 4 {
		c, err := a.Alloc(nil, "x")
		require.NoError(t, err)
		got = append(got, c.Index)
	}
	assert.Equal(t, []int{10, 11, 12, 13}, got)

	require.NoError(t, a.Free(Cap{Index: 11, Kind: KindGeneric}, FreeKeepObject))

	c, err := a.Alloc(nil, "again")
	require.NoError(t, err)
	assert.Equal(t, 11, c.Index)

	_, err = a.Alloc(nil, "one too many")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestUniquenessWithoutFree(t *testing.T) {
	a := newTestAllocator(t, 0x40, 256)
	seen := make(map[int]bool)
	for range 256 {
		c, err := a.Alloc(nil, "")
		require.NoError(t, err)
		require.False(t, seen[c.Index], "index %d handed out twice", c.Index)
		seen[c.Index] = true
	}
	assert.Len(t, seen, 256)
}

func TestReuseAfterFullCycle(t *testing.T) {
	const capacity = 16
	a := newTestAllocator(t, 0, capacity)

	caps := make([]Cap, 0, capacity)
	for range capacity {
		c, err := a.Alloc(nil, "")
		require.NoError(t, err)
		caps = append(caps, c)
	}
	for _, c := range caps {
		require.NoError(t, a.Free(c, FreeKeepObject))
	}

	c, err := a.Alloc(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, 1, a.Stats().InUse)
}

func TestExhaustion(t *testing.T) {
	const capacity = 8
	a := newTestAllocator(t, 100, capacity)

	for i := range capacity {
		_, err := a.Alloc(nil, "")
		require.NoError(t, err, "alloc %d", i)
	}
	c, err := a.Alloc(nil, "")
	require.ErrorIs(t, err, ErrExhausted)
	assert.False(t, c.Valid())

	st := a.Stats()
	assert.Equal(t, 1, st.Exhausted)
	assert.Equal(t, capacity+1, st.AllocCalls)
	assert.Equal(t, capacity, st.InUse)
}

func TestDoubleFree(t *testing.T) {
	rec := logger.NewRecorder(slog.LevelDebug)
	a, err := New(0, 4, &Options{Logger: rec.Logger()})
	require.NoError(t, err)

	c, err := a.Alloc(nil, "moe-rm")
	require.NoError(t, err)
	require.NoError(t, a.Free(c, FreeKeepObject))

	err = a.Free(c, FreeKeepObject)
	require.ErrorIs(t, err, ErrDoubleFree)
	assert.Contains(t, err.Error(), "moe-rm")
	assert.Equal(t, 1, a.Stats().DoubleFrees)
	assert.Equal(t, 1, rec.Count(slog.LevelError))
}

func TestFreeInvalidHandles(t *testing.T) {
	a := newTestAllocator(t, 10, 4)

	assert.NoError(t, a.Free(Invalid, FreeDeleteObject), "freeing Invalid is a no-op")

	tests := []struct {
		name string
		cap  Cap
	}{
		{"below base", Cap{Index: 9, Kind: KindGeneric}},
		{"past end", Cap{Index: 14, Kind: KindTask}},
		{"never allocated", Cap{Index: 12, Kind: KindThread}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, a.Free(tt.cap, FreeKeepObject), ErrInvalidHandle)
		})
	}

	st := a.Stats()
	assert.Equal(t, 3, st.InvalidFrees)
	assert.Equal(t, 0, st.DoubleFrees)
}

func TestFreeDeleteObjectPassThrough(t *testing.T) {
	k := kernel.NewSim()
	a, err := New(0x40, 4, &Options{Deleter: k, Logger: logger.Discard()})
	require.NoError(t, err)

	c1, err := a.Alloc(nil, "task")
	require.NoError(t, err)
	c2, err := a.Alloc(nil, "local")
	require.NoError(t, err)

	require.NoError(t, a.Free(c1.As(KindTask), FreeDeleteObject))
	require.NoError(t, a.Free(c2, FreeKeepObject))

	unmaps := k.Unmaps()
	require.Len(t, unmaps, 1, "only the delete request reaches the kernel")
	assert.Equal(t, uint64(0x40)<<abi.CapShift, unmaps[0].Sel)
	assert.Equal(t, abi.FPDeleteObj, unmaps[0].Flags)
}

func TestFreeDeleteFailureStillFreesSlot(t *testing.T) {
	k := kernel.NewSim()
	boom := errors.New("unmap failed")
	k.DeleteErr = boom
	a, err := New(0, 1, &Options{Deleter: k, Logger: logger.Discard()})
	require.NoError(t, err)

	c, err := a.Alloc(nil, "")
	require.NoError(t, err)

	err = a.Free(c, FreeDeleteObject)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.Stats().DeleteErrors)

	again, err := a.Alloc(nil, "")
	require.NoError(t, err, "slot must be reusable after a failed delete")
	assert.Equal(t, c.Index, again.Index)
}

func TestTakeAndReleaseOwnership(t *testing.T) {
	a := newTestAllocator(t, 0, 4)
	type owner struct{ name string }
	creator := &owner{"task"}
	pool := &owner{"pool"}

	c, err := a.Alloc(creator, "moe-rm")
	require.NoError(t, err)

	require.NoError(t, a.Take(c, pool))
	info, err := a.Lookup(c)
	require.NoError(t, err)
	assert.Same(t, pool, info.Owner)
	assert.Equal(t, slot.Allocated, info.State, "ownership transfer keeps allocation state")

	assert.ErrorIs(t, a.ReleaseOwnership(c, creator), ErrNotOwner)
	require.NoError(t, a.ReleaseOwnership(c, pool))

	info, err = a.Lookup(c)
	require.NoError(t, err)
	assert.Nil(t, info.Owner)
	assert.Equal(t, slot.Allocated, info.State)

	require.NoError(t, a.Free(c, FreeKeepObject))
	assert.ErrorIs(t, a.Take(c, pool), ErrInvalidHandle, "free slot cannot be taken")
	assert.ErrorIs(t, a.Take(Invalid, pool), ErrInvalidHandle)
}

func TestUncomparableOwner(t *testing.T) {
	a := newTestAllocator(t, 0, 1)
	_, err := a.Alloc(map[string]int{}, "")
	assert.ErrorIs(t, err, ErrBadOwner)
	assert.Equal(t, 0, a.Stats().InUse)
}

type boxedOwner struct{ v any }

func TestOwnerHoldingUncomparableValue(t *testing.T) {
	a := newTestAllocator(t, 0, 2)
	bad := boxedOwner{v: []int{1}}

	_, err := a.Alloc(bad, "boxed")
	assert.ErrorIs(t, err, ErrBadOwner)
	assert.Equal(t, 0, a.Stats().InUse)

	c, err := a.Alloc(boxedOwner{v: 7}, "boxed")
	require.NoError(t, err)
	assert.ErrorIs(t, a.Take(c, bad), ErrBadOwner)
	assert.ErrorIs(t, a.ReleaseOwnership(c, bad), ErrBadOwner)
	require.NoError(t, a.ReleaseOwnership(c, boxedOwner{v: 7}))
}

func TestLookupAndLive(t *testing.T) {
	a := newTestAllocator(t, 10, 4)
	c1, _ := a.Alloc(nil, "one")
	_, _ = a.Alloc(nil, "two")
	c3, _ := a.Alloc(nil, "three")
	require.NoError(t, a.Free(c1, FreeKeepObject))

	live := a.Live()
	require.Len(t, live, 2)
	assert.Equal(t, "two", live[0].Label)
	assert.Equal(t, 12, live[1].Cap.Index)

	info, err := a.Lookup(c1)
	require.NoError(t, err)
	assert.Equal(t, slot.Free, info.State)
	assert.Equal(t, "one", info.Label, "tag survives until reuse")

	_, err = a.Lookup(Cap{Index: 99, Kind: KindGeneric})
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.True(t, a.Contains(c3))
	assert.False(t, a.Contains(Invalid))
}

func TestHighWater(t *testing.T) {
	a := newTestAllocator(t, 10, 4)
	assert.Equal(t, 10, a.Stats().HighWater)

	c1, _ := a.Alloc(nil, "")
	c2, _ := a.Alloc(nil, "")
	require.NoError(t, a.Free(c2, FreeKeepObject))
	require.NoError(t, a.Free(c1, FreeKeepObject))

	st := a.Stats()
	assert.Equal(t, 12, st.HighWater, "high-water mark never moves back")
	assert.Equal(t, 0, st.InUse)
}

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := New(-1, 4, nil)
	assert.Error(t, err)
	_, err = New(0, 0, nil)
	assert.Error(t, err)
}

func TestCapRawAndKind(t *testing.T) {
	c := Cap{Index: 0x41, Kind: KindGeneric}
	assert.Equal(t, uint64(0x41)<<abi.CapShift, c.Raw())
	assert.Equal(t, abi.InvalidCap, Invalid.Raw())
	assert.Equal(t, KindThread, c.As(KindThread).Kind)
	assert.Equal(t, Invalid, Invalid.As(KindTask))
	assert.Equal(t, "cap(region-map:0x41)", c.As(KindRegionMap).String())
	assert.Equal(t, "cap(invalid)", Invalid.String())
}

// TestConcurrentAllocFree runs many goroutines through alloc/free cycles and
// checks that no index is ever live twice. Run with -race.
func TestConcurrentAllocFree(t *testing.T) {
	const (
		capacity = 64
		workers  = 8
		cycles   = 2000
	)
	a := newTestAllocator(t, 0x40, capacity)
	live := make([]atomic.Bool, capacity)
	var overlaps atomic.Int64

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held := make([]Cap, 0, capacity/workers)
			for i := range cycles {
				// Hold up to capacity/workers slots at a time so the pool
				// never runs dry.
				if len(held) < capacity/workers {
					c, err := a.Alloc(w, "stress")
					if !assert.NoError(t, err) {
						return
					}
					if !live[c.Index-0x40].CompareAndSwap(false, true) {
						overlaps.Add(1)
					}
					held = append(held, c)
				}
				if i%3 == 0 || len(held) == capacity/workers {
					c := held[0]
					held = held[1:]
					live[c.Index-0x40].Store(false)
					assert.NoError(t, a.Free(c, FreeKeepObject))
				}
			}
			for _, c := range held {
				live[c.Index-0x40].Store(false)
				assert.NoError(t, a.Free(c, FreeKeepObject))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "an index was live in two places at once")
	st := a.Stats()
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, st.AllocCalls, st.FreeCalls)
	assert.Zero(t, st.Exhausted)
}
