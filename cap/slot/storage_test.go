package slot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFreeLowestFirst(t *testing.T) {
	st := New(4)

	for want := range 4 {
		idx, ok := st.FindFree()
		require.True(t, ok)
		require.Equal(t, want, idx)
		require.NoError(t, st.MarkAllocated(idx, "c"))
	}

	_, ok := st.FindFree()
	assert.False(t, ok, "pool must report exhaustion")
	assert.Equal(t, 4, st.InUse())

	require.NoError(t, st.MarkFree(2))
	require.NoError(t, st.MarkFree(0))
	idx, ok := st.FindFree()
	require.True(t, ok)
	assert.Equal(t, 0, idx, "lowest free index wins regardless of free order")
}

func TestMarkAllocatedArbitraryIndex(t *testing.T) {
	st := New(8)
	require.NoError(t, st.MarkAllocated(0, "a"))
	require.NoError(t, st.MarkAllocated(3, "b"))

	idx, ok := st.FindFree()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	require.NoError(t, st.MarkAllocated(1, "c"))
	require.NoError(t, st.MarkAllocated(2, "d"))
	idx, _ = st.FindFree()
	assert.Equal(t, 4, idx, "index 3 was taken out of order and must be skipped")
}

func TestTransitionsErrors(t *testing.T) {
	st := New(2)

	assert.ErrorIs(t, st.MarkAllocated(-1, ""), ErrInvalidIndex)
	assert.ErrorIs(t, st.MarkAllocated(2, ""), ErrInvalidIndex)
	assert.ErrorIs(t, st.MarkFree(5), ErrInvalidIndex)

	assert.ErrorIs(t, st.MarkFree(0), ErrDoubleFree, "never allocated slot is free")

	require.NoError(t, st.MarkAllocated(0, "x"))
	assert.ErrorIs(t, st.MarkAllocated(0, "x"), ErrNotFree)

	require.NoError(t, st.MarkFree(0))
	assert.ErrorIs(t, st.MarkFree(0), ErrDoubleFree)
}

func TestRecordTagAndGeneration(t *testing.T) {
	st := New(1)

	r, err := st.Record(0)
	require.NoError(t, err)
	assert.Equal(t, Free, r.State)
	assert.Zero(t, r.Gen)

	require.NoError(t, st.MarkAllocated(0, "moe-rm"))
	r, _ = st.Record(0)
	assert.Equal(t, Allocated, r.State)
	assert.Equal(t, "moe-rm", r.Tag.String())
	assert.Equal(t, uint32(1), r.Gen)

	require.NoError(t, st.MarkFree(0))
	require.NoError(t, st.MarkAllocated(0, "task"))
	r, _ = st.Record(0)
	assert.Equal(t, "task", r.Tag.String())
	assert.Equal(t, uint32(2), r.Gen)

	_, err = st.Record(1)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestEach(t *testing.T) {
	st := New(5)
	require.NoError(t, st.MarkAllocated(1, "a"))
	require.NoError(t, st.MarkAllocated(3, "b"))

	var allocated []int
	st.Each(func(idx int, r Record) bool {
		if r.State == Allocated {
			allocated = append(allocated, idx)
		}
		return true
	})
	assert.Equal(t, []int{1, 3}, allocated)

	visited := 0
	st.Each(func(int, Record) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

// TestRandomOpsMatchLinearScan drives the storage with random transitions and
// checks FindFree against a straightforward linear scan model.
func TestRandomOpsMatchLinearScan(t *testing.T) {
	const capacity = 37
	st := New(capacity)
	model := make([]bool, capacity) // true = allocated
	rng := rand.New(rand.NewSource(7))

	linearFree := func() (int, bool) {
		for i, a := range model {
			if !a {
				return i, true
			}
		}
		return 0, false
	}

	for step := range 5000 {
		idx := rng.Intn(capacity)
		switch rng.Intn(3) {
		case 0:
			want, ok := linearFree()
			got, gotOK := st.FindFree()
			require.Equal(t, ok, gotOK, "step %d", step)
			if ok {
				require.Equal(t, want, got, "step %d", step)
				require.NoError(t, st.MarkAllocated(got, "f"))
				model[got] = true
			}
		case 1:
			err := st.MarkAllocated(idx, "r")
			if model[idx] {
				require.ErrorIs(t, err, ErrNotFree, "step %d", step)
			} else {
				require.NoError(t, err, "step %d", step)
				model[idx] = true
			}
		case 2:
			err := st.MarkFree(idx)
			if model[idx] {
				require.NoError(t, err, "step %d", step)
				model[idx] = false
			} else {
				require.ErrorIs(t, err, ErrDoubleFree, "step %d", step)
			}
		}

		inUse := 0
		for _, a := range model {
			if a {
				inUse++
			}
		}
		require.Equal(t, inUse, st.InUse(), "step %d", step)
	}
}
