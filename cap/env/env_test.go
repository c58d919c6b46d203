package env

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReserveAdvances(t *testing.T) {
	m := NewMemory(10)

	base, err := m.Reserve(4)
	require.NoError(t, err)
	assert.Equal(t, 10, base)

	next, err := m.FirstFreeCap()
	require.NoError(t, err)
	assert.Equal(t, 14, next, "record advances by the pool capacity")

	base, err = m.Reserve(4)
	require.NoError(t, err)
	assert.Equal(t, 14, base, "second allocator gets a disjoint range")

	_, err = m.Reserve(0)
	assert.ErrorIs(t, err, ErrBadReservation)
}

func TestMemoryConcurrentReservations(t *testing.T) {
	m := NewMemory(0)
	const n = 32
	bases := make([]int, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := m.Reserve(8)
			assert.NoError(t, err)
			bases[i] = b
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, b := range bases {
		assert.Zero(t, b%8)
		assert.False(t, seen[b], "range starting at %d reserved twice", b)
		seen[b] = true
	}
}

func TestFileRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.rec")

	parent, err := OpenFile(path, 0x40)
	require.NoError(t, err)
	base, err := parent.Reserve(4096)
	require.NoError(t, err)
	assert.Equal(t, 0x40, base)

	// A second opener sees the advanced value, not its own seed.
	child, err := OpenFile(path, 0)
	require.NoError(t, err)
	first, err := child.FirstFreeCap()
	require.NoError(t, err)
	assert.Equal(t, 0x40+4096, first)

	base, err = child.Reserve(16)
	require.NoError(t, err)
	assert.Equal(t, 0x40+4096, base)
	assert.Equal(t, path, child.Path())
}

func TestFileRecordConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.rec")
	_, err := OpenFile(path, 0)
	require.NoError(t, err)

	const n = 16
	bases := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := OpenFile(path, 0)
			if !assert.NoError(t, err) {
				return
			}
			b, err := r.Reserve(4)
			assert.NoError(t, err)
			bases[i] = b
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, b := range bases {
		assert.False(t, seen[b], "range starting at %d reserved twice", b)
		seen[b] = true
	}
	r, err := OpenFile(path, 0)
	require.NoError(t, err)
	last, err := r.FirstFreeCap()
	require.NoError(t, err)
	assert.Equal(t, n*4, last)
}

func TestFileRecordCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.rec")
	require.NoError(t, os.WriteFile(path, []byte("not a record at all"), 0o644))

	_, err := OpenFile(path, 0)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, []byte("cape"), 0o644))
	_, err = OpenFile(path, 0)
	assert.ErrorIs(t, err, ErrCorrupt, "short file")
}

func TestReserveOutOfRangeLeavesRecord(t *testing.T) {
	file, err := OpenFile(filepath.Join(t.TempDir(), "env.rec"), -1)
	require.NoError(t, err)

	records := map[string]Record{
		"memory": NewMemory(-0x40),
		"file":   file,
	}
	for name, rec := range records {
		t.Run(name, func(t *testing.T) {
			before, err := rec.FirstFreeCap()
			require.NoError(t, err)

			_, err = rec.Reserve(16)
			assert.ErrorIs(t, err, ErrOutOfRange)

			after, err := rec.FirstFreeCap()
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed reservation must not advance the record")
		})
	}
}
