package env

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// recordSize is the on-disk size of a file record.
//
//	0x00  magic "cape"
//	0x04  reserved
//	0x08  first free cap (uint64, little-endian)
const recordSize = 16

var recordMagic = [4]byte{'c', 'a', 'p', 'e'}

// ErrCorrupt indicates a file record with a bad magic or size.
var ErrCorrupt = errors.New("env: corrupt record file")

// File is an environment record persisted in a file so cooperating
// processes share one slot range. Reservations hold an exclusive file lock.
type File struct {
	path string
}

// OpenFile opens the record at path, creating it with firstFree when it does
// not exist yet.
func OpenFile(path string, firstFree int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("env: open %s: %w", path, err)
	}
	defer f.Close()

	err = withLock(f, func() error {
		st, err := f.Stat()
		if err != nil {
			return err
		}
		if st.Size() == 0 {
			return writeRecord(f, uint64(firstFree))
		}
		_, err = readRecord(f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("env: init %s: %w", path, err)
	}
	return &File{path: path}, nil
}

// Path returns the record file path.
func (r *File) Path() string { return r.path }

// FirstFreeCap implements Record.
func (r *File) FirstFreeCap() (int, error) {
	var v uint64
	err := r.update(func(cur uint64) (uint64, bool) {
		v = cur
		return cur, false
	})
	return int(v), err
}

// Reserve implements Record.
func (r *File) Reserve(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadReservation, n)
	}
	var (
		base     uint64
		rangeErr error
	)
	err := r.update(func(cur uint64) (uint64, bool) {
		if cur > uint64(math.MaxInt-n) {
			rangeErr = fmt.Errorf("%w: %d + %d", ErrOutOfRange, cur, n)
			return cur, false
		}
		base = cur
		return cur + uint64(n), true
	})
	if err == nil {
		err = rangeErr
	}
	if err != nil {
		return 0, err
	}
	return int(base), nil
}

// update runs fn on the current value under the file lock and writes the
// result back when fn asks for it.
func (r *File) update(fn func(cur uint64) (uint64, bool)) error {
	f, err := os.OpenFile(r.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("env: open %s: %w", r.path, err)
	}
	defer f.Close()

	return withLock(f, func() error {
		cur, err := readRecord(f)
		if err != nil {
			return err
		}
		next, write := fn(cur)
		if !write {
			return nil
		}
		return writeRecord(f, next)
	})
}

func readRecord(f *os.File) (uint64, error) {
	var buf [recordSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrCorrupt
		}
		return 0, err
	}
	if [4]byte(buf[0:4]) != recordMagic {
		return 0, ErrCorrupt
	}
	return binary.LittleEndian.Uint64(buf[8:16]), nil
}

func writeRecord(f *os.File, v uint64) error {
	var buf [recordSize]byte
	copy(buf[0:4], recordMagic[:])
	binary.LittleEndian.PutUint64(buf[8:16], v)
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return f.Sync()
}
