//go:build unix

package env

import (
	"os"

	"golang.org/x/sys/unix"
)

// withLock runs fn while holding an exclusive flock on f. The lock is shared
// with other processes opening the same file.
func withLock(f *os.File, fn func() error) error {
	fd := int(f.Fd())
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	defer unix.Flock(fd, unix.LOCK_UN)
	return fn()
}
