//go:build !unix

package env

import (
	"os"
	"sync"
)

// fileMu serialises record updates within this process. Other processes are
// not excluded on platforms without flock.
var fileMu sync.Mutex

func withLock(_ *os.File, fn func() error) error {
	fileMu.Lock()
	defer fileMu.Unlock()
	return fn()
}
