// Package idgen hands out task identities. Callers treat identifiers as
// opaque strings; tests may replace NewFunc for deterministic ids.
package idgen

import (
	"strconv"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new identifier.
func New() string { return NewFunc() }

// Sequence returns a generator producing prefix-1, prefix-2, ... for tests and
// reproducible simulations.
func Sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
