package alloc

import "github.com/joshuapare/capkit/cap/kernel"

// ObjectDeleter is a type alias for the kernel object deletion contract.
type ObjectDeleter = kernel.ObjectDeleter
