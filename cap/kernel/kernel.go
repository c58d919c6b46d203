// Package kernel describes the kernel services the allocator and the task
// lifecycle handler call into. The real implementations are system calls;
// Sim is an in-memory stand-in used by capctl and the tests.
package kernel

import "github.com/joshuapare/capkit/internal/abi"

// ObjectDeleter is the minimal interface for destroying the kernel object
// behind a capability selector. Allocators call it when a free requests
// abi.FPDeleteObj.
type ObjectDeleter interface {
	// DeleteObject unmaps sel with the given flags, deleting the object when
	// flags include abi.FPDeleteObj.
	DeleteObject(sel uint64, flags uint64) error
}

// Debugger issues a call to a kernel object speaking the debugger protocol.
type Debugger interface {
	// Call sends tag and the message registers to dest and waits for the
	// reply.
	Call(dest uint64, tag abi.MsgTag, mr *abi.MsgRegs) error
}

// Sigma0 is the root pager. Only its coverage dump is used.
type Sigma0 interface {
	// DumpCoverage asks sigma0 to print its coverage data.
	DumpCoverage() error
}
