// Package abi holds the fixed kernel contract the capability allocator and the
// task lifecycle handler talk to: capability selector encoding, unmap flags,
// protocol ids, status codes and message tag layout. Nothing here is meant to
// be redesigned; the values mirror what the kernel expects on the wire.
package abi

const (
	// CapShift is the number of low bits below the slot index in a capability
	// selector. Selector = index << CapShift.
	//   bits 0-11   flags / unused
	//   bits 12-63  slot index
	CapShift = 12

	// InvalidCap is the selector value naming no capability.
	InvalidCap uint64 = 1 << 11

	// FPDeleteObj asks the kernel to delete the referenced object instead of
	// only unmapping the local name for it.
	FPDeleteObj uint64 = 0xc0000000
)

// Well known capability slots installed by the kernel for the root task.
const (
	BasePagerCap    = 4
	BaseDebuggerCap = 10

	// DefaultFirstFreeCap is the first slot not taken by the base caps.
	DefaultFirstFreeCap = 0x40
)

// DebuggerCap is the selector of the kernel debugger.
const DebuggerCap uint64 = BaseDebuggerCap << CapShift

// Sigma0Cap is the selector of sigma0, the root task's pager.
const Sigma0Cap uint64 = BasePagerCap << CapShift

// Protocol ids carried in the label of a message tag.
const (
	ProtoNone      int64 = 0
	ProtoSigma0    int64 = -6
	ProtoLog       int64 = -13
	ProtoDebugger  int64 = -23
	ProtoParent    int64 = 0x2000
	ProtoRegionMap int64 = 0x4000
)

// DebuggerDumpCoverage is the debugger opcode placed in mr[0] to ask the
// kernel to dump its coverage data.
const DebuggerDumpCoverage uint64 = 0x400

// UTCBMsgRegs is the number of generic message registers in a UTCB.
const UTCBMsgRegs = 63

// Signal kinds delivered through the parent protocol.
const (
	// SignalExit reports that the child finished; the value is the exit code.
	SignalExit uint64 = 0
)

// DefaultCapAllocatorMax is the default number of slots managed by the
// process capability allocator.
const DefaultCapAllocatorMax = 4096
