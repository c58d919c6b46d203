package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshuapare/capkit/internal/abi"
)

// ErrNoObject indicates DeleteObject on a selector with nothing behind it.
var ErrNoObject = errors.New("kernel: no object at selector")

// Unmap is one recorded DeleteObject call.
type Unmap struct {
	Sel   uint64
	Flags uint64
}

// IPC is one recorded debugger or sigma0 call.
type IPC struct {
	Dest uint64
	Tag  abi.MsgTag
	MR0  uint64
}

// Sim is an in-memory kernel. It is safe for concurrent use.
type Sim struct {
	mu      sync.Mutex
	unmaps  []Unmap
	calls   []IPC
	objects map[uint64]bool

	// DeleteErr, when non-nil, is returned by every DeleteObject.
	DeleteErr error
	// CallErr, when non-nil, is returned by every Call and DumpCoverage.
	CallErr error
	// Strict makes DeleteObject fail for selectors never passed to Map.
	Strict bool
}

// NewSim returns an empty simulated kernel.
func NewSim() *Sim {
	return &Sim{objects: make(map[uint64]bool)}
}

// Map records that an object lives behind sel.
func (s *Sim) Map(sel uint64) {
	s.mu.Lock()
	s.objects[sel] = true
	s.mu.Unlock()
}

// Live reports whether an object lives behind sel.
func (s *Sim) Live(sel uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[sel]
}

// DeleteObject implements ObjectDeleter.
func (s *Sim) DeleteObject(sel uint64, flags uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmaps = append(s.unmaps, Unmap{Sel: sel, Flags: flags})
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if s.Strict && !s.objects[sel] {
		return fmt.Errorf("%w: 0x%x", ErrNoObject, sel)
	}
	if flags&abi.FPDeleteObj == abi.FPDeleteObj {
		delete(s.objects, sel)
	}
	return nil
}

// Call implements Debugger.
func (s *Sim) Call(dest uint64, tag abi.MsgTag, mr *abi.MsgRegs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := IPC{Dest: dest, Tag: tag}
	if mr != nil {
		rec.MR0 = mr[0]
	}
	s.calls = append(s.calls, rec)
	return s.CallErr
}

// DumpCoverage implements Sigma0. The request is recorded with the debugger
// calls so their relative order is visible.
func (s *Sim) DumpCoverage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, IPC{Dest: abi.Sigma0Cap, Tag: abi.NewMsgTag(abi.ProtoSigma0, 0, 0, 0)})
	return s.CallErr
}

// Unmaps returns the recorded DeleteObject calls.
func (s *Sim) Unmaps() []Unmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Unmap(nil), s.unmaps...)
}

// Calls returns the recorded debugger calls.
func (s *Sim) Calls() []IPC {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]IPC(nil), s.calls...)
}
