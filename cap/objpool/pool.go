// Package objpool keeps the server-side objects of the root task, indexed by
// the capability that names them.
//
// Registering an object allocates its capability on the object's behalf and
// then hands ownership of that slot to the pool. The pool is the only
// component that frees it again.
package objpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshuapare/capkit/cap/alloc"
)

// ErrNotRegistered indicates a capability that names no pooled object.
var ErrNotRegistered = errors.New("objpool: capability not registered")

// Object is anything the pool can serve.
type Object interface {
	// ObjectKind is the capability kind the object is served under.
	ObjectKind() alloc.Kind
}

// Pool maps capabilities to objects.
type Pool struct {
	mu   sync.Mutex
	a    alloc.Allocator
	objs map[int]Object
}

// New creates a pool allocating from a.
func New(a alloc.Allocator) *Pool {
	return &Pool{a: a, objs: make(map[int]Object)}
}

// Allocator returns the allocator the pool uses.
func (p *Pool) Allocator() alloc.Allocator { return p.a }

// Register allocates a capability for obj and takes ownership of it.
func (p *Pool) Register(obj Object, label string) (alloc.Cap, error) {
	c, err := p.a.Alloc(obj, label)
	if err != nil {
		return alloc.Invalid, err
	}
	c = c.As(obj.ObjectKind())
	if err := p.a.Take(c, p); err != nil {
		_ = p.a.Free(c, alloc.FreeKeepObject)
		return alloc.Invalid, fmt.Errorf("objpool: take %s: %w", c, err)
	}

	p.mu.Lock()
	p.objs[c.Index] = obj
	p.mu.Unlock()
	return c, nil
}

// Lookup returns the object served under c.
func (p *Pool) Lookup(c alloc.Cap) (Object, bool) {
	if !c.Valid() {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objs[c.Index]
	return obj, ok
}

// Unregister removes the object served under c, drops the pool's ownership
// and frees the slot with flags. The object itself is left to its owner.
// If the pool no longer owns the slot, the object stays registered.
func (p *Pool) Unregister(c alloc.Cap, flags alloc.FreeFlags) error {
	if !c.Valid() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.objs[c.Index]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, c)
	}

	if err := p.a.ReleaseOwnership(c, p); err != nil {
		return fmt.Errorf("objpool: release %s: %w", c, err)
	}
	delete(p.objs, c.Index)
	return p.a.Free(c, flags)
}

// Len returns the number of pooled objects.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objs)
}
