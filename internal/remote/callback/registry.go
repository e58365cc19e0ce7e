// Package callback keeps local functions the peer may invoke by id.
package callback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
)

var (
	ErrUnknownCallback = fmt.Errorf("%w: unknown callback", descriptor.ErrProtocol)
	ErrNotCallable     = errors.New("value is not a function")
)

type entry struct {
	obj      *goja.Object
	fn       goja.Callable
	refs     int
	location string
}

// Registry maps callback ids to functions. The lock is never held while a
// function runs, so callbacks may add or remove entries.
type Registry struct {
	hidden *hidden.Store
	seq    id.Sequence

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewRegistry creates a registry recording ids in store.
func NewRegistry(store *hidden.Store) *Registry {
	return &Registry{
		hidden:  store,
		entries: make(map[int64]*entry),
	}
}

// Add registers fn and returns its id. A function that is already registered
// keeps its id and gains a reference.
func (r *Registry) Add(fn *goja.Object, location string) (int64, error) {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return 0, ErrNotCallable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cid, ok := r.hidden.Int(fn, hidden.CallbackID); ok {
		if e, live := r.entries[cid]; live {
			e.refs++
			return cid, nil
		}
	}

	cid := r.seq.Next()
	r.entries[cid] = &entry{obj: fn, fn: call, refs: 1, location: location}
	r.hidden.Set(fn, hidden.CallbackID, cid)
	return cid, nil
}

// Get returns the function registered under id.
func (r *Registry) Get(cid int64) (*goja.Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cid]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Location returns where the function under id was registered.
func (r *Registry) Location(cid int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[cid]; ok {
		return e.location
	}
	return ""
}

// Apply invokes the function under id. It must run on the goroutine driving
// the function's runtime.
func (r *Registry) Apply(cid int64, this goja.Value, args ...goja.Value) (goja.Value, error) {
	r.mu.Lock()
	e, ok := r.entries[cid]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCallback, cid)
	}
	return e.fn(this, args...)
}

// Remove drops id regardless of its reference count.
func (r *Registry) Remove(cid int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[cid]; ok {
		r.hidden.Delete(e.obj, hidden.CallbackID)
		delete(r.entries, cid)
	}
}

// Release drops n references to id and removes it when none remain. It
// reports whether the entry was removed.
func (r *Registry) Release(cid int64, n int) bool {
	if n <= 0 {
		n = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cid]
	if !ok {
		return false
	}
	e.refs -= n
	if e.refs > 0 {
		return false
	}
	r.hidden.Delete(e.obj, hidden.CallbackID)
	delete(r.entries, cid)
	return true
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cid, e := range r.entries {
		r.hidden.Delete(e.obj, hidden.CallbackID)
		delete(r.entries, cid)
	}
}
