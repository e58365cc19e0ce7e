package owner

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
)

var ErrUnknownObject = fmt.Errorf("%w: unknown object", descriptor.ErrProtocol)

type object struct {
	obj  *goja.Object
	refs int
}

// ObjectRegistry pins the objects a renderer holds proxies for. An object
// keeps one id for as long as it is registered; ids are never reused.
type ObjectRegistry struct {
	seq id.Sequence

	mu      sync.Mutex
	objects map[int64]*object
	ids     map[*goja.Object]int64
}

// NewObjectRegistry creates an empty registry.
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{
		objects: make(map[int64]*object),
		ids:     make(map[*goja.Object]int64),
	}
}

// Add registers obj, or counts one more reference if it already is, and
// returns its id.
func (r *ObjectRegistry) Add(obj *goja.Object) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oid, ok := r.ids[obj]; ok {
		r.objects[oid].refs++
		return oid
	}
	oid := r.seq.Next()
	r.objects[oid] = &object{obj: obj, refs: 1}
	r.ids[obj] = oid
	return oid
}

// Get returns the object registered under oid.
func (r *ObjectRegistry) Get(oid int64) (*goja.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.objects[oid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, oid)
	}
	return o.obj, nil
}

// Refs returns the reference count of oid.
func (r *ObjectRegistry) Refs(oid int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.objects[oid]; ok {
		return o.refs
	}
	return 0
}

// Release drops n references and unpins the object when none remain. Unknown
// ids are ignored. It reports whether the object was unpinned.
func (r *ObjectRegistry) Release(oid int64, n int) bool {
	if n <= 0 {
		n = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.objects[oid]
	if !ok {
		return false
	}
	o.refs -= n
	if o.refs > 0 {
		return false
	}
	delete(r.ids, o.obj)
	delete(r.objects, oid)
	return true
}

// Clear unpins everything.
func (r *ObjectRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.objects = make(map[int64]*object)
	r.ids = make(map[*goja.Object]int64)
}

// Len returns the number of pinned objects.
func (r *ObjectRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}
