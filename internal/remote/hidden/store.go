// Package hidden attaches metadata to script objects without exposing it to
// scripts.
//
// Entries are keyed by a weak pointer to the object, so storing metadata never
// extends an object's lifetime. Values must not reference the object they are
// attached to.
package hidden

import (
	"runtime"
	"sync"
	"weak"

	"github.com/dop251/goja"
)

// Keys used by the bridge.
const (
	RemoteID    = "remoteId"
	CallbackID  = "callbackId"
	ReturnValue = "returnValue"
	Simple      = "simple"
)

// Store is a concurrency-safe side table of per-object values.
type Store struct {
	mu      sync.Mutex
	entries map[weak.Pointer[goja.Object]]map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[weak.Pointer[goja.Object]]map[string]any)}
}

// Get returns the value stored under key for obj.
func (s *Store) Get(obj *goja.Object, key string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[weak.Make(obj)][key]
	return v, ok
}

// Int returns an integer value stored under key.
func (s *Store) Int(obj *goja.Object, key string) (int64, bool) {
	v, ok := s.Get(obj, key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Has reports whether obj has a value under key.
func (s *Store) Has(obj *goja.Object, key string) bool {
	_, ok := s.Get(obj, key)
	return ok
}

// Set stores value under key for obj.
func (s *Store) Set(obj *goja.Object, key string, value any) {
	if obj == nil {
		return
	}
	ptr := weak.Make(obj)

	s.mu.Lock()
	values, ok := s.entries[ptr]
	if !ok {
		values = make(map[string]any)
		s.entries[ptr] = values
	}
	values[key] = value
	s.mu.Unlock()

	if !ok {
		runtime.AddCleanup(obj, s.forget, ptr)
	}
}

// Delete removes key from obj.
func (s *Store) Delete(obj *goja.Object, key string) {
	if obj == nil {
		return
	}
	ptr := weak.Make(obj)

	s.mu.Lock()
	defer s.mu.Unlock()

	if values, ok := s.entries[ptr]; ok {
		delete(values, key)
	}
}

// Len returns the number of objects with at least one entry.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) forget(ptr weak.Pointer[goja.Object]) {
	s.mu.Lock()
	delete(s.entries, ptr)
	s.mu.Unlock()
}
