// Package idweak maps integer ids to weakly held values.
//
// Each entry carries a generation token and a reference count. The token lets
// a finalizer for a superseded entry detect that it is stale; the count is the
// number of times the id was absorbed and is handed back when the entry is
// taken so the owner can drop exactly that many references.
package idweak

import (
	"sync"
	"weak"
)

type entry[T any] struct {
	ptr   weak.Pointer[T]
	token uint64
	refs  int
}

// Map is a concurrency-safe id to weak pointer table.
type Map[T any] struct {
	mu      sync.Mutex
	entries map[int64]*entry[T]
	tokens  uint64
}

// New creates an empty map.
func New[T any]() *Map[T] {
	return &Map[T]{entries: make(map[int64]*entry[T])}
}

// Get returns the live value for id.
func (m *Map[T]) Get(id int64) (*T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	v := e.ptr.Value()
	return v, v != nil
}

// Has reports whether id has an entry, live or not yet finalized.
func (m *Map[T]) Has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[id]
	return ok
}

// Set stores v under id with one reference and returns the entry's token.
// References of a displaced entry carry over to the new one, so a finalizer
// that lost the race against Set does not lose them.
func (m *Map[T]) Set(id int64, v *T) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens++
	refs := 1
	if old, ok := m.entries[id]; ok {
		refs += old.refs
	}
	m.entries[id] = &entry[T]{ptr: weak.Make(v), token: m.tokens, refs: refs}
	return m.tokens
}

// Ref adds one reference to a live entry.
func (m *Map[T]) Ref(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.ptr.Value() == nil {
		return false
	}
	e.refs++
	return true
}

// Take removes id if its token matches and returns the accumulated
// references. A mismatched token leaves the map unchanged.
func (m *Map[T]) Take(id int64, token uint64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.token != token {
		return 0, false
	}
	delete(m.entries, id)
	return e.refs, true
}

// TakeValue removes id if it currently holds v.
func (m *Map[T]) TakeValue(id int64, v *T) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.ptr.Value() != v {
		return 0, false
	}
	delete(m.entries, id)
	return e.refs, true
}

// Refs returns the reference count of id.
func (m *Map[T]) Refs(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[id]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of entries.
func (m *Map[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Drain removes every entry and returns their reference counts by id.
func (m *Map[T]) Drain() map[int64]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]int, len(m.entries))
	for id, e := range m.entries {
		out[id] = e.refs
	}
	m.entries = make(map[int64]*entry[T])
	return out
}
