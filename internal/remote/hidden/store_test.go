package hidden

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGet(t *testing.T) {
	rt := goja.New()
	store := New()

	a := rt.NewObject()
	b := rt.NewObject()

	store.Set(a, RemoteID, int64(7))
	store.Set(a, Simple, true)

	id, ok := store.Int(a, RemoteID)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.True(t, store.Has(a, Simple))

	assert.False(t, store.Has(b, RemoteID))
	assert.Equal(t, 1, store.Len())
}

func TestStoreInvisibleToScripts(t *testing.T) {
	rt := goja.New()
	store := New()

	obj := rt.NewObject()
	store.Set(obj, RemoteID, int64(1))
	require.NoError(t, rt.Set("o", obj))

	keys, err := rt.RunString(`Object.getOwnPropertyNames(o).length`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), keys.ToInteger())
}

func TestStoreSameObjectThroughScript(t *testing.T) {
	rt := goja.New()
	store := New()

	fn, err := rt.RunString(`(function f() {})`)
	require.NoError(t, err)
	obj := fn.ToObject(rt)
	store.Set(obj, CallbackID, int64(3))

	require.NoError(t, rt.Set("f", obj))
	back, err := rt.RunString(`f`)
	require.NoError(t, err)

	id, ok := store.Int(back.ToObject(rt), CallbackID)
	require.True(t, ok)
	assert.Equal(t, int64(3), id)
}

func TestStoreDelete(t *testing.T) {
	rt := goja.New()
	store := New()

	obj := rt.NewObject()
	store.Set(obj, CallbackID, int64(2))
	store.Delete(obj, CallbackID)

	assert.False(t, store.Has(obj, CallbackID))

	// Missing keys and nil objects are no-ops
	store.Delete(obj, RemoteID)
	store.Delete(nil, RemoteID)
	store.Set(nil, RemoteID, int64(1))
	_, ok := store.Int(nil, RemoteID)
	assert.False(t, ok)
}

func TestStoreIntTypeMismatch(t *testing.T) {
	rt := goja.New()
	store := New()

	obj := rt.NewObject()
	store.Set(obj, ReturnValue, true)

	_, ok := store.Int(obj, ReturnValue)
	assert.False(t, ok)
}
