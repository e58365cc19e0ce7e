package owner

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
)

func TestObjectRegistryCountsReferences(t *testing.T) {
	rt := goja.New()
	reg := NewObjectRegistry()
	obj := rt.NewObject()

	first := reg.Add(obj)
	second := reg.Add(obj)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, reg.Refs(first))

	assert.False(t, reg.Release(first, 1))
	got, err := reg.Get(first)
	require.NoError(t, err)
	assert.Same(t, obj, got)

	assert.True(t, reg.Release(first, 1))
	_, err = reg.Get(first)
	assert.ErrorIs(t, err, ErrUnknownObject)
	assert.ErrorIs(t, err, descriptor.ErrProtocol)

	again := reg.Add(obj)
	assert.Greater(t, again, first)
}

func TestObjectRegistryReleaseIsIdempotent(t *testing.T) {
	rt := goja.New()
	reg := NewObjectRegistry()
	oid := reg.Add(rt.NewObject())

	assert.True(t, reg.Release(oid, 5))
	assert.False(t, reg.Release(oid, 1))
	assert.False(t, reg.Release(999, 1))
	assert.Equal(t, 0, reg.Len())
}

func TestObjectRegistryClear(t *testing.T) {
	rt := goja.New()
	reg := NewObjectRegistry()
	a := reg.Add(rt.NewObject())
	reg.Add(rt.NewObject())

	reg.Clear()
	assert.Equal(t, 0, reg.Len())
	_, err := reg.Get(a)
	assert.ErrorIs(t, err, ErrUnknownObject)
}
