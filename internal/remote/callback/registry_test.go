package callback

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
)

func compile(t *testing.T, rt *goja.Runtime, src string) *goja.Object {
	t.Helper()
	v, err := rt.RunString(src)
	require.NoError(t, err)
	return v.ToObject(rt)
}

func TestAddApply(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	fn := compile(t, rt, `(function (n, s) { return s + ":" + (n * 2); })`)
	cid, err := reg.Add(fn, "test.js:1")
	require.NoError(t, err)
	assert.Equal(t, "test.js:1", reg.Location(cid))

	res, err := reg.Apply(cid, goja.Undefined(), rt.ToValue(3), rt.ToValue("pong"))
	require.NoError(t, err)
	assert.Equal(t, "pong:6", res.String())
}

func TestAddReusesID(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	fn := compile(t, rt, `(function () {})`)
	first, err := reg.Add(fn, "")
	require.NoError(t, err)
	second, err := reg.Add(fn, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, reg.Len())

	other, err := reg.Add(compile(t, rt, `(function () {})`), "")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestRemoveThenApply(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	fn := compile(t, rt, `(function () { return 1; })`)
	cid, err := reg.Add(fn, "")
	require.NoError(t, err)

	reg.Remove(cid)
	_, err = reg.Apply(cid, goja.Undefined())
	assert.ErrorIs(t, err, ErrUnknownCallback)
	assert.ErrorIs(t, err, descriptor.ErrProtocol)

	// A removed function registers under a fresh id
	again, err := reg.Add(fn, "")
	require.NoError(t, err)
	assert.NotEqual(t, cid, again)
}

func TestReleaseCounts(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	fn := compile(t, rt, `(function () {})`)
	cid, _ := reg.Add(fn, "")
	_, _ = reg.Add(fn, "")
	_, _ = reg.Add(fn, "")

	assert.False(t, reg.Release(cid, 2))
	_, ok := reg.Get(cid)
	assert.True(t, ok)

	assert.True(t, reg.Release(cid, 1))
	_, ok = reg.Get(cid)
	assert.False(t, ok)

	// Duplicate releases are no-ops
	assert.False(t, reg.Release(cid, 1))
}

func TestAddRejectsNonFunction(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	_, err := reg.Add(rt.NewObject(), "")
	assert.ErrorIs(t, err, ErrNotCallable)
}

func TestApplyMayMutateRegistry(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	var victim int64
	remover := rt.ToValue(func(goja.FunctionCall) goja.Value {
		reg.Remove(victim)
		return goja.Undefined()
	}).ToObject(rt)

	victim, _ = reg.Add(compile(t, rt, `(function () {})`), "")
	cid, err := reg.Add(remover, "")
	require.NoError(t, err)

	_, err = reg.Apply(cid, goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestApplyPropagatesExceptions(t *testing.T) {
	rt := goja.New()
	reg := NewRegistry(hidden.New())

	cid, _ := reg.Add(compile(t, rt, `(function () { throw new Error("bad"); })`), "")
	_, err := reg.Apply(cid, goja.Undefined())

	var exc *goja.Exception
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Error(), "bad")
}

func TestClear(t *testing.T) {
	rt := goja.New()
	store := hidden.New()
	reg := NewRegistry(store)

	fn := compile(t, rt, `(function () {})`)
	_, _ = reg.Add(fn, "")
	reg.Clear()

	assert.Zero(t, reg.Len())
	assert.False(t, store.Has(fn, hidden.CallbackID))
}
