package renderer_test

import (
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/renderer"
)

// roundTrip wraps v, sends it through the JSON codec and unwraps it again.
func roundTrip(t *testing.T, b *renderer.Bridge, v goja.Value) goja.Value {
	t.Helper()
	d, err := b.Wrap(v)
	require.NoError(t, err)
	data, err := descriptor.Marshal(d)
	require.NoError(t, err)
	back, err := descriptor.Unmarshal(data, descriptor.DefaultLimits())
	require.NoError(t, err)
	out, err := b.Unwrap(back)
	require.NoError(t, err)
	return out
}

func TestRoundTripPlainValues(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "integer", script: `42`},
		{name: "float", script: `2.5`},
		{name: "string", script: `"hello"`},
		{name: "empty string", script: `""`},
		{name: "false", script: `false`},
		{name: "null", script: `null`},
		{name: "array", script: `[1, "two", true, null, [3]]`},
		{name: "object", script: `({a: 1, b: {c: "d", e: [false]}})`},
		{name: "empty object", script: `({})`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newFakeBridge(t, renderer.Options{})
			rt := b.Runtime()

			in, err := rt.RunString(tt.script)
			require.NoError(t, err)
			out := roundTrip(t, b, in)

			stringify, _ := goja.AssertFunction(rt.Get("JSON").ToObject(rt).Get("stringify"))
			want, err := stringify(goja.Undefined(), in)
			require.NoError(t, err)
			got, err := stringify(goja.Undefined(), out)
			require.NoError(t, err)
			assert.Equal(t, want.String(), got.String())
		})
	}
}

func TestRoundTripDateAndBuffer(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	rt := b.Runtime()

	date, err := rt.RunString(`new Date(1700000000000)`)
	require.NoError(t, err)
	out := roundTrip(t, b, date)
	require.NoError(t, rt.Set("out", out))
	got, err := rt.RunString(`out instanceof Date && out.getTime()`)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), got.ToInteger())

	invalid, err := rt.RunString(`new Date(NaN)`)
	require.NoError(t, err)
	require.NoError(t, rt.Set("out", roundTrip(t, b, invalid)))
	got, err = rt.RunString(`isNaN(out.getTime())`)
	require.NoError(t, err)
	assert.True(t, got.ToBoolean())

	buf, err := rt.RunString(`new Uint8Array([1, 2, 250])`)
	require.NoError(t, err)
	require.NoError(t, rt.Set("out", roundTrip(t, b, buf)))
	got, err = rt.RunString(`Array.prototype.join.call(out, ",")`)
	require.NoError(t, err)
	assert.Equal(t, "1,2,250", got.String())
}

func TestWrapUndefinedAndNonFiniteAsNull(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	rt := b.Runtime()

	for _, script := range []string{`undefined`, `NaN`, `Infinity`} {
		v, err := rt.RunString(script)
		require.NoError(t, err)
		d, err := b.Wrap(v)
		require.NoError(t, err)
		assert.Equal(t, descriptor.Null(), d, script)
	}
}

func TestWrapSnapshotIncludesInheritedEnumerables(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	v, err := b.Runtime().RunString(`
		var base = {inherited: 1};
		var o = Object.create(base);
		o.own = 2;
		Object.defineProperty(o, "hidden", {value: 3, enumerable: false});
		o`)
	require.NoError(t, err)

	d, err := b.Wrap(v)
	require.NoError(t, err)
	require.Equal(t, descriptor.TypeObject, d.Type)

	var names []string
	for _, m := range d.Members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"own", "inherited"}, names)
}

func TestWrapCycles(t *testing.T) {
	script := `
		var o = {name: "o"};
		o.self = o;
		o.list = [o];
		o`

	t.Run("null", func(t *testing.T) {
		b, _ := newFakeBridge(t, renderer.Options{})
		v, err := b.Runtime().RunString(script)
		require.NoError(t, err)

		d, err := b.Wrap(v)
		require.NoError(t, err)
		require.Len(t, d.Members, 3)
		assert.Equal(t, descriptor.Scalar("o"), d.Members[0].Value)
		assert.Equal(t, descriptor.Null(), d.Members[1].Value)
		require.Equal(t, descriptor.TypeArray, d.Members[2].Value.Type)
		assert.Equal(t, descriptor.Null(), d.Members[2].Value.Items[0])
	})

	t.Run("reject", func(t *testing.T) {
		b, _ := newFakeBridge(t, renderer.Options{CyclePolicy: config.CycleReject})
		v, err := b.Runtime().RunString(script)
		require.NoError(t, err)

		_, err = b.Wrap(v)
		assert.ErrorIs(t, err, descriptor.ErrCycle)
		assert.ErrorIs(t, err, descriptor.ErrProtocol)
	})

	t.Run("shared values are not cycles", func(t *testing.T) {
		b, _ := newFakeBridge(t, renderer.Options{CyclePolicy: config.CycleReject})
		v, err := b.Runtime().RunString(`var s = {v: 1}; ({a: s, b: [s, s]})`)
		require.NoError(t, err)

		d, err := b.Wrap(v)
		require.NoError(t, err)
		assert.Equal(t, descriptor.TypeObject, d.Members[0].Value.Type)
		assert.Equal(t, descriptor.TypeObject, d.Members[1].Value.Items[1].Type)
	})
}

func TestWrapEnforcesLimits(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{Limits: descriptor.Limits{MaxDepth: 8, MaxNodes: 50}})
	rt := b.Runtime()

	deep, err := rt.RunString(strings.Repeat("[", 20) + strings.Repeat("]", 20))
	require.NoError(t, err)
	_, err = b.Wrap(deep)
	assert.ErrorIs(t, err, descriptor.ErrTooDeep)

	wide, err := rt.RunString(`Array.from({length: 100}, function (_, i) { return i; })`)
	require.NoError(t, err)
	_, err = b.Wrap(wide)
	assert.ErrorIs(t, err, descriptor.ErrTooLarge)

	sparse, err := rt.RunString(`var a = []; a.length = 4294967295; a`)
	require.NoError(t, err)
	_, err = b.Wrap(sparse)
	assert.ErrorIs(t, err, descriptor.ErrTooLarge)

	nested, err := rt.RunString(`var s = []; s.length = 45; [1, 2, 3, 4, 5, 6, s]`)
	require.NoError(t, err)
	_, err = b.Wrap(nested)
	assert.ErrorIs(t, err, descriptor.ErrTooLarge)
}

func TestWrapFunctionsRegisterCallbacks(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{CaptureLocation: true})
	rt := b.Runtime()

	fn, err := rt.RunString(`(function onReady() {})`)
	require.NoError(t, err)

	first, err := b.Wrap(fn)
	require.NoError(t, err)
	assert.Equal(t, descriptor.TypeFunction, first.Type)
	assert.Equal(t, "onReady", first.Name)
	assert.Positive(t, first.ID)

	second, err := b.Wrap(fn)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, b.Stats().Callbacks)
}

func TestWrapArgsReleasesCallbacksOnFailure(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{Limits: descriptor.Limits{MaxDepth: 8, MaxNodes: 50}})
	rt := b.Runtime()

	kept, err := rt.RunString(`function kept() {}; kept`)
	require.NoError(t, err)
	_, err = b.Wrap(kept)
	require.NoError(t, err)

	args, err := rt.RunString(`var big = []; big.length = 1000; [kept, function fresh() {}, big]`)
	require.NoError(t, err)
	values := args.ToObject(rt)

	_, err = b.WrapArgs([]goja.Value{values.Get("0"), values.Get("1"), values.Get("2")})
	require.ErrorIs(t, err, descriptor.ErrTooLarge)
	assert.Contains(t, err.Error(), "argument 2")
	assert.Equal(t, 1, b.Stats().Callbacks)

	_, err = b.WrapArgs([]goja.Value{values.Get("1")})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Stats().Callbacks)
}

func TestWrapFunctionWithReturnValue(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	rt := b.Runtime()

	fn := b.CreateFunctionWithReturnValue(rt.ToValue("fixed"))
	d, err := b.Wrap(fn)
	require.NoError(t, err)
	assert.Equal(t, descriptor.TypeFunctionWithReturnValue, d.Type)
	assert.Equal(t, descriptor.Scalar("fixed"), d.Return)
	assert.Equal(t, 0, b.Stats().Callbacks)

	out, err := b.Unwrap(d)
	require.NoError(t, err)
	call, ok := goja.AssertFunction(out)
	require.True(t, ok)
	res, err := call(goja.Undefined())
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.String())
}

func TestWrapPromiseRegistersThen(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	v, err := b.Runtime().RunString(`Promise.resolve(1)`)
	require.NoError(t, err)

	d, err := b.Wrap(v)
	require.NoError(t, err)
	require.Equal(t, descriptor.TypePromise, d.Type)
	require.NotNil(t, d.Then)
	assert.Equal(t, descriptor.TypeFunction, d.Then.Type)
	assert.Equal(t, 1, b.Stats().Callbacks)
}

func TestWrapError(t *testing.T) {
	b, _ := newFakeBridge(t, renderer.Options{})
	v, err := b.Runtime().RunString(`var e = new TypeError("bad input"); e.code = 7; e`)
	require.NoError(t, err)

	d, err := b.Wrap(v)
	require.NoError(t, err)
	assert.Equal(t, descriptor.TypeError, d.Type)
	assert.Equal(t, "TypeError", d.Name)
	assert.Equal(t, "bad input", d.Message)
	require.Len(t, d.Members, 1)
	assert.Equal(t, "code", d.Members[0].Name)
}
