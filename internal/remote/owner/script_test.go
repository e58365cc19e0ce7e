package owner

import (
	"context"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
)

type nopTransport struct{}

func (nopTransport) Send(context.Context, string, ...any) error { return nil }
func (nopTransport) Handle(string, ipc.Handler)                  {}
func (nopTransport) Listen(string, ipc.Listener)                 {}

const scriptHostSource = `
var win = { id: 1 };
var modules = { electron: { app: { name: "demo" } }, path: function () {} };
var builtins = { app: modules.electron.app };
var currentWindow = win;
var guests = { "7": { guest: true } };
`

func TestLoadScriptHost(t *testing.T) {
	rt := goja.New()
	h, err := LoadScriptHost(rt, "host.js", scriptHostSource)
	require.NoError(t, err)

	electron, err := h.Require("electron")
	require.NoError(t, err)
	assert.Equal(t, "demo", electron.ToObject(rt).Get("app").ToObject(rt).Get("name").String())
	assert.Len(t, h.SimpleObjects(), 2)

	_, err = h.Require("fs")
	assert.EqualError(t, err, "Cannot find module 'fs'")

	app, err := h.Builtin("app")
	require.NoError(t, err)
	assert.True(t, app.StrictEquals(electron.ToObject(rt).Get("app")))

	w, err := h.CurrentWindow()
	require.NoError(t, err)
	assert.True(t, w.StrictEquals(rt.Get("win")))

	wc, err := h.CurrentWebContents()
	require.NoError(t, err)
	assert.True(t, goja.IsNull(wc))

	guest, err := h.GuestWebContents(7)
	require.NoError(t, err)
	assert.True(t, guest.ToObject(rt).Get("guest").ToBoolean())

	missing, err := h.GuestWebContents(8)
	require.NoError(t, err)
	assert.True(t, goja.IsNull(missing))
}

func TestLoadScriptHostErrors(t *testing.T) {
	_, err := LoadScriptHost(goja.New(), "bad.js", "throw new Error('nope')")
	assert.ErrorContains(t, err, "nope")

	_, err = LoadScriptHost(goja.New(), "guests.js", `var guests = { main: {} }`)
	assert.ErrorContains(t, err, `guest id "main" is not an integer`)
}

func TestScriptHostModulesAreSnapshots(t *testing.T) {
	rt := goja.New()
	h, err := LoadScriptHost(rt, "host.js", scriptHostSource)
	require.NoError(t, err)

	s, err := NewSession(rt, nopTransport{}, h, Options{})
	require.NoError(t, err)

	v, err := h.Require("electron")
	require.NoError(t, err)
	d, err := s.Wrap(v)
	require.NoError(t, err)
	assert.Equal(t, descriptor.TypeObject, d.Type)
}
