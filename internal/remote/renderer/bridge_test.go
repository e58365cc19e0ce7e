package renderer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/renderer"
)

func TestRequireMaterializesMembersLazily(t *testing.T) {
	p := newPair(t, renderer.Options{})

	electron, err := p.bridge.Require(context.Background(), "electron")
	require.NoError(t, err)
	assert.Equal(t, 0, p.bridge.Stats().Proxies)
	assert.Equal(t, 2, p.session.Objects().Len())

	require.NoError(t, p.rt.Set("electron", electron))
	v := p.run(t, `electron.app.getName()`)
	assert.Equal(t, "demo", v.String())
	assert.Equal(t, 1, p.bridge.Stats().Proxies)

	v = p.run(t, `electron.app === electron.app`)
	assert.True(t, v.ToBoolean())
}

func TestBuiltinIdentityAcrossRequests(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `var app = remote.getBuiltin("app"); app === remote.getBuiltin("app")`)
	assert.True(t, v.ToBoolean())
	assert.Equal(t, 1, p.bridge.Stats().Proxies)
}

func TestConstructRemoteClass(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var BrowserWindow = remote.require("electron").BrowserWindow;
		var win = new BrowserWindow({title: "main"});
		[win.getTitle(), win.constructor.name, win.title]`)
	assert.Equal(t, []any{"main", "BrowserWindow", "main"}, v.Export())

	v = p.run(t, `win.title = "renamed"; win.getTitle()`)
	assert.Equal(t, "renamed", v.String())
}

func TestRemoteExceptionIsThrown(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var win = new (remote.require("electron").BrowserWindow)();
		var caught;
		try { win.fail(); } catch (e) { caught = e; }
		[caught instanceof Error, caught.message]`)
	assert.Equal(t, []any{true, "boom"}, v.Export())

	_, err := p.bridge.Require(context.Background(), "missing")
	var remoteErr *descriptor.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "Cannot find module")
}

func TestOwnerInvokesRendererCallback(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var got;
		remote.getGlobal("callLater")(function (n, s) { got = [n, s]; });
		got`)
	assert.Equal(t, []any{int64(3), "pong"}, v.Export())
}

func TestCallbackReentersOwner(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var app = remote.getBuiltin("app");
		var seen;
		remote.getGlobal("callLater")(function (n) { seen = app.getName() + n; });
		seen`)
	assert.Equal(t, "demo3", v.String())
}

func TestProxiesRoundTripToOwner(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var app = remote.getBuiltin("app");
		var echo = remote.getGlobal("echo");
		[echo(app) === app, echo({nested: [1, "x"]}).nested[1]]`)
	assert.Equal(t, []any{true, "x"}, v.Export())
}

func TestFunctionWithReturnValueCrossesBridge(t *testing.T) {
	p := newPair(t, renderer.Options{})

	v := p.run(t, `
		var fixed = remote.createFunctionWithReturnValue(41);
		remote.getGlobal("echo")(fixed)()`)
	assert.Equal(t, int64(41), v.ToInteger())
}

func TestProcessAndBuiltinGetters(t *testing.T) {
	p := newPair(t, renderer.Options{Builtins: []string{"app"}})

	v := p.run(t, `[remote.process.platform, remote.app.getName()]`)
	assert.Equal(t, []any{"test", "demo"}, v.Export())
}

func TestScriptReleaseReturnsReferences(t *testing.T) {
	p := newPair(t, renderer.Options{})

	p.run(t, `
		var app = remote.getBuiltin("app");
		remote.getBuiltin("app");
		remote.release(app);`)
	assert.Equal(t, 0, p.bridge.Stats().Proxies)

	assert.Eventually(t, func() bool {
		return p.session.Objects().Len() == 0
	}, time.Second, 5*time.Millisecond)

	v := p.run(t, `
		var caught;
		try { remote.release({}); } catch (e) { caught = e.message; }
		caught`)
	assert.Contains(t, v.String(), renderer.ErrNotProxy.Error())
}
