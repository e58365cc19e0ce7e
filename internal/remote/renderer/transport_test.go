package renderer_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/owner"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/renderer"
)

type sent struct {
	channel string
	args    []any
}

// fakeTransport records one-way messages and answers sync requests from a
// table of canned replies.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []sent
	replies   map[string]func(args []any) (any, error)
	listeners map[string]ipc.Listener
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		replies:   make(map[string]func([]any) (any, error)),
		listeners: make(map[string]ipc.Listener),
	}
}

func (f *fakeTransport) Send(_ context.Context, channel string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channel: channel, args: args})
	return nil
}

func (f *fakeTransport) SendSync(_ context.Context, channel string, args ...any) (json.RawMessage, error) {
	f.mu.Lock()
	reply, ok := f.replies[channel]
	f.mu.Unlock()
	if !ok {
		return nil, &ipc.PeerError{Channel: channel, Message: "no handler"}
	}
	v, err := reply(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakeTransport) Listen(channel string, l ipc.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[channel] = l
}

func (f *fakeTransport) deliver(t *testing.T, channel string, args ...any) {
	t.Helper()
	f.mu.Lock()
	l, ok := f.listeners[channel]
	f.mu.Unlock()
	require.True(t, ok, "no listener for %s", channel)

	payload, err := ipc.EncodeArgs(args...)
	require.NoError(t, err)
	l(context.Background(), payload)
}

func (f *fakeTransport) sentOn(channel string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.channel == channel {
			out = append(out, s)
		}
	}
	return out
}

func newFakeBridge(t *testing.T, opts renderer.Options) (*renderer.Bridge, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	b, err := renderer.New(goja.New(), transport, opts)
	require.NoError(t, err)
	return b, transport
}

const hostScript = `
var BrowserWindow = class {
	constructor(opts) {
		this.title = (opts && opts.title) || "untitled";
	}
	getTitle() { return this.title; }
	fail() { throw new Error("boom"); }
};
var app = {
	name: "demo",
	getName: function () { return this.name; },
};
var electron = { app: app, BrowserWindow: BrowserWindow };
var process = { platform: "test", versions: { goja: "1" } };
function callLater(cb) { cb(3, "pong"); }
function echo(v) { return v; }
`

type pair struct {
	bridge  *renderer.Bridge
	rt      *goja.Runtime
	session *owner.Session
}

// newPair connects a bridge to an owner session serving hostScript.
func newPair(t *testing.T, opts renderer.Options) *pair {
	t.Helper()

	ownerRT := goja.New()
	_, err := ownerRT.RunString(hostScript)
	require.NoError(t, err)
	electron := ownerRT.Get("electron").ToObject(ownerRT)
	host := &owner.StaticHost{
		Modules:  map[string]goja.Value{"electron": electron},
		Builtins: map[string]goja.Value{"app": ownerRT.Get("app")},
	}

	a, b := ipc.Pipe()
	client := ipc.NewEndpoint(a, ipc.Options{Side: "renderer", SyncTimeout: 5 * time.Second})
	server := ipc.NewEndpoint(b, ipc.Options{Side: "owner"})

	session, err := owner.NewSession(ownerRT, server, host, owner.Options{})
	require.NoError(t, err)
	session.MarkSimple(electron)

	rt := goja.New()
	bridge, err := renderer.New(rt, client, opts)
	require.NoError(t, err)
	_, err = bridge.Install(rt.GlobalObject())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = client.Close()
		_ = server.Close()
	})
	return &pair{bridge: bridge, rt: rt, session: session}
}

func (p *pair) run(t *testing.T, script string) goja.Value {
	t.Helper()
	var v goja.Value
	err := p.bridge.Run(context.Background(), func() error {
		var err error
		v, err = p.rt.RunString(script)
		return err
	})
	require.NoError(t, err)
	return v
}
