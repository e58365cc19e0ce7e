package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/callback"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/idweak"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/jsutil"
)

var (
	ErrNotProxy         = errors.New("value is not a remote proxy")
	ErrNotConstructible = errors.New("remote class cannot be constructed through its prototype")
)

// Transport is the part of an ipc.Endpoint the bridge uses.
type Transport interface {
	Send(ctx context.Context, channel string, args ...any) error
	SendSync(ctx context.Context, channel string, args ...any) (json.RawMessage, error)
	Listen(channel string, l ipc.Listener)
}

// Options configures a Bridge.
type Options struct {
	Limits          descriptor.Limits
	CyclePolicy     string
	CaptureLocation bool
	// Builtins are exposed as lazy getters on the installed remote object.
	Builtins []string
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	// OnCallbackError is told about callbacks that failed locally.
	OnCallbackError func(callbackID int64, err error)
}

// OptionsFromConfig builds bridge options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Limits: descriptor.Limits{
			MaxDepth: cfg.Bridge.MaxDepth,
			MaxNodes: cfg.Bridge.MaxNodes,
		},
		CyclePolicy:     cfg.Bridge.CyclePolicy,
		CaptureLocation: cfg.Bridge.CaptureLocation,
		Builtins:        cfg.Bridge.Builtins,
	}
}

// Bridge is the renderer half of the remote object bridge. It turns owner
// descriptors into proxies and local values into descriptors.
//
// A Bridge belongs to one goja runtime. Every method except Stats must be
// called on the goroutine driving that runtime; that goroutine must also be
// the one dispatching the transport's inbound messages.
type Bridge struct {
	rt        *goja.Runtime
	js        *jsutil.Helpers
	transport Transport
	opts      Options
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	hidden    *hidden.Store
	callbacks *callback.Registry
	rel       *releaser

	// ctx bounds requests issued by scripts through proxies.
	ctx context.Context
}

// New creates a bridge for rt and subscribes to the owner's callback
// notifications on transport.
func New(rt *goja.Runtime, transport Transport, opts Options) (*Bridge, error) {
	js, err := jsutil.New(rt)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare runtime: %w", err)
	}
	if opts.Limits.MaxDepth <= 0 || opts.Limits.MaxNodes <= 0 {
		opts.Limits = descriptor.DefaultLimits()
	}
	if opts.CyclePolicy == "" {
		opts.CyclePolicy = config.CycleNull
	}

	logger := logging.OrNop(opts.Logger).Named("renderer")
	store := hidden.New()
	b := &Bridge{
		rt:        rt,
		js:        js,
		transport: transport,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		hidden:    store,
		callbacks: callback.NewRegistry(store),
		rel: &releaser{
			cache:     idweak.New[goja.Object](),
			transport: transport,
			logger:    logger,
			metrics:   opts.Metrics,
		},
		ctx: context.Background(),
	}

	transport.Listen(ipc.ChannelCallback, b.onCallback)
	transport.Listen(ipc.ChannelReleaseCallback, b.onReleaseCallback)
	return b, nil
}

// Runtime returns the runtime the bridge serves.
func (b *Bridge) Runtime() *goja.Runtime {
	return b.rt
}

// Stats reports the sizes of the bridge tables.
type Stats struct {
	Proxies   int
	Callbacks int
}

// Stats returns current table sizes.
func (b *Bridge) Stats() Stats {
	return Stats{
		Proxies:   b.rel.cache.Len(),
		Callbacks: b.callbacks.Len(),
	}
}

// Run calls fn with ctx bounding every request scripts issue meanwhile.
func (b *Bridge) Run(ctx context.Context, fn func() error) error {
	prev := b.enter(ctx)
	defer b.leave(prev)
	return fn()
}

func (b *Bridge) enter(ctx context.Context) context.Context {
	prev := b.ctx
	b.ctx = ctx
	return prev
}

func (b *Bridge) leave(prev context.Context) {
	b.ctx = prev
}

// Require returns the owner's module by name.
func (b *Bridge) Require(ctx context.Context, module string) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelRequire, module)
}

// GetBuiltin returns one member of the owner's built-in module.
func (b *Bridge) GetBuiltin(ctx context.Context, name string) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelGetBuiltin, name)
}

// GetCurrentWindow returns the window hosting this renderer.
func (b *Bridge) GetCurrentWindow(ctx context.Context) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelCurrentWindow)
}

// GetCurrentWebContents returns the web contents of this renderer.
func (b *Bridge) GetCurrentWebContents(ctx context.Context) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelCurrentWebContents)
}

// GetGlobal returns a global of the owner's runtime.
func (b *Bridge) GetGlobal(ctx context.Context, name string) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelGlobal, name)
}

// GetGuestWebContents returns the web contents of a guest instance.
func (b *Bridge) GetGuestWebContents(ctx context.Context, guestID int64) (goja.Value, error) {
	return b.fetch(ctx, ipc.ChannelGuestWebContents, guestID)
}

// Process returns the owner's process object.
func (b *Bridge) Process(ctx context.Context) (goja.Value, error) {
	return b.GetGlobal(ctx, "process")
}

// CreateFunctionWithReturnValue returns a function that, when sent to the
// owner, arrives as a function returning v.
func (b *Bridge) CreateFunctionWithReturnValue(v goja.Value) *goja.Object {
	fn := b.rt.ToValue(func(goja.FunctionCall) goja.Value {
		return v
	}).ToObject(b.rt)
	b.hidden.Set(fn, hidden.ReturnValue, true)
	return fn
}

func (b *Bridge) fetch(ctx context.Context, channel string, args ...any) (goja.Value, error) {
	prev := b.enter(ctx)
	defer b.leave(prev)

	d, err := b.request(ctx, channel, args...)
	if err != nil {
		return nil, err
	}
	return b.Unwrap(d)
}

// request issues one synchronous request and decodes the reply descriptor.
func (b *Bridge) request(ctx context.Context, channel string, args ...any) (*descriptor.Descriptor, error) {
	raw, err := b.transport.SendSync(ctx, channel, args...)
	if err != nil {
		var peerErr *ipc.PeerError
		if errors.As(err, &peerErr) {
			return nil, fmt.Errorf("%w: %w", descriptor.ErrProtocol, err)
		}
		return nil, err
	}
	return descriptor.Unmarshal(raw, b.opts.Limits)
}

// call issues a request on behalf of a script and returns the unwrapped
// reply, throwing on failure.
func (b *Bridge) call(channel string, args ...any) goja.Value {
	d, err := b.request(b.ctx, channel, args...)
	if err != nil {
		b.throw(err)
	}
	v, err := b.Unwrap(d)
	if err != nil {
		b.throw(err)
	}
	return v
}

// throw raises err in the calling script. Remote exceptions keep the
// owner's message and stack.
func (b *Bridge) throw(err error) {
	var remote *descriptor.RemoteError
	if errors.As(err, &remote) {
		jsutil.Throw(b.js.NewError(remote.Message, remote.Stack))
	}
	jsutil.Throw(b.rt.NewGoError(err))
}

// rethrow propagates an error returned by a script call back into script.
func (b *Bridge) rethrow(err error) {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		jsutil.Throw(exc.Value())
	}
	b.throw(err)
}
