package owner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/descriptor"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/hidden"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/idweak"
	"github.com/GriffinCanCode/AgentOS/remote/internal/remote/jsutil"
)

const releaseTimeout = 5 * time.Second

// Transport is the part of an ipc.Endpoint a session uses.
type Transport interface {
	Send(ctx context.Context, channel string, args ...any) error
	Handle(channel string, h ipc.Handler)
	Listen(channel string, l ipc.Listener)
}

// Options configures a Session.
type Options struct {
	Limits      descriptor.Limits
	CyclePolicy string
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// OptionsFromConfig builds session options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Limits: descriptor.Limits{
			MaxDepth: cfg.Bridge.MaxDepth,
			MaxNodes: cfg.Bridge.MaxNodes,
		},
		CyclePolicy: cfg.Bridge.CyclePolicy,
	}
}

// Session serves one renderer. It owns the objects the renderer holds
// proxies for and the proxies standing in for the renderer's callbacks.
//
// Requests are handled on the goroutine dispatching the transport, which
// must be the goroutine driving rt.
type Session struct {
	rt        *goja.Runtime
	js        *jsutil.Helpers
	host      Host
	transport Transport
	opts      Options
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	hidden  *hidden.Store
	objects *ObjectRegistry
	rel     *releaser
}

// NewSession creates a session for rt and registers its handlers on
// transport. Objects listed by a SimpleHost are marked simple.
func NewSession(rt *goja.Runtime, transport Transport, host Host, opts Options) (*Session, error) {
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

	logger := logging.OrNop(opts.Logger).Named("owner")
	s := &Session{
		rt:        rt,
		js:        js,
		host:      host,
		transport: transport,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		hidden:    hidden.New(),
		objects:   NewObjectRegistry(),
		rel: &releaser{
			cache:     idweak.New[goja.Object](),
			transport: transport,
			logger:    logger,
		},
	}
	if sh, ok := host.(SimpleHost); ok {
		for _, obj := range sh.SimpleObjects() {
			s.MarkSimple(obj)
		}
	}
	s.register()
	return s, nil
}

// Runtime returns the runtime the session serves from.
func (s *Session) Runtime() *goja.Runtime {
	return s.rt
}

// Objects returns the registry of pinned objects.
func (s *Session) Objects() *ObjectRegistry {
	return s.objects
}

// MarkSimple makes obj travel as a snapshot of its enumerable fields
// instead of as a remote reference.
func (s *Session) MarkSimple(obj *goja.Object) {
	s.hidden.Set(obj, hidden.Simple, true)
}

// Callbacks returns the number of live renderer callback proxies.
func (s *Session) Callbacks() int {
	return s.rel.cache.Len()
}

// Close unpins every object and forgets every callback proxy. The renderer
// is not notified; its side goes away with the connection.
func (s *Session) Close() {
	s.objects.Clear()
	s.rel.cache.Drain()
	s.metrics.SetOwnerObjects(0)
}

// handle caches one callback proxy entry for its cleanup.
type handle struct {
	id    int64
	token uint64
}

// releaser hands callback references back to the renderer. It must not
// reach any proxy or the runtime.
type releaser struct {
	cache     *idweak.Map[goja.Object]
	transport Transport
	logger    *zap.Logger
}

func (r *releaser) collected(h handle) {
	refs, ok := r.cache.Take(h.id, h.token)
	if !ok {
		return
	}
	r.send(h.id, refs)
}

func (r *releaser) send(cid int64, refs int) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := r.transport.Send(ctx, ipc.ChannelReleaseCallback, cid, refs); err != nil {
		r.logger.Debug("Callback release not delivered",
			zap.Int64("callback_id", cid),
			zap.Error(err))
	}
}

// fail converts an error raised while serving a request into a reply.
// Protocol errors fail the request itself; anything else is an exception
// the renderer rethrows.
func (s *Session) fail(err error) (any, error) {
	if errors.Is(err, descriptor.ErrProtocol) {
		return nil, err
	}
	message, stack := jsutil.ExceptionDetails(err)
	return descriptor.Exception(message, stack), nil
}

// reply wraps the outcome of a request.
func (s *Session) reply(v goja.Value, err error) (any, error) {
	if err != nil {
		return s.fail(err)
	}
	d, err := s.Wrap(v)
	if err != nil {
		return nil, err
	}
	s.metrics.SetOwnerObjects(s.objects.Len())
	return d, nil
}
