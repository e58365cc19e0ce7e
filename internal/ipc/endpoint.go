package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/remote/internal/shared/id"
)

// Handler serves a synchronous request. The returned value is JSON encoded
// into the reply; a returned error is reported to the caller as a PeerError.
type Handler func(ctx context.Context, args Args) (any, error)

// Listener consumes a one-way message.
type Listener func(ctx context.Context, args Args)

// Options configures an Endpoint.
type Options struct {
	Side            string
	SyncTimeout     time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	InboundRate     float64
	InboundBurst    int
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

// OptionsFromConfig builds endpoint options from the bridge configuration.
func OptionsFromConfig(cfg *config.Config, side string) Options {
	return Options{
		Side:            side,
		SyncTimeout:     cfg.Bridge.SyncTimeout,
		BreakerFailures: cfg.Transport.BreakerFailures,
		BreakerCooldown: cfg.Transport.BreakerCooldown,
		InboundRate:     cfg.Transport.InboundRate,
		InboundBurst:    cfg.Transport.InboundBurst,
	}
}

// Endpoint is one side of a bridge connection.
//
// A reader goroutine queues inbound messages; they are dispatched only on the
// goroutine that calls Serve, Poll or SendSync, which is expected to be the
// goroutine driving the local script runtime. While SendSync waits for its
// reply it keeps dispatching, so handlers may run inside it and may issue
// nested SendSync calls. Replies to outer calls that arrive meanwhile are
// held by sequence number.
type Endpoint struct {
	conn    Conn
	opts    Options
	peer    id.PeerID
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker
	limiter *rate.Limiter

	handlers  map[string]Handler
	listeners map[string]Listener
	hmu       sync.RWMutex

	seq         id.Sequence
	depth       atomic.Int32
	mu          sync.Mutex
	outstanding map[int64]struct{}
	stash       map[int64]*Message

	inbox *inbox

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	errMu  sync.Mutex
	err    error
}

// NewEndpoint wraps conn and starts reading from it.
func NewEndpoint(conn Conn, opts Options) *Endpoint {
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	peer := id.NewPeerID()
	logger := logging.OrNop(opts.Logger).With(zap.String("peer", peer.String()))

	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		conn:        conn,
		opts:        opts,
		peer:        peer,
		logger:      logger,
		metrics:     opts.Metrics,
		handlers:    make(map[string]Handler),
		listeners:   make(map[string]Listener),
		outstanding: make(map[int64]struct{}),
		stash:       make(map[int64]*Message),
		inbox:       newInbox(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	e.breaker = resilience.New(peer.String(), resilience.Settings{
		Failures: opts.BreakerFailures,
		Cooldown: opts.BreakerCooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("sync breaker state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			if to == resilience.StateOpen {
				e.metrics.IncBreakerTrips()
			}
		},
	})

	if opts.InboundRate > 0 {
		burst := opts.InboundBurst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.InboundRate), burst)
	}

	go e.readLoop()
	return e
}

// Peer returns the endpoint's log identity.
func (e *Endpoint) Peer() id.PeerID {
	return e.peer
}

// Logger returns the endpoint's logger.
func (e *Endpoint) Logger() *zap.Logger {
	return e.logger
}

// Handle registers the handler for a synchronous channel.
func (e *Endpoint) Handle(channel string, h Handler) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	e.handlers[channel] = h
}

// Listen registers the listener for a one-way channel.
func (e *Endpoint) Listen(channel string, l Listener) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	e.listeners[channel] = l
}

// Send delivers a one-way message. It never waits for the peer, only for
// room on the connection, and gives up when ctx ends.
func (e *Endpoint) Send(ctx context.Context, channel string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeArgs(args...)
	if err != nil {
		return err
	}
	return e.write(ctx, &Message{Kind: KindSend, Channel: channel, Args: json.RawMessage(payload)})
}

// SendSync issues a request and waits for its reply, dispatching inbound
// messages meanwhile. Without a deadline on ctx the configured sync timeout
// applies. Consecutive timeouts of outermost requests open a circuit breaker;
// requests nested inside a handler bypass it, since the outer request already
// holds the breaker's slot.
func (e *Endpoint) SendSync(ctx context.Context, channel string, args ...any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.SyncTimeout)
		defer cancel()
	}

	nested := e.depth.Add(1) > 1
	defer e.depth.Add(-1)

	timer := monitoring.NewTimer(e.metrics, e.opts.Side, channel)

	var (
		result json.RawMessage
		err    error
	)
	if nested {
		result, err = e.roundTrip(ctx, channel, args)
	} else {
		err = e.breaker.Do(func() error {
			var err error
			result, err = e.roundTrip(ctx, channel, args)
			return err
		}, func(err error) bool {
			return errors.Is(err, ErrTimeout)
		})
	}

	var peerErr *PeerError
	switch {
	case err == nil:
		timer.Stop(monitoring.StatusOK)
	case errors.Is(err, ErrTimeout):
		timer.Stop(monitoring.StatusTimeout)
	case errors.As(err, &peerErr):
		timer.Stop(monitoring.StatusException)
	default:
		timer.Stop(monitoring.StatusError)
	}

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("sync %s: %w", channel, err)
		}
		return nil, err
	}
	return result, nil
}

func (e *Endpoint) roundTrip(ctx context.Context, channel string, args []any) (json.RawMessage, error) {
	payload, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}

	seq := e.seq.Next()
	e.mu.Lock()
	e.outstanding[seq] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.outstanding, seq)
		delete(e.stash, seq)
		e.mu.Unlock()
	}()

	if err := e.write(ctx, &Message{Kind: KindSync, Seq: seq, Channel: channel, Args: json.RawMessage(payload)}); err != nil {
		return nil, err
	}

	for {
		if reply := e.takeStashed(seq); reply != nil {
			return replyResult(channel, reply)
		}

		msg, err := e.next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.logger.Warn("sync request timed out",
					zap.String("channel", channel),
					zap.Int64("seq", seq))
				return nil, fmt.Errorf("%w: %s", ErrTimeout, channel)
			}
			return nil, err
		}

		if msg.Kind == KindReply && msg.Seq == seq {
			return replyResult(channel, msg)
		}
		e.dispatch(ctx, msg)
	}
}

func replyResult(channel string, msg *Message) (json.RawMessage, error) {
	if msg.Error != "" {
		return nil, &PeerError{Channel: channel, Message: msg.Error}
	}
	return msg.Result, nil
}

func (e *Endpoint) takeStashed(seq int64) *Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.stash[seq]
	if ok {
		delete(e.stash, seq)
	}
	return msg
}

// Serve dispatches inbound messages until ctx is done or the connection
// closes. It returns nil when ctx ends and the read error otherwise.
func (e *Endpoint) Serve(ctx context.Context) error {
	for {
		msg, err := e.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		e.dispatch(ctx, msg)
	}
}

// Poll dispatches every message already queued and returns how many ran.
func (e *Endpoint) Poll(ctx context.Context) int {
	n := 0
	for {
		msg, ok := e.inbox.pop()
		if !ok {
			return n
		}
		e.dispatch(ctx, msg)
		n++
	}
}

// Close stops the reader and closes the connection.
func (e *Endpoint) Close() error {
	e.cancel()
	return e.conn.Close()
}

// Done is closed when the connection is gone.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Err returns why the connection ended.
func (e *Endpoint) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *Endpoint) write(ctx context.Context, msg *Message) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	if err := e.conn.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Channel, err)
	}
	e.metrics.RecordMessage("out", string(msg.Kind))
	return nil
}

func (e *Endpoint) readLoop() {
	defer close(e.done)
	for {
		msg, err := e.conn.Recv()
		if err != nil {
			e.setErr(err)
			return
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(e.ctx); err != nil {
				e.setErr(ErrClosed)
				return
			}
		}
		e.metrics.RecordMessage("in", string(msg.Kind))
		e.inbox.push(msg)
	}
}

func (e *Endpoint) setErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		if e.ctx.Err() != nil {
			err = ErrClosed
		}
		e.err = err
	}
}

// next returns the next queued message, waiting for one if needed. Messages
// queued before the connection closed are still delivered.
func (e *Endpoint) next(ctx context.Context) (*Message, error) {
	for {
		if msg, ok := e.inbox.pop(); ok {
			return msg, nil
		}
		select {
		case <-e.inbox.signal:
		case <-e.done:
			if msg, ok := e.inbox.pop(); ok {
				return msg, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrClosed, e.Err())
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Endpoint) dispatch(ctx context.Context, msg *Message) {
	switch msg.Kind {
	case KindReply:
		e.mu.Lock()
		_, waiting := e.outstanding[msg.Seq]
		if waiting {
			e.stash[msg.Seq] = msg
		}
		e.mu.Unlock()
		if !waiting {
			e.logger.Debug("dropping late reply", zap.Int64("seq", msg.Seq))
		}

	case KindSend:
		e.hmu.RLock()
		l, ok := e.listeners[msg.Channel]
		e.hmu.RUnlock()
		if !ok {
			e.logger.Debug("no listener for channel", zap.String("channel", msg.Channel))
			return
		}
		_ = e.safely(msg.Channel, func() { l(ctx, Args(msg.Args)) })

	case KindSync:
		e.hmu.RLock()
		h, ok := e.handlers[msg.Channel]
		e.hmu.RUnlock()

		reply := &Message{Kind: KindReply, Seq: msg.Seq, Channel: msg.Channel}
		if !ok {
			reply.Error = fmt.Sprintf("%v: %s", ErrNoHandler, msg.Channel)
		} else {
			var (
				result any
				err    error
			)
			if perr := e.safely(msg.Channel, func() { result, err = h(ctx, Args(msg.Args)) }); perr != nil {
				err = perr
			}
			if err != nil {
				reply.Error = err.Error()
			} else if reply.Result, err = encodeResult(result); err != nil {
				reply.Result = nil
				reply.Error = err.Error()
			}
		}

		if err := e.write(ctx, reply); err != nil {
			e.logger.Debug("failed to send reply",
				zap.String("channel", msg.Channel),
				zap.Error(err))
		}
	}
}

// safely runs fn and reports a panic as an error.
func (e *Endpoint) safely(channel string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("message handler panicked",
				zap.String("channel", channel),
				zap.Any("panic", r))
			err = fmt.Errorf("handler for %s panicked: %v", channel, r)
		}
	}()
	fn()
	return nil
}

func encodeResult(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

type inbox struct {
	mu     sync.Mutex
	queue  []*Message
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(msg *Message) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) pop() (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	msg := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return msg, true
}
